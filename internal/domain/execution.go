package domain

import "time"

// ExecutionStatus tracks an execution request handed to the execution layer.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Execution is a request to act on a detected opportunity. Filling in the
// result fields is the execution layer's job.
type Execution struct {
	ID              string          `json:"id"`
	OpportunityID   string          `json:"opportunity_id"`
	UserID          string          `json:"user_id"`
	ExecutorAddress string          `json:"executor_address"`
	AmountRequested float64         `json:"amount_requested"`
	EstimatedProfit float64         `json:"estimated_profit"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	ActualProfit    float64         `json:"actual_profit"`
	GasUsed         float64         `json:"gas_used"`
	Status          ExecutionStatus `json:"status"`
	RequestedAt     time.Time       `json:"requested_at"`
}
