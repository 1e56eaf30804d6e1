package domain

import (
	"cmp"
	"time"
)

// Opportunity is a profitable venue pair for an asset, net of execution cost.
// BuyPrice is always <= SellPrice.
type Opportunity struct {
	ID              string    `json:"id"`
	AssetID         string    `json:"asset_id"`
	BuyVenue        string    `json:"buy_venue"`
	SellVenue       string    `json:"sell_venue"`
	BuyPrice        float64   `json:"buy_price"`
	SellPrice       float64   `json:"sell_price"`
	PriceDifference float64   `json:"price_difference"`
	GrossProfit     float64   `json:"gross_profit"`
	ExecutionCost   float64   `json:"execution_cost"`
	NetProfit       float64   `json:"net_profit"`
	ConfidenceScore float64   `json:"confidence_score"`
	DetectedAt      time.Time `json:"detected_at"`
}

// CompareOpportunities orders by net profit descending, then confidence
// descending, then id ascending.
func CompareOpportunities(a, b Opportunity) int {
	if c := cmp.Compare(b.NetProfit, a.NetProfit); c != 0 {
		return c
	}
	if c := cmp.Compare(b.ConfidenceScore, a.ConfidenceScore); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// OpportunityStatus is the persisted lifecycle state of an opportunity. The
// detection engine never sets anything but OpportunityActive.
type OpportunityStatus string

const (
	OpportunityActive             OpportunityStatus = "active"
	OpportunityExecutionRequested OpportunityStatus = "execution_requested"
	OpportunityExpired            OpportunityStatus = "expired"
)

// OpportunityRecord is an Opportunity as stored for later execution or audit.
type OpportunityRecord struct {
	Opportunity
	Status    OpportunityStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
}
