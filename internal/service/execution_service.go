package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// ExecutionsStream is the redis stream the external execution layer reads.
const ExecutionsStream = "executions"

// DefaultExecutionAmount is used when a request leaves the amount out.
const DefaultExecutionAmount = 1000.0

// ExecutionRequest is a user's request to act on an opportunity.
type ExecutionRequest struct {
	OpportunityID string  `json:"opportunity_id"`
	Amount        float64 `json:"amount"`
	WalletAddress string  `json:"wallet_address"`
}

// ExecutionResponse acknowledges an accepted request.
type ExecutionResponse struct {
	Status          string  `json:"status"`
	ExecutionID     string  `json:"execution_id"`
	OpportunityID   string  `json:"opportunity_id"`
	EstimatedProfit float64 `json:"estimated_profit"`
	Message         string  `json:"message"`
}

// ExecutionService validates execution requests and hands them to the
// execution layer through the executions stream. It never trades itself.
type ExecutionService struct {
	opps   domain.OpportunityStore
	execs  domain.ExecutionStore
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
	now    func() time.Time
}

// NewExecutionService creates an ExecutionService. bus and audit may be nil.
func NewExecutionService(
	opps domain.OpportunityStore,
	execs domain.ExecutionStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ExecutionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionService{
		opps:   opps,
		execs:  execs,
		bus:    bus,
		audit:  audit,
		logger: logger.With(slog.String("component", "execution_service")),
		now:    time.Now,
	}
}

// Request records an execution request for user. It fails with
// domain.ErrNotFound for an unknown opportunity, domain.ErrOpportunityExpired
// once the opportunity expired, domain.ErrNotProfitable for a non-positive
// net profit and domain.ErrInvalidAddress for a malformed wallet.
func (s *ExecutionService) Request(ctx context.Context, user domain.User, req ExecutionRequest) (ExecutionResponse, error) {
	if strings.TrimSpace(req.OpportunityID) == "" {
		return ExecutionResponse{}, fmt.Errorf("execution_service: %w: opportunity_id is required", domain.ErrInvalidInput)
	}
	amount := req.Amount
	if amount == 0 {
		amount = DefaultExecutionAmount
	}
	if !(amount > 0) || math.IsInf(amount, 0) {
		return ExecutionResponse{}, fmt.Errorf("execution_service: %w: amount must be a positive finite number, got %g", domain.ErrInvalidInput, amount)
	}

	wallet := req.WalletAddress
	if wallet == "" {
		wallet = user.WalletAddress
	}
	if !common.IsHexAddress(wallet) {
		return ExecutionResponse{}, fmt.Errorf("execution_service: wallet %q: %w", wallet, domain.ErrInvalidAddress)
	}
	wallet = common.HexToAddress(wallet).Hex()

	opp, err := s.opps.GetByID(ctx, req.OpportunityID)
	if err != nil {
		return ExecutionResponse{}, fmt.Errorf("execution_service: load opportunity %q: %w", req.OpportunityID, err)
	}
	now := s.now()
	if opp.Status == domain.OpportunityExpired || !now.Before(opp.ExpiresAt) {
		return ExecutionResponse{}, fmt.Errorf("execution_service: opportunity %q: %w", opp.ID, domain.ErrOpportunityExpired)
	}
	if opp.NetProfit <= 0 {
		return ExecutionResponse{}, fmt.Errorf("execution_service: opportunity %q: %w", opp.ID, domain.ErrNotProfitable)
	}

	exec := domain.Execution{
		ID:              uuid.NewString(),
		OpportunityID:   opp.ID,
		UserID:          user.ID,
		ExecutorAddress: wallet,
		AmountRequested: amount,
		EstimatedProfit: opp.NetProfit,
		Status:          domain.ExecutionPending,
		RequestedAt:     now.UTC(),
	}
	if err := s.execs.Create(ctx, exec); err != nil {
		return ExecutionResponse{}, fmt.Errorf("execution_service: create execution: %w", err)
	}

	if err := s.opps.UpdateStatus(ctx, opp.ID, domain.OpportunityExecutionRequested); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "mark opportunity execution_requested failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}

	if s.bus != nil {
		payload, _ := json.Marshal(exec)
		if err := s.bus.StreamAppend(ctx, ExecutionsStream, payload); err != nil {
			s.logger.WarnContext(ctx, "append execution to stream failed",
				slog.String("execution_id", exec.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "execution_requested", map[string]any{
			"execution_id":     exec.ID,
			"opportunity_id":   opp.ID,
			"user_id":          user.ID,
			"amount":           amount,
			"estimated_profit": opp.NetProfit,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "execution requested",
		slog.String("execution_id", exec.ID),
		slog.String("opp_id", opp.ID),
		slog.String("user_id", user.ID),
		slog.Float64("amount", amount),
	)

	return ExecutionResponse{
		Status:          "execution_started",
		ExecutionID:     exec.ID,
		OpportunityID:   opp.ID,
		EstimatedProfit: opp.NetProfit,
		Message:         "Execution request submitted",
	}, nil
}
