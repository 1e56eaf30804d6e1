// Package arbitrage turns per-venue prices into ranked cross-venue
// opportunities.
package arbitrage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// opportunityNamespace scopes name-based opportunity ids.
var opportunityNamespace = uuid.MustParse("5b1f0c7e-8a43-4d0e-9d55-3f1c2a7b9e60")

// CostModel returns the execution cost of trading on a venue, in the same
// unit as price × trade size.
type CostModel interface {
	Cost(venueID string) float64
}

// ScorerConfig configures a Scorer.
type ScorerConfig struct {
	MinProfitThresholdPercent float64
	TradeSize                 float64
}

// Scorer decides whether two venue prices form a profitable opportunity.
// It is pure and safe for concurrent use.
type Scorer struct {
	thresholdPct float64
	tradeSize    float64
	costs        CostModel
}

// NewScorer validates cfg and returns a Scorer.
func NewScorer(cfg ScorerConfig, costs CostModel) (*Scorer, error) {
	problems := cfg.validate()
	if costs == nil {
		problems = append(problems, "nil cost model")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("arbitrage: %w: %s", domain.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return &Scorer{
		thresholdPct: cfg.MinProfitThresholdPercent,
		tradeSize:    cfg.TradeSize,
		costs:        costs,
	}, nil
}

func (cfg ScorerConfig) validate() []string {
	var problems []string
	t := cfg.MinProfitThresholdPercent
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
		problems = append(problems, fmt.Sprintf("min profit threshold %v must be a non-negative number", t))
	}
	if !(cfg.TradeSize > 0) || math.IsInf(cfg.TradeSize, 0) {
		problems = append(problems, fmt.Sprintf("trade size %v must be positive", cfg.TradeSize))
	}
	return problems
}

// Score evaluates the pair (venueA, priceA) / (venueB, priceB). It reports
// false when the spread is under the threshold, when the lower price is not
// positive, or when cost eats the whole gross profit.
func (s *Scorer) Score(assetID, venueA string, priceA float64, venueB string, priceB float64, cycle time.Time) (domain.Opportunity, bool) {
	buyVenue, buyPrice, sellVenue, sellPrice := venueA, priceA, venueB, priceB
	if priceB < priceA {
		buyVenue, buyPrice, sellVenue, sellPrice = venueB, priceB, venueA, priceA
	}
	if !(buyPrice > 0) || math.IsInf(sellPrice, 0) {
		return domain.Opportunity{}, false
	}

	diff := sellPrice - buyPrice
	diffPct := diff / buyPrice * 100
	if diffPct < s.thresholdPct {
		return domain.Opportunity{}, false
	}

	gross := diff * s.tradeSize
	cost := s.costs.Cost(buyVenue) + s.costs.Cost(sellVenue)
	net := gross - cost
	if !(net > 0) {
		return domain.Opportunity{}, false
	}

	return domain.Opportunity{
		ID:              OpportunityID(assetID, buyVenue, sellVenue, cycle),
		AssetID:         assetID,
		BuyVenue:        buyVenue,
		SellVenue:       sellVenue,
		BuyPrice:        buyPrice,
		SellPrice:       sellPrice,
		PriceDifference: diff,
		GrossProfit:     gross,
		ExecutionCost:   cost,
		NetProfit:       net,
		ConfidenceScore: math.Min(diffPct/10, 1),
		DetectedAt:      cycle,
	}, true
}

// OpportunityID is the deterministic id of an opportunity detected in the
// cycle that started at cycle.
func OpportunityID(assetID, buyVenue, sellVenue string, cycle time.Time) string {
	name := assetID + "|" + buyVenue + "|" + sellVenue + "|" + strconv.FormatInt(cycle.UnixNano(), 10)
	return uuid.NewSHA1(opportunityNamespace, []byte(name)).String()
}
