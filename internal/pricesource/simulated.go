package pricesource

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// Well-known asset ids used by the development configuration.
const (
	AssetUSDC = "0xA0b86a33E6441b8c4C8C2B8c4C8C2B8c4C8C2B8c"
	AssetUSDT = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	AssetWBTC = "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"
)

// DefaultBasePrices returns the reference price per development asset.
func DefaultBasePrices() map[string]float64 {
	return map[string]float64{
		AssetUSDC: 1.0,
		AssetUSDT: 1.0,
		AssetWBTC: 45000,
	}
}

// DefaultVenueMultipliers returns the per-chain skew applied to base prices.
func DefaultVenueMultipliers() map[string]float64 {
	return map[string]float64{
		"ethereum": 1.0,
		"polygon":  0.999,
		"arbitrum": 0.998,
		"optimism": 0.997,
		"bsc":      0.996,
	}
}

// SimulatedConfig configures a Simulated source.
type SimulatedConfig struct {
	BasePrices map[string]float64
	// Multipliers skew the base price per venue. Venues not listed use 1.
	Multipliers map[string]float64
	// Jitter is the maximum relative deviation applied per quote, e.g. 0.001
	// for ±0.1%. Zero yields fully deterministic prices.
	Jitter float64
	Seed   uint64
}

// Simulated is a deterministic, seedable PriceSource for development and
// tests. It never touches the network. The n-th quote of an asset on a venue
// depends only on the seed, asset, venue and n, never on call interleaving.
type Simulated struct {
	mu          sync.Mutex
	base        map[string]float64
	multipliers map[string]float64
	overrides   map[string]float64
	failures    map[string]error
	jitter      float64
	seed        uint64
	calls       map[string]uint64
	now         func() time.Time
}

// NewSimulated creates a Simulated source. Nil maps fall back to the
// development defaults.
func NewSimulated(cfg SimulatedConfig) *Simulated {
	base := cfg.BasePrices
	if base == nil {
		base = DefaultBasePrices()
	}
	mult := cfg.Multipliers
	if mult == nil {
		mult = DefaultVenueMultipliers()
	}
	s := &Simulated{
		base:        make(map[string]float64, len(base)),
		multipliers: make(map[string]float64, len(mult)),
		overrides:   make(map[string]float64),
		failures:    make(map[string]error),
		jitter:      cfg.Jitter,
		seed:        cfg.Seed,
		calls:       make(map[string]uint64),
		now:         time.Now,
	}
	for k, v := range base {
		s.base[normalizeAsset(k)] = v
	}
	for k, v := range mult {
		s.multipliers[k] = v
	}
	return s
}

// SetPrice pins the price of asset on venue, bypassing base and jitter.
func (s *Simulated) SetPrice(assetID, venueID string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[overrideKey(normalizeAsset(assetID), venueID)] = price
}

// FailVenue makes every quote from venue fail with err. A nil err clears it.
func (s *Simulated) FailVenue(venueID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, venueID)
		return
	}
	s.failures[venueID] = err
}

// Quote implements domain.PriceSource.
func (s *Simulated) Quote(ctx context.Context, assetID, venueID string) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, fmt.Errorf("pricesource/simulated: %w: %w", domain.ErrSourceUnavailable, err)
	}

	key := normalizeAsset(assetID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failures[venueID]; err != nil {
		return domain.Quote{}, fmt.Errorf("pricesource/simulated: %s on %s: %w", assetID, venueID, err)
	}

	price, ok := s.overrides[overrideKey(key, venueID)]
	if !ok {
		base, known := s.base[key]
		if !known {
			return domain.Quote{}, fmt.Errorf("pricesource/simulated: %w: unknown asset %s", domain.ErrSourceUnavailable, assetID)
		}
		mult, ok := s.multipliers[venueID]
		if !ok {
			mult = 1
		}
		price = base * mult
		if s.jitter > 0 {
			k := overrideKey(key, venueID)
			n := s.calls[k]
			s.calls[k] = n + 1
			price *= 1 + s.jitter*(2*unitFloat(s.seed, k, n)-1)
		}
	}

	return domain.Quote{
		AssetID:    assetID,
		VenueID:    venueID,
		Price:      price,
		Volume24h:  1_000_000,
		Liquidity:  500_000,
		ObservedAt: s.now().UTC(),
	}, nil
}

// normalizeAsset checksums hex addresses so lookups are case-insensitive.
func normalizeAsset(assetID string) string {
	if common.IsHexAddress(assetID) {
		return common.HexToAddress(assetID).Hex()
	}
	return assetID
}

// unitFloat maps (seed, key, n) onto [0, 1).
func unitFloat(seed uint64, key string, n uint64) float64 {
	buf := make([]byte, 16, 16+len(key))
	binary.BigEndian.PutUint64(buf[:8], seed)
	binary.BigEndian.PutUint64(buf[8:], n)
	sum := blake2b.Sum256(append(buf, key...))
	return float64(binary.BigEndian.Uint64(sum[:8])>>11) / (1 << 53)
}

func overrideKey(assetID, venueID string) string {
	return assetID + "|" + venueID
}
