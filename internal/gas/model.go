// Package gas converts a per-venue gas table into execution cost expressed in
// a single reference unit so costs on different chains can be compared.
package gas

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/params"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// Entry is the static cost description of one venue.
type Entry struct {
	// GasPriceGwei is the native gas price in gwei.
	GasPriceGwei float64
	GasLimit     uint64
	// NativeToReference converts one unit of the venue's native token into
	// the reference unit.
	NativeToReference float64
}

// Cost returns gas price (in native units) × gas limit × conversion rate.
func (e Entry) Cost() float64 {
	return e.GasPriceGwei / params.GWei * float64(e.GasLimit) * e.NativeToReference
}

func (e Entry) validate() error {
	if e.GasPriceGwei < 0 || e.NativeToReference < 0 {
		return fmt.Errorf("%w: negative gas entry %+v", domain.ErrInvalidConfig, e)
	}
	return nil
}

// TableSource supplies the venue → Entry table.
type TableSource interface {
	Table(ctx context.Context) (map[string]Entry, error)
}

// StaticTable is a TableSource backed by configuration.
type StaticTable map[string]Entry

// Table returns a copy of the static table.
func (t StaticTable) Table(_ context.Context) (map[string]Entry, error) {
	out := make(map[string]Entry, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out, nil
}

// Estimate is the cost of one venue together with whether it came from the
// default entry.
type Estimate struct {
	Venue    string
	Cost     float64
	Fallback bool
}

// Config configures a Model.
type Config struct {
	Source   TableSource
	Fallback Entry
	// TTL is how long a loaded table is considered fresh. Zero means the
	// table never goes stale once loaded.
	TTL    time.Duration
	Logger *slog.Logger
}

// Model owns the gas table. It is safe for concurrent use.
type Model struct {
	mu       sync.RWMutex
	table    map[string]Entry
	loadedAt time.Time

	source   TableSource
	fallback Entry
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewModel validates cfg and returns a Model with an empty table; call
// Refresh (or RefreshIfStale) before first use.
func NewModel(cfg Config) (*Model, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("gas: %w: nil table source", domain.ErrInvalidConfig)
	}
	if err := cfg.Fallback.validate(); err != nil {
		return nil, fmt.Errorf("gas: fallback: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		table:    map[string]Entry{},
		source:   cfg.Source,
		fallback: cfg.Fallback,
		ttl:      cfg.TTL,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "gas_model")),
	}, nil
}

// NewStaticModel builds a Model over a fixed table and loads it immediately.
func NewStaticModel(table map[string]Entry, fallback Entry) (*Model, error) {
	m, err := NewModel(Config{Source: StaticTable(table), Fallback: fallback})
	if err != nil {
		return nil, err
	}
	if err := m.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

// Refresh reloads the table from the source. On failure the previous table
// stays in place.
func (m *Model) Refresh(ctx context.Context) error {
	table, err := m.source.Table(ctx)
	if err != nil {
		return fmt.Errorf("gas: load table: %w", err)
	}
	for venue, e := range table {
		if err := e.validate(); err != nil {
			return fmt.Errorf("gas: venue %q: %w", venue, err)
		}
	}

	m.mu.Lock()
	m.table = table
	m.loadedAt = m.now()
	m.mu.Unlock()

	m.logger.DebugContext(ctx, "gas table refreshed", slog.Int("venues", len(table)))
	return nil
}

// RefreshIfStale reloads the table when it was never loaded or its TTL has
// elapsed.
func (m *Model) RefreshIfStale(ctx context.Context) error {
	m.mu.RLock()
	stale := m.loadedAt.IsZero() || (m.ttl > 0 && m.now().Sub(m.loadedAt) >= m.ttl)
	m.mu.RUnlock()
	if !stale {
		return nil
	}
	return m.Refresh(ctx)
}

// Estimate returns the cost for venue, falling back to the default entry for
// venues missing from the table.
func (m *Model) Estimate(venue string) Estimate {
	m.mu.RLock()
	e, ok := m.table[venue]
	m.mu.RUnlock()
	if !ok {
		return Estimate{Venue: venue, Cost: m.fallback.Cost(), Fallback: true}
	}
	return Estimate{Venue: venue, Cost: e.Cost()}
}

// Cost returns the execution cost of venue in the reference unit.
func (m *Model) Cost(venue string) float64 {
	return m.Estimate(venue).Cost
}

// Missing returns, sorted, the venues that have no table entry.
func (m *Model) Missing(venues []string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, v := range venues {
		if _, ok := m.table[v]; !ok {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
