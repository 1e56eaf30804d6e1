// Package pricesource provides domain.PriceSource implementations: an HTTP
// client for the blockchain indexer, deterministic doubles for development
// and tests, and a decorator that records quotes into the quote cache.
package pricesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

// IndexerConfig configures an Indexer.
type IndexerConfig struct {
	BaseURL string
	APIKey  string
	// RatePerSecond caps outbound requests; zero disables limiting.
	RatePerSecond float64
	Burst         int
	// MaxIdleConnsPerHost sizes the shared connection pool.
	MaxIdleConnsPerHost int
}

// Indexer fetches quotes from the indexer REST API:
//
//	GET {base}/api/v1/token/{asset}/price?chain={venue}
//
// One http.Client (and therefore one connection pool) is shared by every
// fetch. Per-fetch deadlines come from the caller's context.
type Indexer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewIndexer creates an Indexer client.
func NewIndexer(cfg IndexerConfig) *Indexer {
	idle := cfg.MaxIdleConnsPerHost
	if idle <= 0 {
		idle = 32
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = idle * 4
	transport.MaxIdleConnsPerHost = idle

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Indexer{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Transport: transport},
		limiter:    limiter,
		now:        time.Now,
	}
}

type indexerQuote struct {
	Price     float64 `json:"price"`
	Volume24h float64 `json:"volume_24h"`
	Liquidity float64 `json:"liquidity"`
}

// Quote implements domain.PriceSource.
func (c *Indexer) Quote(ctx context.Context, assetID, venueID string) (domain.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		// The limiter refuses early when the next token lands past the deadline.
		if _, ok := ctx.Deadline(); ok && !errors.Is(err, context.Canceled) {
			return domain.Quote{}, fmt.Errorf("pricesource/indexer: %s on %s: %w: rate limit: %w",
				assetID, venueID, domain.ErrSourceTimeout, err)
		}
		return domain.Quote{}, c.classify(assetID, venueID, err)
	}

	params := url.Values{}
	params.Set("chain", venueID)
	u := fmt.Sprintf("%s/api/v1/token/%s/price?%s", c.baseURL, url.PathEscape(assetID), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("pricesource/indexer: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, c.classify(assetID, venueID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Quote{}, c.classify(assetID, venueID, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("pricesource/indexer: %s on %s: %w: status %d: %s",
			assetID, venueID, domain.ErrSourceUnavailable, resp.StatusCode, truncate(body, 200))
	}

	var q indexerQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return domain.Quote{}, fmt.Errorf("pricesource/indexer: %s on %s: %w: malformed body: %v",
			assetID, venueID, domain.ErrSourceUnavailable, err)
	}
	if q.Price <= 0 {
		return domain.Quote{}, fmt.Errorf("pricesource/indexer: %s on %s: %w: non-positive price %v",
			assetID, venueID, domain.ErrSourceUnavailable, q.Price)
	}

	return domain.Quote{
		AssetID:    assetID,
		VenueID:    venueID,
		Price:      q.Price,
		Volume24h:  q.Volume24h,
		Liquidity:  q.Liquidity,
		ObservedAt: c.now().UTC(),
	}, nil
}

// classify maps transport errors onto the source failure sentinels while
// keeping the original error in the chain.
func (c *Indexer) classify(assetID, venueID string, err error) error {
	kind := domain.ErrSourceUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = domain.ErrSourceTimeout
	}
	return fmt.Errorf("pricesource/indexer: %s on %s: %w: %w", assetID, venueID, kind, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
