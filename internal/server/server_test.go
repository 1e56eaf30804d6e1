package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/chainarb/internal/domain"
	"github.com/alanyoungcy/chainarb/internal/server/handler"
	"github.com/alanyoungcy/chainarb/internal/server/middleware"
	"github.com/alanyoungcy/chainarb/internal/service"
)

const goodKey = "good-key"

var testUser = domain.User{
	ID:            "u1",
	Email:         "trader@example.com",
	WalletAddress: "0x52908400098527886E0F7030069857D2E4169EE7",
	Tier:          domain.TierPro,
	IsActive:      true,
}

type fakeAuth struct{ err error }

func (a fakeAuth) Authenticate(_ context.Context, key string) (domain.User, error) {
	if a.err != nil {
		return domain.User{}, a.err
	}
	if key != goodKey {
		return domain.User{}, domain.ErrUnauthorized
	}
	return testUser, nil
}

type fakeOpps struct {
	opps []domain.Opportunity
	err  error
	recs []domain.OpportunityRecord
}

func (f fakeOpps) Detect(context.Context) ([]domain.Opportunity, error) { return f.opps, f.err }

func (f fakeOpps) DetectAsset(_ context.Context, asset string) ([]domain.Opportunity, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Opportunity
	for _, o := range f.opps {
		if o.AssetID == asset {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f fakeOpps) ListActive(_ context.Context, limit int) ([]domain.OpportunityRecord, error) {
	if limit < len(f.recs) {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

type fakePrices struct{}

func (fakePrices) Latest(_ context.Context, asset string) ([]domain.Quote, error) {
	if asset != usdc {
		return nil, domain.ErrNotFound
	}
	return []domain.Quote{{AssetID: usdc, VenueID: "ethereum", Price: 1}}, nil
}

type fakeExec struct{ err error }

func (f fakeExec) Request(_ context.Context, u domain.User, req service.ExecutionRequest) (service.ExecutionResponse, error) {
	if f.err != nil {
		return service.ExecutionResponse{}, f.err
	}
	return service.ExecutionResponse{Status: "execution_started", OpportunityID: req.OpportunityID, EstimatedProfit: 3}, nil
}

type fakeUsers struct{ err error }

func (f fakeUsers) Create(_ context.Context, email, wallet string, tier domain.UserTier) (domain.User, string, error) {
	if f.err != nil {
		return domain.User{}, "", f.err
	}
	return domain.User{ID: "new", Email: email, WalletAddress: wallet, Tier: tier, IsActive: true}, "secret", nil
}

type fakeLimiter struct{ allow bool }

func (l fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return l.allow, nil
}

const usdc = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type options struct {
	opps    fakeOpps
	exec    fakeExec
	users   fakeUsers
	auth    middleware.Authenticator
	limiter domain.RateLimiter
}

func newTestServer(o options) http.Handler {
	logger := discardLogger()
	if o.auth == nil {
		o.auth = fakeAuth{}
	}
	srv := NewServer(Config{Port: 0, CORSOrigins: []string{"https://app.example"}, RateLimit: 1, RateWindow: time.Minute},
		Handlers{
			Health:        handler.NewHealthHandler("test"),
			Opportunities: handler.NewOpportunityHandler(o.opps, logger),
			Prices:        handler.NewPriceHandler(fakePrices{}, logger),
			Execute:       handler.NewExecuteHandler(o.exec, logger),
			Users:         handler.NewUserHandler(o.users, logger),
		},
		Deps{Auth: o.auth, Limiter: o.limiter},
		logger,
	)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if authed {
		req.Header.Set("Authorization", "Bearer "+goodKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthIsPublic(t *testing.T) {
	rec := do(t, newTestServer(options{}), http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestMetricsIsPublic(t *testing.T) {
	rec := do(t, newTestServer(options{}), http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOpportunitiesRequireAuth(t *testing.T) {
	h := newTestServer(options{})

	rec := do(t, h, http.MethodGet, "/api/v1/opportunities", "", false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[middleware.ErrorBody](t, rec)
	assert.Equal(t, "unauthorized", body.Error)
	assert.NotEmpty(t, body.Timestamp)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/opportunities", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthBackendFailureIs500(t *testing.T) {
	h := newTestServer(options{auth: fakeAuth{err: errors.New("db down")}})
	rec := do(t, h, http.MethodGet, "/api/v1/opportunities", "", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListOpportunities(t *testing.T) {
	opps := fakeOpps{opps: []domain.Opportunity{
		{ID: "a", AssetID: usdc, NetProfit: 5},
		{ID: "b", AssetID: "0xother", NetProfit: 1},
	}}
	h := newTestServer(options{opps: opps})

	rec := do(t, h, http.MethodGet, "/api/v1/opportunities", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Opportunities []domain.Opportunity `json:"opportunities"`
		Count         int                  `json:"count"`
	}](t, rec)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "a", body.Opportunities[0].ID)

	// Lowercase addresses are checksummed before filtering.
	rec = do(t, h, http.MethodGet, "/api/v1/opportunities/"+strings.ToLower(usdc), "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[struct {
		Opportunities []domain.Opportunity `json:"opportunities"`
		Count         int                  `json:"count"`
	}](t, rec)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "a", body.Opportunities[0].ID)
}

func TestEmptyDetectionIsEmptyList(t *testing.T) {
	rec := do(t, newTestServer(options{}), http.MethodGet, "/api/v1/opportunities", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"opportunities":[]`)
}

func TestDetectionFailureIsExplicit(t *testing.T) {
	h := newTestServer(options{opps: fakeOpps{err: errors.New("boom")}})
	rec := do(t, h, http.MethodGet, "/api/v1/opportunities", "", true)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "detection_failed", decode[middleware.ErrorBody](t, rec).Error)
}

func TestRecentOpportunities(t *testing.T) {
	recs := []domain.OpportunityRecord{
		{Opportunity: domain.Opportunity{ID: "a"}, Status: domain.OpportunityActive},
		{Opportunity: domain.Opportunity{ID: "b"}, Status: domain.OpportunityActive},
	}
	h := newTestServer(options{opps: fakeOpps{recs: recs}})

	rec := do(t, h, http.MethodGet, "/api/v1/opportunities/recent?limit=1", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, body["count"])
}

func TestPrices(t *testing.T) {
	h := newTestServer(options{})

	rec := do(t, h, http.MethodGet, "/api/v1/prices/"+usdc, "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, map[string]any{"ethereum": 1.0}, body["prices"])

	rec = do(t, h, http.MethodGet, "/api/v1/prices/0xunknown", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecute(t *testing.T) {
	h := newTestServer(options{})
	rec := do(t, h, http.MethodPost, "/api/v1/execute", `{"opportunity_id":"opp-1","amount":500}`, true)
	require.Equal(t, http.StatusAccepted, rec.Code)

	resp := decode[service.ExecutionResponse](t, rec)
	assert.Equal(t, "execution_started", resp.Status)
	assert.Equal(t, "opp-1", resp.OpportunityID)

	rec = do(t, h, http.MethodPost, "/api/v1/execute", `{"nope":1}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecuteErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrOpportunityExpired, http.StatusGone},
		{domain.ErrNotProfitable, http.StatusUnprocessableEntity},
		{domain.ErrInvalidAddress, http.StatusBadRequest},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := newTestServer(options{exec: fakeExec{err: tt.err}})
			rec := do(t, h, http.MethodPost, "/api/v1/execute", `{"opportunity_id":"x"}`, true)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestUsers(t *testing.T) {
	h := newTestServer(options{})

	rec := do(t, h, http.MethodPost, "/api/v1/users", `{"email":"a@b.io","wallet_address":"0x1"}`, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "secret", decode[map[string]any](t, rec)["api_key"])

	rec = do(t, h, http.MethodGet, "/api/v1/users/me", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", decode[domain.User](t, rec).ID)

	dup := newTestServer(options{users: fakeUsers{err: domain.ErrAlreadyExists}})
	rec = do(t, dup, http.MethodPost, "/api/v1/users", `{"email":"a@b.io","wallet_address":"0x1"}`, false)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(options{limiter: fakeLimiter{allow: false}})
	rec := do(t, h, http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	h = newTestServer(options{limiter: fakeLimiter{allow: true}})
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "", false).Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(options{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/opportunities", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
