package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/chainarb/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memOppStore struct {
	mu   sync.Mutex
	recs map[string]domain.OpportunityRecord
	err  error
}

func newMemOppStore() *memOppStore {
	return &memOppStore{recs: map[string]domain.OpportunityRecord{}}
}

func (s *memOppStore) UpsertBatch(_ context.Context, recs []domain.OpportunityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, r := range recs {
		s.recs[r.ID] = r
	}
	return nil
}

func (s *memOppStore) GetByID(_ context.Context, id string) (domain.OpportunityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return domain.OpportunityRecord{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *memOppStore) ListActive(_ context.Context, opts domain.ListOpts) ([]domain.OpportunityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OpportunityRecord
	for _, r := range s.recs {
		if r.Status == domain.OpportunityActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return domain.CompareOpportunities(out[i].Opportunity, out[j].Opportunity) < 0
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *memOppStore) ListByAsset(_ context.Context, assetID string, _ domain.ListOpts) ([]domain.OpportunityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OpportunityRecord
	for _, r := range s.recs {
		if r.AssetID == assetID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memOppStore) ListBefore(context.Context, time.Time) ([]domain.OpportunityRecord, error) {
	return nil, nil
}

func (s *memOppStore) UpdateStatus(_ context.Context, id string, status domain.OpportunityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recs[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	s.recs[id] = r
	return nil
}

func (s *memOppStore) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.recs {
		if r.Status == domain.OpportunityActive && !now.Before(r.ExpiresAt) {
			r.Status = domain.OpportunityExpired
			s.recs[id] = r
			n++
		}
	}
	return n, nil
}

func (s *memOppStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type memExecStore struct {
	execs []domain.Execution
}

func (s *memExecStore) Create(_ context.Context, e domain.Execution) error {
	s.execs = append(s.execs, e)
	return nil
}

func (s *memExecStore) GetByID(_ context.Context, id string) (domain.Execution, error) {
	for _, e := range s.execs {
		if e.ID == id {
			return e, nil
		}
	}
	return domain.Execution{}, domain.ErrNotFound
}

func (s *memExecStore) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Execution, error) {
	var out []domain.Execution
	for _, e := range s.execs {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memUserStore struct {
	users map[string]domain.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]domain.User{}}
}

func (s *memUserStore) Create(_ context.Context, u domain.User) error {
	for _, existing := range s.users {
		if existing.Email == u.Email || existing.WalletAddress == u.WalletAddress || existing.APIKeyDigest == u.APIKeyDigest {
			return domain.ErrAlreadyExists
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *memUserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *memUserStore) GetByAPIKeyDigest(_ context.Context, digest string) (domain.User, error) {
	for _, u := range s.users {
		if u.APIKeyDigest == digest {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streams: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeDetector struct {
	mu     sync.Mutex
	calls  int
	cycles []domain.Cycle
	err    error
}

func (d *fakeDetector) DetectCycle(context.Context) (domain.Cycle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return domain.Cycle{}, d.err
	}
	if len(d.cycles) == 0 {
		return domain.Cycle{Opportunities: []domain.Opportunity{}}, nil
	}
	c := d.cycles[0]
	if len(d.cycles) > 1 {
		d.cycles = d.cycles[1:]
	}
	return c, nil
}

func (d *fakeDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type fakeNotifier struct {
	sent []domain.Opportunity
}

func (n *fakeNotifier) NotifyOpportunity(_ context.Context, opp domain.Opportunity) error {
	n.sent = append(n.sent, opp)
	return nil
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type fakeArchiver struct {
	cutoffs []time.Time
}

func (a *fakeArchiver) ArchiveOpportunities(_ context.Context, before time.Time) (int64, error) {
	a.cutoffs = append(a.cutoffs, before)
	return 0, nil
}
