// Package memory provides in-process claim and draft stores for development
// and tests. Contents are lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

// Store is an in-memory implementation of ports.ClaimStore and
// ports.DraftStore.
type Store struct {
	mu     sync.RWMutex
	claims map[string]*domain.ClaimRecord
	events map[string][]*domain.ClaimEvent
	drafts map[string]draft
	now    func() time.Time
}

type draft struct {
	data      []byte
	expiresAt time.Time
}

var (
	_ ports.ClaimStore = (*Store)(nil)
	_ ports.DraftStore = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now, used for draft expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		claims: make(map[string]*domain.ClaimRecord),
		events: make(map[string][]*domain.ClaimEvent),
		drafts: make(map[string]draft),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) SaveClaim(ctx context.Context, rec *domain.ClaimRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	cp.Files = append([]string(nil), rec.Files...)
	s.claims[rec.ID] = &cp
	return nil
}

func (s *Store) GetClaim(ctx context.Context, id string) (*domain.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.claims[id]
	if !ok {
		return nil, fmt.Errorf("claim %s: %w", id, ports.ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) ListClaims(ctx context.Context, filter ports.ClaimFilter) ([]*domain.ClaimRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	var matched []*domain.ClaimRecord
	for _, rec := range s.claims {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.ClaimType != "" && rec.ClaimType != filter.ClaimType {
			continue
		}
		if search != "" && !matchesSearch(rec, search) {
			continue
		}
		cp := *rec
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SubmittedAt.Equal(matched[j].SubmittedAt) {
			return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = ports.DefaultListLimit
	}
	start := filter.Offset
	if start >= total {
		return []*domain.ClaimRecord{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func matchesSearch(rec *domain.ClaimRecord, search string) bool {
	for _, v := range []string{rec.ID, rec.UserName, rec.UserEmail, rec.ProductName} {
		if strings.Contains(strings.ToLower(v), search) {
			return true
		}
	}
	return false
}

func (s *Store) UpdateClaimStatus(ctx context.Context, id string, status domain.ClaimStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid claim status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.claims[id]
	if !ok {
		return fmt.Errorf("claim %s: %w", id, ports.ErrNotFound)
	}
	rec.Status = status
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, event *domain.ClaimEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	s.events[event.ClaimID] = append(s.events[event.ClaimID], &cp)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, claimID string) ([]*domain.ClaimEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[claimID]
	out := make([]*domain.ClaimEvent, len(events))
	for i, e := range events {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (s *Store) SaveDraft(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := draft{data: append([]byte(nil), data...)}
	if ttl > 0 {
		d.expiresAt = s.now().Add(ttl)
	}
	s.drafts[id] = d
	return nil
}

func (s *Store) LoadDraft(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if ok && !d.expiresAt.IsZero() && !s.now().Before(d.expiresAt) {
		delete(s.drafts, id)
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("draft %s: %w", id, ports.ErrNotFound)
	}
	return append([]byte(nil), d.data...), nil
}

func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, id)
	return nil
}

func (s *Store) Close() error {
	return nil
}
