package ports

import (
	"context"
	"errors"
	"time"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ClaimFilter narrows a claim listing.
type ClaimFilter struct {
	// Search matches claim id, customer name, email and product name.
	Search    string
	Status    domain.ClaimStatus
	ClaimType domain.ClaimType
	Limit     int
	Offset    int
}

// DefaultListLimit is used when a filter leaves Limit unset.
const DefaultListLimit = 50

// ClaimStore persists submitted claims and their lifecycle events.
// Implementations: memory, sqldb (sqlite, postgres), dynamodb.
type ClaimStore interface {
	// SaveClaim durably stores a submitted claim. Saving the same id twice
	// replaces the earlier record.
	SaveClaim(ctx context.Context, rec *domain.ClaimRecord) error

	// GetClaim retrieves a claim by id.
	GetClaim(ctx context.Context, id string) (*domain.ClaimRecord, error)

	// ListClaims returns matching claims, newest first, and the total number
	// of matches before pagination.
	ListClaims(ctx context.Context, filter ClaimFilter) ([]*domain.ClaimRecord, int, error)

	// UpdateClaimStatus moves a stored claim to a new merchant-facing status.
	UpdateClaimStatus(ctx context.Context, id string, status domain.ClaimStatus) error

	// AppendEvent records a lifecycle event.
	AppendEvent(ctx context.Context, event *domain.ClaimEvent) error

	// ListEvents returns the events recorded for a claim in order.
	ListEvents(ctx context.Context, claimID string) ([]*domain.ClaimEvent, error)

	Close() error
}

// DraftStore keeps serialized in-progress conversations between requests.
// Implementations: memory, sqldb, redis.
type DraftStore interface {
	SaveDraft(ctx context.Context, id string, data []byte, ttl time.Duration) error
	LoadDraft(ctx context.Context, id string) ([]byte, error)
	DeleteDraft(ctx context.Context, id string) error
}
