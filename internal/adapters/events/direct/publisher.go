// Package direct provides an event publisher that appends claim events to
// the claim store's event log.
package direct

import (
	"context"
	"fmt"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

// Publisher implements ports.EventPublisher by writing directly to storage.
// This is the default for single-instance deployments.
type Publisher struct {
	store ports.ClaimStore
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a new direct event publisher.
func NewPublisher(store ports.ClaimStore) (*Publisher, error) {
	if store == nil {
		return nil, fmt.Errorf("claim store required")
	}
	return &Publisher{store: store}, nil
}

// Publish appends the event to the claim's log.
func (p *Publisher) Publish(ctx context.Context, event *domain.ClaimEvent) error {
	if event.ClaimID == "" {
		return fmt.Errorf("claim event %s has no claim id", event.ID)
	}
	return p.store.AppendEvent(ctx, event)
}

// Close is a no-op; the store is owned by the caller.
func (p *Publisher) Close() error {
	return nil
}
