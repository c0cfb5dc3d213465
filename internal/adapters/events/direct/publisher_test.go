package direct

import (
	"context"
	"testing"
	"time"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/storage/memory"
)

func TestNewPublisher_NilStorage(t *testing.T) {
	_, err := NewPublisher(nil)
	if err == nil {
		t.Fatal("Expected error for nil storage")
	}
	if err.Error() != "claim store required" {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestPublish(t *testing.T) {
	store := memory.New()
	defer store.Close()

	publisher, err := NewPublisher(store)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	ctx := context.Background()

	event := &domain.ClaimEvent{
		ID:             "evt-1",
		Type:           domain.ClaimEventSubmitted,
		ConversationID: "conv-1",
		ClaimID:        "CLM-ABCD1234",
		Timestamp:      time.Now(),
	}
	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	events, err := store.ListEvents(ctx, "CLM-ABCD1234")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != domain.ClaimEventSubmitted {
		t.Errorf("events = %+v", events)
	}
}

func TestPublish_RequiresClaimID(t *testing.T) {
	publisher, _ := NewPublisher(memory.New())
	if err := publisher.Publish(context.Background(), &domain.ClaimEvent{ID: "evt-2"}); err == nil {
		t.Error("Publish() error = nil, want error")
	}
}

func TestClose(t *testing.T) {
	publisher, _ := NewPublisher(memory.New())
	if err := publisher.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
