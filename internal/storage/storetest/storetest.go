// Package storetest holds behaviour tests shared by every ClaimStore and
// DraftStore implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Claim returns a populated record submitted offset after a fixed base time.
func Claim(id string, offset time.Duration) *domain.ClaimRecord {
	return &domain.ClaimRecord{
		ID:            id,
		UserName:      "Jane Doe",
		UserEmail:     "jane@example.com",
		ClaimType:     domain.ClaimTypeShipping,
		ProductName:   "Wireless Earbuds",
		PurchaseDate:  "12/05/2024",
		InvoiceNumber: "INV-2024-001",
		Amount:        "$129.00",
		Status:        domain.ClaimStatusReceived,
		Flow:          "protection",
		AIConfidence:  0.88,
		DamageAnalysis: &domain.DamageAnalysis{
			Damages:    []domain.DamageItem{{Type: "Dent", Severity: "Medium", Location: "Corner"}},
			Confidence: 0.88,
		},
		Files:       []string{"mem://" + id + "/a.jpg"},
		SubmittedAt: base.Add(offset),
	}
}

// RunClaimStore exercises the ports.ClaimStore contract.
func RunClaimStore(t *testing.T, newStore func(t *testing.T) ports.ClaimStore) {
	t.Run("SaveAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		want := Claim("CLM-AAAA0001", 0)
		if err := store.SaveClaim(ctx, want); err != nil {
			t.Fatalf("SaveClaim() error = %v", err)
		}

		got, err := store.GetClaim(ctx, want.ID)
		if err != nil {
			t.Fatalf("GetClaim() error = %v", err)
		}
		if got.UserEmail != want.UserEmail || got.InvoiceNumber != want.InvoiceNumber || got.Amount != want.Amount {
			t.Errorf("GetClaim() = %+v, want %+v", got, want)
		}
		if got.ClaimType != want.ClaimType || got.Status != want.Status {
			t.Errorf("type/status = %s/%s, want %s/%s", got.ClaimType, got.Status, want.ClaimType, want.Status)
		}
		if !got.SubmittedAt.Equal(want.SubmittedAt) {
			t.Errorf("SubmittedAt = %v, want %v", got.SubmittedAt, want.SubmittedAt)
		}
		if len(got.Files) != 1 || got.Files[0] != want.Files[0] {
			t.Errorf("Files = %v, want %v", got.Files, want.Files)
		}
		if got.DamageAnalysis == nil || len(got.DamageAnalysis.Damages) != 1 || got.DamageAnalysis.Damages[0].Type != "Dent" {
			t.Errorf("DamageAnalysis = %+v", got.DamageAnalysis)
		}
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := Claim("CLM-AAAA0002", 0)
		if err := store.SaveClaim(ctx, rec); err != nil {
			t.Fatalf("SaveClaim() error = %v", err)
		}
		rec.Amount = "$99.00"
		if err := store.SaveClaim(ctx, rec); err != nil {
			t.Fatalf("SaveClaim() second error = %v", err)
		}
		got, err := store.GetClaim(ctx, rec.ID)
		if err != nil {
			t.Fatalf("GetClaim() error = %v", err)
		}
		if got.Amount != "$99.00" {
			t.Errorf("Amount = %q, want $99.00", got.Amount)
		}
		if _, total, _ := store.ListClaims(ctx, ports.ClaimFilter{}); total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.GetClaim(context.Background(), "CLM-MISSING"); !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("GetClaim() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first := Claim("CLM-LIST0001", 0)
		second := Claim("CLM-LIST0002", time.Hour)
		second.UserName = "Sam Smith"
		second.UserEmail = "sam@example.com"
		second.ProductName = "Espresso Machine"
		second.ClaimType = domain.ClaimTypeProduct
		third := Claim("CLM-LIST0003", 2*time.Hour)
		third.Status = domain.ClaimStatusApproved
		for _, rec := range []*domain.ClaimRecord{first, second, third} {
			if err := store.SaveClaim(ctx, rec); err != nil {
				t.Fatalf("SaveClaim(%s) error = %v", rec.ID, err)
			}
		}

		tests := []struct {
			name      string
			filter    ports.ClaimFilter
			wantIDs   []string
			wantTotal int
		}{
			{"newest first", ports.ClaimFilter{}, []string{"CLM-LIST0003", "CLM-LIST0002", "CLM-LIST0001"}, 3},
			{"status", ports.ClaimFilter{Status: domain.ClaimStatusApproved}, []string{"CLM-LIST0003"}, 1},
			{"type", ports.ClaimFilter{ClaimType: domain.ClaimTypeProduct}, []string{"CLM-LIST0002"}, 1},
			{"search name", ports.ClaimFilter{Search: "sam"}, []string{"CLM-LIST0002"}, 1},
			{"search product", ports.ClaimFilter{Search: "espresso"}, []string{"CLM-LIST0002"}, 1},
			{"search id", ports.ClaimFilter{Search: "list0001"}, []string{"CLM-LIST0001"}, 1},
			{"paged", ports.ClaimFilter{Limit: 1, Offset: 1}, []string{"CLM-LIST0002"}, 3},
			{"past the end", ports.ClaimFilter{Offset: 10}, nil, 3},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				recs, total, err := store.ListClaims(ctx, tt.filter)
				if err != nil {
					t.Fatalf("ListClaims() error = %v", err)
				}
				if total != tt.wantTotal {
					t.Errorf("total = %d, want %d", total, tt.wantTotal)
				}
				var ids []string
				for _, r := range recs {
					ids = append(ids, r.ID)
				}
				if len(ids) != len(tt.wantIDs) {
					t.Fatalf("ids = %v, want %v", ids, tt.wantIDs)
				}
				for i := range ids {
					if ids[i] != tt.wantIDs[i] {
						t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
						break
					}
				}
			})
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec := Claim("CLM-STAT0001", 0)
		if err := store.SaveClaim(ctx, rec); err != nil {
			t.Fatalf("SaveClaim() error = %v", err)
		}
		if err := store.UpdateClaimStatus(ctx, rec.ID, domain.ClaimStatusUnderReview); err != nil {
			t.Fatalf("UpdateClaimStatus() error = %v", err)
		}
		got, _ := store.GetClaim(ctx, rec.ID)
		if got.Status != domain.ClaimStatusUnderReview {
			t.Errorf("Status = %s, want under_review", got.Status)
		}

		if err := store.UpdateClaimStatus(ctx, "CLM-NOPE", domain.ClaimStatusApproved); !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("UpdateClaimStatus(missing) error = %v, want ErrNotFound", err)
		}
		if err := store.UpdateClaimStatus(ctx, rec.ID, domain.ClaimStatus("lost")); err == nil {
			t.Error("UpdateClaimStatus(invalid) error = nil")
		}
	})

	t.Run("Events", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		events := []*domain.ClaimEvent{
			{ID: "evt-1", Type: domain.ClaimEventDraftStarted, ConversationID: "conv-1", ClaimID: "CLM-EVT00001", Flow: "protection", Timestamp: base},
			{ID: "evt-2", Type: domain.ClaimEventSubmitted, ConversationID: "conv-1", ClaimID: "CLM-EVT00001", Step: "submitting", Timestamp: base.Add(time.Minute), Attributes: map[string]string{"claim_type": "shipping"}},
			{ID: "evt-3", Type: domain.ClaimEventDraftStarted, ConversationID: "conv-2", ClaimID: "CLM-EVT00002", Timestamp: base},
		}
		for _, e := range events {
			if err := store.AppendEvent(ctx, e); err != nil {
				t.Fatalf("AppendEvent(%s) error = %v", e.ID, err)
			}
		}

		got, err := store.ListEvents(ctx, "CLM-EVT00001")
		if err != nil {
			t.Fatalf("ListEvents() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len(events) = %d, want 2", len(got))
		}
		if got[0].Type != domain.ClaimEventDraftStarted || got[1].Type != domain.ClaimEventSubmitted {
			t.Errorf("event order = %s, %s", got[0].Type, got[1].Type)
		}
		if got[1].Attributes["claim_type"] != "shipping" || got[1].ConversationID != "conv-1" {
			t.Errorf("event = %+v", got[1])
		}

		none, err := store.ListEvents(ctx, "CLM-NONE")
		if err != nil || len(none) != 0 {
			t.Errorf("ListEvents(none) = %v, %v", none, err)
		}
	})
}

// RunDraftStore exercises the ports.DraftStore contract.
func RunDraftStore(t *testing.T, newStore func(t *testing.T) ports.DraftStore) {
	t.Run("RoundTrip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		if err := store.SaveDraft(ctx, "conv-1", []byte(`{"step":"greeting"}`), time.Hour); err != nil {
			t.Fatalf("SaveDraft() error = %v", err)
		}
		if err := store.SaveDraft(ctx, "conv-1", []byte(`{"step":"summary"}`), time.Hour); err != nil {
			t.Fatalf("SaveDraft() overwrite error = %v", err)
		}
		got, err := store.LoadDraft(ctx, "conv-1")
		if err != nil {
			t.Fatalf("LoadDraft() error = %v", err)
		}
		if string(got) != `{"step":"summary"}` {
			t.Errorf("LoadDraft() = %s", got)
		}

		if err := store.DeleteDraft(ctx, "conv-1"); err != nil {
			t.Fatalf("DeleteDraft() error = %v", err)
		}
		if _, err := store.LoadDraft(ctx, "conv-1"); !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("LoadDraft() after delete error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.LoadDraft(context.Background(), "nope"); !errors.Is(err, ports.ErrNotFound) {
			t.Errorf("LoadDraft() error = %v, want ErrNotFound", err)
		}
		if err := store.DeleteDraft(context.Background(), "nope"); err != nil {
			t.Errorf("DeleteDraft(missing) error = %v", err)
		}
	})
}
