package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

func TestNew_RequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() without url should fail")
	}
}

func TestHandler_PostsDraft(t *testing.T) {
	var got Payload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	h, err := New(Config{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer hook"},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	fixed := time.Date(2024, 5, 12, 10, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	draft := &domain.ClaimDraft{ClaimID: "CLM-12345678", ClaimType: domain.ClaimTypeProduct}
	if err := h.ClaimCompleted(context.Background(), "conv-1", draft); err != nil {
		t.Fatalf("ClaimCompleted() error = %v", err)
	}
	if got.ConversationID != "conv-1" || got.Draft == nil || got.Draft.ClaimID != "CLM-12345678" {
		t.Errorf("payload = %+v", got)
	}
	if !got.CompletedAt.Equal(fixed) {
		t.Errorf("CompletedAt = %v, want %v", got.CompletedAt, fixed)
	}
	if auth != "Bearer hook" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestHandler_Retries(t *testing.T) {
	tests := []struct {
		name     string
		failures int32
		retries  int
		wantErr  bool
		wantHits int32
	}{
		{"first attempt", 0, 2, false, 1},
		{"recovers", 2, 2, false, 3},
		{"gives up", 5, 1, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if hits.Add(1) <= tt.failures {
					http.Error(w, "unavailable", http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			h, err := New(Config{URL: srv.URL, Retries: tt.retries})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			err = h.ClaimCompleted(context.Background(), "conv", &domain.ClaimDraft{})
			if (err != nil) != tt.wantErr {
				t.Errorf("ClaimCompleted() error = %v, wantErr %v", err, tt.wantErr)
			}
			if hits.Load() != tt.wantHits {
				t.Errorf("hits = %d, want %d", hits.Load(), tt.wantHits)
			}
		})
	}
}
