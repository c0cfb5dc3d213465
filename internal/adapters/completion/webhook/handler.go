// Package webhook hands finished claims to an external HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

// Config configures a Handler.
type Config struct {
	URL     string
	Timeout time.Duration
	Retries int
	Headers map[string]string

	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
}

// Payload is the JSON body posted for every completed conversation.
type Payload struct {
	ConversationID string             `json:"conversation_id"`
	CompletedAt    time.Time          `json:"completed_at"`
	Draft          *domain.ClaimDraft `json:"draft"`
}

// Handler implements ports.CompletionHandler by POSTing a Payload.
type Handler struct {
	url     string
	retries int
	headers map[string]string
	client  *http.Client
	now     func() time.Time
}

// New creates a webhook completion handler.
func New(cfg Config) (*Handler, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Handler{
		url:     cfg.URL,
		retries: max(cfg.Retries, 0),
		headers: cfg.Headers,
		client:  client,
		now:     time.Now,
	}, nil
}

// ClaimCompleted posts the draft, retrying failed attempts.
func (h *Handler) ClaimCompleted(ctx context.Context, conversationID string, draft *domain.ClaimDraft) error {
	body, err := json.Marshal(Payload{
		ConversationID: conversationID,
		CompletedAt:    h.now().UTC(),
		Draft:          draft,
	})
	if err != nil {
		return fmt.Errorf("marshal completion payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= h.retries; attempt++ {
		if lastErr = h.post(ctx, body); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

func (h *Handler) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

var _ ports.CompletionHandler = (*Handler)(nil)
