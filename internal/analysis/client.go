// Package analysis talks to the document analysis service that performs
// OCR and damage detection, and reads text layers of PDF evidence locally.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

// Client calls the remote unified analysis endpoint.
type Client struct {
	url     string
	apiKey  string
	retries atomic.Int64
	headers map[string]string
	client  *http.Client
}

// ClientConfig configures a Client.
type ClientConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Retries int
	Headers map[string]string

	// HTTPClient overrides the instrumented default client.
	HTTPClient *http.Client
}

type analyzeRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

// statusError is a non-2xx reply from the analysis service.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("analysis service returned status %d: %s", e.code, e.body)
}

// NewClient creates an analysis client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("analysis url is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	c := &Client{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		headers: cfg.Headers,
		client:  hc,
	}
	c.SetRetries(cfg.Retries)
	return c, nil
}

// SetRetries changes how many times failed requests are retried. It is
// safe to call while requests are in flight.
func (c *Client) SetRetries(n int) {
	if n < 0 {
		n = 0
	}
	c.retries.Store(int64(n))
}

// Analyze sends the document and returns the service's verdict. Transport
// failures and 5xx replies are retried; 4xx replies are not.
func (c *Client) Analyze(ctx context.Context, in *ports.AnalysisRequest) (*ports.AnalysisResult, error) {
	var lastErr error

	attempts := int(c.retries.Load()) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		res, err := c.doRequest(ctx, in)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if se, ok := err.(*statusError); ok && se.code < 500 {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, in *ports.AnalysisRequest) (*ports.AnalysisResult, error) {
	body, err := json.Marshal(analyzeRequest{ImageBase64: EncodeDataURL(in.ContentType, in.Data)})
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}

	var out ports.AnalysisResult
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal analysis result: %w", err)
	}

	switch out.Mode {
	case ports.AnalysisModeOCR, ports.AnalysisModeDamage:
	case "":
		out.Mode = ports.AnalysisModeOCR
		if len(out.Damages) > 0 {
			out.Mode = ports.AnalysisModeDamage
		}
	default:
		return nil, fmt.Errorf("invalid mode from analysis service: %s", out.Mode)
	}
	return &out, nil
}

var _ ports.Analyzer = (*Client)(nil)
