package analysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/claim-intake/internal/pkg/safehttp"
)

// Document is evidence retrieved from a URL.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Fetcher retrieves evidence that claimants link instead of upload.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithFetchHTTPClient sets a custom HTTP client for the fetcher.
func WithFetchHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithMaxSize sets the maximum accepted document size.
func WithMaxSize(maxSize int64) FetcherOption {
	return func(f *Fetcher) {
		f.maxSize = maxSize
	}
}

// NewFetcher creates a fetcher that refuses private network destinations.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(safehttp.SafeTransport),
		},
		maxSize: 10 << 20,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url, or decodes it if it is a data URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Document, error) {
	if strings.HasPrefix(url, "data:") {
		mediaType, data, err := ParseDataURL(url)
		if err != nil {
			return nil, err
		}
		if int64(len(data)) > f.maxSize {
			return nil, fmt.Errorf("document too large: exceeds %d bytes", f.maxSize)
		}
		return &Document{Name: "evidence", ContentType: mediaType, Data: data}, nil
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("unsupported URL scheme: must be http:// or https://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch document: status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxSize {
		return nil, fmt.Errorf("document too large: %d bytes (max %d)", resp.ContentLength, f.maxSize)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("document too large: exceeds %d bytes", f.maxSize)
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = inferMediaType(url)
	}
	name := path.Base(req.URL.Path)
	if name == "." || name == "/" {
		name = "evidence"
	}
	return &Document{Name: name, ContentType: normalizeMediaType(mediaType), Data: data}, nil
}
