package ports

import (
	"context"
	"io"
	"time"

	"github.com/tjfontaine/claim-intake/internal/core/domain"
)

// AnalysisMode says which kind of result the analysis service produced.
type AnalysisMode string

const (
	AnalysisModeOCR    AnalysisMode = "ocr"
	AnalysisModeDamage AnalysisMode = "damage"
)

// AnalysisRequest is one document submitted for analysis.
type AnalysisRequest struct {
	Name        string
	ContentType string
	Data        []byte
}

// AnalysisResult is the outcome reported by a document analyzer.
type AnalysisResult struct {
	Success bool                `json:"success"`
	Mode    AnalysisMode        `json:"mode"`
	Text    string              `json:"text,omitempty"`
	Damages []domain.DamageItem `json:"damages,omitempty"`

	// Confidence is zero when the analyzer did not report one.
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Analyzer runs OCR or damage detection on an uploaded document.
// Implementations: remote analysis service client, local PDF text layer.
type Analyzer interface {
	Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error)
}

// FileStore holds uploaded evidence and hands back durable references.
// Implementations: memory, minio, s3.
type FileStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// URLSigner is implemented by file stores that can hand out time-limited
// download links for private buckets.
type URLSigner interface {
	SignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// EventPublisher publishes claim lifecycle events.
// Implementations: direct storage (default), Kafka.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.ClaimEvent) error
	Close() error
}

// CompletionHandler receives the finished draft when the claimant is done.
type CompletionHandler interface {
	ClaimCompleted(ctx context.Context, conversationID string, draft *domain.ClaimDraft) error
}
