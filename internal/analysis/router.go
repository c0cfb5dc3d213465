package analysis

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tjfontaine/claim-intake/internal/core/ports"
)

// Router sends evidence to the right analyzer. PDFs are validated locally
// and, when they carry a text layer, answered without a remote call.
type Router struct {
	remote  ports.Analyzer
	pdfText bool
	logger  *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithPDFTextLayer enables answering PDFs from their embedded text.
func WithPDFTextLayer(enabled bool) RouterOption {
	return func(r *Router) {
		r.pdfText = enabled
	}
}

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// NewRouter wraps remote.
func NewRouter(remote ports.Analyzer, opts ...RouterOption) *Router {
	r := &Router{remote: remote, pdfText: true, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Analyze implements ports.Analyzer.
func (r *Router) Analyze(ctx context.Context, req *ports.AnalysisRequest) (*ports.AnalysisResult, error) {
	if req.ContentType != "application/pdf" {
		return r.remote.Analyze(ctx, req)
	}

	text, err := PDFText(req.Data)
	if err != nil {
		r.logger.Warn("rejecting unreadable pdf",
			slog.String("file", req.Name),
			slog.String("error", err.Error()),
		)
		return &ports.AnalysisResult{
			Success: false,
			Mode:    ports.AnalysisModeOCR,
			Error:   "Invalid PDF document",
		}, nil
	}
	if r.pdfText && strings.TrimSpace(text) != "" {
		return &ports.AnalysisResult{
			Success: true,
			Mode:    ports.AnalysisModeOCR,
			Text:    text,
		}, nil
	}
	return r.remote.Analyze(ctx, req)
}

var _ ports.Analyzer = (*Router)(nil)

// Offline fails every request. It stands in for the remote service when no
// analysis url is configured, so PDFs with a text layer still work.
type Offline struct{}

// Analyze implements ports.Analyzer.
func (Offline) Analyze(ctx context.Context, req *ports.AnalysisRequest) (*ports.AnalysisResult, error) {
	return &ports.AnalysisResult{
		Success: false,
		Mode:    ports.AnalysisModeOCR,
		Error:   "analysis service not configured",
	}, nil
}
