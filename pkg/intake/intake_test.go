package intake_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/tjfontaine/claim-intake/pkg/intake"
)

func TestNew_EmbedsWithFileConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	app, err := intake.New(
		intake.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		intake.WithFileConfig(path),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := app.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer app.Shutdown(context.Background())

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", rec.Code)
	}
}
