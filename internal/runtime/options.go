package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tjfontaine/claim-intake/internal/adapters/config/file"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
	"github.com/tjfontaine/claim-intake/internal/intake"
	"github.com/tjfontaine/claim-intake/internal/pkg/config"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithFileConfig loads config.yaml from path and reloads it on change.
func WithFileConfig(path string) Option {
	return func(a *App) error {
		provider, err := file.NewProvider(path, a.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		a.config = provider
		return nil
	}
}

// WithConfig uses a fixed configuration. Nothing is watched.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		if cfg == nil {
			return fmt.Errorf("config cannot be nil")
		}
		a.config = staticProvider{cfg: cfg}
		return nil
	}
}

// WithConfigProvider uses a custom configuration source.
func WithConfigProvider(p ports.ConfigProvider) Option {
	return func(a *App) error {
		a.config = p
		return nil
	}
}

// WithLogger sets the logger. Apply it before WithFileConfig so the
// provider logs through it too.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithLogLevel lets config reloads change the level of the caller's handler.
func WithLogLevel(level *slog.LevelVar) Option {
	return func(a *App) error {
		a.level = level
		return nil
	}
}

// WithClaimStore overrides storage.type.
func WithClaimStore(s ports.ClaimStore) Option {
	return func(a *App) error {
		a.claims = s
		return nil
	}
}

// WithDraftStore overrides drafts.type.
func WithDraftStore(s ports.DraftStore) Option {
	return func(a *App) error {
		a.drafts = s
		return nil
	}
}

// WithFileStore overrides files.type.
func WithFileStore(s ports.FileStore) Option {
	return func(a *App) error {
		a.files = s
		return nil
	}
}

// WithAnalyzer replaces the remote analysis client. The PDF text layer
// router still wraps it.
func WithAnalyzer(an ports.Analyzer) Option {
	return func(a *App) error {
		a.analyzer = an
		return nil
	}
}

// WithEventPublisher overrides events.type.
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(a *App) error {
		a.events = p
		return nil
	}
}

// WithCompletionHandler is notified for every submitted claim.
func WithCompletionHandler(h ports.CompletionHandler) Option {
	return func(a *App) error {
		a.completion = h
		return nil
	}
}

// WithFlows overrides intake.flows_path.
func WithFlows(flows intake.Flows) Option {
	return func(a *App) error {
		a.flows = flows
		return nil
	}
}

type staticProvider struct {
	cfg *config.Config
}

func (p staticProvider) Load(ctx context.Context) (*config.Config, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	return p.cfg, nil
}

func (staticProvider) Watch(ctx context.Context, onChange func(*config.Config)) error {
	return nil
}

func (staticProvider) Close() error { return nil }
