// Package runtime assembles the claim intake service from configuration and
// manages its lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tjfontaine/claim-intake/internal/analysis"
	"github.com/tjfontaine/claim-intake/internal/api/claims"
	"github.com/tjfontaine/claim-intake/internal/auth"
	"github.com/tjfontaine/claim-intake/internal/core/ports"
	"github.com/tjfontaine/claim-intake/internal/intake"
	"github.com/tjfontaine/claim-intake/internal/metrics"
	"github.com/tjfontaine/claim-intake/internal/pkg/config"
	"github.com/tjfontaine/claim-intake/internal/pkg/sanitize"
	"github.com/tjfontaine/claim-intake/internal/server"
	"github.com/tjfontaine/claim-intake/internal/storage/sqldb"
)

// PurgeInterval is how often expired drafts are removed from a SQL draft store.
const PurgeInterval = 10 * time.Minute

// App is the claim intake service: config, stores, analysis, the intake
// service and its HTTP API. It can be embedded or run by cmd/claimd.
type App struct {
	// Dependencies (injected via options)
	config     ports.ConfigProvider
	logger     *slog.Logger
	level      *slog.LevelVar
	claims     ports.ClaimStore
	drafts     ports.DraftStore
	files      ports.FileStore
	analyzer   ports.Analyzer
	events     ports.EventPublisher
	completion ports.CompletionHandler
	flows      intake.Flows

	// Built by Init
	cfg     *config.Config
	service *intake.Service
	client  *analysis.Client
	metrics *metrics.Metrics
	server  *server.Server
	janitor *sqldb.Store
	closers []namedCloser

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates an App. A config source is required.
func New(opts ...Option) (*App, error) {
	a := &App{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if a.config == nil {
		return nil, errors.New("config provider required (use WithFileConfig or WithConfig)")
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a, nil
}

// Init loads the configuration and builds every component. Start calls it
// when needed; tests call it directly and use Handler.
func (a *App) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.service != nil {
		return nil
	}

	cfg, err := a.config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.level != nil {
		a.level.Set(cfg.Log.SlogLevel())
	}

	if err := a.build(ctx, cfg); err != nil {
		a.closeAll()
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	claimStore, err := a.buildClaimStore(ctx, cfg)
	if err != nil {
		return err
	}
	drafts, err := a.buildDraftStore(ctx, cfg, claimStore)
	if err != nil {
		return err
	}
	if ds, ok := drafts.(*sqldb.Store); ok {
		a.janitor = ds
	}
	files, err := a.buildFileStore(ctx, cfg)
	if err != nil {
		return err
	}
	analyzer, err := a.buildAnalyzer(cfg)
	if err != nil {
		return err
	}
	events, err := a.buildEvents(cfg, claimStore)
	if err != nil {
		return err
	}
	completion, err := a.buildCompletion(cfg)
	if err != nil {
		return err
	}
	flows, err := a.buildFlows(cfg)
	if err != nil {
		return fmt.Errorf("load flows: %w", err)
	}

	a.metrics = metrics.New()

	svcOpts := []intake.ServiceOption{
		intake.WithDraftStore(drafts),
		intake.WithClaimStore(claimStore),
		intake.WithFileStore(files),
		intake.WithAnalyzer(analyzer),
		intake.WithRecorder(a.metrics),
		intake.WithSanitizer(sanitize.Text),
		intake.WithServiceLogger(a.logger),
		intake.WithSettings(settingsFrom(cfg)),
	}
	if events != nil {
		svcOpts = append(svcOpts, intake.WithEventPublisher(events))
	}
	if completion != nil {
		svcOpts = append(svcOpts, intake.WithCompletionHandler(completion))
	}
	svc, err := intake.NewService(flows, svcOpts...)
	if err != nil {
		return fmt.Errorf("create intake service: %w", err)
	}
	a.service = svc

	serverOpts := []server.Option{
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
		server.WithServiceName(cfg.Telemetry.ServiceName),
	}
	if cfg.Auth.JWTSecret != "" {
		authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.MerchantRole)
		if err != nil {
			return fmt.Errorf("create authenticator: %w", err)
		}
		serverOpts = append(serverOpts, server.WithAuthenticator(authenticator))
	} else {
		a.logger.Warn("auth.jwt_secret not set, the API is unauthenticated")
	}
	a.server = server.New(cfg.Server.Port, a.logger, serverOpts...)

	handlerOpts := []claims.Option{
		claims.WithLogger(a.logger),
		claims.WithMerchantRole(cfg.Auth.MerchantRole),
	}
	if events != nil {
		handlerOpts = append(handlerOpts, claims.WithEventPublisher(events))
	}
	if signer, ok := files.(ports.URLSigner); ok {
		handlerOpts = append(handlerOpts, claims.WithURLSigner(signer, cfg.Files.PresignTTL))
	}
	if cfg.Analysis.AllowURLs {
		handlerOpts = append(handlerOpts, claims.WithFetcher(
			analysis.NewFetcher(analysis.WithMaxSize(cfg.Intake.MaxUploadBytes)),
		))
	}

	r := a.server.Router
	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", a.metrics.Handler())
	claims.NewHandler(svc, claimStore, handlerOpts...).Routes(r)

	a.logger.Info("claim intake initialized",
		slog.String("storage", cfg.Storage.Type),
		slog.String("drafts", cfg.Drafts.Type),
		slog.String("files", cfg.Files.Type),
		slog.String("events", cfg.Events.Type),
		slog.Int("flows", len(flows)))
	return nil
}

// Start initializes the app if needed and serves until Shutdown.
// Serve errors are reported on the returned channel.
func (a *App) Start(ctx context.Context) (<-chan error, error) {
	if err := a.Init(ctx); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.ctx, a.cancel = context.WithCancel(ctx)

	errc := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			a.logger.Error("server failed", slog.String("error", err.Error()))
			errc <- err
		}
		close(errc)
	}()

	if err := a.config.Watch(a.ctx, a.onConfigChange); err != nil {
		a.logger.Error("config watch failed", slog.String("error", err.Error()))
	}

	if a.janitor != nil {
		a.wg.Add(1)
		go a.purgeDrafts(a.ctx)
	}

	a.logger.Info("claim intake started", slog.Int("port", a.cfg.Server.Port))
	return errc, nil
}

// Shutdown stops the server and closes what the app opened.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("shutting down claim intake")

	if a.cancel != nil {
		a.cancel()
	}

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	a.wg.Wait()

	a.closeAll()
	if err := a.config.Close(); err != nil {
		a.logger.Error("failed to close config", slog.String("error", err.Error()))
	}

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// Handler returns the HTTP API. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	return a.server.Router
}

// Service returns the intake service. It is nil before Init.
func (a *App) Service() *intake.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.service
}

// Metrics returns the Prometheus collectors. It is nil before Init.
func (a *App) Metrics() *metrics.Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) onConfigChange(cfg *config.Config) {
	a.logger.Info("config changed, reloading")
	a.reload(cfg)
}

// reload applies the settings that can change without a restart. Backend
// and port changes are logged and ignored.
func (a *App) reload(cfg *config.Config) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := cfg.Reloadable()
	if a.level != nil {
		a.level.Set(next.LogLevel)
	}
	if a.service != nil {
		s := a.service.Settings()
		s.Pace = next.PaceDelay
		s.AnalysisTimeout = next.AnalysisTimeout
		a.service.UpdateSettings(s)
	}
	if a.client != nil {
		a.client.SetRetries(next.AnalysisRetries)
	}

	if a.cfg != nil && restartNeeded(a.cfg, cfg) {
		a.logger.Warn("backend or server settings changed, restart to apply them")
	}

	a.logger.Info("reload complete",
		slog.String("log_level", next.LogLevel.String()),
		slog.Duration("pace_delay", next.PaceDelay),
		slog.Duration("analysis_timeout", next.AnalysisTimeout),
		slog.Int("analysis_retries", next.AnalysisRetries))
}

func restartNeeded(old, next *config.Config) bool {
	return old.Server != next.Server ||
		old.Storage.Type != next.Storage.Type ||
		old.Drafts.Type != next.Drafts.Type ||
		old.Files.Type != next.Files.Type ||
		old.Events.Type != next.Events.Type ||
		old.Analysis.URL != next.Analysis.URL ||
		old.Auth != next.Auth
}

func (a *App) purgeDrafts(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.janitor.PurgeExpiredDrafts(ctx)
			if err != nil {
				a.logger.Error("failed to purge drafts", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				a.logger.Info("purged expired drafts", slog.Int64("count", n))
			}
		}
	}
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.logger.Error("failed to close "+nc.name, slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
