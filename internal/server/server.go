package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/claim-intake/internal/auth"
)

// DefaultRequestTimeout bounds handlers when no timeout is configured.
const DefaultRequestTimeout = 30 * time.Second

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*options)

type options struct {
	timeout       time.Duration
	authenticator *auth.Authenticator
	serviceName   string
}

// WithRequestTimeout overrides DefaultRequestTimeout. Zero disables the limit.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithAuthenticator requires a valid bearer token on every request.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(o *options) { o.authenticator = a }
}

// WithServiceName names the otel server span.
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

func New(port int, logger *slog.Logger, opts ...Option) *Server {
	o := options{timeout: DefaultRequestTimeout, serviceName: "claim-intake"}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	if o.authenticator != nil {
		r.Use(AuthMiddleware(o.authenticator, "/healthz", "/metrics"))
	}
	if o.timeout > 0 {
		r.Use(requestDeadline(o.timeout))
	}
	r.Use(middleware.Recoverer)

	serviceName := o.serviceName
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName)
	})

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// requestDeadline bounds each request context to d. Handlers that ignore
// ctx.Done() keep running.
func requestDeadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown, including one that happened before Start.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping server")
	return s.httpServer.Shutdown(ctx)
}
