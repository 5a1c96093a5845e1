// Package app wires the fluency subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithRegistry,
// WithStore, WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/fluency/internal/api"
	"github.com/MrWong99/fluency/internal/config"
	"github.com/MrWong99/fluency/internal/fluency"
	"github.com/MrWong99/fluency/internal/health"
	"github.com/MrWong99/fluency/internal/mcp"
	"github.com/MrWong99/fluency/internal/mcp/tools/assessment"
	"github.com/MrWong99/fluency/internal/observe"
	"github.com/MrWong99/fluency/internal/reportstore"
	"github.com/MrWong99/fluency/internal/resilience"
	"github.com/MrWong99/fluency/pkg/audiosrc"
)

// toolMargin is added to the transcription timeout to bound the MCP assess
// tool, so the assessor's own deadline fires first.
const toolMargin = 30 * time.Second

// Store persists and reads assessments. *reportstore.PostgresStore
// satisfies it.
type Store interface {
	fluency.Store
	api.Store
	health.Pinger
}

var _ Store = (*reportstore.PostgresStore)(nil)

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	version  string
	level    *slog.LevelVar
	registry *config.Registry
	metrics  *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	transcriber *resilience.STTFallback
	store       Store
	assessor    *fluency.Assessor
	mcp         *mcp.Server
	handler     http.Handler

	server   *http.Server
	serverMu sync.Mutex

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry replaces the built-in provider registry.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithStore injects a store instead of opening one from the configured DSN.
func WithStore(s Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects metric instruments instead of the global ones.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVersion sets the version reported over MCP.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithLevelVar lets [App.ApplyConfig] change the log level of the running
// logger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// New creates an App by wiring all subsystems together. cfg is expected to
// have passed [config.Validate].
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, version: "dev"}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		fetcher := audiosrc.NewFetcher(audiosrc.WithMaxBytes(cfg.Transcription.MaxAudioBytes))
		a.registry = NewRegistry(ctx, fetcher)
	}

	// 1. Transcription chain.
	t, err := BuildTranscriber(cfg.Transcription, a.registry, a.metrics)
	if err != nil {
		return nil, err
	}
	a.transcriber = t

	// 2. Store.
	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// 3. Assessor.
	aopts := []fluency.Option{
		fluency.WithTimeout(cfg.Transcription.Timeout),
		fluency.WithMetrics(a.metrics),
	}
	if a.store != nil {
		aopts = append(aopts, fluency.WithStore(a.store))
	}
	a.assessor = fluency.NewAssessor(a.transcriber, aopts...)

	// 4. MCP server.
	if err := a.initMCP(); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init mcp: %w", err)
	}

	// 5. HTTP routes.
	a.handler = a.buildHandler()

	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil || a.cfg.Store.PostgresDSN == "" {
		return nil
	}
	s, pool, err := reportstore.Open(ctx, a.cfg.Store.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	slog.Info("report store connected")
	return nil
}

func (a *App) initMCP() error {
	topts := []assessment.Option{
		assessment.WithTimeout(a.toolTimeout()),
	}
	if a.store != nil {
		topts = append(topts, assessment.WithGetter(a.store))
	}
	srv, err := mcp.NewServer(a.version, a.metrics, assessment.Tools(a.assessor, topts...)...)
	if err != nil {
		return err
	}
	a.mcp = srv
	slog.Info("mcp tools registered", "tools", srv.ToolNames(), "http", !a.cfg.MCP.Disabled)
	return nil
}

func (a *App) toolTimeout() time.Duration {
	if a.cfg.Transcription.Timeout <= 0 {
		return 0
	}
	return a.cfg.Transcription.Timeout + toolMargin
}

func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()

	checks := []health.Checker{health.Transcription(a.transcriber.States)}
	if a.store != nil {
		checks = append(checks, health.Store(a.store))
	}
	health.New(checks...).Register(mux)

	mux.Handle("GET /metrics", observe.MetricsHandler())

	var store api.Store
	if a.store != nil {
		store = a.store
	}
	api.New(a.assessor, store).Register(mux)

	if !a.cfg.MCP.Disabled {
		mux.Handle(a.cfg.MCP.Path, a.mcp.HTTPHandler())
	}

	return observe.Middleware(a.metrics)(mux)
}

// Assessor returns the assessor, for running assessments in-process.
func (a *App) Assessor() *fluency.Assessor { return a.assessor }

// MCP returns the MCP server.
func (a *App) MCP() *mcp.Server { return a.mcp }

// Handler returns the HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves HTTP on the configured address until ctx is cancelled or the
// listener fails. A cancelled context is not an error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.serverMu.Lock()
	a.server = srv
	a.serverMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	slog.Info("fluency server listening", "addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// RunStdio serves MCP over stdin/stdout until the client disconnects or ctx
// ends.
func (a *App) RunStdio(ctx context.Context) error {
	return a.mcp.RunStdio(ctx)
}

// ApplyConfig reacts to a changed config file. The log level takes effect
// immediately; every other change is logged and waits for a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// ParseLevel converts a config log level to a slog level. Unknown values map
// to info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Shutdown stops the HTTP server and tears down all subsystems in order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.serverMu.Lock()
		srv := a.server
		a.serverMu.Unlock()
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
				shutdownErr = err
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases whatever New opened before it failed.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
