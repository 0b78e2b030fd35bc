package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/km-arc/go-singleton/framework/config"
	gohttp "github.com/km-arc/go-singleton/framework/http"
	"github.com/km-arc/go-singleton/framework/logging"
	"github.com/km-arc/go-singleton/framework/metrics"
	"github.com/km-arc/go-singleton/framework/registry"
	"github.com/km-arc/go-singleton/framework/routing"
	"github.com/km-arc/go-singleton/framework/singleton"
)

// Version is the application version.
const Version = "0.1.0"

// shutdownTimeout bounds graceful shutdown when Run's context ends.
const shutdownTimeout = 10 * time.Second

// Application wires configuration, logging, the singleton arena, its
// registry, metrics and the HTTP inspector together.
type Application struct {
	Config     *config.Config
	Logger     *slog.Logger
	Arena      *singleton.Arena
	Registry   *registry.Registry
	Metrics    *metrics.Metrics
	Prometheus *prometheus.Registry
	Router     *routing.Router

	mu     sync.Mutex
	server *http.Server
}

// New loads configuration from the environment (and envFiles) and builds
// the application.
//
//	application, err := app.New()
//	if err != nil { ... }
//	if err := application.Boot(ctx, cache.Module{}); err != nil { ... }
//	application.Run(ctx)
func New(envFiles ...string) (*Application, error) {
	return NewWithConfig(config.Load(envFiles...))
}

// NewWithConfig builds the application from an explicit configuration.
func NewWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.New(cfg.Log)

	opts := []singleton.Option{
		singleton.WithStrict(cfg.Singleton.Strict),
		singleton.WithAutoReset(cfg.Singleton.AutoReset),
		singleton.WithLogger(logger),
	}
	if path := cfg.Singleton.PolicyFile; path != "" {
		table, err := config.LoadPolicies(path)
		if err != nil {
			return nil, err
		}
		opts = append(opts, singleton.WithPolicySource(table))
		logger.Info("policy table loaded", "path", path, "policies", len(table))
	}
	arena := singleton.NewArena(opts...)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(promReg)
	m.Observe(arena)

	reg, err := registry.New(arena,
		registry.WithLogger(logger),
		registry.WithMetrics(m),
		registry.WithWorkers(cfg.Singleton.InitWorkers),
	)
	if err != nil {
		return nil, fmt.Errorf("app: registry: %w", err)
	}

	router := routing.New(logger)
	gohttp.NewInspector(arena, reg, promReg).Routes(router)

	return &Application{
		Config:     cfg,
		Logger:     logger,
		Arena:      arena,
		Registry:   reg,
		Metrics:    m,
		Prometheus: promReg,
		Router:     router,
	}, nil
}

// Boot discovers mods and creates every hierarchy that opted in.
func (a *Application) Boot(ctx context.Context, mods ...registry.Module) error {
	if err := a.Registry.Initialize(ctx, mods...); err != nil {
		return err
	}
	a.Logger.Info("application booted", "modules", len(mods), "singletons", a.Registry.Count())
	return nil
}

// Handler returns the inspector router.
func (a *Application) Handler() http.Handler { return a.Router }

// Run serves the inspector on APP_PORT until ctx ends, then shuts down.
func (a *Application) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.Config.App.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	a.Logger.Info("inspector listening",
		"app", a.Config.App.Name, "addr", srv.Addr, "env", a.Config.App.Env)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the server (if running) and disposes the registry.
func (a *Application) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: server shutdown: %w", err))
		}
	}
	if err := a.Registry.Dispose(); err != nil {
		errs = append(errs, fmt.Errorf("app: registry dispose: %w", err))
	}
	a.Logger.Info("application stopped")
	return errors.Join(errs...)
}

// Environment returns APP_ENV value.
func (a *Application) Environment() string { return a.Config.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsDebug() bool       { return a.Config.App.Debug }
func (a *Application) Version() string     { return Version }
