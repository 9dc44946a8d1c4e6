package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/CryptoStream-Network/stream_layer/internal/app/httpapi"
	"github.com/CryptoStream-Network/stream_layer/internal/app/metrics"
	"github.com/CryptoStream-Network/stream_layer/internal/automation"
	"github.com/CryptoStream-Network/stream_layer/internal/awareness"
	"github.com/CryptoStream-Network/stream_layer/internal/config"
	"github.com/CryptoStream-Network/stream_layer/internal/gasprice"
	"github.com/CryptoStream-Network/stream_layer/internal/intelligence"
	"github.com/CryptoStream-Network/stream_layer/internal/journal"
	journalpg "github.com/CryptoStream-Network/stream_layer/internal/journal/postgres"
	"github.com/CryptoStream-Network/stream_layer/internal/resource"
	"github.com/CryptoStream-Network/stream_layer/internal/scripttask"
	"github.com/CryptoStream-Network/stream_layer/internal/stores/memory"
	"github.com/CryptoStream-Network/stream_layer/internal/stores/neowallet"
	"github.com/CryptoStream-Network/stream_layer/internal/stores/redisprefs"
	"github.com/CryptoStream-Network/stream_layer/internal/stores/streamhub"
	"github.com/CryptoStream-Network/stream_layer/internal/world"
	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// Application wires the configured stores, the awareness core and the world
// orchestrator together and manages the admin HTTP server lifecycle.
type Application struct {
	cfg   *config.Config
	log   *logger.Logger
	world *world.World
	core  *awareness.Core

	journal    journal.Store
	httpServer *http.Server
	closers    []io.Closer
}

// NewApplication loads configuration from the default location and wires the
// application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig wires the application from an explicit configuration.
// Adapters without configuration fall back to the in-memory store, so a bare
// config still boots a fully functional runtime.
func NewWithConfig(cfg *config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	a := &Application{cfg: cfg, log: log}

	subs, err := a.buildSubsystems(cfg, log)
	if err != nil {
		return nil, err
	}
	store, err := a.buildJournal(cfg)
	if err != nil {
		return nil, err
	}
	a.journal = store

	probe := resource.NewProbe(log.WithComponent("resource"))
	a.core = awareness.New(awareness.Config{
		AutomationEnabled: cfg.Automation.Enabled,
		AutomationOptions: automation.Options{
			MaxConcurrentTasks: cfg.Automation.MaxConcurrentTasks,
			QueueCapacity:      cfg.Automation.QueueCapacity,
		},
		IntelligenceEnabled: cfg.Intelligence.Enabled,
		IntelligenceOptions: intelligence.Options{
			AnomalyDetection:   cfg.Intelligence.AnomalyDetectionEnabled(),
			PredictiveAnalysis: cfg.Intelligence.PredictiveAnalysisEnabled(),
			Streams:            cfg.Intelligence.Streams,
		},
	}, awareness.Deps{
		Probe:         probe,
		EngineFactory: a.engineFactory(cfg, subs, store, probe, log),
	}, log.WithComponent("awareness"))

	a.world = world.New(subs, a.core, world.Options{
		InitTimeout:           time.Duration(cfg.World.InitTimeoutSeconds) * time.Second,
		WalletRefreshInterval: time.Duration(cfg.World.WalletRefreshSeconds) * time.Second,
	}, log.WithComponent("world"))
	a.world.WithMetrics(metrics.WorldSink{})
	a.core.SetRecorder(a.world)

	handler := httpapi.NewHandler(httpapi.Deps{
		World:     a.world,
		Core:      a.core,
		Journal:   store,
		JWTSecret: cfg.Auth.JWTSecret,
		Log:       log.WithComponent("httpapi"),
	})
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	return a, nil
}

// buildSubsystems assembles the six stores the orchestrator drives. Each
// adapter is wired only when its configuration is present; everything else
// runs on the shared in-memory store.
func (a *Application) buildSubsystems(cfg *config.Config, log *logger.Logger) (world.Subsystems, error) {
	mem := memory.New()
	subs := world.Subsystems{
		System:    mem,
		UI:        mem,
		Wallet:    mem,
		User:      mem,
		Content:   mem,
		Streaming: mem,
	}

	if cfg.Wallet.RPCEndpoint != "" {
		wallet, err := neowallet.New(cfg.Wallet.RPCEndpoint, cfg.Wallet.Address, log.WithComponent("neowallet"))
		if err != nil {
			return world.Subsystems{}, fmt.Errorf("configure wallet store: %w", err)
		}
		subs.Wallet = wallet
	}
	if cfg.Streaming.EdgeURL != "" {
		hub, err := streamhub.New(cfg.Streaming.EdgeURL, log.WithComponent("streamhub"))
		if err != nil {
			return world.Subsystems{}, fmt.Errorf("configure streaming store: %w", err)
		}
		subs.Streaming = hub
	}
	if cfg.Preferences.Driver == "redis" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		prefs, err := redisprefs.New(ctx, redisprefs.Options{
			Addr:     cfg.Preferences.RedisAddr,
			Password: cfg.Preferences.RedisPassword,
			DB:       cfg.Preferences.RedisDB,
		}, log.WithComponent("redisprefs"))
		if err != nil {
			return world.Subsystems{}, fmt.Errorf("configure preferences store: %w", err)
		}
		subs.UI = prefs
		a.closers = append(a.closers, prefs)
	}
	return subs, nil
}

func (a *Application) buildJournal(cfg *config.Config) (journal.Store, error) {
	switch cfg.Journal.Driver {
	case "postgres":
		store, err := journalpg.Open(cfg.Journal.DSN)
		if err != nil {
			return nil, fmt.Errorf("configure journal store: %w", err)
		}
		a.closers = append(a.closers, store)
		return store, nil
	default:
		return journal.NewMemoryStore(), nil
	}
}

// engineFactory builds the automation engine on first activation: the host
// is probed for constraints only when automation actually starts, and the
// engine gets every collaborator the configuration provides.
func (a *Application) engineFactory(
	cfg *config.Config,
	subs world.Subsystems,
	store journal.Store,
	probe *resource.Probe,
	log *logger.Logger,
) func(ctx context.Context) (*automation.Engine, error) {
	return func(ctx context.Context) (*automation.Engine, error) {
		constraints, err := probe.Constraints(ctx)
		if err != nil {
			return nil, fmt.Errorf("derive machine constraints: %w", err)
		}

		engine := automation.New(constraints, store, log.WithComponent("automation"))
		engine.WithMetrics(metrics.AutomationSink{})
		engine.WithStreamingStore(subs.Streaming)
		engine.WithContentStore(subs.Content)
		engine.WithHealthCheck(func(ctx context.Context) error {
			if state := a.world.State(); state.Health == world.HealthFailing {
				return fmt.Errorf("world health is %s", state.Health)
			}
			return nil
		})

		if cfg.Gas.PriceURL != "" {
			client := &http.Client{Timeout: 15 * time.Second}
			fetcher, err := gasprice.NewFetcher(client, cfg.Gas.PriceURL, cfg.Gas.JSONPath, log.WithComponent("gasprice"))
			if err != nil {
				return nil, fmt.Errorf("configure gas fetcher: %w", err)
			}
			engine.WithGasFetcher(fetcher)
		}

		for _, task := range cfg.Automation.Tasks {
			handler, err := scripttask.Compile(task.ID, task.Script, log.WithComponent("scripttask"))
			if err != nil {
				return nil, err
			}
			if err := engine.RegisterTask(automation.Task{
				ID:       task.ID,
				Schedule: automation.Cron(task.Schedule),
				Handler:  handler,
			}); err != nil {
				return nil, fmt.Errorf("register script task: %w", err)
			}
		}
		return engine, nil
	}
}

// Run boots the world per the configured auto-connect policy, then serves
// the admin API until the context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	a.world.Run(ctx, world.RunOptions{AutoConnect: a.cfg.World.AutoConnect})

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("admin API listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, tears the world down and releases adapter
// connections. Teardown continues past individual failures; the first error
// is returned.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var first error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		first = fmt.Errorf("shutdown admin server: %w", err)
	}
	if err := a.world.Shutdown(shutdownCtx); err != nil && first == nil {
		first = err
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.WithError(err).Warn("close adapter connection")
		}
	}
	return first
}

// World exposes the orchestrator, primarily for tests.
func (a *Application) World() *world.World { return a.world }

// Core exposes the awareness core, primarily for tests.
func (a *Application) Core() *awareness.Core { return a.core }
