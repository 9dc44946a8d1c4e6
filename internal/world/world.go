// Package world implements the application lifecycle orchestrator: it
// sequences subsystem startup in a fixed order, aggregates failures into a
// health state, and exposes Run/Shutdown/State to the composition layer.
//
// The orchestrator is constructor-injected and owned by the composition
// root; there is no process-global instance.
package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CryptoStream-Network/stream_layer/internal/awareness"
	"github.com/CryptoStream-Network/stream_layer/internal/stores"
	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// Health is the aggregate startup status.
type Health string

const (
	HealthStarting Health = "starting"
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthFailing  Health = "failing"
)

// Service names in startup order. Blockchain only appears when the run was
// started with auto-connect.
const (
	ServiceSystem     = "system"
	ServiceUI         = "ui"
	ServiceBlockchain = "blockchain"
	ServiceUser       = "user"
	ServiceContent    = "content"
	ServiceStreaming  = "streaming"
	ServiceCore       = "core"
)

// ComponentError is one recorded failure.
type ComponentError struct {
	Component string    `json:"component"`
	Message   string    `json:"message"`
	Time      time.Time `json:"time"`
}

// State is the orchestrator's observable state. Snapshots returned by
// World.State are defensive copies.
type State struct {
	Initialized     bool             `json:"initialized"`
	RunningServices []string         `json:"running_services"`
	Health          Health           `json:"health"`
	StartTime       *time.Time       `json:"start_time,omitempty"`
	Errors          []ComponentError `json:"errors"`
}

// Subsystems are the collaborator stores the orchestrator drives. All six
// are required.
type Subsystems struct {
	System    stores.SystemStore
	UI        stores.UIStore
	Wallet    stores.WalletStore
	User      stores.UserStore
	Content   stores.ContentStore
	Streaming stores.StreamingStore
}

// Options tune the orchestrator.
type Options struct {
	// InitTimeout bounds each subsystem initializer so a hung collaborator
	// cannot stall the boot sequence. Defaults to 30s.
	InitTimeout time.Duration
	// WalletRefreshInterval drives the background balance refresh ticker.
	// Defaults to 60s.
	WalletRefreshInterval time.Duration
}

// RunOptions control one run.
type RunOptions struct {
	// AutoConnect attempts the blockchain wallet connection during boot.
	AutoConnect bool
}

const (
	defaultInitTimeout     = 30 * time.Second
	defaultRefreshInterval = 60 * time.Second
)

// Metrics receives lifecycle telemetry. Nil-safe no-op by default.
type Metrics interface {
	HealthChanged(h Health)
	BootCompleted(d time.Duration)
	SubsystemFailed(component string)
}

type noopMetrics struct{}

func (noopMetrics) HealthChanged(Health)      {}
func (noopMetrics) BootCompleted(time.Duration) {}
func (noopMetrics) SubsystemFailed(string)    {}

// World is the lifecycle orchestrator. One instance per runtime session.
type World struct {
	subs    Subsystems
	core    *awareness.Core
	opts    Options
	log     *logger.Logger
	metrics Metrics

	mu    sync.RWMutex
	state State

	refreshCancel context.CancelFunc
	refreshWG     sync.WaitGroup
}

// New creates an orchestrator in the starting state.
func New(subs Subsystems, core *awareness.Core, opts Options, log *logger.Logger) *World {
	if log == nil {
		log = logger.NewDefault("world")
	}
	if opts.InitTimeout <= 0 {
		opts.InitTimeout = defaultInitTimeout
	}
	if opts.WalletRefreshInterval <= 0 {
		opts.WalletRefreshInterval = defaultRefreshInterval
	}
	return &World{
		subs:    subs,
		core:    core,
		opts:    opts,
		log:     log,
		metrics: noopMetrics{},
		state:   State{Health: HealthStarting},
	}
}

// WithMetrics attaches a telemetry sink.
func (w *World) WithMetrics(m Metrics) {
	if m != nil {
		w.metrics = m
	}
}

// Run boots the platform: system, ui, optionally blockchain, user, content,
// streaming, then the core services (awareness phases, automation, the
// wallet-refresh ticker). Subsystem failures degrade health and the
// sequence continues; only a fault in the sequencing itself marks the world
// failing. Run never panics outward and returns false only for such faults.
func (w *World) Run(ctx context.Context, opts RunOptions) (ok bool) {
	started := time.Now().UTC()

	w.mu.Lock()
	w.state = State{Health: HealthStarting, StartTime: &started}
	w.mu.Unlock()
	w.metrics.HealthChanged(HealthStarting)

	defer func() {
		if r := recover(); r != nil {
			w.mu.Lock()
			w.state.Health = HealthFailing
			w.state.Errors = append(w.state.Errors, ComponentError{
				Component: "world",
				Message:   fmt.Sprintf("run sequence fault: %v", r),
				Time:      time.Now().UTC(),
			})
			w.mu.Unlock()
			w.metrics.HealthChanged(HealthFailing)
			w.log.WithField("panic", r).Error("world run failed")
			ok = false
		}
	}()

	w.runInit(ctx, ServiceSystem, w.initSystem)
	w.runInit(ctx, ServiceUI, w.initUI)
	if opts.AutoConnect {
		w.runInit(ctx, ServiceBlockchain, w.subs.Wallet.Connect)
	}
	w.runInit(ctx, ServiceUser, w.subs.User.LoadProfile)
	w.runInit(ctx, ServiceContent, w.subs.Content.LoadFeaturedContent)
	w.runInit(ctx, ServiceStreaming, w.subs.Streaming.Initialize)
	w.runInit(ctx, ServiceCore, w.startCoreServices)

	w.mu.Lock()
	if w.state.Health == HealthStarting {
		w.state.Health = HealthHealthy
	}
	w.state.Initialized = true
	health := w.state.Health
	services := len(w.state.RunningServices)
	failures := len(w.state.Errors)
	w.mu.Unlock()

	w.metrics.HealthChanged(health)
	w.metrics.BootCompleted(time.Since(started))
	w.log.WithField("health", string(health)).
		WithField("services", services).
		WithField("failures", failures).
		Info("world run completed")
	return true
}

// runInit applies the uniform per-subsystem policy: bound the initializer
// with the init timeout, record success in the service list, convert
// failure into a degraded-health log entry and continue.
func (w *World) runInit(ctx context.Context, component string, init func(context.Context) error) {
	initCtx, cancel := context.WithTimeout(ctx, w.opts.InitTimeout)
	defer cancel()

	if err := init(initCtx); err != nil {
		w.handleInitError(component, err)
		return
	}
	w.mu.Lock()
	w.state.RunningServices = append(w.state.RunningServices, component)
	w.mu.Unlock()
	w.log.WithField("service", component).Debug("subsystem initialized")
}

func (w *World) handleInitError(component string, err error) {
	w.mu.Lock()
	// A subsystem failure never escalates past degraded.
	if w.state.Health != HealthFailing {
		w.state.Health = HealthDegraded
	}
	w.state.Errors = append(w.state.Errors, ComponentError{
		Component: component,
		Message:   err.Error(),
		Time:      time.Now().UTC(),
	})
	health := w.state.Health
	w.mu.Unlock()

	w.metrics.SubsystemFailed(component)
	w.metrics.HealthChanged(health)
	w.log.WithError(err).WithField("component", component).Warn("subsystem initialization failed")
}

// RecordWarning appends a structured warning to the error log and degrades
// health, the same path subsystem failures take. The awareness core uses it
// to surface phase degradation.
func (w *World) RecordWarning(component, message string) {
	w.handleInitError(component, errors.New(message))
}

func (w *World) initSystem(ctx context.Context) error {
	if err := w.subs.System.MarkInitialized(ctx); err != nil {
		return err
	}
	meta, err := w.subs.System.LoadMetaAnalysis(ctx)
	if err != nil {
		return err
	}
	w.log.WithField("version", meta.Version).
		WithField("capability", meta.Capability).
		Debug("meta analysis loaded")
	return nil
}

func (w *World) initUI(ctx context.Context) error {
	dark, err := w.subs.UI.DarkMode(ctx)
	if err != nil {
		return err
	}
	// Re-persist so a fresh install writes its default once.
	return w.subs.UI.SetDarkMode(ctx, dark)
}

// startCoreServices runs the awareness phases and starts the background
// wallet-refresh ticker. An error here counts as a core failure, not a
// world fault.
func (w *World) startCoreServices(ctx context.Context) error {
	if w.core == nil {
		return fmt.Errorf("awareness core not wired")
	}
	w.core.Initialize(ctx)
	w.startWalletRefresh()
	return nil
}

// startWalletRefresh launches the periodic balance refresh. The ticker is
// tracked and cancelled during Shutdown.
func (w *World) startWalletRefresh() {
	w.mu.Lock()
	if w.refreshCancel != nil {
		w.mu.Unlock()
		return
	}
	refreshCtx, cancel := context.WithCancel(context.Background())
	w.refreshCancel = cancel
	w.mu.Unlock()

	w.refreshWG.Add(1)
	go func() {
		defer w.refreshWG.Done()
		ticker := time.NewTicker(w.opts.WalletRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				if !w.subs.Wallet.Connected() {
					continue
				}
				tickCtx, tickCancel := context.WithTimeout(refreshCtx, 10*time.Second)
				if err := w.subs.Wallet.RefreshBalance(tickCtx); err != nil {
					w.log.WithError(err).Warn("wallet balance refresh failed")
				}
				tickCancel()
			}
		}
	}()
}

// Shutdown tears the platform down: stops the refresh ticker, disables
// automation and intelligence, cleans up streaming connections and
// disconnects the wallet. Unlike Run it propagates teardown errors, joined,
// after resetting state to pre-init defaults.
func (w *World) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	cancel := w.refreshCancel
	w.refreshCancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
		w.refreshWG.Wait()
	}

	var errs []error
	if w.core != nil {
		if err := w.core.StopAutomation(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disable automation: %w", err))
		}
		w.core.DisableDigitalIntelligence()
		// Clear the awareness state so the next Run re-executes the phases
		// instead of reporting a stale quotient from the previous session.
		w.core.Reset()
	}
	if err := w.subs.Streaming.CleanupStreams(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cleanup streams: %w", err))
	}
	if w.subs.Wallet.Connected() {
		if err := w.subs.Wallet.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnect wallet: %w", err))
		}
	}

	// State resets even when teardown reported errors; the next run starts
	// from a clean slate either way.
	w.mu.Lock()
	w.state = State{Health: HealthStarting}
	w.mu.Unlock()
	w.metrics.HealthChanged(HealthStarting)

	err := errors.Join(errs...)
	if err != nil {
		w.log.WithError(err).Error("world shutdown completed with errors")
		return err
	}
	w.log.Info("world shutdown complete")
	return nil
}

// State returns a defensive copy of the orchestrator state.
func (w *World) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snapshot := w.state
	snapshot.RunningServices = append([]string(nil), w.state.RunningServices...)
	snapshot.Errors = append([]ComponentError(nil), w.state.Errors...)
	if w.state.StartTime != nil {
		started := *w.state.StartTime
		snapshot.StartTime = &started
	}
	return snapshot
}
