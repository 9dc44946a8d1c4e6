// Package awareness builds the layered awareness score during boot: six
// ordered phases probe the platform's own state, environment, network and
// clock, then bootstrap automation and digital intelligence when the
// self-configuration enables them.
package awareness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/CryptoStream-Network/stream_layer/internal/automation"
	"github.com/CryptoStream-Network/stream_layer/internal/intelligence"
	"github.com/CryptoStream-Network/stream_layer/internal/resource"
	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// Awareness scores. A phase that collects its data scores full; a phase
// whose collection fails degrades to half and never below.
const (
	scoreFull     = 1.0
	scoreDegraded = 0.5
)

// IQ weights. The quotient is a pure function of already-computed state.
const (
	iqBase             = 100.0
	iqComplexityWeight = 0.2
	iqAccuracyWeight   = 0.3
	iqEnvironmental    = 10.0
	iqNetwork          = 15.0
	iqTemporal         = 25.0
)

// Recorder receives structured warnings from degraded phases. The world
// orchestrator passes its own error log so degradation is observable.
type Recorder interface {
	RecordWarning(component, message string)
}

// SystemState holds the five awareness scalars and the derived quotient.
// Each scalar is set exactly once per Initialize and never decays.
type SystemState struct {
	Self                 float64
	Environmental        float64
	Network              float64
	Temporal             float64
	Automation           float64
	IntelligenceQuotient float64
}

// Config is the self-configuration slice that controls automatic
// activation during Initialize.
type Config struct {
	AutomationEnabled   bool
	AutomationOptions   automation.Options
	IntelligenceEnabled bool
	IntelligenceOptions intelligence.Options
}

// Deps are the collaborators the core drives. EngineFactory constructs the
// automation engine lazily so constraints are probed only when automation
// actually activates.
type Deps struct {
	Probe         *resource.Probe
	EngineFactory func(ctx context.Context) (*automation.Engine, error)
	Recorder      Recorder
}

// Core runs the phased self-initialization. A fresh instance is created per
// world run; state never carries across re-initialization.
type Core struct {
	log  *logger.Logger
	cfg  Config
	deps Deps

	mu               sync.Mutex
	state            SystemState
	readings         resource.Readings
	readingsOK       bool
	engine           *automation.Engine
	intel            *intelligence.Module
	automationActive bool
	intelActive      bool
	initialized      bool
}

// New creates an idle core. A nil logger falls back to the default.
func New(cfg Config, deps Deps, log *logger.Logger) *Core {
	if log == nil {
		log = logger.NewDefault("awareness")
	}
	return &Core{log: log, cfg: cfg, deps: deps}
}

// SetRecorder wires the warning sink after construction. The world
// orchestrator is both the core's owner and its recorder, so the recorder
// cannot be known at construction time.
func (c *Core) SetRecorder(r Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps.Recorder = r
}

// Reset returns the core to its pre-initialization state so the next run
// re-executes all six phases. The lazily built engine and intelligence
// module are kept; re-initialization restarts them per the
// self-configuration. The world orchestrator calls this during Shutdown.
func (c *Core) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = false
	c.state = SystemState{}
	c.readings = resource.Readings{}
	c.readingsOK = false
}

// Initialize runs the six phases in order. Phase failures degrade the
// corresponding scalar and surface a warning; none of them abort the
// sequence, so Initialize never fails.
func (c *Core) Initialize(ctx context.Context) {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return
	}
	c.initialized = true
	c.mu.Unlock()

	c.phaseSelfReflection()
	c.phaseEnvironmentalSensing(ctx)
	c.phaseNetworkObservation()
	c.phaseTemporalSync(ctx)
	c.phaseAutomationBootstrap(ctx)
	c.phaseIntelligenceBootstrap(ctx)

	c.mu.Lock()
	c.state.IntelligenceQuotient = c.quotientLocked()
	state := c.state
	c.mu.Unlock()

	c.log.WithFields(map[string]interface{}{
		"self":          state.Self,
		"environmental": state.Environmental,
		"network":       state.Network,
		"temporal":      state.Temporal,
		"automation":    state.Automation,
		"iq":            state.IntelligenceQuotient,
	}).Info("awareness initialized")
}

func (c *Core) phaseSelfReflection() {
	score := scoreFull
	if c.deps.Probe == nil {
		score = scoreDegraded
		c.warn("awareness.self", "no resource probe wired; self model incomplete")
	}
	c.mu.Lock()
	c.state.Self = score
	c.mu.Unlock()
}

func (c *Core) phaseEnvironmentalSensing(ctx context.Context) {
	score := scoreDegraded
	if c.deps.Probe != nil {
		readings, err := c.deps.Probe.Measure(ctx)
		if err == nil {
			score = scoreFull
			c.mu.Lock()
			c.readings = readings
			c.readingsOK = true
			c.mu.Unlock()
		} else {
			c.warn("awareness.environmental", fmt.Sprintf("host measurement failed: %v", err))
		}
	} else {
		c.warn("awareness.environmental", "no resource probe wired")
	}
	c.mu.Lock()
	c.state.Environmental = score
	c.mu.Unlock()
}

func (c *Core) phaseNetworkObservation() {
	c.mu.Lock()
	ok := c.readingsOK && c.readings.NetworkKBps > 0
	c.mu.Unlock()

	score := scoreFull
	if !ok {
		score = scoreDegraded
		c.warn("awareness.network", "no bandwidth reading available")
	}
	c.mu.Lock()
	c.state.Network = score
	c.mu.Unlock()
}

func (c *Core) phaseTemporalSync(ctx context.Context) {
	score := scoreDegraded
	bootEpoch, err := host.BootTimeWithContext(ctx)
	if err != nil {
		c.warn("awareness.temporal", fmt.Sprintf("boot time unavailable: %v", err))
	} else if boot := time.Unix(int64(bootEpoch), 0); !time.Now().After(boot) {
		c.warn("awareness.temporal", "host clock precedes boot time")
	} else {
		score = scoreFull
	}
	c.mu.Lock()
	c.state.Temporal = score
	c.mu.Unlock()
}

func (c *Core) phaseAutomationBootstrap(ctx context.Context) {
	score := scoreDegraded // standby
	if c.cfg.AutomationEnabled {
		if c.EnableAutomation(ctx, c.cfg.AutomationOptions) {
			score = scoreFull
		} else {
			c.warn("awareness.automation", "automation bootstrap failed; engine in standby")
		}
	}
	c.mu.Lock()
	c.state.Automation = score
	c.mu.Unlock()
}

func (c *Core) phaseIntelligenceBootstrap(ctx context.Context) {
	if !c.cfg.IntelligenceEnabled {
		return
	}
	if !c.EnableDigitalIntelligence(ctx, c.cfg.IntelligenceOptions) {
		c.warn("awareness.intelligence", "digital intelligence bootstrap failed; module in standby")
	}
}

// EnableAutomation lazily constructs the engine, applies the options and
// starts it. Failures are logged and reported as false; they never
// propagate.
func (c *Core) EnableAutomation(ctx context.Context, opts automation.Options) bool {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	if engine == nil {
		if c.deps.EngineFactory == nil {
			c.log.Warn("automation requested but no engine factory wired")
			return false
		}
		built, err := c.deps.EngineFactory(ctx)
		if err != nil {
			c.log.WithError(err).Warn("construct automation engine")
			return false
		}
		c.mu.Lock()
		if c.engine == nil {
			c.engine = built
		}
		engine = c.engine
		c.mu.Unlock()
	}

	engine.Configure(opts)
	if err := engine.Start(ctx); err != nil {
		c.log.WithError(err).Warn("start automation engine")
		return false
	}

	c.mu.Lock()
	c.automationActive = true
	intel := c.intel
	c.mu.Unlock()
	if intel != nil {
		engine.RegisterIntelligence(intel)
	}

	c.log.Info("automation enabled")
	return true
}

// DisableAutomation stops the engine. Success when automation was never
// active; false only if the stop itself fails.
func (c *Core) DisableAutomation(ctx context.Context) bool {
	if err := c.StopAutomation(ctx); err != nil {
		c.log.WithError(err).Warn("stop automation engine")
		return false
	}
	return true
}

// StopAutomation is DisableAutomation with the underlying stop error
// preserved, for callers that propagate teardown failures. Nil when
// automation was never active.
func (c *Core) StopAutomation(ctx context.Context) error {
	c.mu.Lock()
	engine := c.engine
	active := c.automationActive
	c.mu.Unlock()

	if !active || engine == nil {
		return nil
	}
	if err := engine.Stop(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.automationActive = false
	c.mu.Unlock()
	c.log.Info("automation disabled")
	return nil
}

// EnableDigitalIntelligence lazily constructs the module, connects the
// named data streams, arms the neural pathways and activates processing.
// Registers the module with the automation engine when one exists.
func (c *Core) EnableDigitalIntelligence(ctx context.Context, opts intelligence.Options) bool {
	c.mu.Lock()
	if c.intel == nil {
		c.intel = intelligence.New(c.log.WithComponent("intelligence"))
	}
	intel := c.intel
	engine := c.engine
	c.mu.Unlock()

	if err := intel.ConnectStreams(ctx, opts.Streams); err != nil {
		c.log.WithError(err).Warn("connect intelligence data streams")
		return false
	}
	intel.InitializePathways(opts.AnomalyDetection, opts.PredictiveAnalysis)
	intel.ActivateProcessing()
	if engine != nil {
		engine.RegisterIntelligence(intel)
	}

	c.mu.Lock()
	c.intelActive = true
	c.mu.Unlock()
	c.log.Info("digital intelligence enabled")
	return true
}

// DisableDigitalIntelligence halts processing. No-op success when the
// module was never active.
func (c *Core) DisableDigitalIntelligence() bool {
	c.mu.Lock()
	intel := c.intel
	active := c.intelActive
	c.mu.Unlock()
	if !active || intel == nil {
		return true
	}
	intel.Deactivate()
	c.mu.Lock()
	c.intelActive = false
	c.mu.Unlock()
	return true
}

// AutomationActive reports whether the engine is running.
func (c *Core) AutomationActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.automationActive
}

// Engine exposes the lazily built engine; nil before automation first
// activates.
func (c *Core) Engine() *automation.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// IntelligenceQuotient recomputes the weighted quotient from current state.
func (c *Core) IntelligenceQuotient() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quotientLocked()
}

func (c *Core) quotientLocked() float64 {
	var complexity, accuracy float64
	pathways := c.intel != nil && c.intel.PathwaysInitialized()
	if pathways {
		complexity = c.intel.NeuralComplexity()
		accuracy = c.intel.PredictionAccuracy()
	}
	return Quotient(c.state, pathways, complexity, accuracy)
}

// Quotient is the deterministic weighted sum behind the intelligence
// quotient: base 100, neural complexity and prediction accuracy when the
// pathways are initialized, and the environmental, network and temporal
// awareness scalars at their declared weights.
func Quotient(state SystemState, pathwaysInitialized bool, complexity, accuracy float64) float64 {
	iq := iqBase
	if pathwaysInitialized {
		iq += complexity * iqComplexityWeight
		iq += accuracy * iqAccuracyWeight
	}
	iq += state.Environmental * iqEnvironmental
	iq += state.Network * iqNetwork
	iq += state.Temporal * iqTemporal
	return iq
}

// MachineConstraints measures the host and derives the operating limits
// applied to automation. This is the sole policy gate between measured
// capacity and the engine.
func (c *Core) MachineConstraints(ctx context.Context) (resource.Constraints, error) {
	if c.deps.Probe == nil {
		return resource.Constraints{}, fmt.Errorf("no resource probe wired")
	}
	return c.deps.Probe.Constraints(ctx)
}

// State returns a copy of the awareness scalars.
func (c *Core) State() SystemState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Core) warn(component, message string) {
	c.log.WithField("component", component).Warn(message)
	c.mu.Lock()
	recorder := c.deps.Recorder
	c.mu.Unlock()
	if recorder != nil {
		recorder.RecordWarning(component, message)
	}
}
