// Package intelligence implements the digital-intelligence module: named
// data-stream connections, neural pathway capability flags, and the
// observation feed the automation engine reports into.
package intelligence

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// DefaultStreams are the platform data streams the module attaches to when
// no explicit set is configured.
var DefaultStreams = []string{"transactions", "streams", "content", "user-activity"}

// Observations are capped so a long-running engine cannot grow memory
// without bound.
const observationWindow = 256

// Slow executions beyond this multiple of the running mean are flagged as
// anomalies when anomaly detection is on.
const anomalyDurationFactor = 4

// Options configure the optional neural pathway capabilities. Pattern
// recognition is always on and has no flag.
type Options struct {
	AnomalyDetection   bool
	PredictiveAnalysis bool
	Streams            []string
}

// Observation is one reported task execution outcome.
type Observation struct {
	TaskID   string
	Success  bool
	Duration time.Duration
	At       time.Time
}

// Module is the digital-intelligence processing unit. Safe for concurrent
// use; the engine reports observations from worker goroutines.
type Module struct {
	mu sync.RWMutex

	log *logger.Logger

	streams map[string]time.Time

	pathwaysInitialized bool
	patternRecognition  bool
	anomalyDetection    bool
	predictiveAnalysis  bool

	active       bool
	observations []Observation
	anomalies    int
	samples      int
}

// New creates an inactive module.
func New(log *logger.Logger) *Module {
	if log == nil {
		log = logger.NewDefault("intelligence")
	}
	return &Module{
		log:     log,
		streams: make(map[string]time.Time),
	}
}

// ConnectStreams attaches the module to the named data streams. An empty
// list connects the default set.
func (m *Module) ConnectStreams(ctx context.Context, names []string) error {
	if len(names) == 0 {
		names = DefaultStreams
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("stream name cannot be empty")
		}
		m.streams[name] = now
	}
	m.log.WithField("streams", len(m.streams)).Info("data streams connected")
	return nil
}

// InitializePathways arms the neural pathways. Pattern recognition is
// unconditional; the other two capabilities follow the options.
func (m *Module) InitializePathways(anomalyDetection, predictiveAnalysis bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pathwaysInitialized = true
	m.patternRecognition = true
	m.anomalyDetection = anomalyDetection
	m.predictiveAnalysis = predictiveAnalysis
}

// ActivateProcessing starts accepting observations and samples.
func (m *Module) ActivateProcessing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = true
}

// Deactivate stops processing. Connected streams and pathway state remain.
func (m *Module) Deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
}

// Active reports whether processing is on.
func (m *Module) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// PathwaysInitialized reports whether InitializePathways ran.
func (m *Module) PathwaysInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathwaysInitialized
}

// Observe records a task execution outcome. Failed or unusually slow
// executions count as anomalies when anomaly detection is armed.
func (m *Module) Observe(obs Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	if obs.At.IsZero() {
		obs.At = time.Now().UTC()
	}

	if m.anomalyDetection && m.isAnomalousLocked(obs) {
		m.anomalies++
		m.log.WithField("task_id", obs.TaskID).
			WithField("duration", obs.Duration.String()).
			WithField("success", obs.Success).
			Warn("anomalous task execution")
	}

	m.observations = append(m.observations, obs)
	if len(m.observations) > observationWindow {
		m.observations = m.observations[len(m.observations)-observationWindow:]
	}
}

func (m *Module) isAnomalousLocked(obs Observation) bool {
	if !obs.Success {
		return true
	}
	if len(m.observations) == 0 {
		return false
	}
	var total time.Duration
	for _, prior := range m.observations {
		total += prior.Duration
	}
	mean := total / time.Duration(len(m.observations))
	return mean > 0 && obs.Duration > mean*anomalyDurationFactor
}

// IngestSample feeds a raw JSON event from a connected stream. Unknown
// streams are dropped; well-formed events are counted toward complexity.
func (m *Module) IngestSample(stream string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return fmt.Errorf("intelligence processing not active")
	}
	if _, ok := m.streams[stream]; !ok {
		return fmt.Errorf("stream %q not connected", stream)
	}
	if !gjson.ValidBytes(payload) {
		return fmt.Errorf("stream %q sample is not valid JSON", stream)
	}
	if kind := gjson.GetBytes(payload, "type"); !kind.Exists() {
		return fmt.Errorf("stream %q sample missing type field", stream)
	}
	m.samples++
	return nil
}

// NeuralComplexity scores the pathway topology: each connected stream and
// each armed capability contributes a fixed amount. Deterministic for a
// given configuration.
func (m *Module) NeuralComplexity() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.pathwaysInitialized {
		return 0
	}
	score := 20 * float64(len(m.streams))
	for _, on := range []bool{m.patternRecognition, m.anomalyDetection, m.predictiveAnalysis} {
		if on {
			score += 15
		}
	}
	return score
}

// PredictionAccuracy is the observed success rate as a percentage. Without
// predictive analysis or observations it reports the neutral 50.
func (m *Module) PredictionAccuracy() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.pathwaysInitialized || !m.predictiveAnalysis || len(m.observations) == 0 {
		return 50
	}
	var ok int
	for _, obs := range m.observations {
		if obs.Success {
			ok++
		}
	}
	return 100 * float64(ok) / float64(len(m.observations))
}

// Anomalies reports how many anomalous executions were flagged.
func (m *Module) Anomalies() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.anomalies
}

// Samples reports how many stream events were ingested.
func (m *Module) Samples() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.samples
}
