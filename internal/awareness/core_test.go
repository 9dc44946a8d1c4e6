package awareness

import (
	"context"
	"sync"
	"testing"

	"github.com/CryptoStream-Network/stream_layer/internal/automation"
	"github.com/CryptoStream-Network/stream_layer/internal/intelligence"
	"github.com/CryptoStream-Network/stream_layer/internal/resource"
)

type recordingSink struct {
	mu       sync.Mutex
	warnings []string
}

func (r *recordingSink) RecordWarning(component, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, component)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

func testEngineFactory(ctx context.Context) (*automation.Engine, error) {
	return automation.New(resource.Constraints{MaxConcurrentTasks: 1}, nil, nil), nil
}

func TestInitializeWithoutProbeDegrades(t *testing.T) {
	sink := &recordingSink{}
	core := New(Config{}, Deps{Recorder: sink}, nil)
	core.Initialize(context.Background())

	state := core.State()
	if state.Self != scoreDegraded {
		t.Fatalf("self should degrade without a probe, got %v", state.Self)
	}
	if state.Environmental != scoreDegraded || state.Network != scoreDegraded {
		t.Fatalf("environmental/network should degrade: %+v", state)
	}
	// No score ever drops below the degraded floor.
	for name, score := range map[string]float64{
		"self": state.Self, "environmental": state.Environmental,
		"network": state.Network, "temporal": state.Temporal,
		"automation": state.Automation,
	} {
		if score < scoreDegraded {
			t.Fatalf("%s score %v below degraded floor", name, score)
		}
	}
	if sink.count() == 0 {
		t.Fatal("degraded phases must surface warnings through the recorder")
	}
}

func TestInitializeWithProbeScoresFull(t *testing.T) {
	core := New(Config{}, Deps{Probe: resource.NewProbe(nil)}, nil)
	core.Initialize(context.Background())

	state := core.State()
	if state.Self != scoreFull {
		t.Fatalf("self should score full, got %v", state.Self)
	}
	if state.Environmental != scoreFull {
		t.Fatalf("environmental should score full on a real host, got %v", state.Environmental)
	}
	if state.Automation != scoreDegraded {
		t.Fatalf("automation disabled in config should stay in standby, got %v", state.Automation)
	}
	if state.IntelligenceQuotient <= iqBase {
		t.Fatalf("quotient should exceed base with awareness present, got %v", state.IntelligenceQuotient)
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	core := New(Config{}, Deps{}, nil)
	core.Initialize(context.Background())
	first := core.State()
	core.Initialize(context.Background())
	if core.State() != first {
		t.Fatal("re-initialize must not mutate state")
	}
}

func TestResetAllowsReinitialization(t *testing.T) {
	sink := &recordingSink{}
	core := New(Config{}, Deps{Recorder: sink}, nil)

	core.Initialize(context.Background())
	first := sink.count()
	if first == 0 {
		t.Fatal("probe-less initialize should surface warnings")
	}

	core.Reset()
	if got := core.State(); got != (SystemState{}) {
		t.Fatalf("reset must clear the awareness state, got %+v", got)
	}

	core.Initialize(context.Background())
	if got := sink.count(); got <= first {
		t.Fatalf("initialize after reset must re-run the phases: %d warnings before, %d after", first, got)
	}
	if core.State().Self != scoreDegraded {
		t.Fatal("second session must re-score the phases")
	}
}

func TestAutomationBootstrapFromConfig(t *testing.T) {
	core := New(Config{AutomationEnabled: true}, Deps{EngineFactory: testEngineFactory}, nil)
	core.Initialize(context.Background())
	defer core.DisableAutomation(context.Background())

	if !core.AutomationActive() {
		t.Fatal("automation.enabled should activate the engine during Initialize")
	}
	if got := core.State().Automation; got != scoreFull {
		t.Fatalf("automation scalar should score full when active, got %v", got)
	}
}

func TestEnableAutomationWithoutFactoryFails(t *testing.T) {
	core := New(Config{}, Deps{}, nil)
	if core.EnableAutomation(context.Background(), automation.Options{}) {
		t.Fatal("expected false without an engine factory")
	}
	if core.AutomationActive() {
		t.Fatal("engine must stay inactive")
	}
}

func TestDisableAutomationIdleIsNoop(t *testing.T) {
	core := New(Config{}, Deps{}, nil)
	if !core.DisableAutomation(context.Background()) {
		t.Fatal("disabling idle automation should succeed")
	}
}

func TestEnableDigitalIntelligenceRegistersWithEngine(t *testing.T) {
	core := New(Config{}, Deps{EngineFactory: testEngineFactory}, nil)
	ctx := context.Background()

	if !core.EnableAutomation(ctx, automation.Options{}) {
		t.Fatal("enable automation")
	}
	defer core.DisableAutomation(ctx)

	ok := core.EnableDigitalIntelligence(ctx, intelligence.Options{
		AnomalyDetection:   true,
		PredictiveAnalysis: true,
	})
	if !ok {
		t.Fatal("enable digital intelligence")
	}
	if core.IntelligenceQuotient() <= iqBase {
		t.Fatal("quotient should rise once pathways are initialized")
	}
}

func TestQuotientWeights(t *testing.T) {
	base := SystemState{Environmental: 1, Network: 1, Temporal: 0}
	low := Quotient(base, false, 0, 0)
	base.Temporal = 1
	high := Quotient(base, false, 0, 0)
	if diff := high - low; diff != 25 {
		t.Fatalf("temporal 0->1 must raise the quotient by exactly 25, got %v", diff)
	}
}

func TestQuotientMonotonicInEachInput(t *testing.T) {
	baseline := SystemState{Self: 0.5, Environmental: 0.5, Network: 0.5, Temporal: 0.5}
	before := Quotient(baseline, true, 50, 50)

	bump := []struct {
		name   string
		mutate func(*SystemState)
	}{
		{"environmental", func(s *SystemState) { s.Environmental = 1 }},
		{"network", func(s *SystemState) { s.Network = 1 }},
		{"temporal", func(s *SystemState) { s.Temporal = 1 }},
	}
	for _, tc := range bump {
		state := baseline
		tc.mutate(&state)
		if got := Quotient(state, true, 50, 50); got <= before {
			t.Fatalf("quotient not monotonic in %s: %v <= %v", tc.name, got, before)
		}
	}
	if Quotient(baseline, true, 60, 50) <= before {
		t.Fatal("quotient not monotonic in neural complexity")
	}
	if Quotient(baseline, true, 50, 60) <= before {
		t.Fatal("quotient not monotonic in prediction accuracy")
	}
}
