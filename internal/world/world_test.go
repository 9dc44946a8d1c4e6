package world

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CryptoStream-Network/stream_layer/internal/automation"
	"github.com/CryptoStream-Network/stream_layer/internal/awareness"
	"github.com/CryptoStream-Network/stream_layer/internal/resource"
	"github.com/CryptoStream-Network/stream_layer/internal/stores"
	"github.com/CryptoStream-Network/stream_layer/internal/stores/memory"
)

type failingWallet struct {
	stores.WalletStore
	connectErr error
}

func (f *failingWallet) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	return f.WalletStore.Connect(ctx)
}

type failingStreaming struct {
	stores.StreamingStore
	initErr    error
	cleanupErr error
}

func (f *failingStreaming) Initialize(ctx context.Context) error {
	if f.initErr != nil {
		return f.initErr
	}
	return f.StreamingStore.Initialize(ctx)
}

func (f *failingStreaming) CleanupStreams(ctx context.Context) error {
	if f.cleanupErr != nil {
		return f.cleanupErr
	}
	return f.StreamingStore.CleanupStreams(ctx)
}

func testSubsystems(mem *memory.Store) Subsystems {
	return Subsystems{
		System:    mem,
		UI:        mem,
		Wallet:    mem,
		User:      mem,
		Content:   mem,
		Streaming: mem,
	}
}

func testCore() *awareness.Core {
	return awareness.New(awareness.Config{}, awareness.Deps{Probe: resource.NewProbe(nil)}, nil)
}

func TestRunAllSubsystemsHealthy(t *testing.T) {
	mem := memory.New()
	w := New(testSubsystems(mem), testCore(), Options{}, nil)

	if !w.Run(context.Background(), RunOptions{AutoConnect: false}) {
		t.Fatal("run should succeed")
	}
	defer w.Shutdown(context.Background())

	state := w.State()
	if state.Health != HealthHealthy {
		t.Fatalf("expected healthy, got %s (errors: %+v)", state.Health, state.Errors)
	}
	if len(state.Errors) != 0 {
		t.Fatalf("expected no errors, got %+v", state.Errors)
	}
	if !state.Initialized {
		t.Fatal("expected initialized")
	}
	if state.StartTime == nil {
		t.Fatal("expected start time")
	}

	want := []string{ServiceSystem, ServiceUI, ServiceUser, ServiceContent, ServiceStreaming, ServiceCore}
	if len(state.RunningServices) != len(want) {
		t.Fatalf("expected services %v, got %v", want, state.RunningServices)
	}
	for i, name := range want {
		if state.RunningServices[i] != name {
			t.Fatalf("service order mismatch at %d: expected %v, got %v", i, want, state.RunningServices)
		}
	}
	if !mem.Initialized() {
		t.Fatal("system store should be marked initialized")
	}
}

func TestRunWalletFailureDegrades(t *testing.T) {
	mem := memory.New()
	subs := testSubsystems(mem)
	subs.Wallet = &failingWallet{WalletStore: mem, connectErr: errors.New("rpc unreachable")}
	w := New(subs, testCore(), Options{}, nil)

	if !w.Run(context.Background(), RunOptions{AutoConnect: true}) {
		t.Fatal("run should still report success on a degraded boot")
	}
	defer w.Shutdown(context.Background())

	state := w.State()
	if state.Health != HealthDegraded {
		t.Fatalf("expected degraded, got %s", state.Health)
	}
	if len(state.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %+v", state.Errors)
	}
	if state.Errors[0].Component != ServiceBlockchain {
		t.Fatalf("expected blockchain component, got %s", state.Errors[0].Component)
	}
	if state.Errors[0].Time.IsZero() {
		t.Fatal("error entries must carry a timestamp")
	}
	for _, name := range state.RunningServices {
		if name == ServiceBlockchain {
			t.Fatal("blockchain must not appear in running services after a failed connect")
		}
	}
}

func TestRunSkipsBlockchainWithoutAutoConnect(t *testing.T) {
	mem := memory.New()
	w := New(testSubsystems(mem), testCore(), Options{}, nil)

	if !w.Run(context.Background(), RunOptions{AutoConnect: false}) {
		t.Fatal("run should succeed")
	}
	defer w.Shutdown(context.Background())

	if mem.Connected() {
		t.Fatal("wallet must not connect without auto-connect")
	}
	for _, name := range w.State().RunningServices {
		if name == ServiceBlockchain {
			t.Fatal("blockchain service must be absent")
		}
	}
}

func TestRunSequencingFaultFails(t *testing.T) {
	mem := memory.New()
	subs := testSubsystems(mem)
	subs.Wallet = nil // dereferenced during auto-connect; a fault in the sequence, not a subsystem error
	w := New(subs, testCore(), Options{}, nil)

	if w.Run(context.Background(), RunOptions{AutoConnect: true}) {
		t.Fatal("run must return false when the sequence itself faults")
	}

	state := w.State()
	if state.Health != HealthFailing {
		t.Fatalf("expected failing, got %s", state.Health)
	}
	found := false
	for _, e := range state.Errors {
		if e.Component == "world" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an error tagged with component world, got %+v", state.Errors)
	}
}

func TestShutdownResetsState(t *testing.T) {
	mem := memory.New()
	subs := testSubsystems(mem)
	subs.Streaming = &failingStreaming{StreamingStore: mem, initErr: errors.New("edge down")}
	w := New(subs, testCore(), Options{}, nil)

	if !w.Run(context.Background(), RunOptions{}) {
		t.Fatal("run should succeed")
	}
	if w.State().Health != HealthDegraded {
		t.Fatalf("expected degraded before shutdown, got %s", w.State().Health)
	}

	if err := w.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	state := w.State()
	if state.Initialized {
		t.Fatal("shutdown must reset initialized")
	}
	if state.Health != HealthStarting {
		t.Fatalf("shutdown must reset health to starting, got %s", state.Health)
	}
	if len(state.RunningServices) != 0 || len(state.Errors) != 0 {
		t.Fatalf("shutdown must clear services and errors, got %+v", state)
	}
	if state.StartTime != nil {
		t.Fatal("shutdown must clear the start time")
	}
}

func TestShutdownPropagatesTeardownErrors(t *testing.T) {
	mem := memory.New()
	subs := testSubsystems(mem)
	cleanupErr := errors.New("socket already closed")
	subs.Streaming = &failingStreaming{StreamingStore: mem, cleanupErr: cleanupErr}
	w := New(subs, testCore(), Options{}, nil)

	if !w.Run(context.Background(), RunOptions{}) {
		t.Fatal("run should succeed")
	}

	err := w.Shutdown(context.Background())
	if err == nil {
		t.Fatal("shutdown must propagate teardown errors")
	}
	if !errors.Is(err, cleanupErr) {
		t.Fatalf("expected cleanup error in the join, got %v", err)
	}
	// State resets regardless.
	if got := w.State().Health; got != HealthStarting {
		t.Fatalf("state must reset even on teardown errors, got %s", got)
	}
}

func TestShutdownDisconnectsWallet(t *testing.T) {
	mem := memory.New()
	w := New(testSubsystems(mem), testCore(), Options{}, nil)

	if !w.Run(context.Background(), RunOptions{AutoConnect: true}) {
		t.Fatal("run should succeed")
	}
	if !mem.Connected() {
		t.Fatal("wallet should be connected after auto-connect run")
	}
	if err := w.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if mem.Connected() {
		t.Fatal("shutdown must disconnect an active wallet")
	}
}

func TestStateIsDefensiveCopy(t *testing.T) {
	mem := memory.New()
	w := New(testSubsystems(mem), testCore(), Options{}, nil)
	if !w.Run(context.Background(), RunOptions{}) {
		t.Fatal("run should succeed")
	}
	defer w.Shutdown(context.Background())

	snapshot := w.State()
	snapshot.RunningServices[0] = "tampered"
	snapshot.Errors = append(snapshot.Errors, ComponentError{Component: "tampered"})
	snapshot.Health = HealthFailing
	*snapshot.StartTime = time.Time{}

	fresh := w.State()
	if fresh.RunningServices[0] == "tampered" {
		t.Fatal("caller mutation leaked into internal service list")
	}
	if len(fresh.Errors) != 0 {
		t.Fatal("caller mutation leaked into internal error log")
	}
	if fresh.Health != HealthHealthy {
		t.Fatalf("caller mutation leaked into health: %s", fresh.Health)
	}
	if fresh.StartTime == nil || fresh.StartTime.IsZero() {
		t.Fatal("caller mutation leaked into start time")
	}
}

func TestWalletRefreshTickerStopsOnShutdown(t *testing.T) {
	mem := memory.New()
	w := New(testSubsystems(mem), testCore(), Options{WalletRefreshInterval: 10 * time.Millisecond}, nil)

	if !w.Run(context.Background(), RunOptions{AutoConnect: true}) {
		t.Fatal("run should succeed")
	}
	time.Sleep(50 * time.Millisecond)
	if mem.Refreshes() == 0 {
		t.Fatal("expected background balance refreshes while connected")
	}

	if err := w.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	after := mem.Refreshes()
	time.Sleep(50 * time.Millisecond)
	if got := mem.Refreshes(); got != after {
		t.Fatalf("refresh ticker survived shutdown: %d -> %d", after, got)
	}
}

func TestRunAfterShutdownReactivatesAutomation(t *testing.T) {
	mem := memory.New()
	core := awareness.New(awareness.Config{AutomationEnabled: true}, awareness.Deps{
		Probe: resource.NewProbe(nil),
		EngineFactory: func(context.Context) (*automation.Engine, error) {
			return automation.New(resource.Constraints{MaxConcurrentTasks: 1}, nil, nil), nil
		},
	}, nil)
	w := New(testSubsystems(mem), core, Options{}, nil)
	ctx := context.Background()

	if !w.Run(ctx, RunOptions{}) {
		t.Fatal("first run should succeed")
	}
	if !core.AutomationActive() {
		t.Fatal("automation should activate on the first run")
	}
	if err := w.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if core.AutomationActive() {
		t.Fatal("shutdown must deactivate automation")
	}
	if got := core.State(); got != (awareness.SystemState{}) {
		t.Fatalf("shutdown must clear the awareness state, got %+v", got)
	}

	if !w.Run(ctx, RunOptions{}) {
		t.Fatal("second run should succeed")
	}
	defer w.Shutdown(ctx)

	if !core.AutomationActive() {
		t.Fatal("automation must re-activate on a run after shutdown")
	}
	if w.State().Health != HealthHealthy {
		t.Fatalf("second session should be healthy, got %s", w.State().Health)
	}
	if got := core.State().IntelligenceQuotient; got == 0 {
		t.Fatal("awareness phases must re-run on the second session")
	}
}

func TestShutdownPropagatesAutomationStopError(t *testing.T) {
	mem := memory.New()
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	core := awareness.New(awareness.Config{AutomationEnabled: true}, awareness.Deps{
		Probe: resource.NewProbe(nil),
		EngineFactory: func(context.Context) (*automation.Engine, error) {
			e := automation.New(resource.Constraints{MaxConcurrentTasks: 1}, nil, nil)
			err := e.RegisterTask(automation.Task{
				ID:       "blocker",
				Schedule: automation.Every(time.Second),
				Handler: func(context.Context) error {
					once.Do(func() { close(started) })
					<-release
					return nil
				},
			})
			return e, err
		},
	}, nil)
	w := New(testSubsystems(mem), core, Options{}, nil)

	if !w.Run(context.Background(), RunOptions{}) {
		t.Fatal("run should succeed")
	}
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("blocking task never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := w.Shutdown(ctx)
	close(release)
	if err == nil {
		t.Fatal("shutdown must propagate the automation stop error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("teardown error should carry the engine's stop cause, got %v", err)
	}
}

func TestRecordWarningDegradesHealth(t *testing.T) {
	mem := memory.New()
	w := New(testSubsystems(mem), testCore(), Options{}, nil)

	w.RecordWarning("awareness.network", "no bandwidth reading available")
	state := w.State()
	if state.Health != HealthDegraded {
		t.Fatalf("expected degraded after a warning, got %s", state.Health)
	}
	if len(state.Errors) != 1 || state.Errors[0].Component != "awareness.network" {
		t.Fatalf("warning not recorded: %+v", state.Errors)
	}
}
