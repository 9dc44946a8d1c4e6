// Package automation runs schedule-driven background tasks under the
// resource constraints derived from the host probe. Firing is driven by
// robfig/cron; execution goes through a bounded FIFO queue consumed by a
// fixed worker pool, so concurrency never exceeds the derived ceiling.
package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/CryptoStream-Network/stream_layer/internal/intelligence"
	"github.com/CryptoStream-Network/stream_layer/internal/journal"
	"github.com/CryptoStream-Network/stream_layer/internal/resource"
	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// ErrStopped is returned when an operation requires a running engine.
var ErrStopped = errors.New("automation: engine not running")

// Handler is a task body. The context carries the task timeout.
type Handler func(ctx context.Context) error

// TaskOptions tune one task's execution.
type TaskOptions struct {
	// Timeout bounds one execution. Zero means the engine default.
	Timeout time.Duration
	// NetworkKB and DiskKB are the I/O budgets reserved from the engine
	// governor before the handler runs. Zero reserves nothing.
	NetworkKB int
	DiskKB    int
}

// Task is a registered automation task. Duplicate IDs overwrite.
type Task struct {
	ID       string
	Schedule Schedule
	Handler  Handler
	Options  TaskOptions
}

// Options configure the engine. Zero fields keep the current value when
// merged via Configure.
type Options struct {
	// MaxConcurrentTasks overrides the probed worker bound when positive.
	MaxConcurrentTasks int
	// QueueCapacity bounds the FIFO dispatch queue.
	QueueCapacity int
	// DefaultTimeout applies to tasks without their own.
	DefaultTimeout time.Duration
}

const (
	defaultQueueCapacity = 64
	defaultTaskTimeout   = 2 * time.Minute
)

// GasFetcher supplies the current gas price for the gas monitor task.
type GasFetcher interface {
	Fetch(ctx context.Context) (float64, error)
}

// StreamActivity reports the number of live streams for the stream monitor.
type StreamActivity interface {
	ActiveStreams(ctx context.Context) (int, error)
}

// ContentPinner exposes the pinning surface for the content-pinning task.
type ContentPinner interface {
	UnpinnedContent(ctx context.Context) ([]string, error)
	Pin(ctx context.Context, contentID string) error
}

// Metrics receives execution telemetry. Nil-safe no-op by default.
type Metrics interface {
	TaskExecuted(taskID string, success bool, d time.Duration)
	TaskDropped(taskID string)
	QueueDepth(n int)
}

type noopMetrics struct{}

func (noopMetrics) TaskExecuted(string, bool, time.Duration) {}
func (noopMetrics) TaskDropped(string)                       {}
func (noopMetrics) QueueDepth(int)                           {}

// Engine is the resource-bounded task scheduler.
type Engine struct {
	log         *logger.Logger
	constraints resource.Constraints
	journal     journal.Store
	metrics     Metrics

	netLimiter  *rate.Limiter
	diskLimiter *rate.Limiter

	mu      sync.Mutex
	opts    Options
	tasks   map[string]Task
	intel   *intelligence.Module
	running bool
	stopped bool // set during Stop; gates handler invocation
	cron    *cron.Cron
	queue   chan string
	workers sync.WaitGroup

	streaming StreamActivity
	content   ContentPinner
	gas       GasFetcher
	health    func(ctx context.Context) error
}

// New creates an engine bounded by the given constraints and registers the
// default platform tasks. A nil journal falls back to the in-memory store.
func New(constraints resource.Constraints, store journal.Store, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewDefault("automation")
	}
	if store == nil {
		store = journal.NewMemoryStore()
	}
	e := &Engine{
		log:         log,
		constraints: constraints,
		journal:     store,
		metrics:     noopMetrics{},
		opts: Options{
			QueueCapacity:  defaultQueueCapacity,
			DefaultTimeout: defaultTaskTimeout,
		},
		tasks:       make(map[string]Task),
		netLimiter:  newKBLimiter(constraints.NetworkRateLimitKBps),
		diskLimiter: newKBLimiter(constraints.DiskIOLimitKBps),
	}
	e.registerDefaults()
	return e
}

func newKBLimiter(kbps float64) *rate.Limiter {
	if kbps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(kbps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(kbps), burst)
}

// Configure merges partial options. Running tasks are not restarted; the
// worker bound and queue capacity take effect on the next Start.
func (e *Engine) Configure(opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if opts.MaxConcurrentTasks > 0 {
		e.opts.MaxConcurrentTasks = opts.MaxConcurrentTasks
	}
	if opts.QueueCapacity > 0 {
		e.opts.QueueCapacity = opts.QueueCapacity
	}
	if opts.DefaultTimeout > 0 {
		e.opts.DefaultTimeout = opts.DefaultTimeout
	}
}

// WithMetrics attaches a telemetry sink.
func (e *Engine) WithMetrics(m Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m != nil {
		e.metrics = m
	}
}

// WithStreamingStore attaches the stream-activity collaborator.
func (e *Engine) WithStreamingStore(s StreamActivity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streaming = s
}

// WithContentStore attaches the pinning collaborator.
func (e *Engine) WithContentStore(c ContentPinner) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.content = c
}

// WithGasFetcher attaches the gas price source.
func (e *Engine) WithGasFetcher(g GasFetcher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gas = g
}

// WithHealthCheck attaches the health probe consulted by the health task.
func (e *Engine) WithHealthCheck(fn func(ctx context.Context) error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.health = fn
}

// RegisterIntelligence attaches the digital-intelligence module so task
// outcomes feed its observation stream. Scheduling semantics do not change.
func (e *Engine) RegisterIntelligence(m *intelligence.Module) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intel = m
}

// RegisterTask inserts or overwrites a task by ID. The schedule is
// validated here so a malformed expression fails at registration.
func (e *Engine) RegisterTask(t Task) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("task id is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("task %s: handler is required", t.ID)
	}
	if err := t.Schedule.Validate(); err != nil {
		return fmt.Errorf("task %s: %w", t.ID, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, exists := e.tasks[t.ID]
	if exists {
		e.log.WithField("task_id", t.ID).Debug("overwriting registered task")
	}
	e.tasks[t.ID] = t
	if e.running && !exists {
		// New tasks are armed immediately. Overwrites keep the existing
		// firing entry; dispatch resolves the current handler by ID, and a
		// changed schedule takes effect on the next Start.
		sched, err := t.Schedule.cronSchedule()
		if err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
		id := t.ID
		e.cron.Schedule(sched, cron.FuncJob(func() { e.enqueue(id) }))
	}
	return nil
}

// TaskIDs lists registered tasks in stable order.
func (e *Engine) TaskIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.tasks))
	for id := range e.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start arms every registered task and launches the worker pool. Idempotent
// while running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	workers := e.opts.MaxConcurrentTasks
	if workers <= 0 {
		workers = e.constraints.MaxConcurrentTasks
	}
	if workers <= 0 {
		workers = 1
	}

	e.queue = make(chan string, e.opts.QueueCapacity)
	e.cron = cron.New()
	e.stopped = false

	for id, t := range e.tasks {
		sched, err := t.Schedule.cronSchedule()
		if err != nil {
			return fmt.Errorf("arm task %s: %w", id, err)
		}
		taskID := id
		e.cron.Schedule(sched, cron.FuncJob(func() { e.enqueue(taskID) }))
	}

	for i := 0; i < workers; i++ {
		e.workers.Add(1)
		go e.worker(e.queue)
	}

	e.cron.Start()
	e.running = true
	e.log.WithField("tasks", len(e.tasks)).
		WithField("workers", workers).
		WithField("queue_capacity", e.opts.QueueCapacity).
		Info("automation engine started")
	return nil
}

// Stop halts firing and waits for in-flight executions. After Stop returns
// no handler is invoked again: queued-but-unstarted firings are discarded.
// The context bounds the wait.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.stopped = true
	cronRunner := e.cron
	queue := e.queue
	e.mu.Unlock()

	// Stop firing first; enqueue rejects once running is false, so closing
	// the queue afterwards cannot race a send.
	<-cronRunner.Stop().Done()
	close(queue)

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.workers.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("await in-flight tasks: %w", ctx.Err())
	}

	e.log.Info("automation engine stopped")
	return nil
}

// RunTaskNow executes a registered task immediately, outside its schedule.
// Used by the admin API.
func (e *Engine) RunTaskNow(ctx context.Context, id string) error {
	e.mu.Lock()
	t, ok := e.tasks[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %q is not registered", id)
	}
	return e.execute(ctx, t)
}

// ReserveNetwork blocks until the given network budget (KB) is available.
func (e *Engine) ReserveNetwork(ctx context.Context, kb int) error {
	return e.netLimiter.WaitN(ctx, kb)
}

// ReserveDisk blocks until the given disk budget (KB) is available.
func (e *Engine) ReserveDisk(ctx context.Context, kb int) error {
	return e.diskLimiter.WaitN(ctx, kb)
}

// Constraints returns the ceilings this engine runs under.
func (e *Engine) Constraints() resource.Constraints {
	return e.constraints
}

func (e *Engine) enqueue(id string) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	queue := e.queue
	e.mu.Unlock()

	select {
	case queue <- id:
		e.metrics.QueueDepth(len(queue))
	default:
		e.metrics.TaskDropped(id)
		e.log.WithField("task_id", id).Warn("dispatch queue full; firing dropped")
	}
}

func (e *Engine) worker(queue <-chan string) {
	defer e.workers.Done()
	for id := range queue {
		e.mu.Lock()
		stopped := e.stopped
		t, ok := e.tasks[id]
		e.mu.Unlock()
		if stopped || !ok {
			continue
		}
		if err := e.execute(context.Background(), t); err != nil {
			e.log.WithError(err).WithField("task_id", id).Warn("task execution failed")
		}
	}
}

func (e *Engine) execute(ctx context.Context, t Task) error {
	timeout := t.Options.Timeout
	if timeout <= 0 {
		e.mu.Lock()
		timeout = e.opts.DefaultTimeout
		e.mu.Unlock()
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if t.Options.NetworkKB > 0 {
		if err := e.ReserveNetwork(runCtx, t.Options.NetworkKB); err != nil {
			return fmt.Errorf("task %s: reserve network budget: %w", t.ID, err)
		}
	}
	if t.Options.DiskKB > 0 {
		if err := e.ReserveDisk(runCtx, t.Options.DiskKB); err != nil {
			return fmt.Errorf("task %s: reserve disk budget: %w", t.ID, err)
		}
	}

	started := time.Now().UTC()
	err := t.Handler(runCtx)
	finished := time.Now().UTC()

	rec := journal.Record{
		TaskID:     t.ID,
		StartedAt:  started,
		FinishedAt: finished,
		Success:    err == nil,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if _, jerr := e.journal.RecordExecution(ctx, rec); jerr != nil {
		e.log.WithError(jerr).WithField("task_id", t.ID).Warn("record task execution")
	}

	e.metrics.TaskExecuted(t.ID, err == nil, finished.Sub(started))

	e.mu.Lock()
	intel := e.intel
	e.mu.Unlock()
	if intel != nil {
		intel.Observe(intelligence.Observation{
			TaskID:   t.ID,
			Success:  err == nil,
			Duration: finished.Sub(started),
			At:       finished,
		})
	}

	return err
}
