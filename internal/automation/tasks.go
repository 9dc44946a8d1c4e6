package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/CryptoStream-Network/stream_layer/pkg/cryptoutil"
)

// Default platform tasks. Handlers delegate to collaborators attached via
// the With* setters; without one they log and skip, so a partially wired
// deployment still runs.
const (
	TaskHealthMonitor  = "health-monitor"
	TaskGasMonitor     = "gas-monitor"
	TaskStreamMonitor  = "stream-monitor"
	TaskContentPinning = "content-pinning"
)

func (e *Engine) registerDefaults() {
	defaults := []Task{
		{
			ID:       TaskHealthMonitor,
			Schedule: Every(15 * time.Minute),
			Handler:  e.runHealthMonitor,
		},
		{
			ID:       TaskGasMonitor,
			Schedule: Every(5 * time.Minute),
			Handler:  e.runGasMonitor,
			Options:  TaskOptions{NetworkKB: 16},
		},
		{
			ID:       TaskStreamMonitor,
			Schedule: Every(10 * time.Minute),
			Handler:  e.runStreamMonitor,
		},
		{
			ID:       TaskContentPinning,
			Schedule: Every(2 * time.Hour),
			Handler:  e.runContentPinning,
			Options:  TaskOptions{Timeout: 10 * time.Minute},
		},
	}
	for _, t := range defaults {
		// Only programming errors can fail here; the schedules are fixed.
		if err := e.RegisterTask(t); err != nil {
			e.log.WithError(err).WithField("task_id", t.ID).Error("register default task")
		}
	}
}

func (e *Engine) runHealthMonitor(ctx context.Context) error {
	e.mu.Lock()
	check := e.health
	e.mu.Unlock()
	if check == nil {
		e.log.Debug("health monitor skipped; no health check configured")
		return nil
	}
	if err := check(ctx); err != nil {
		return err
	}
	e.log.Debug("health monitor passed")
	return nil
}

func (e *Engine) runGasMonitor(ctx context.Context) error {
	e.mu.Lock()
	fetcher := e.gas
	e.mu.Unlock()
	if fetcher == nil {
		e.log.Debug("gas monitor skipped; no fetcher configured")
		return nil
	}
	price, err := fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	e.log.WithField("gas_price", price).Info("gas price observed")
	return nil
}

func (e *Engine) runStreamMonitor(ctx context.Context) error {
	e.mu.Lock()
	streaming := e.streaming
	e.mu.Unlock()
	if streaming == nil {
		e.log.Debug("stream monitor skipped; no streaming store configured")
		return nil
	}
	active, err := streaming.ActiveStreams(ctx)
	if err != nil {
		return err
	}
	e.log.WithField("active_streams", active).Info("stream activity observed")
	e.ingestSample("streams", fmt.Sprintf(
		`{"type":"stream-activity","active_streams":%d,"at":%q}`,
		active, time.Now().UTC().Format(time.RFC3339),
	))
	return nil
}

func (e *Engine) runContentPinning(ctx context.Context) error {
	e.mu.Lock()
	content := e.content
	e.mu.Unlock()
	if content == nil {
		e.log.Debug("content pinning skipped; no content store configured")
		return nil
	}
	unpinned, err := content.UnpinnedContent(ctx)
	if err != nil {
		return err
	}
	for _, id := range unpinned {
		// Each pin moves content onto local storage; reserve disk budget
		// so pinning cannot starve the host.
		if err := e.ReserveDisk(ctx, 256); err != nil {
			return err
		}
		if err := content.Pin(ctx, id); err != nil {
			return err
		}
		// The on-chain content address is the Keccak-256 digest of the ID.
		address := cryptoutil.Keccak256Hex([]byte(id))
		e.log.WithField("content_id", id).WithField("address", address).Info("content pinned")
		e.ingestSample("content", fmt.Sprintf(
			`{"type":"content-pinned","content_id":%q,"address":%q}`, id, address,
		))
	}
	return nil
}

// ingestSample feeds a stream event to the intelligence module when one is
// registered and accepting. Rejections are expected (module inactive,
// stream not connected) and only logged at debug.
func (e *Engine) ingestSample(stream, payload string) {
	e.mu.Lock()
	intel := e.intel
	e.mu.Unlock()
	if intel == nil {
		return
	}
	if err := intel.IngestSample(stream, []byte(payload)); err != nil {
		e.log.WithError(err).WithField("stream", stream).Debug("stream sample not ingested")
	}
}
