// Package resource measures host capacity and derives the conservative
// operating limits that keep background automation from starving the host.
package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/CryptoStream-Network/stream_layer/pkg/logger"
)

// Readings is a raw snapshot of host capacity.
type Readings struct {
	CPUCores    int
	MemoryMB    uint64
	NetworkKBps float64
	DiskKBps    float64
}

// Constraints are the derived ceilings applied to the automation engine.
// Immutable once computed for an engine instance.
type Constraints struct {
	MaxConcurrentTasks   int
	MemoryLimitMB        uint64
	NetworkRateLimitKBps float64
	DiskIOLimitKBps      float64
}

// Fractions of measured capacity handed to automation. Half the cores,
// 70% of memory, 50% of bandwidth, 30% of disk throughput.
const (
	cpuFraction     = 0.5
	memoryFraction  = 0.7
	networkFraction = 0.5
	diskFraction    = 0.3
)

// Fallbacks when a counter pair cannot be sampled (containers frequently
// hide disk and NIC counters).
const (
	fallbackNetworkKBps = 10 * 1024 // assume a 10 MB/s link
	fallbackDiskKBps    = 50 * 1024 // assume a modest SSD
)

// Derive converts raw readings into operating constraints.
func Derive(r Readings) Constraints {
	workers := int(float64(r.CPUCores) * cpuFraction)
	if workers < 1 {
		workers = 1
	}
	return Constraints{
		MaxConcurrentTasks:   workers,
		MemoryLimitMB:        uint64(float64(r.MemoryMB) * memoryFraction),
		NetworkRateLimitKBps: r.NetworkKBps * networkFraction,
		DiskIOLimitKBps:      r.DiskKBps * diskFraction,
	}
}

// Probe measures the host with gopsutil. Throughput is estimated by
// sampling kernel counters over a short window.
type Probe struct {
	log          *logger.Logger
	sampleWindow time.Duration

	// Counter sources, overridable in tests.
	netCounters  func(ctx context.Context) ([]gnet.IOCountersStat, error)
	diskCounters func(ctx context.Context) (map[string]disk.IOCountersStat, error)
}

// NewProbe creates a host probe. A nil logger falls back to the default.
func NewProbe(log *logger.Logger) *Probe {
	if log == nil {
		log = logger.NewDefault("resource-probe")
	}
	return &Probe{
		log:          log,
		sampleWindow: 250 * time.Millisecond,
		netCounters: func(ctx context.Context) ([]gnet.IOCountersStat, error) {
			return gnet.IOCountersWithContext(ctx, false)
		},
		diskCounters: func(ctx context.Context) (map[string]disk.IOCountersStat, error) {
			return disk.IOCountersWithContext(ctx)
		},
	}
}

// Measure samples host capacity. CPU and memory failures are reported as
// errors since constraints cannot be derived without them; unavailable
// network or disk counters fall back to conservative assumptions.
func (p *Probe) Measure(ctx context.Context) (Readings, error) {
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return Readings{}, fmt.Errorf("count cpu cores: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Readings{}, fmt.Errorf("read memory: %w", err)
	}

	readings := Readings{
		CPUCores: cores,
		MemoryMB: vm.Total / (1024 * 1024),
	}

	netKBps, err := p.sampleNetwork(ctx)
	if err != nil {
		p.log.WithError(err).Warn("network counters unavailable; using fallback bandwidth")
		netKBps = fallbackNetworkKBps
	}
	readings.NetworkKBps = netKBps

	diskKBps, err := p.sampleDisk(ctx)
	if err != nil {
		p.log.WithError(err).Warn("disk counters unavailable; using fallback throughput")
		diskKBps = fallbackDiskKBps
	}
	readings.DiskKBps = diskKBps

	return readings, nil
}

// Constraints measures the host and derives the operating limits in one call.
func (p *Probe) Constraints(ctx context.Context) (Constraints, error) {
	readings, err := p.Measure(ctx)
	if err != nil {
		return Constraints{}, err
	}
	return Derive(readings), nil
}

func (p *Probe) sampleNetwork(ctx context.Context) (float64, error) {
	before, err := p.netCounters(ctx)
	if err != nil {
		return 0, fmt.Errorf("read nic counters: %w", err)
	}
	if len(before) == 0 {
		return 0, fmt.Errorf("no nic counters reported")
	}
	if err := sleepCtx(ctx, p.sampleWindow); err != nil {
		return 0, err
	}
	after, err := p.netCounters(ctx)
	if err != nil {
		return 0, fmt.Errorf("read nic counters: %w", err)
	}
	if len(after) == 0 {
		return 0, fmt.Errorf("no nic counters reported")
	}
	delta := float64(after[0].BytesRecv+after[0].BytesSent) - float64(before[0].BytesRecv+before[0].BytesSent)
	kbps := delta / 1024 / p.sampleWindow.Seconds()
	if kbps <= 0 {
		// An idle link measures zero; assume the fallback capacity.
		return fallbackNetworkKBps, nil
	}
	return kbps, nil
}

func (p *Probe) sampleDisk(ctx context.Context) (float64, error) {
	before, err := p.diskCounters(ctx)
	if err != nil {
		return 0, fmt.Errorf("read disk counters: %w", err)
	}
	if len(before) == 0 {
		return 0, fmt.Errorf("no disk counters reported")
	}
	if err := sleepCtx(ctx, p.sampleWindow); err != nil {
		return 0, err
	}
	after, err := p.diskCounters(ctx)
	if err != nil {
		return 0, fmt.Errorf("read disk counters: %w", err)
	}
	if len(after) == 0 {
		return 0, fmt.Errorf("no disk counters reported")
	}
	var delta float64
	for name, b := range before {
		a, ok := after[name]
		if !ok {
			continue
		}
		delta += float64(a.ReadBytes+a.WriteBytes) - float64(b.ReadBytes+b.WriteBytes)
	}
	kbps := delta / 1024 / p.sampleWindow.Seconds()
	if kbps <= 0 {
		return fallbackDiskKBps, nil
	}
	return kbps, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
