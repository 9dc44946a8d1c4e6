package resource

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	gnet "github.com/shirou/gopsutil/v3/net"
)

func TestDeriveHalvesCores(t *testing.T) {
	c := Derive(Readings{CPUCores: 8, MemoryMB: 16384, NetworkKBps: 10240, DiskKBps: 51200})
	if c.MaxConcurrentTasks != 4 {
		t.Fatalf("expected 4 workers for 8 cores, got %d", c.MaxConcurrentTasks)
	}
	if c.MemoryLimitMB != 11468 {
		t.Fatalf("expected 70%% of memory (11468), got %d", c.MemoryLimitMB)
	}
	if c.NetworkRateLimitKBps != 5120 {
		t.Fatalf("expected 50%% of bandwidth, got %f", c.NetworkRateLimitKBps)
	}
	if c.DiskIOLimitKBps != 15360 {
		t.Fatalf("expected 30%% of disk throughput, got %f", c.DiskIOLimitKBps)
	}
}

func TestDeriveNeverZeroWorkers(t *testing.T) {
	for _, cores := range []int{0, 1, 2} {
		c := Derive(Readings{CPUCores: cores})
		if c.MaxConcurrentTasks < 1 {
			t.Fatalf("cores=%d produced %d workers; want at least 1", cores, c.MaxConcurrentTasks)
		}
	}
}

// emptyCounterProbe simulates a container that hides NIC and disk counters:
// the calls succeed but report nothing.
func emptyCounterProbe() *Probe {
	p := NewProbe(nil)
	p.sampleWindow = time.Millisecond
	p.netCounters = func(context.Context) ([]gnet.IOCountersStat, error) { return nil, nil }
	p.diskCounters = func(context.Context) (map[string]disk.IOCountersStat, error) { return nil, nil }
	return p
}

func TestEmptyCountersReportCleanErrors(t *testing.T) {
	p := emptyCounterProbe()

	if _, err := p.sampleNetwork(context.Background()); err == nil {
		t.Fatal("expected an error for empty nic counters")
	} else if strings.Contains(err.Error(), "%!w") {
		t.Fatalf("empty-slice error wraps a nil cause: %v", err)
	}
	if _, err := p.sampleDisk(context.Background()); err == nil {
		t.Fatal("expected an error for empty disk counters")
	} else if strings.Contains(err.Error(), "%!w") {
		t.Fatalf("empty-slice error wraps a nil cause: %v", err)
	}
}

func TestMeasureFallsBackWhenCountersMissing(t *testing.T) {
	p := emptyCounterProbe()

	readings, err := p.Measure(context.Background())
	if err != nil {
		t.Fatalf("measure: %v", err)
	}
	if readings.NetworkKBps != fallbackNetworkKBps {
		t.Fatalf("expected fallback bandwidth, got %f", readings.NetworkKBps)
	}
	if readings.DiskKBps != fallbackDiskKBps {
		t.Fatalf("expected fallback disk throughput, got %f", readings.DiskKBps)
	}
	if readings.CPUCores < 1 || readings.MemoryMB == 0 {
		t.Fatalf("cpu/memory must still be measured: %+v", readings)
	}
}
