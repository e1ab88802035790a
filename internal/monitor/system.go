package monitor

import (
	"context"
	"time"

	gocpu "github.com/shirou/gopsutil/v4/cpu"
	godisk "github.com/shirou/gopsutil/v4/disk"
	gomem "github.com/shirou/gopsutil/v4/mem"
	gonet "github.com/shirou/gopsutil/v4/net"
	"go.uber.org/zap"

	"github.com/healthguard/surveillance/internal/observability/logger"
)

// System call wrappers for testing.
var (
	cpuPercent    = gocpu.PercentWithContext
	virtualMemory = gomem.VirtualMemoryWithContext
	diskUsage     = godisk.UsageWithContext
	netIOCounters = gonet.IOCountersWithContext
)

// Sampler feeds the collector with system samples on a fixed interval.
// Network counters are reported as deltas against a baseline taken at
// construction.
type Sampler struct {
	collector *Collector
	interval  time.Duration
	baseSent  uint64
	baseRecv  uint64
	log       *zap.Logger
}

func NewSampler(ctx context.Context, c *Collector, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	s := &Sampler{
		collector: c,
		interval:  interval,
		log:       logger.Named("monitor.sampler"),
	}
	if sent, recv, err := netTotals(ctx); err == nil {
		s.baseSent, s.baseRecv = sent, recv
	}
	return s
}

// Run samples until ctx is cancelled. Intended as a goroutine.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *Sampler) sample(ctx context.Context) {
	sampleCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sm := SystemSample{At: time.Now()}

	if pct, err := cpuPercent(sampleCtx, 0, false); err == nil && len(pct) > 0 {
		sm.CPUPercent = clampPercent(pct[0])
	} else if err != nil {
		s.log.Debug("cpu sample failed", zap.Error(err))
	}

	if vm, err := virtualMemory(sampleCtx); err == nil {
		sm.MemoryPercent = clampPercent(vm.UsedPercent)
	} else {
		s.log.Debug("memory sample failed", zap.Error(err))
	}

	if du, err := diskUsage(sampleCtx, "/"); err == nil {
		sm.DiskPercent = clampPercent(du.UsedPercent)
	} else {
		s.log.Debug("disk sample failed", zap.Error(err))
	}

	if sent, recv, err := netTotals(sampleCtx); err == nil {
		if sent >= s.baseSent {
			sm.NetSentBytes = sent - s.baseSent
		}
		if recv >= s.baseRecv {
			sm.NetRecvBytes = recv - s.baseRecv
		}
	}

	s.collector.RecordSystemSample(sm)
}

func netTotals(ctx context.Context) (sent, recv uint64, err error) {
	counters, err := netIOCounters(ctx, false)
	if err != nil {
		return 0, 0, err
	}
	for _, c := range counters {
		sent += c.BytesSent
		recv += c.BytesRecv
	}
	return sent, recv, nil
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
