// Package monitor samples host and per-server resource usage and publishes
// it as performance frames.
package monitor

import (
	"context"
	"sort"
	"time"

	"craftdeck/pkg/sdk/events"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessSource reports the pid of every running server.
type ProcessSource interface {
	Running() map[string]int
}

type Publisher interface {
	Publish(frame any)
}

type Sampler struct {
	procs    ProcessSource
	pub      Publisher
	interval time.Duration
	log      zerolog.Logger

	// gopsutil computes cpu percent against the previous call on the same
	// *process.Process, so handles are kept between samples.
	handles map[int32]*process.Process
}

func NewSampler(procs ProcessSource, pub Publisher, interval time.Duration, log zerolog.Logger) *Sampler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Sampler{
		procs:    procs,
		pub:      pub,
		interval: interval,
		log:      log,
		handles:  make(map[int32]*process.Process),
	}
}

// Run publishes a frame every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := s.Sample(ctx)
			if err != nil {
				s.log.Warn().Err(err).Msg("Performance sample failed")
				continue
			}
			s.pub.Publish(frame)
		}
	}
}

func (s *Sampler) Sample(ctx context.Context) (events.PerformanceFrame, error) {
	frame := events.PerformanceFrame{
		Type:         events.FrameProgress,
		ProgressType: events.ProgressPerformance,
		Servers:      []events.WireServerPerformance{},
		Timestamp:    float64(time.Now().UnixNano()) / 1e9,
	}

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return frame, err
	}
	if len(percents) > 0 {
		frame.System.CPU.Usage = percents[0]
	}
	if frame.System.CPU.Count, err = cpu.CountsWithContext(ctx, true); err != nil {
		return frame, err
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return frame, err
	}
	frame.System.Memory.Total = int64(vm.Total)
	frame.System.Memory.Available = int64(vm.Available)

	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		frame.System.Memory.SwapTotal = int64(swap.Total)
		frame.System.Memory.SwapAvailable = int64(swap.Free)
	}

	seen := make(map[int32]bool)
	running := s.procs.Running()
	ids := make([]string, 0, len(running))
	for id := range running {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		stats := s.processTree(ctx, int32(running[id]), seen)
		stats.MemTotal = int64(vm.Total)
		frame.Servers = append(frame.Servers, events.WireServerPerformance{ID: id, JVM: &stats})
	}

	for pid := range s.handles {
		if !seen[pid] {
			delete(s.handles, pid)
		}
	}
	return frame, nil
}

// processTree sums cpu and resident memory over pid and its descendants.
// The launch shell is the direct child, the game usually one level below.
func (s *Sampler) processTree(ctx context.Context, pid int32, seen map[int32]bool) events.WireJVM {
	var stats events.WireJVM

	p, ok := s.handles[pid]
	if !ok {
		var err error
		p, err = process.NewProcessWithContext(ctx, pid)
		if err != nil {
			return stats
		}
		s.handles[pid] = p
	}
	seen[pid] = true

	if pct, err := p.PercentWithContext(ctx, 0); err == nil {
		stats.CPUUsage = pct
	}
	if info, err := p.MemoryInfoWithContext(ctx); err == nil {
		stats.MemUsed = int64(info.RSS)
	}

	children, _ := p.ChildrenWithContext(ctx)
	for _, child := range children {
		sub := s.processTree(ctx, child.Pid, seen)
		stats.CPUUsage += sub.CPUUsage
		stats.MemUsed += sub.MemUsed
	}
	return stats
}
