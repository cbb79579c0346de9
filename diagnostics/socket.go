// Package diagnostics reports host-side resource pressure a Task's
// receive path depends on, grounded on the teacher's getCPUInfo
// (instance_reporter.go): gopsutil queries for CPU/process info, reshaped
// here around the one thing that actually predicts dropped sweeps on this
// module's receive loop — how full the per-path queues are and how busy
// the host CPU is.
package diagnostics

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// QueueDepthFunc reports the current queue depth for a path index, backed
// by pipeline.Pipeline.QueueDepth.
type QueueDepthFunc func(pathIndex int) int

// Report is a point-in-time snapshot of receive-path health.
type Report struct {
	CPUPercent      float64
	ProcessCPUTimes float64
	QueueDepths     []int
	HighWaterMark   int

	// Saturated is true when any path's queue is at or above highWaterMark,
	// meaning the async drain loop is falling behind the device.
	Saturated bool
}

// Collect samples host CPU usage since the previous sample (a zero interval,
// so it does not block) and the current queue
// depth for each of numPaths paths via depthFn (spec §4.7: "callers should
// watch queue depth to detect drain starvation").
func Collect(ctx context.Context, depthFn QueueDepthFunc, numPaths, highWaterMark int) (Report, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Report{}, fmt.Errorf("diagnostics: cpu sample failed: %w", err)
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	var procCPU float64
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if times, err := proc.TimesWithContext(ctx); err == nil {
			procCPU = times.User + times.System
		}
	}

	depths := make([]int, numPaths)
	saturated := false
	for i := 0; i < numPaths; i++ {
		depths[i] = depthFn(i)
		if highWaterMark > 0 && depths[i] >= highWaterMark {
			saturated = true
		}
	}

	return Report{
		CPUPercent:      cpuPct,
		ProcessCPUTimes: procCPU,
		QueueDepths:     depths,
		HighWaterMark:   highWaterMark,
		Saturated:       saturated,
	}, nil
}
