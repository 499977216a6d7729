// stats.go - Operation statistics for the daemon
package main

import (
	"sync"
	"time"
)

// histogramWindow bounds the per-kind duration samples kept in memory.
const histogramWindow = 1000

// DurationSummary aggregates the retained duration samples for one
// operation kind.
type DurationSummary struct {
	Count int     `json:"count"`
	MinMS float64 `json:"minMs"`
	MaxMS float64 `json:"maxMs"`
	AvgMS float64 `json:"avgMs"`
}

// StatsSummary is the /stats response payload.
type StatsSummary struct {
	Started   map[string]int64           `json:"started"`
	Confirmed map[string]int64           `json:"confirmed"`
	Failed    map[string]int64           `json:"failed"`
	Durations map[string]DurationSummary `json:"durations"`
}

// StatsCollector counts operation outcomes per kind and retains a sliding
// window of confirmed-operation durations.
type StatsCollector struct {
	mu        sync.Mutex
	started   map[string]int64
	confirmed map[string]int64
	failed    map[string]int64
	durations map[string][]time.Duration
}

// NewStatsCollector creates an empty collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		started:   make(map[string]int64),
		confirmed: make(map[string]int64),
		failed:    make(map[string]int64),
		durations: make(map[string][]time.Duration),
	}
}

// OperationStarted counts a pipeline start.
func (sc *StatsCollector) OperationStarted(kind string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.started[kind]++
}

// OperationConfirmed counts a confirmed operation and records its duration.
func (sc *StatsCollector) OperationConfirmed(kind string, took time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.confirmed[kind]++
	window := append(sc.durations[kind], took)
	if len(window) > histogramWindow {
		window = window[len(window)-histogramWindow:]
	}
	sc.durations[kind] = window
}

// OperationFailed counts a failed operation.
func (sc *StatsCollector) OperationFailed(kind string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.failed[kind]++
}

// Summary snapshots the collector.
func (sc *StatsCollector) Summary() *StatsSummary {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	summary := &StatsSummary{
		Started:   make(map[string]int64, len(sc.started)),
		Confirmed: make(map[string]int64, len(sc.confirmed)),
		Failed:    make(map[string]int64, len(sc.failed)),
		Durations: make(map[string]DurationSummary, len(sc.durations)),
	}
	for k, v := range sc.started {
		summary.Started[k] = v
	}
	for k, v := range sc.confirmed {
		summary.Confirmed[k] = v
	}
	for k, v := range sc.failed {
		summary.Failed[k] = v
	}
	for kind, samples := range sc.durations {
		if len(samples) == 0 {
			continue
		}
		min, max, sum := samples[0], samples[0], time.Duration(0)
		for _, s := range samples {
			if s < min {
				min = s
			}
			if s > max {
				max = s
			}
			sum += s
		}
		summary.Durations[kind] = DurationSummary{
			Count: len(samples),
			MinMS: float64(min.Microseconds()) / 1000,
			MaxMS: float64(max.Microseconds()) / 1000,
			AvgMS: float64(sum.Microseconds()) / 1000 / float64(len(samples)),
		}
	}
	return summary
}
