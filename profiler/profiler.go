// Package profiler - Frame-rate measurement and per-stage timing for the frame loop.
package profiler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// DefaultMaxSamples bounds the samples kept per tracker.
const DefaultMaxSamples = 120

// RateMeter measures the frame rate from the intervals between Tick calls.
type RateMeter struct {
	mu        sync.RWMutex
	last      time.Time
	intervals []float64
	max       int
	now       func() time.Time
}

// NewRateMeter creates a RateMeter averaging over the last maxSamples intervals.
//
// Arguments:
//   - maxSamples: Window size; values < 2 use DefaultMaxSamples.
//
// Returns:
//   - *RateMeter: The meter, with no measurement yet.
func NewRateMeter(maxSamples int) *RateMeter {
	if maxSamples < 2 {
		maxSamples = DefaultMaxSamples
	}
	return &RateMeter{
		intervals: make([]float64, 0, maxSamples),
		max:       maxSamples,
		now:       time.Now,
	}
}

// Tick marks the start of a frame.
func (r *RateMeter) Tick() {
	r.TickAt(r.now())
}

// TickAt marks the start of a frame at t.
func (r *RateMeter) TickAt(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.last.IsZero() {
		if d := t.Sub(r.last).Seconds(); d > 0 {
			r.intervals = append(r.intervals, d)
			if len(r.intervals) > r.max {
				r.intervals = r.intervals[1:]
			}
		}
	}
	r.last = t
}

// FPS returns the measured frame rate, or 0 before two ticks.
func (r *RateMeter) FPS() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.intervals) == 0 {
		return 0
	}
	mean := stat.Mean(r.intervals, nil)
	if mean <= 0 {
		return 0
	}
	return 1 / mean
}

// Jitter returns the standard deviation of the frame interval.
func (r *RateMeter) Jitter() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.intervals) < 2 {
		return 0
	}
	return time.Duration(stat.StdDev(r.intervals, nil) * float64(time.Second))
}

// Reset forgets every measurement, e.g. after a device switch.
func (r *RateMeter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = time.Time{}
	r.intervals = r.intervals[:0]
}

// StageStats summarizes the recorded durations of one stage.
type StageStats struct {
	Name   string        `json:"name"`
	Count  int64         `json:"count"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stddev"`
	P95    time.Duration `json:"p95"`
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
}

// timeTracker tracks timing samples of one stage.
type timeTracker struct {
	samples []float64
	count   int64
	minTime time.Duration
	maxTime time.Duration
}

// StageTimer records how long each named stage of the frame loop takes.
type StageTimer struct {
	mu         sync.Mutex
	stages     map[string]*timeTracker
	maxSamples int
	logger     *zap.Logger
}

// NewStageTimer creates a StageTimer.
//
// Arguments:
//   - maxSamples: Samples kept per stage; values < 1 use DefaultMaxSamples.
//   - logger: Destination of Report; nil disables it.
//
// Returns:
//   - *StageTimer: The timer.
func NewStageTimer(maxSamples int, logger *zap.Logger) *StageTimer {
	if maxSamples < 1 {
		maxSamples = DefaultMaxSamples
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StageTimer{
		stages:     make(map[string]*timeTracker),
		maxSamples: maxSamples,
		logger:     logger.Named("profiler"),
	}
}

// Start begins timing a stage.
//
// Arguments:
//   - name: The stage name.
//
// Returns:
//   - func(): Call when the stage completes.
func (st *StageTimer) Start(name string) func() {
	start := time.Now()
	return func() {
		st.Record(name, time.Since(start))
	}
}

// Record adds one duration for the stage name.
func (st *StageTimer) Record(name string, d time.Duration) {
	st.mu.Lock()
	defer st.mu.Unlock()

	tracker, exists := st.stages[name]
	if !exists {
		tracker = &timeTracker{minTime: d, maxTime: d}
		st.stages[name] = tracker
	}

	tracker.samples = append(tracker.samples, float64(d))
	if len(tracker.samples) > st.maxSamples {
		tracker.samples = tracker.samples[1:]
	}
	tracker.count++
	if d < tracker.minTime {
		tracker.minTime = d
	}
	if d > tracker.maxTime {
		tracker.maxTime = d
	}
}

// Stats returns the statistics of every stage, sorted by name.
func (st *StageTimer) Stats() []StageStats {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]StageStats, 0, len(st.stages))
	for name, tracker := range st.stages {
		sorted := append([]float64(nil), tracker.samples...)
		sort.Float64s(sorted)

		s := StageStats{
			Name:  name,
			Count: tracker.count,
			Mean:  time.Duration(stat.Mean(sorted, nil)),
			P95:   time.Duration(stat.Quantile(0.95, stat.Empirical, sorted, nil)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
		}
		if len(sorted) > 1 {
			s.StdDev = time.Duration(stat.StdDev(sorted, nil))
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Report logs the statistics of every stage at debug level.
func (st *StageTimer) Report() {
	for _, s := range st.Stats() {
		st.logger.Debug("stage timing",
			zap.String("stage", s.Name),
			zap.Int64("count", s.Count),
			zap.Duration("mean", s.Mean),
			zap.Duration("stddev", s.StdDev),
			zap.Duration("p95", s.P95),
			zap.Duration("min", s.Min),
			zap.Duration("max", s.Max),
		)
	}
}
