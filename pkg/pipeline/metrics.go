package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// CounterKey names one of the process-wide pipeline counters
type CounterKey string

const (
	HealthChecksPerformed CounterKey = "health_checks_performed"
	RecoveriesAttempted   CounterKey = "recoveries_attempted"
	RecoveriesSucceeded   CounterKey = "recoveries_succeeded"
	RecoveriesFailed      CounterKey = "recoveries_failed"
	ItemsProcessed        CounterKey = "items_processed"
	ItemsAnswered         CounterKey = "items_answered"
	ItemsDropped          CounterKey = "items_dropped"
	ItemsFailed           CounterKey = "items_failed"
	QueueOverflows        CounterKey = "queue_overflows"
)

// AllCounters lists every counter in report order
var AllCounters = []CounterKey{
	HealthChecksPerformed,
	RecoveriesAttempted,
	RecoveriesSucceeded,
	RecoveriesFailed,
	ItemsProcessed,
	ItemsAnswered,
	ItemsDropped,
	ItemsFailed,
	QueueOverflows,
}

// Metrics holds monotonically increasing counters. Every key exists from
// construction so increments never take a lock.
type Metrics struct {
	counters map[CounterKey]*atomic.Int64
}

// NewMetrics creates a counter set with every key at zero
func NewMetrics() *Metrics {
	m := &Metrics{counters: make(map[CounterKey]*atomic.Int64, len(AllCounters))}
	for _, key := range AllCounters {
		m.counters[key] = new(atomic.Int64)
	}
	return m
}

// Inc increments a counter by 1
func (m *Metrics) Inc(key CounterKey) {
	m.Add(key, 1)
}

// Add increments a counter by delta. Negative deltas are ignored.
func (m *Metrics) Add(key CounterKey, delta int64) {
	if delta < 0 {
		return
	}
	if c, ok := m.counters[key]; ok {
		c.Add(delta)
	}
}

// Get returns the current value of a counter
func (m *Metrics) Get(key CounterKey) int64 {
	if c, ok := m.counters[key]; ok {
		return c.Load()
	}
	return 0
}

// Snapshot returns a copy of every counter
func (m *Metrics) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(m.counters))
	for key, c := range m.counters {
		out[string(key)] = c.Load()
	}
	return out
}

// LatencyStats summarizes the call latency of one stage in milliseconds
type LatencyStats struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"min_ms"`
	MaxMs  float64 `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	LastMs float64 `json:"last_ms"`

	sumMs float64
}

func (s *LatencyStats) observe(latency time.Duration) {
	ms := float64(latency.Nanoseconds()) / 1e6
	if s.Count == 0 || ms < s.MinMs {
		s.MinMs = ms
	}
	if ms > s.MaxMs {
		s.MaxMs = ms
	}
	s.Count++
	s.sumMs += ms
	s.AvgMs = s.sumMs / float64(s.Count)
	s.LastMs = ms
}

// RecoveryTally counts the recovery attempts of one component
type RecoveryTally struct {
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// CollectorSnapshot is a copy of everything the collector has seen.
// Errors are keyed by component, state changes by "from->to".
type CollectorSnapshot struct {
	StageLatency   map[string]LatencyStats  `json:"stage_latency"`
	StageErrors    map[string]int64         `json:"stage_errors"`
	Recoveries     map[string]RecoveryTally `json:"recoveries"`
	QueueHighWater map[string]int           `json:"queue_high_water"`
	StateChanges   map[string]int64         `json:"state_changes"`
	Since          time.Time                `json:"since"`
}

// PipelineMetricsCollector records per stage and per component detail that
// the flat counters do not carry
type PipelineMetricsCollector struct {
	pipelineID string
	logger     Logger

	mu             sync.Mutex
	stageLatency   map[Stage]*LatencyStats
	stageErrors    map[string]int64
	recoveries     map[string]*RecoveryTally
	queueHighWater map[string]int
	stateChanges   map[string]int64
	since          time.Time
}

// NewPipelineMetricsCollector creates an empty collector for one pipeline
func NewPipelineMetricsCollector(pipelineID string, logger Logger) *PipelineMetricsCollector {
	if logger == nil {
		logger = NullLogger()
	}
	return &PipelineMetricsCollector{
		pipelineID:     pipelineID,
		logger:         logger.With(String("component", "metrics")),
		stageLatency:   make(map[Stage]*LatencyStats),
		stageErrors:    make(map[string]int64),
		recoveries:     make(map[string]*RecoveryTally),
		queueHighWater: make(map[string]int),
		stateChanges:   make(map[string]int64),
		since:          time.Now(),
	}
}

// RecordStageLatency records how long a collaborator call took
func (c *PipelineMetricsCollector) RecordStageLatency(stage Stage, latency time.Duration) {
	c.mu.Lock()
	stats, ok := c.stageLatency[stage]
	if !ok {
		stats = &LatencyStats{}
		c.stageLatency[stage] = stats
	}
	stats.observe(latency)
	c.mu.Unlock()

	c.logger.Debug("Recorded stage latency",
		String("stage", string(stage)),
		Duration("latency", latency),
	)
}

// RecordError records a stage failure against the failing component
func (c *PipelineMetricsCollector) RecordError(stage Stage, component string) {
	c.mu.Lock()
	c.stageErrors[component]++
	total := c.stageErrors[component]
	c.mu.Unlock()

	c.logger.Debug("Recorded stage error",
		String("stage", string(stage)),
		String("name", component),
		Int64("total", total),
	)
}

// RecordRecoveryAttempt records the outcome of one recovery attempt
func (c *PipelineMetricsCollector) RecordRecoveryAttempt(component string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tally, ok := c.recoveries[component]
	if !ok {
		tally = &RecoveryTally{}
		c.recoveries[component] = tally
	}
	if success {
		tally.Succeeded++
	} else {
		tally.Failed++
	}
}

// RecordQueueDepth keeps the deepest depth seen for a named queue
func (c *PipelineMetricsCollector) RecordQueueDepth(queue string, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if depth > c.queueHighWater[queue] {
		c.queueHighWater[queue] = depth
	}
}

// RecordStateChange counts a pipeline state transition
func (c *PipelineMetricsCollector) RecordStateChange(from, to PipelineState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateChanges[from.String()+"->"+to.String()]++
}

// Snapshot returns a copy of the collected detail
func (c *PipelineMetricsCollector) Snapshot() CollectorSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := CollectorSnapshot{
		StageLatency:   make(map[string]LatencyStats, len(c.stageLatency)),
		StageErrors:    make(map[string]int64, len(c.stageErrors)),
		Recoveries:     make(map[string]RecoveryTally, len(c.recoveries)),
		QueueHighWater: make(map[string]int, len(c.queueHighWater)),
		StateChanges:   make(map[string]int64, len(c.stateChanges)),
		Since:          c.since,
	}
	for stage, stats := range c.stageLatency {
		snapshot.StageLatency[string(stage)] = *stats
	}
	for name, count := range c.stageErrors {
		snapshot.StageErrors[name] = count
	}
	for name, tally := range c.recoveries {
		snapshot.Recoveries[name] = *tally
	}
	for queue, depth := range c.queueHighWater {
		snapshot.QueueHighWater[queue] = depth
	}
	for change, count := range c.stateChanges {
		snapshot.StateChanges[change] = count
	}
	return snapshot
}
