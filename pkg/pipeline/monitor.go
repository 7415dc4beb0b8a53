package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// HealthMonitor periodically polls liveness probes and reports the results
// to the registry. It is the only passive writer of component status.
type HealthMonitor struct {
	registry *HealthRegistry
	metrics  *Metrics
	interval time.Duration
	timeout  time.Duration
	logger   Logger

	mu     sync.RWMutex
	probes map[string]LivenessProbe

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewHealthMonitor creates a monitor reporting into registry
func NewHealthMonitor(registry *HealthRegistry, config HealthConfig, metrics *Metrics, logger Logger) *HealthMonitor {
	if logger == nil {
		logger = NullLogger()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	interval := config.CheckInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := config.CheckTimeout
	if timeout <= 0 {
		timeout = interval
	}
	return &HealthMonitor{
		registry: registry,
		metrics:  metrics,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With(String("component", "health_monitor")),
		probes:   make(map[string]LivenessProbe),
	}
}

// Register adds a component to the registry and attaches its probe. A nil
// probe registers the component without polling it.
func (m *HealthMonitor) Register(name string, probe LivenessProbe) error {
	if err := m.registry.Register(name); err != nil {
		return err
	}
	if probe == nil {
		return nil
	}

	m.mu.Lock()
	m.probes[name] = probe
	m.mu.Unlock()
	return nil
}

// Start runs the check loop in the background until ctx is cancelled or Stop is called
func (m *HealthMonitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.loop(loopCtx, m.done)
}

// Stop cancels the loop and waits for the current tick to finish
func (m *HealthMonitor) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.running = false
	m.runMu.Unlock()

	cancel()
	<-done
}

func (m *HealthMonitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.logger.Info("Health monitor started", Duration("interval", m.interval))
	defer m.logger.Info("Health monitor stopped")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce checks every probe concurrently and reports each result. A slow
// probe only delays its own result, up to the check timeout.
func (m *HealthMonitor) RunOnce(ctx context.Context) []*HealthResult {
	m.mu.RLock()
	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	probes := make(map[string]LivenessProbe, len(m.probes))
	for name, probe := range m.probes {
		probes[name] = probe
	}
	m.mu.RUnlock()
	sort.Strings(names)

	results := make([]*HealthResult, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = m.check(ctx, name, probes[name])
		}(i, name)
	}
	wg.Wait()

	// results cut short by shutdown say nothing about the components
	if ctx.Err() != nil {
		return results
	}

	for _, result := range results {
		m.metrics.Inc(HealthChecksPerformed)

		var err error
		status := StatusHealthy
		if !result.Healthy {
			status = StatusFailed
			err = fmt.Errorf("%s", result.Message)
		}

		if reportErr := m.registry.ReportStatus(result.Name, status, err); reportErr != nil {
			m.logger.Error("Failed to report health", String("name", result.Name), Error(reportErr))
		}
	}

	return results
}

// check runs a single probe isolated from the others. Panics and timeouts
// become failed results. A probe that ignores ctx keeps its goroutine until it returns.
func (m *HealthMonitor) check(ctx context.Context, name string, probe LivenessProbe) *HealthResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	type outcome struct {
		healthy bool
		message string
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{healthy: false, message: fmt.Sprintf("liveness check panicked: %v", r)}
			}
		}()
		if probe(checkCtx) {
			ch <- outcome{healthy: true, message: "ok"}
			return
		}
		ch <- outcome{healthy: false, message: "liveness check failed"}
	}()

	var result *HealthResult
	select {
	case o := <-ch:
		result = NewHealthResult(name, o.healthy, o.message)
	case <-checkCtx.Done():
		result = NewHealthResult(name, false, fmt.Sprintf("liveness check timed out after %s", m.timeout))
	}
	result.Duration = time.Since(start)

	if !result.Healthy {
		m.logger.Warn("Health check failed",
			String("name", name),
			String("message", result.Message),
			Duration("duration", result.Duration),
		)
	}
	return result
}
