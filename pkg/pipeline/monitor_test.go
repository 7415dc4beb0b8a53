package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthMonitor_RunOnceReportsResults(t *testing.T) {
	registry := NewHealthRegistry(false, 4, NullLogger())
	metrics := NewMetrics()
	monitor := NewHealthMonitor(registry, HealthConfig{CheckInterval: time.Hour, CheckTimeout: time.Second}, metrics, NullLogger())

	require.NoError(t, monitor.Register("up", func(context.Context) bool { return true }))
	require.NoError(t, monitor.Register("down", func(context.Context) bool { return false }))
	require.NoError(t, monitor.Register("passive", nil))

	results := monitor.RunOnce(context.Background())
	require.Len(t, results, 2)

	up, _ := registry.Get("up")
	down, _ := registry.Get("down")
	passive, _ := registry.Get("passive")

	assert.Equal(t, StatusHealthy, up.Status)
	assert.Equal(t, StatusFailed, down.Status)
	assert.Equal(t, "liveness check failed", down.LastError)
	assert.Equal(t, StatusUnknown, passive.Status)
	assert.Equal(t, int64(2), metrics.Get(HealthChecksPerformed))
}

func TestHealthMonitor_PanickingProbeIsIsolated(t *testing.T) {
	registry := NewHealthRegistry(false, 4, NullLogger())
	monitor := NewHealthMonitor(registry, HealthConfig{CheckInterval: time.Hour, CheckTimeout: time.Second}, nil, NullLogger())

	require.NoError(t, monitor.Register("broken", func(context.Context) bool { panic("probe exploded") }))
	require.NoError(t, monitor.Register("fine", func(context.Context) bool { return true }))

	assert.NotPanics(t, func() { monitor.RunOnce(context.Background()) })

	broken, _ := registry.Get("broken")
	fine, _ := registry.Get("fine")
	assert.Equal(t, StatusFailed, broken.Status)
	assert.Contains(t, broken.LastError, "probe exploded")
	assert.Equal(t, StatusHealthy, fine.Status)
}

func TestHealthMonitor_SlowProbeTimesOut(t *testing.T) {
	registry := NewHealthRegistry(false, 4, NullLogger())
	monitor := NewHealthMonitor(registry, HealthConfig{CheckInterval: time.Hour, CheckTimeout: 20 * time.Millisecond}, nil, NullLogger())

	block := make(chan struct{})
	defer close(block)
	require.NoError(t, monitor.Register("slow", func(ctx context.Context) bool {
		<-block
		return true
	}))
	require.NoError(t, monitor.Register("fast", func(context.Context) bool { return true }))

	start := time.Now()
	monitor.RunOnce(context.Background())
	assert.Less(t, time.Since(start), time.Second)

	slow, _ := registry.Get("slow")
	fast, _ := registry.Get("fast")
	assert.Equal(t, StatusFailed, slow.Status)
	assert.Contains(t, slow.LastError, "timed out")
	assert.Equal(t, StatusHealthy, fast.Status)
}

func TestHealthMonitor_DuplicateRegistration(t *testing.T) {
	registry := NewHealthRegistry(false, 4, NullLogger())
	monitor := NewHealthMonitor(registry, HealthConfig{CheckInterval: time.Hour}, nil, NullLogger())

	require.NoError(t, monitor.Register("capture", nil))
	assert.ErrorIs(t, monitor.Register("capture", nil), ErrDuplicateComponent)
}

func TestHealthMonitor_LoopTicksUntilStopped(t *testing.T) {
	registry := NewHealthRegistry(false, 4, NullLogger())
	metrics := NewMetrics()
	monitor := NewHealthMonitor(registry, HealthConfig{CheckInterval: 5 * time.Millisecond, CheckTimeout: time.Second}, metrics, NullLogger())

	var calls atomic.Int32
	require.NoError(t, monitor.Register("capture", func(context.Context) bool {
		calls.Add(1)
		return true
	}))

	monitor.Start(context.Background())
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	monitor.Stop()
	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}

// A failing capture probe leads to one recovery attempt after a single tick.
func TestHealthMonitor_TickTriggersRecovery(t *testing.T) {
	registry := NewHealthRegistry(true, 8, NullLogger())
	metrics := NewMetrics()
	monitor := NewHealthMonitor(registry, HealthConfig{CheckInterval: time.Hour, CheckTimeout: time.Second}, metrics, NullLogger())
	engine := NewRecoveryEngine(registry, RecoveryConfig{MaxAttempts: 3}, metrics, nil, NullLogger())

	require.NoError(t, monitor.Register("capture", func(context.Context) bool { return false }))
	require.NoError(t, engine.RegisterStrategy("capture", func(context.Context) bool { return false }))

	ctx := context.Background()
	monitor.RunOnce(ctx)
	engine.ProcessPending(ctx)

	rec, _ := registry.Get("capture")
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, int64(1), metrics.Get(RecoveriesAttempted))
}

// With a strategy that never succeeds, the fourth tick no longer invokes it.
func TestHealthMonitor_RecoveryCappedAfterMaxAttempts(t *testing.T) {
	registry := NewHealthRegistry(true, 8, NullLogger())
	metrics := NewMetrics()
	monitor := NewHealthMonitor(registry, HealthConfig{CheckInterval: time.Hour, CheckTimeout: time.Second}, metrics, NullLogger())
	engine := NewRecoveryEngine(registry, RecoveryConfig{MaxAttempts: 3}, metrics, nil, NullLogger())

	var invoked atomic.Int32
	require.NoError(t, monitor.Register("capture", func(context.Context) bool { return false }))
	require.NoError(t, engine.RegisterStrategy("capture", func(context.Context) bool {
		invoked.Add(1)
		return false
	}))

	ctx := context.Background()
	for tick := 1; tick <= 3; tick++ {
		monitor.RunOnce(ctx)
		engine.ProcessPending(ctx)
		assert.Equal(t, int32(tick), invoked.Load())
	}

	monitor.RunOnce(ctx)
	engine.ProcessPending(ctx)
	assert.Equal(t, int32(3), invoked.Load())

	rec, _ := registry.Get("capture")
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, 3, rec.RecoveryAttempts)
	assert.True(t, rec.Exhausted)
}
