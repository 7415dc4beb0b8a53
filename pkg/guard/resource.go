package guard

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Config sets the resource limits watched by the guard. Zero disables a limit.
type Config struct {
	MaxHeapBytes  uint64 `json:"max_heap_bytes" mapstructure:"max_heap_bytes"`
	MaxGoroutines int    `json:"max_goroutines" mapstructure:"max_goroutines"`
}

// DefaultConfig returns the limits used when none are configured
func DefaultConfig() Config {
	return Config{
		MaxHeapBytes:  512 << 20,
		MaxGoroutines: 10000,
	}
}

// Usage is a point-in-time reading of the process resources
type Usage struct {
	HeapBytes  uint64 `json:"heap_bytes"`
	Goroutines int    `json:"goroutines"`
	NumGC      uint32 `json:"num_gc"`
}

// ResourceGuard is the process self-monitoring component. It is healthy
// while heap and goroutine counts stay under their limits; Restart forces a
// collection and returns memory to the OS.
type ResourceGuard struct {
	config Config
	logger pipeline.Logger
	read   func() Usage

	mu   sync.Mutex
	last Usage
}

// NewResourceGuard creates a guard over the current process
func NewResourceGuard(config Config, logger pipeline.Logger) *ResourceGuard {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &ResourceGuard{
		config: config,
		logger: logger.With(pipeline.String("component", "resource_guard")),
		read:   readUsage,
	}
}

func readUsage() Usage {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Usage{
		HeapBytes:  ms.HeapAlloc,
		Goroutines: runtime.NumGoroutine(),
		NumGC:      ms.NumGC,
	}
}

// Name implements pipeline.SecurityMonitor
func (g *ResourceGuard) Name() string {
	return "resource_guard"
}

// Healthy implements pipeline.HealthChecker
func (g *ResourceGuard) Healthy(context.Context) bool {
	usage := g.sample()
	if err := g.check(usage); err != nil {
		g.logger.Warn("Resource limit exceeded", pipeline.Error(err))
		return false
	}
	return true
}

// Restart implements pipeline.Restarter
func (g *ResourceGuard) Restart(context.Context) error {
	before := g.sample()
	runtime.GC()
	debug.FreeOSMemory()
	after := g.sample()

	g.logger.Info("Freed memory",
		pipeline.Int64("heap_before", int64(before.HeapBytes)),
		pipeline.Int64("heap_after", int64(after.HeapBytes)),
	)
	return g.check(after)
}

// Usage returns the last reading
func (g *ResourceGuard) Usage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func (g *ResourceGuard) sample() Usage {
	usage := g.read()
	g.mu.Lock()
	g.last = usage
	g.mu.Unlock()
	return usage
}

func (g *ResourceGuard) check(usage Usage) error {
	if g.config.MaxHeapBytes > 0 && usage.HeapBytes > g.config.MaxHeapBytes {
		return fmt.Errorf("heap %d bytes over limit %d", usage.HeapBytes, g.config.MaxHeapBytes)
	}
	if g.config.MaxGoroutines > 0 && usage.Goroutines > g.config.MaxGoroutines {
		return fmt.Errorf("%d goroutines over limit %d", usage.Goroutines, g.config.MaxGoroutines)
	}
	return nil
}
