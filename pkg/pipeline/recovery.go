package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// GiveUpHandler is called once when a component exhausts its recovery episode
type GiveUpHandler func(name string, attempts int)

// RecoveryEngine applies the retry policy for failed components. It knows
// nothing about what a recovery action does.
type RecoveryEngine struct {
	registry    *HealthRegistry
	metrics     *Metrics
	collector   *PipelineMetricsCollector
	events      *EventLog
	maxAttempts int
	cooldown    time.Duration
	logger      Logger

	mu          sync.Mutex
	strategies  map[string]RecoveryAction
	lastAttempt map[string]time.Time
	inFlight    map[string]bool
	deferred    map[string]*time.Timer
	onGiveUp    []GiveUpHandler

	wg sync.WaitGroup
}

// NewRecoveryEngine creates an engine bound to a registry
func NewRecoveryEngine(registry *HealthRegistry, config RecoveryConfig, metrics *Metrics, events *EventLog, logger Logger) *RecoveryEngine {
	if logger == nil {
		logger = NullLogger()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RecoveryEngine{
		registry:    registry,
		metrics:     metrics,
		events:      events,
		maxAttempts: maxAttempts,
		cooldown:    config.Cooldown,
		logger:      logger.With(String("component", "recovery_engine")),
		strategies:  make(map[string]RecoveryAction),
		lastAttempt: make(map[string]time.Time),
		inFlight:    make(map[string]bool),
		deferred:    make(map[string]*time.Timer),
	}
}

// SetCollector attaches a tagged metrics collector
func (e *RecoveryEngine) SetCollector(collector *PipelineMetricsCollector) {
	e.collector = collector
}

// RegisterStrategy binds a recovery action to a component name. Strategies
// are registered once at startup.
func (e *RecoveryEngine) RegisterStrategy(name string, action RecoveryAction) error {
	if action == nil {
		return fmt.Errorf("nil recovery action for %s", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.strategies[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	e.strategies[name] = action
	return nil
}

// HasStrategy reports whether name has a recovery action
func (e *RecoveryEngine) HasStrategy(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.strategies[name]
	return ok
}

// OnGiveUp subscribes to exhausted episodes
func (e *RecoveryEngine) OnGiveUp(handler GiveUpHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onGiveUp = append(e.onGiveUp, handler)
}

// MaxAttempts returns the per-episode attempt limit
func (e *RecoveryEngine) MaxAttempts() int {
	return e.maxAttempts
}

// AttemptRecovery runs the recovery action of a failed component once,
// subject to the cooldown and the per-episode attempt limit. An attempt
// refused by the cooldown is signalled again once the cooldown expires.
func (e *RecoveryEngine) AttemptRecovery(ctx context.Context, name string) error {
	e.mu.Lock()
	action, ok := e.strategies[name]
	if !ok {
		e.mu.Unlock()
		e.logger.Warn("No recovery strategy registered", String("name", name))
		return fmt.Errorf("%w: %s", ErrNoRecoveryStrategy, name)
	}

	if e.inFlight[name] {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRecoveryInProgress, name)
	}

	if last, seen := e.lastAttempt[name]; seen && e.cooldown > 0 {
		if wait := e.cooldown - time.Since(last); wait > 0 {
			e.deferLocked(name, wait)
			e.mu.Unlock()
			e.logger.Debug("Recovery coalesced during cooldown",
				String("name", name),
				Duration("remaining", wait),
			)
			return fmt.Errorf("%w: %s", ErrRecoveryCoolingDown, name)
		}
	}

	if err := e.registry.beginRecovery(name, e.maxAttempts); err != nil {
		e.mu.Unlock()
		return err
	}

	e.inFlight[name] = true
	e.lastAttempt[name] = time.Now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inFlight, name)
		e.mu.Unlock()
	}()

	e.metrics.Inc(RecoveriesAttempted)
	e.logger.Info("Attempting recovery", String("name", name))

	start := time.Now()
	success, cause := e.invoke(ctx, action)
	elapsed := time.Since(start)

	if e.collector != nil {
		e.collector.RecordRecoveryAttempt(name, success)
	}

	record, exhausted := e.registry.completeRecovery(name, success, e.maxAttempts, cause)

	if success {
		e.metrics.Inc(RecoveriesSucceeded)
		e.record(NewEvent(EventRecoverySucceeded, name, "Recovery succeeded").
			WithField("duration", elapsed.String()))
		return nil
	}

	e.metrics.Inc(RecoveriesFailed)
	e.record(NewEvent(EventRecoveryFailed, name, "Recovery attempt failed").
		WithField("attempt", record.RecoveryAttempts).
		WithField("max_attempts", e.maxAttempts))

	if exhausted {
		e.giveUp(name, record.RecoveryAttempts)
		return &RecoveryExhaustedError{Component: name, Attempts: record.RecoveryAttempts}
	}

	return fmt.Errorf("recovery attempt %d/%d for %s failed", record.RecoveryAttempts, e.maxAttempts, name)
}

// ProcessPending handles every queued recovery signal synchronously and
// returns how many attempts actually invoked a strategy.
func (e *RecoveryEngine) ProcessPending(ctx context.Context) int {
	invoked := 0
	for {
		select {
		case name := <-e.registry.RecoverySignals():
			before := e.metrics.Get(RecoveriesAttempted)
			e.handle(ctx, name)
			if e.metrics.Get(RecoveriesAttempted) > before {
				invoked++
			}
		default:
			return invoked
		}
	}
}

// Run dispatches recovery signals until ctx is cancelled. Attempts for
// different components run concurrently; Run waits for them before returning.
func (e *RecoveryEngine) Run(ctx context.Context) {
	e.logger.Info("Recovery dispatcher started")
	defer e.logger.Info("Recovery dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			e.CancelDeferred()
			e.wg.Wait()
			return
		case name := <-e.registry.RecoverySignals():
			e.wg.Add(1)
			go func(name string) {
				defer e.wg.Done()
				e.handle(ctx, name)
			}(name)
		}
	}
}

// CancelDeferred drops retries scheduled by the cooldown
func (e *RecoveryEngine) CancelDeferred() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, timer := range e.deferred {
		timer.Stop()
		delete(e.deferred, name)
	}
}

// PendingRetries returns the number of components waiting out a cooldown
func (e *RecoveryEngine) PendingRetries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.deferred)
}

// deferLocked schedules one retry signal per component. Callers hold e.mu.
func (e *RecoveryEngine) deferLocked(name string, wait time.Duration) {
	if _, pending := e.deferred[name]; pending {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(wait, func() {
		e.mu.Lock()
		if e.deferred[name] != timer {
			e.mu.Unlock()
			return
		}
		delete(e.deferred, name)
		e.mu.Unlock()
		e.registry.signal(name)
	})
	e.deferred[name] = timer
}

func (e *RecoveryEngine) handle(ctx context.Context, name string) {
	err := e.AttemptRecovery(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, ErrRecoveryCoolingDown),
		errors.Is(err, ErrRecoveryInProgress),
		errors.Is(err, ErrNotFailed),
		errors.Is(err, ErrNoRecoveryStrategy):
		e.logger.Debug("Recovery skipped", String("name", name), Error(err))
	case IsRecoveryExhausted(err):
		e.logger.Debug("Recovery not retried", String("name", name), Error(err))
	default:
		e.logger.Warn("Recovery failed", String("name", name), Error(err))
	}
}

// invoke runs the action; a panic counts as failure
func (e *RecoveryEngine) invoke(ctx context.Context, action RecoveryAction) (ok bool, cause string) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			cause = fmt.Sprintf("recovery action panicked: %v", r)
			e.logger.Error("Recovery action panicked", Any("panic", r))
		}
	}()

	if action(ctx) {
		return true, ""
	}
	return false, "recovery action failed"
}

func (e *RecoveryEngine) giveUp(name string, attempts int) {
	e.record(NewEvent(EventGiveUp, name, "Recovery exhausted, giving up").
		WithField("attempts", attempts))

	e.mu.Lock()
	handlers := e.onGiveUp
	e.mu.Unlock()

	for _, handler := range handlers {
		handler(name, attempts)
	}
}

func (e *RecoveryEngine) record(event Event) {
	if e.events != nil {
		e.events.Record(event)
		return
	}
	e.logger.Info(event.Message, String("name", event.Component), String("event_type", string(event.Type)))
}
