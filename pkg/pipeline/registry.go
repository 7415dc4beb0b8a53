package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ChangeSource tells listeners who caused a status change
type ChangeSource string

const (
	SourceReport   ChangeSource = "report"
	SourceRecovery ChangeSource = "recovery"
)

// ComponentChange is delivered to registry listeners for every accepted
// status report. From and To are equal for repeated reports of the same
// status; Reported is the status that was asked for.
type ComponentChange struct {
	Name     string
	From     ComponentStatus
	To       ComponentStatus
	Reported ComponentStatus
	Source   ChangeSource
	Error    string
	At       time.Time
	Record   ComponentRecord
}

// StatusListener receives registry changes. Listeners run outside the registry
// lock and may call back into the registry.
type StatusListener func(change ComponentChange)

// HealthRegistry owns the health record of every component. All mutation goes
// through ReportStatus and the recovery bookkeeping used by the RecoveryEngine.
type HealthRegistry struct {
	mu           sync.RWMutex
	records      map[string]*ComponentRecord
	engineOwned  map[string]bool
	autoRecovery bool
	signals      chan string
	listeners    []StatusListener
	logger       Logger
}

// NewHealthRegistry creates an empty registry. signalBuffer bounds the number of
// pending recovery signals; extra signals are coalesced.
func NewHealthRegistry(autoRecovery bool, signalBuffer int, logger Logger) *HealthRegistry {
	if signalBuffer < 1 {
		signalBuffer = 1
	}
	if logger == nil {
		logger = NullLogger()
	}
	return &HealthRegistry{
		records:      make(map[string]*ComponentRecord),
		engineOwned:  make(map[string]bool),
		autoRecovery: autoRecovery,
		signals:      make(chan string, signalBuffer),
		logger:       logger.With(String("component", "health_registry")),
	}
}

// Register adds a component in Unknown status
func (r *HealthRegistry) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateComponent, name)
	}

	r.records[name] = &ComponentRecord{
		Name:   name,
		Status: StatusUnknown,
	}

	r.logger.Debug("Component registered", String("name", name))
	return nil
}

// AddListener subscribes to status changes
func (r *HealthRegistry) AddListener(listener StatusListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// RecoverySignals returns the channel on which failed component names are published
func (r *HealthRegistry) RecoverySignals() <-chan string {
	return r.signals
}

// ReportStatus is the single update entry point for passive and active
// observations. Unknown can never be reported.
func (r *HealthRegistry) ReportStatus(name string, status ComponentStatus, reportErr error) error {
	r.mu.Lock()

	rec, exists := r.records[name]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}

	now := time.Now()
	from := rec.Status
	observe := func() {
		rec.LastCheck = now
		if reportErr != nil {
			rec.LastError = reportErr.Error()
		}
	}

	var changes []ComponentChange
	signal := false

	// LastCheck and LastError only move for accepted reports
	switch status {
	case StatusFailed:
		observe()
		switch {
		case from == StatusRecovering && r.engineOwned[name]:
			// the recovery engine owns the episode
		case from == StatusFailed:
			signal = r.autoRecovery && !rec.Exhausted
		default:
			rec.Status = StatusFailed
			rec.FailureCount++
			rec.LastFailure = now
			signal = r.autoRecovery && !rec.Exhausted
		}
		changes = append(changes, r.change(rec, from, rec.Status, status, SourceReport, now))

	case StatusHealthy:
		if rec.Exhausted || r.engineOwned[name] {
			r.mu.Unlock()
			return nil
		}
		observe()
		if from == StatusFailed {
			rec.Status = StatusRecovering
			changes = append(changes, r.change(rec, StatusFailed, StatusRecovering, status, SourceReport, now))
			from = StatusRecovering
		}
		rec.Status = StatusHealthy
		rec.RecoveryAttempts = 0
		rec.LastError = ""
		changes = append(changes, r.change(rec, from, StatusHealthy, status, SourceReport, now))

	case StatusDegraded:
		if rec.Exhausted || r.engineOwned[name] {
			r.mu.Unlock()
			return nil
		}
		observe()
		rec.Status = StatusDegraded
		changes = append(changes, r.change(rec, from, StatusDegraded, status, SourceReport, now))

	case StatusRecovering:
		if from != StatusFailed {
			r.mu.Unlock()
			return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, name, from, status)
		}
		observe()
		rec.Status = StatusRecovering
		changes = append(changes, r.change(rec, from, StatusRecovering, status, SourceReport, now))

	default:
		r.mu.Unlock()
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, name, from, status)
	}

	listeners := r.listeners
	r.mu.Unlock()

	if signal {
		r.signal(name)
	}

	r.notify(listeners, changes)
	return nil
}

// beginRecovery moves a failed component into Recovering. It refuses
// components that are not failed or have exhausted their episode.
func (r *HealthRegistry) beginRecovery(name string, maxAttempts int) error {
	r.mu.Lock()

	rec, exists := r.records[name]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}

	if rec.Exhausted || rec.RecoveryAttempts >= maxAttempts {
		attempts := rec.RecoveryAttempts
		r.mu.Unlock()
		return &RecoveryExhaustedError{Component: name, Attempts: attempts}
	}

	if rec.Status != StatusFailed {
		status := rec.Status
		r.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrNotFailed, name, status)
	}

	now := time.Now()
	rec.Status = StatusRecovering
	r.engineOwned[name] = true
	change := r.change(rec, StatusFailed, StatusRecovering, StatusRecovering, SourceRecovery, now)
	listeners := r.listeners
	r.mu.Unlock()

	r.notify(listeners, []ComponentChange{change})
	return nil
}

// completeRecovery closes an attempt started by beginRecovery. On failure the
// attempt counter grows and the record is marked exhausted once it reaches
// maxAttempts. exhausted reports whether this call exhausted the episode.
func (r *HealthRegistry) completeRecovery(name string, ok bool, maxAttempts int, cause string) (ComponentRecord, bool) {
	r.mu.Lock()

	rec, exists := r.records[name]
	if !exists {
		r.mu.Unlock()
		return ComponentRecord{}, false
	}

	now := time.Now()
	from := rec.Status
	exhausted := false
	delete(r.engineOwned, name)

	if ok {
		rec.Status = StatusHealthy
		rec.RecoveryAttempts = 0
		rec.Exhausted = false
		rec.LastError = ""
	} else {
		rec.Status = StatusFailed
		rec.RecoveryAttempts++
		if cause != "" {
			rec.LastError = cause
		}
		if rec.RecoveryAttempts >= maxAttempts && !rec.Exhausted {
			rec.Exhausted = true
			exhausted = true
		}
	}
	rec.LastCheck = now

	change := r.change(rec, from, rec.Status, rec.Status, SourceRecovery, now)
	snapshot := *rec
	listeners := r.listeners
	r.mu.Unlock()

	r.notify(listeners, []ComponentChange{change})
	return snapshot, exhausted
}

// ResetAll starts a new recovery episode for every component. Components that
// are still failed are signalled again.
func (r *HealthRegistry) ResetAll() []string {
	r.mu.Lock()

	var failed []string
	for name, rec := range r.records {
		rec.Exhausted = false
		rec.RecoveryAttempts = 0
		if rec.Status == StatusFailed {
			failed = append(failed, name)
		}
	}
	r.mu.Unlock()

	sort.Strings(failed)
	if r.autoRecovery {
		for _, name := range failed {
			r.signal(name)
		}
	}

	r.logger.Info("Recovery episodes reset", Int("still_failed", len(failed)))
	return failed
}

// Get returns a copy of a single record
func (r *HealthRegistry) Get(name string) (ComponentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[name]
	if !exists {
		return ComponentRecord{}, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	return *rec, nil
}

// GetAll returns copies of every record, sorted by name
func (r *HealthRegistry) GetAll() []ComponentRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ComponentRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered component names, sorted
func (r *HealthRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered components
func (r *HealthRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// OverallStatus summarizes the registry. Any failed component yields
// ComponentsFailed; degraded or recovering ones yield Degraded.
func (r *HealthRegistry) OverallStatus() OverallStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	overall := OverallHealthy
	for _, rec := range r.records {
		switch rec.Status {
		case StatusFailed:
			return OverallComponentsFailed
		case StatusDegraded, StatusRecovering:
			overall = OverallDegraded
		}
	}
	return overall
}

func (r *HealthRegistry) change(rec *ComponentRecord, from, to, reported ComponentStatus, source ChangeSource, at time.Time) ComponentChange {
	snapshot := *rec
	snapshot.Status = to
	return ComponentChange{
		Name:     rec.Name,
		From:     from,
		To:       to,
		Reported: reported,
		Source:   source,
		Error:    rec.LastError,
		At:       at,
		Record:   snapshot,
	}
}

func (r *HealthRegistry) signal(name string) {
	select {
	case r.signals <- name:
	default:
		r.logger.Debug("Recovery signal coalesced", String("name", name))
	}
}

func (r *HealthRegistry) notify(listeners []StatusListener, changes []ComponentChange) {
	for _, change := range changes {
		if change.From != change.To {
			r.logger.Info("Component status changed",
				String("name", change.Name),
				String("from", change.From.String()),
				String("to", change.To.String()),
				String("source", string(change.Source)),
			)
		}
		for _, listener := range listeners {
			listener(change)
		}
	}
}
