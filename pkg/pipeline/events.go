package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies an observable pipeline event
type EventType string

const (
	EventStateChange        EventType = "state_change"
	EventComponentStatus    EventType = "component_status"
	EventFallbackTransition EventType = "fallback_transition"
	EventRecoverySucceeded  EventType = "recovery_succeeded"
	EventRecoveryFailed     EventType = "recovery_failed"
	EventGiveUp             EventType = "give_up"
	EventDegradedMode       EventType = "degraded_mode"
	EventFullRecovery       EventType = "full_recovery"
	EventQueueOverflow      EventType = "queue_overflow"
	EventStageFailure       EventType = "stage_failure"
)

// Event is one entry of the in-memory event history
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent creates an event stamped with a fresh id and the current time
func NewEvent(eventType EventType, component, message string) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithField returns a copy of the event carrying an extra field
func (e Event) WithField(key string, value interface{}) Event {
	fields := make(map[string]interface{}, len(e.Fields)+1)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields[key] = value
	e.Fields = fields
	return e
}

// EventLog keeps the most recent events; older ones are dropped
type EventLog struct {
	events *BoundedQueue[Event]
	logger Logger
}

// NewEventLog creates an event log holding at most size events
func NewEventLog(size int, logger Logger) *EventLog {
	if logger == nil {
		logger = NullLogger()
	}
	return &EventLog{
		events: NewBoundedQueue[Event](size),
		logger: logger,
	}
}

// Record appends an event and mirrors it to the logger
func (l *EventLog) Record(event Event) {
	l.events.Push(event)

	fields := []Field{
		String("event_id", event.ID),
		String("event_type", string(event.Type)),
	}
	if event.Component != "" {
		fields = append(fields, String("name", event.Component))
	}
	for k, v := range event.Fields {
		fields = append(fields, Any(k, v))
	}

	switch event.Type {
	case EventGiveUp, EventDegradedMode, EventStageFailure, EventRecoveryFailed:
		l.logger.Warn(event.Message, fields...)
	case EventComponentStatus, EventQueueOverflow:
		l.logger.Debug(event.Message, fields...)
	default:
		l.logger.Info(event.Message, fields...)
	}
}

// Recent returns up to limit of the newest events, oldest first. A limit of
// zero or less returns every retained event.
func (l *EventLog) Recent(limit int) []Event {
	all := l.events.Snapshot()
	if limit <= 0 || limit >= len(all) {
		return all
	}
	return all[len(all)-limit:]
}

// Count returns how many events of the given type are retained
func (l *EventLog) Count(eventType EventType) int {
	n := 0
	for _, e := range l.events.Snapshot() {
		if e.Type == eventType {
			n++
		}
	}
	return n
}
