package pipeline

import (
	"time"
)

// PipelineState represents the current state of the assistant pipeline
type PipelineState int

const (
	StateIdle PipelineState = iota
	StateInitializing
	StateRunning
	StateDegraded
	StateStopping
)

func (s PipelineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateDegraded:
		return "degraded"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON responses
func (s PipelineState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ComponentStatus represents the health state of a single component
type ComponentStatus int

const (
	StatusUnknown ComponentStatus = iota
	StatusHealthy
	StatusDegraded
	StatusFailed
	StatusRecovering
)

func (s ComponentStatus) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	case StatusRecovering:
		return "recovering"
	default:
		return "invalid"
	}
}

// MarshalText renders the status by name in JSON responses
func (s ComponentStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OverallStatus summarizes every registered component
type OverallStatus int

const (
	OverallHealthy OverallStatus = iota
	OverallDegraded
	OverallComponentsFailed
)

func (s OverallStatus) String() string {
	switch s {
	case OverallHealthy:
		return "healthy"
	case OverallDegraded:
		return "degraded"
	case OverallComponentsFailed:
		return "components_failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the overall status by name in JSON responses
func (s OverallStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InputMethod is one step of the input fallback chain, ordered from the
// preferred capture source down to manual entry.
type InputMethod int

const (
	MethodPrimary InputMethod = iota
	MethodSecondary
	MethodTertiary
	MethodManual
)

// AllInputMethods lists every method in fallback order
var AllInputMethods = []InputMethod{MethodPrimary, MethodSecondary, MethodTertiary, MethodManual}

func (m InputMethod) String() string {
	switch m {
	case MethodPrimary:
		return "primary"
	case MethodSecondary:
		return "secondary"
	case MethodTertiary:
		return "tertiary"
	case MethodManual:
		return "manual"
	default:
		return "unknown"
	}
}

// MarshalText renders the method by name in JSON responses
func (m InputMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseInputMethod converts a method name back into an InputMethod
func ParseInputMethod(name string) (InputMethod, bool) {
	for _, m := range AllInputMethods {
		if m.String() == name {
			return m, true
		}
	}
	return MethodManual, false
}

// Stage names one arrow of the processing state machine
type Stage string

const (
	StageCapture    Stage = "capture"
	StageTranscribe Stage = "transcribe"
	StageClassify   Stage = "classify"
	StageAnswer     Stage = "answer"
	StageDisplay    Stage = "display"
)

// Component names registered by the pipeline manager
const (
	ComponentTranscriber = "transcriber"
	ComponentClassifier  = "classifier"
	ComponentGenerator   = "generator"
	ComponentDisplay     = "display"
)

// CaptureComponent returns the health registry name of the capture bound to m
func CaptureComponent(m InputMethod) string {
	return "capture." + m.String()
}

// ComponentRecord is the health record of one component. Records handed out
// by the registry are copies.
type ComponentRecord struct {
	Name             string          `json:"name"`
	Status           ComponentStatus `json:"status"`
	FailureCount     int             `json:"failure_count"`
	RecoveryAttempts int             `json:"recovery_attempts"`
	Exhausted        bool            `json:"exhausted"`
	LastCheck        time.Time       `json:"last_check"`
	LastFailure      time.Time       `json:"last_failure"`
	LastError        string          `json:"last_error,omitempty"`
}

// WorkItem is one captured utterance flowing through the pipeline
type WorkItem struct {
	ID              string      `json:"id"`
	Text            string      `json:"text"`
	Confidence      float64     `json:"confidence"`
	SourceTimestamp time.Time   `json:"source_timestamp"`
	Method          InputMethod `json:"method"`
}

// Transcription is the result of the speech-to-text stage
type Transcription struct {
	Text       string
	Confidence float64
}

// Classification is the result of the classification stage
type Classification struct {
	Category   string
	Confidence float64
	Keywords   []string
}

// Answer is the payload handed to the display stage
type Answer struct {
	ItemID      string    `json:"item_id"`
	Question    string    `json:"question"`
	Category    string    `json:"category"`
	Body        string    `json:"body"`
	Confidence  float64   `json:"confidence"`
	GeneratedAt time.Time `json:"generated_at"`
}

// StateChange represents a pipeline state transition
type StateChange struct {
	From      PipelineState
	To        PipelineState
	Timestamp time.Time
	Reason    string
}

// HealthResult represents the result of a single liveness check
type HealthResult struct {
	Name      string
	Healthy   bool
	Message   string
	Timestamp time.Time
	Duration  time.Duration
}

// NewHealthResult creates a new health check result
func NewHealthResult(name string, healthy bool, message string) *HealthResult {
	return &HealthResult{
		Name:      name,
		Healthy:   healthy,
		Message:   message,
		Timestamp: time.Now(),
	}
}
