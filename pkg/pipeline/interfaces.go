package pipeline

import "context"

// Capture produces raw input data for one step of the fallback chain
type Capture interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	// IsCapturing is the liveness predicate polled by the health monitor
	IsCapturing() bool
	// PullAvailableData never blocks; it returns nil when nothing is buffered
	PullAvailableData() []byte
}

// Transcriber converts captured data into text
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte) (Transcription, error)
}

// Classifier categorizes a transcribed utterance
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// AnswerGenerator renders an answer for a classified utterance
type AnswerGenerator interface {
	Generate(ctx context.Context, classification Classification, text string) (Answer, error)
}

// Display shows answers. Implementations must honour ctx deadlines; the
// pipeline gives every call a bounded render budget.
type Display interface {
	Show(ctx context.Context, answer Answer) error
	Hide(ctx context.Context) error
}

// HealthChecker is implemented by collaborators that expose their own
// liveness predicate
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Restarter is implemented by collaborators that can be restarted in place.
// It is used as the default recovery action for their component.
type Restarter interface {
	Restart(ctx context.Context) error
}

// SecurityMonitor is an optional collaborator registered as a plain component
type SecurityMonitor interface {
	HealthChecker
	Name() string
}

// LivenessProbe answers "is this component currently functioning?"
type LivenessProbe func(ctx context.Context) bool

// RecoveryAction tries to bring a failed component back. It returns true on success.
type RecoveryAction func(ctx context.Context) bool

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// PipelineManager defines the interface for the main pipeline manager
type PipelineManager interface {
	Start(ctx context.Context) error
	Stop() error
	SubmitManualInput(text string) error
	FullRecovery(reason string) error
	GetState() PipelineState
	Status() StatusReport
	Events(limit int) []Event
	IsHealthy() bool
}
