package pipeline

import (
	"fmt"
	"time"
)

// PipelineConfig contains the configuration for the assistant pipeline
type PipelineConfig struct {
	Queue      QueueConfig      `json:"queue" mapstructure:"queue"`
	Health     HealthConfig     `json:"health" mapstructure:"health"`
	Recovery   RecoveryConfig   `json:"recovery" mapstructure:"recovery"`
	Fallback   FallbackConfig   `json:"fallback" mapstructure:"fallback"`
	Gate       GateConfig       `json:"gate" mapstructure:"gate"`
	Processing ProcessingConfig `json:"processing" mapstructure:"processing"`
	Events     EventsConfig     `json:"events" mapstructure:"events"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// QueueConfig sizes the transcription and response queues
type QueueConfig struct {
	TranscriptionCapacity int `json:"transcription_capacity" mapstructure:"transcription_capacity"`
	ResponseCapacity      int `json:"response_capacity" mapstructure:"response_capacity"`
}

// HealthConfig contains configuration for health monitoring
type HealthConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	CheckInterval time.Duration `json:"check_interval" mapstructure:"check_interval"`
	CheckTimeout  time.Duration `json:"check_timeout" mapstructure:"check_timeout"`
}

// RecoveryConfig contains configuration for the recovery engine
type RecoveryConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	MaxAttempts  int           `json:"max_attempts" mapstructure:"max_attempts"`
	Cooldown     time.Duration `json:"cooldown" mapstructure:"cooldown"`
	SignalBuffer int           `json:"signal_buffer" mapstructure:"signal_buffer"`
}

// FallbackConfig contains configuration for the input fallback chain
type FallbackConfig struct {
	FailureThreshold int `json:"failure_threshold" mapstructure:"failure_threshold"`
}

// GateConfig controls which classified items are answered
type GateConfig struct {
	ConfidenceThreshold float64 `json:"confidence_threshold" mapstructure:"confidence_threshold"`
	MinTextLength       int     `json:"min_text_length" mapstructure:"min_text_length"`
}

// ProcessingConfig contains loop intervals and stage budgets
type ProcessingConfig struct {
	CaptureInterval time.Duration `json:"capture_interval" mapstructure:"capture_interval"`
	ProcessInterval time.Duration `json:"process_interval" mapstructure:"process_interval"`
	DisplayInterval time.Duration `json:"display_interval" mapstructure:"display_interval"`
	StageTimeout    time.Duration `json:"stage_timeout" mapstructure:"stage_timeout"`
	RenderBudget    time.Duration `json:"render_budget" mapstructure:"render_budget"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// EventsConfig sizes the in-memory event history
type EventsConfig struct {
	HistorySize int `json:"history_size" mapstructure:"history_size"`
}

// LoggingConfig contains configuration for logging
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
	Output string `json:"output" mapstructure:"output"`
}

// DefaultPipelineConfig returns a configuration with sensible defaults
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Queue: QueueConfig{
			TranscriptionCapacity: 64,
			ResponseCapacity:      16,
		},
		Health: HealthConfig{
			Enabled:       true,
			CheckInterval: 2 * time.Second,
			CheckTimeout:  time.Second,
		},
		Recovery: RecoveryConfig{
			Enabled:      true,
			MaxAttempts:  3,
			Cooldown:     5 * time.Second,
			SignalBuffer: 32,
		},
		Fallback: FallbackConfig{
			FailureThreshold: 3,
		},
		Gate: GateConfig{
			ConfidenceThreshold: 0.7,
			MinTextLength:       3,
		},
		Processing: ProcessingConfig{
			CaptureInterval: 100 * time.Millisecond,
			ProcessInterval: 100 * time.Millisecond,
			DisplayInterval: 50 * time.Millisecond,
			StageTimeout:    30 * time.Second,
			RenderBudget:    250 * time.Millisecond,
			ShutdownTimeout: 5 * time.Second,
		},
		Events: EventsConfig{
			HistorySize: 256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Validate validates the configuration and returns any errors
func (c *PipelineConfig) Validate() error {
	var errors []string

	// Queues
	if c.Queue.TranscriptionCapacity <= 0 {
		errors = append(errors, "queue transcription_capacity must be > 0")
	}

	if c.Queue.ResponseCapacity <= 0 {
		errors = append(errors, "queue response_capacity must be > 0")
	}

	// Health
	if c.Health.CheckInterval <= 0 {
		errors = append(errors, "health check_interval must be > 0")
	}

	if c.Health.CheckTimeout <= 0 {
		errors = append(errors, "health check_timeout must be > 0")
	}

	// Recovery
	if c.Recovery.MaxAttempts < 1 {
		errors = append(errors, "recovery max_attempts must be >= 1")
	}

	if c.Recovery.Cooldown < 0 {
		errors = append(errors, "recovery cooldown must be >= 0")
	}

	if c.Recovery.SignalBuffer <= 0 {
		errors = append(errors, "recovery signal_buffer must be > 0")
	}

	// Fallback
	if c.Fallback.FailureThreshold < 1 {
		errors = append(errors, "fallback failure_threshold must be >= 1")
	}

	// Gate
	if c.Gate.ConfidenceThreshold < 0 || c.Gate.ConfidenceThreshold > 1 {
		errors = append(errors, "gate confidence_threshold must be between 0 and 1")
	}

	if c.Gate.MinTextLength < 0 {
		errors = append(errors, "gate min_text_length must be >= 0")
	}

	// Processing
	if c.Processing.CaptureInterval <= 0 || c.Processing.ProcessInterval <= 0 || c.Processing.DisplayInterval <= 0 {
		errors = append(errors, "processing intervals must be > 0")
	}

	if c.Processing.StageTimeout <= 0 {
		errors = append(errors, "processing stage_timeout must be > 0")
	}

	if c.Processing.RenderBudget <= 0 {
		errors = append(errors, "processing render_budget must be > 0")
	}

	if c.Processing.ShutdownTimeout <= 0 {
		errors = append(errors, "processing shutdown_timeout must be > 0")
	}

	if c.Events.HistorySize <= 0 {
		errors = append(errors, "events history_size must be > 0")
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		errors = append(errors, "logging level must be one of: debug, info, warn, error, fatal")
	}

	validLogFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		errors = append(errors, "logging format must be one of: json, text, console")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}
