package database

import (
	"time"
)

// DatabaseConfig holds configuration for the answer archive database
type DatabaseConfig struct {
	// Connection settings
	DatabasePath      string        `json:"database_path" mapstructure:"database_path"`
	MaxConnections    int           `json:"max_connections" mapstructure:"max_connections"`
	ConnectionTimeout time.Duration `json:"connection_timeout" mapstructure:"connection_timeout"`

	// Retention settings
	Retention       time.Duration `json:"retention" mapstructure:"retention"`
	CleanupInterval time.Duration `json:"cleanup_interval" mapstructure:"cleanup_interval"`

	// BackupDir receives a copy of the archive on shutdown; empty disables it
	BackupDir string `json:"backup_dir" mapstructure:"backup_dir"`

	// Performance settings
	WALMode         bool   `json:"wal_mode" mapstructure:"wal_mode"`
	SynchronousMode string `json:"synchronous_mode" mapstructure:"synchronous_mode"`
	CacheSize       int    `json:"cache_size" mapstructure:"cache_size"`
}

// DefaultDatabaseConfig returns a configuration with sensible defaults
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		DatabasePath:      "sasayaki.db",
		MaxConnections:    4,
		ConnectionTimeout: 10 * time.Second,

		Retention:       30 * 24 * time.Hour, // 30 days
		CleanupInterval: 1 * time.Hour,

		WALMode:         true,
		SynchronousMode: "NORMAL",
		CacheSize:       -16000, // 16MB
	}
}

// Validate validates the database configuration
func (c *DatabaseConfig) Validate() error {
	if c.DatabasePath == "" {
		return ErrInvalidDatabasePath
	}
	if c.MaxConnections <= 0 {
		return ErrInvalidMaxConnections
	}
	if c.ConnectionTimeout <= 0 {
		return ErrInvalidConnectionTimeout
	}
	if c.Retention <= 0 {
		return ErrInvalidRetention
	}
	if c.CleanupInterval <= 0 {
		return ErrInvalidCleanupInterval
	}
	if c.SynchronousMode != "OFF" && c.SynchronousMode != "NORMAL" && c.SynchronousMode != "FULL" {
		return ErrInvalidSynchronousMode
	}
	return nil
}

// DatabaseStats holds statistics about the database
type DatabaseStats struct {
	SchemaVersion  int        `json:"schema_version"`
	TotalSessions  int64      `json:"total_sessions"`
	ActiveSessions int64      `json:"active_sessions"`
	TotalAnswers   int64      `json:"total_answers"`
	TotalEvents    int64      `json:"total_events"`
	OldestAnswer   *time.Time `json:"oldest_answer,omitempty"`
	NewestAnswer   *time.Time `json:"newest_answer,omitempty"`
	FileSize       int64      `json:"file_size"`
}

// Session is one run of the pipeline, from Start to Stop
type Session struct {
	PipelineID string           `json:"pipeline_id"`
	StartedAt  time.Time        `json:"started_at"`
	EndedAt    *time.Time       `json:"ended_at,omitempty"`
	FinalState string           `json:"final_state,omitempty"`
	Metrics    map[string]int64 `json:"metrics,omitempty"`
}

// IsActive returns whether the session has not ended yet
func (s *Session) IsActive() bool {
	return s.EndedAt == nil
}

// AnswerRecord is an answer as persisted in the archive
type AnswerRecord struct {
	ID          int64     `json:"id"`
	PipelineID  string    `json:"pipeline_id"`
	ItemID      string    `json:"item_id"`
	Question    string    `json:"question"`
	Category    string    `json:"category"`
	Confidence  float64   `json:"confidence"`
	Body        string    `json:"body"`
	GeneratedAt time.Time `json:"generated_at"`
}

// EventRecord is a pipeline event as persisted in the archive
type EventRecord struct {
	EventID    string                 `json:"event_id"`
	PipelineID string                 `json:"pipeline_id"`
	Type       string                 `json:"type"`
	Component  string                 `json:"component,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// AnswerQuery filters answers read back from the archive
type AnswerQuery struct {
	PipelineID string
	Category   string
	Since      time.Time
	Limit      int
}

// EventQuery filters events read back from the archive
type EventQuery struct {
	PipelineID string
	Type       string
	Since      time.Time
	Limit      int
}

// Migration is a row of the schema_migrations table
type Migration struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Checksum    string    `json:"checksum"`
	AppliedAt   time.Time `json:"applied_at"`
}

// CleanupStats reports what a retention pass removed
type CleanupStats struct {
	AnswersDeleted  int64         `json:"answers_deleted"`
	EventsDeleted   int64         `json:"events_deleted"`
	SessionsDeleted int64         `json:"sessions_deleted"`
	Duration        time.Duration `json:"duration"`
}
