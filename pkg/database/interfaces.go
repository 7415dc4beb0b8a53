package database

import (
	"context"
	"time"
)

// DatabaseManager owns the archive connection and its maintenance
type DatabaseManager interface {
	// Connection management
	Connect() error
	Close() error
	Ping(ctx context.Context) error

	// Repository access
	ArchiveRepository() ArchiveRepository

	// Migration management
	Migrate() error
	GetSchemaVersion() (int, error)

	// Health and maintenance
	CleanExpiredData(ctx context.Context) (*CleanupStats, error)
	GetStats(ctx context.Context) (*DatabaseStats, error)
	Backup(path string) error
}

// ArchiveRepository persists sessions, answers and events
type ArchiveRepository interface {
	// Session operations
	CreateSession(ctx context.Context, session *Session) error
	EndSession(ctx context.Context, pipelineID, finalState string, metrics map[string]int64) error
	GetSession(ctx context.Context, pipelineID string) (*Session, error)
	GetActiveSessions(ctx context.Context) ([]*Session, error)

	// Answer operations
	StoreAnswer(ctx context.Context, answer *AnswerRecord) error
	GetAnswers(ctx context.Context, query *AnswerQuery) ([]*AnswerRecord, error)

	// Event operations
	StoreEvents(ctx context.Context, events []*EventRecord) (int, error)
	GetEvents(ctx context.Context, query *EventQuery) ([]*EventRecord, error)

	// Maintenance
	CleanExpired(ctx context.Context, before time.Time) (*CleanupStats, error)
	Counts(ctx context.Context) (*DatabaseStats, error)
}

// MigrationManager applies the archive schema
type MigrationManager interface {
	GetCurrentVersion() (int, error)
	GetLatestVersion() int
	Migrate() error
	MigrateTo(version int) error
	GetMigrationHistory() ([]*Migration, error)
}
