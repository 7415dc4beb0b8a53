package database

import (
	"crypto/md5"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// migrationManager implements the MigrationManager interface
type migrationManager struct {
	db         *sql.DB
	migrations map[int]*migrationScript
	logger     pipeline.Logger
}

// migrationScript represents a single database migration
type migrationScript struct {
	Version     int
	Name        string
	Description string
	UpSQL       string
	DownSQL     string
	Checksum    string
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB, logger pipeline.Logger) (MigrationManager, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	mm := &migrationManager{
		db:         db,
		migrations: make(map[int]*migrationScript),
		logger:     logger.With(pipeline.String("component", "migrations")),
	}

	// Initialize migration tracking table
	if err := mm.initializeMigrationTable(); err != nil {
		return nil, fmt.Errorf("failed to initialize migration table: %w", err)
	}

	mm.loadMigrations()

	return mm, nil
}

// initializeMigrationTable creates the migration tracking table
func (mm *migrationManager) initializeMigrationTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		checksum TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)
	`

	if _, err := mm.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	return nil
}

// loadMigrations loads all migration scripts
func (mm *migrationManager) loadMigrations() {
	// Migration 1: sessions and answers
	mm.add(&migrationScript{
		Version:     1,
		Name:        "initial_archive",
		Description: "Create pipeline session and answer tables",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS pipeline_sessions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				pipeline_id TEXT UNIQUE NOT NULL,
				started_at DATETIME NOT NULL,
				ended_at DATETIME,
				final_state TEXT,
				metrics TEXT,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE IF NOT EXISTS answers (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				pipeline_id TEXT NOT NULL,
				item_id TEXT NOT NULL,
				question TEXT NOT NULL,
				category TEXT NOT NULL,
				confidence REAL NOT NULL,
				body TEXT NOT NULL,
				generated_at DATETIME NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_pipeline_sessions_started_at ON pipeline_sessions(started_at);
			CREATE INDEX IF NOT EXISTS idx_answers_pipeline_id ON answers(pipeline_id);
			CREATE INDEX IF NOT EXISTS idx_answers_generated_at ON answers(generated_at);
			CREATE INDEX IF NOT EXISTS idx_answers_category ON answers(category);
		`,
		DownSQL: `
			DROP INDEX IF EXISTS idx_answers_category;
			DROP INDEX IF EXISTS idx_answers_generated_at;
			DROP INDEX IF EXISTS idx_answers_pipeline_id;
			DROP INDEX IF EXISTS idx_pipeline_sessions_started_at;

			DROP TABLE IF EXISTS answers;
			DROP TABLE IF EXISTS pipeline_sessions;
		`,
	})

	// Migration 2: pipeline events
	mm.add(&migrationScript{
		Version:     2,
		Name:        "pipeline_events",
		Description: "Create pipeline event table",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS pipeline_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				event_id TEXT UNIQUE NOT NULL,
				pipeline_id TEXT NOT NULL,
				event_type TEXT NOT NULL,
				component TEXT,
				message TEXT NOT NULL,
				fields TEXT,
				timestamp DATETIME NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_pipeline_events_pipeline_id ON pipeline_events(pipeline_id);
			CREATE INDEX IF NOT EXISTS idx_pipeline_events_timestamp ON pipeline_events(timestamp);
			CREATE INDEX IF NOT EXISTS idx_pipeline_events_type ON pipeline_events(event_type);
		`,
		DownSQL: `
			DROP INDEX IF EXISTS idx_pipeline_events_type;
			DROP INDEX IF EXISTS idx_pipeline_events_timestamp;
			DROP INDEX IF EXISTS idx_pipeline_events_pipeline_id;

			DROP TABLE IF EXISTS pipeline_events;
		`,
	})
}

func (mm *migrationManager) add(script *migrationScript) {
	script.Checksum = mm.calculateChecksum(script.UpSQL)
	mm.migrations[script.Version] = script
}

// GetCurrentVersion returns the highest applied migration version
func (mm *migrationManager) GetCurrentVersion() (int, error) {
	query := "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"

	var version int
	err := mm.db.QueryRow(query).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}

	return version, nil
}

// GetLatestVersion returns the highest known migration version
func (mm *migrationManager) GetLatestVersion() int {
	latest := 0
	for version := range mm.migrations {
		if version > latest {
			latest = version
		}
	}
	return latest
}

// Migrate applies every pending migration
func (mm *migrationManager) Migrate() error {
	return mm.MigrateTo(mm.GetLatestVersion())
}

// MigrateTo migrates up or down until targetVersion is the current version
func (mm *migrationManager) MigrateTo(targetVersion int) error {
	if targetVersion < 0 || targetVersion > mm.GetLatestVersion() {
		return fmt.Errorf("%w: %d", ErrInvalidMigrationVersion, targetVersion)
	}

	currentVersion, err := mm.GetCurrentVersion()
	if err != nil {
		return err
	}

	if currentVersion == targetVersion {
		mm.logger.Debug("Database is up to date", pipeline.Int("version", currentVersion))
		return mm.validateChecksums()
	}

	var versions []int
	for version := range mm.migrations {
		if currentVersion < targetVersion && version > currentVersion && version <= targetVersion {
			versions = append(versions, version)
		}
		if currentVersion > targetVersion && version <= currentVersion && version > targetVersion {
			versions = append(versions, version)
		}
	}

	up := currentVersion < targetVersion
	if up {
		sort.Ints(versions)
	} else {
		sort.Sort(sort.Reverse(sort.IntSlice(versions)))
	}

	mm.logger.Info("Migrating database",
		pipeline.Int("from_version", currentVersion),
		pipeline.Int("to_version", targetVersion),
	)

	for _, version := range versions {
		if err := mm.runMigration(version, up); err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, version, err)
		}
		mm.logger.Info("Applied migration",
			pipeline.Int("version", version),
			pipeline.String("name", mm.migrations[version].Name),
			pipeline.Bool("up", up),
		)
	}

	return nil
}

// GetMigrationHistory returns the applied migrations in version order
func (mm *migrationManager) GetMigrationHistory() ([]*Migration, error) {
	query := `
		SELECT version, name, description, checksum, applied_at
		FROM schema_migrations
		ORDER BY version
	`

	rows, err := mm.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}
	defer rows.Close()

	var migrations []*Migration
	for rows.Next() {
		migration := &Migration{}
		var description sql.NullString
		err := rows.Scan(
			&migration.Version,
			&migration.Name,
			&description,
			&migration.Checksum,
			&migration.AppliedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		migration.Description = description.String

		migrations = append(migrations, migration)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}

	return migrations, nil
}

// runMigration runs a single migration up or down
func (mm *migrationManager) runMigration(version int, up bool) error {
	migration, exists := mm.migrations[version]
	if !exists {
		return fmt.Errorf("%w: %d", ErrMigrationNotFound, version)
	}

	tx, err := mm.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	script := migration.DownSQL
	if up {
		script = migration.UpSQL
	}

	if _, err := tx.Exec(script); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if up {
		_, err = tx.Exec(`
			INSERT OR REPLACE INTO schema_migrations (version, name, description, checksum, applied_at)
			VALUES (?, ?, ?, ?, ?)
		`, version, migration.Name, migration.Description, migration.Checksum, time.Now())
	} else {
		_, err = tx.Exec("DELETE FROM schema_migrations WHERE version = ?", version)
	}

	if err != nil {
		return fmt.Errorf("failed to update migration tracking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// validateChecksums compares applied migrations with the known scripts
func (mm *migrationManager) validateChecksums() error {
	history, err := mm.GetMigrationHistory()
	if err != nil {
		return err
	}

	for _, applied := range history {
		script, ok := mm.migrations[applied.Version]
		if !ok {
			continue
		}
		if script.Checksum != applied.Checksum {
			return fmt.Errorf("%w: version %d", ErrChecksumMismatch, applied.Version)
		}
	}
	return nil
}

// calculateChecksum calculates MD5 checksum of migration SQL
func (mm *migrationManager) calculateChecksum(sql string) string {
	hash := md5.Sum([]byte(sql))
	return fmt.Sprintf("%x", hash)
}
