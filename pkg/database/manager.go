package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
	_ "github.com/mattn/go-sqlite3"
)

// databaseManager implements the DatabaseManager interface
type databaseManager struct {
	config           *DatabaseConfig
	db               *sql.DB
	migrationManager MigrationManager
	archive          ArchiveRepository
	logger           pipeline.Logger

	// State management
	connected bool
	mutex     sync.RWMutex

	// Background tasks
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewDatabaseManager creates a new database manager
func NewDatabaseManager(config *DatabaseConfig, logger pipeline.Logger) (DatabaseManager, error) {
	if config == nil {
		config = DefaultDatabaseConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	if logger == nil {
		logger = pipeline.NullLogger()
	}

	dm := &databaseManager{
		config: config,
		logger: logger.With(pipeline.String("component", "database")),
	}

	return dm, nil
}

// Connect opens the database, applies migrations and starts the cleanup task
func (dm *databaseManager) Connect() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.connected {
		return nil
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dm.buildConnectionString())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(dm.config.MaxConnections)
	db.SetMaxIdleConns(dm.config.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), dm.config.ConnectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager, err := NewMigrationManager(db, dm.logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration manager: %w", err)
	}

	if err := migrationManager.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	dm.db = db
	dm.migrationManager = migrationManager
	dm.archive = NewArchiveRepository(db)
	dm.connected = true
	dm.stopChan = make(chan struct{})

	dm.wg.Add(1)
	go dm.runCleanupTask(dm.stopChan)

	dm.logger.Info("Database connected", pipeline.String("path", dm.config.DatabasePath))
	return nil
}

// Close stops the cleanup task and closes the connection
func (dm *databaseManager) Close() error {
	dm.mutex.Lock()
	if !dm.connected {
		dm.mutex.Unlock()
		return nil
	}
	close(dm.stopChan)
	dm.connected = false
	db := dm.db
	dm.mutex.Unlock()

	dm.wg.Wait()

	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	dm.logger.Info("Database closed")
	return nil
}

// Ping tests the database connection
func (dm *databaseManager) Ping(ctx context.Context) error {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if !dm.connected || dm.db == nil {
		return ErrDatabaseNotConnected
	}

	return dm.db.PingContext(ctx)
}

// ArchiveRepository returns the archive repository, nil before Connect
func (dm *databaseManager) ArchiveRepository() ArchiveRepository {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	return dm.archive
}

// Migrate runs database migrations
func (dm *databaseManager) Migrate() error {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if dm.migrationManager == nil {
		return ErrDatabaseNotConnected
	}
	return dm.migrationManager.Migrate()
}

// GetSchemaVersion returns the current schema version
func (dm *databaseManager) GetSchemaVersion() (int, error) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if dm.migrationManager == nil {
		return 0, ErrDatabaseNotConnected
	}
	return dm.migrationManager.GetCurrentVersion()
}

// CleanExpiredData removes archive rows older than the retention period
func (dm *databaseManager) CleanExpiredData(ctx context.Context) (*CleanupStats, error) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if !dm.connected {
		return nil, ErrDatabaseNotConnected
	}

	return dm.archive.CleanExpired(ctx, time.Now().Add(-dm.config.Retention))
}

// GetStats returns database statistics
func (dm *databaseManager) GetStats(ctx context.Context) (*DatabaseStats, error) {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if !dm.connected {
		return nil, ErrDatabaseNotConnected
	}

	stats, err := dm.archive.Counts(ctx)
	if err != nil {
		return nil, err
	}

	if version, err := dm.migrationManager.GetCurrentVersion(); err == nil {
		stats.SchemaVersion = version
	}

	// Get file size
	if fileInfo, err := os.Stat(dm.config.DatabasePath); err == nil {
		stats.FileSize = fileInfo.Size()
	}

	return stats, nil
}

// Backup writes a consistent copy of the database to path
func (dm *databaseManager) Backup(path string) error {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	if !dm.connected {
		return ErrDatabaseNotConnected
	}

	if _, err := dm.db.Exec("VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("%w: %v", ErrBackupFailed, err)
	}

	dm.logger.Info("Database backup created", pipeline.String("path", path))
	return nil
}

// buildConnectionString builds the SQLite connection string with options
func (dm *databaseManager) buildConnectionString() string {
	var opts []string

	if dm.config.WALMode {
		opts = append(opts, "_journal_mode=WAL")
	}

	opts = append(opts,
		fmt.Sprintf("_synchronous=%s", dm.config.SynchronousMode),
		fmt.Sprintf("_cache_size=%d", dm.config.CacheSize),
		"_foreign_keys=on",
		"_busy_timeout=5000",
	)

	return "file:" + dm.config.DatabasePath + "?" + strings.Join(opts, "&")
}

// runCleanupTask runs the periodic retention cleanup
func (dm *databaseManager) runCleanupTask(stop <-chan struct{}) {
	defer dm.wg.Done()

	ticker := time.NewTicker(dm.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := dm.CleanExpiredData(context.Background())
			if err != nil {
				dm.logger.Warn("Archive cleanup failed", pipeline.Error(err))
				continue
			}
			dm.logger.Debug("Archive cleanup finished",
				pipeline.Int64("answers_deleted", stats.AnswersDeleted),
				pipeline.Int64("events_deleted", stats.EventsDeleted),
				pipeline.Int64("sessions_deleted", stats.SessionsDeleted),
			)
		case <-stop:
			return
		}
	}
}
