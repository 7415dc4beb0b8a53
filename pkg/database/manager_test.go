package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) DatabaseManager {
	t.Helper()

	config := DefaultDatabaseConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	dm, err := NewDatabaseManager(config, nil)
	require.NoError(t, err)
	require.NoError(t, dm.Connect())
	t.Cleanup(func() { _ = dm.Close() })
	return dm
}

func TestNewDatabaseManager(t *testing.T) {
	tests := []struct {
		name        string
		config      *DatabaseConfig
		expectError bool
	}{
		{
			name:        "nil config uses defaults",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultDatabaseConfig(),
			expectError: false,
		},
		{
			name: "invalid config - empty database path",
			config: &DatabaseConfig{
				DatabasePath: "",
			},
			expectError: true,
		},
		{
			name: "invalid config - zero max connections",
			config: &DatabaseConfig{
				DatabasePath:   "test.db",
				MaxConnections: 0,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dm, err := NewDatabaseManager(tt.config, nil)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, dm)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, dm)
			}
		})
	}
}

func TestDatabaseManager_ConnectAndClose(t *testing.T) {
	config := DefaultDatabaseConfig()
	config.DatabasePath = filepath.Join(t.TempDir(), "test.db")

	dm, err := NewDatabaseManager(config, nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, dm.Ping(ctx), ErrDatabaseNotConnected)
	assert.Nil(t, dm.ArchiveRepository())

	require.NoError(t, dm.Connect())
	assert.NoError(t, dm.Connect(), "connecting twice is a no-op")
	assert.NoError(t, dm.Ping(ctx))
	assert.NotNil(t, dm.ArchiveRepository())

	require.NoError(t, dm.Close())
	assert.NoError(t, dm.Close())
	assert.Error(t, dm.Ping(ctx))

	// reconnect after close
	require.NoError(t, dm.Connect())
	assert.NoError(t, dm.Ping(ctx))
	require.NoError(t, dm.Close())
}

func TestDatabaseManager_Migration(t *testing.T) {
	dm := newTestManager(t)

	version, err := dm.GetSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	// running again is a no-op
	assert.NoError(t, dm.Migrate())
}

func TestDatabaseManager_CleanExpiredData(t *testing.T) {
	dm := newTestManager(t)
	ctx := context.Background()
	repo := dm.ArchiveRepository()

	require.NoError(t, repo.StoreAnswer(ctx, &AnswerRecord{
		PipelineID:  "p1",
		ItemID:      "old",
		Question:    "what is a trie",
		Category:    "data_structure",
		Body:        "a prefix tree",
		GeneratedAt: time.Now().Add(-60 * 24 * time.Hour),
	}))
	require.NoError(t, repo.StoreAnswer(ctx, &AnswerRecord{
		PipelineID:  "p1",
		ItemID:      "new",
		Question:    "what is a heap",
		Category:    "data_structure",
		Body:        "a priority tree",
		GeneratedAt: time.Now(),
	}))

	stats, err := dm.CleanExpiredData(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.AnswersDeleted)

	answers, err := repo.GetAnswers(ctx, nil)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "new", answers[0].ItemID)
}

func TestDatabaseManager_GetStats(t *testing.T) {
	dm := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, dm.ArchiveRepository().CreateSession(ctx, &Session{PipelineID: "p1", StartedAt: time.Now()}))

	stats, err := dm.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.SchemaVersion)
	assert.Equal(t, int64(1), stats.TotalSessions)
	assert.Equal(t, int64(1), stats.ActiveSessions)
	assert.Equal(t, int64(0), stats.TotalAnswers)
	assert.Nil(t, stats.OldestAnswer)
	assert.Greater(t, stats.FileSize, int64(0))
}

func TestDatabaseManager_Backup(t *testing.T) {
	dm := newTestManager(t)
	backupPath := filepath.Join(t.TempDir(), "backup.db")

	require.NoError(t, dm.ArchiveRepository().CreateSession(context.Background(), &Session{PipelineID: "p1", StartedAt: time.Now()}))
	require.NoError(t, dm.Backup(backupPath))

	_, err := os.Stat(backupPath)
	require.NoError(t, err)

	config := DefaultDatabaseConfig()
	config.DatabasePath = backupPath
	restored, err := NewDatabaseManager(config, nil)
	require.NoError(t, err)
	require.NoError(t, restored.Connect())
	defer restored.Close()

	session, err := restored.ArchiveRepository().GetSession(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, session.IsActive())
}

func TestDatabaseConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *DatabaseConfig)
		expectError error
	}{
		{
			name:   "valid config",
			mutate: func(c *DatabaseConfig) {},
		},
		{
			name:        "invalid database path",
			mutate:      func(c *DatabaseConfig) { c.DatabasePath = "" },
			expectError: ErrInvalidDatabasePath,
		},
		{
			name:        "invalid max connections",
			mutate:      func(c *DatabaseConfig) { c.MaxConnections = 0 },
			expectError: ErrInvalidMaxConnections,
		},
		{
			name:        "invalid connection timeout",
			mutate:      func(c *DatabaseConfig) { c.ConnectionTimeout = 0 },
			expectError: ErrInvalidConnectionTimeout,
		},
		{
			name:        "invalid retention",
			mutate:      func(c *DatabaseConfig) { c.Retention = -time.Hour },
			expectError: ErrInvalidRetention,
		},
		{
			name:        "invalid cleanup interval",
			mutate:      func(c *DatabaseConfig) { c.CleanupInterval = 0 },
			expectError: ErrInvalidCleanupInterval,
		},
		{
			name:        "invalid synchronous mode",
			mutate:      func(c *DatabaseConfig) { c.SynchronousMode = "INVALID" },
			expectError: ErrInvalidSynchronousMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultDatabaseConfig()
			tt.mutate(config)
			err := config.Validate()

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
