package database

import "errors"

// Database configuration errors
var (
	ErrInvalidDatabasePath      = errors.New("invalid database path")
	ErrInvalidMaxConnections    = errors.New("invalid max connections")
	ErrInvalidConnectionTimeout = errors.New("invalid connection timeout")
	ErrInvalidRetention         = errors.New("invalid archive retention")
	ErrInvalidCleanupInterval   = errors.New("invalid cleanup interval")
	ErrInvalidSynchronousMode   = errors.New("invalid synchronous mode")
)

// Database operation errors
var (
	ErrDatabaseNotConnected = errors.New("database not connected")
	ErrMigrationFailed      = errors.New("migration failed")
	ErrBackupFailed         = errors.New("backup failed")
)

// Repository errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session already ended")
)

// Migration errors
var (
	ErrMigrationNotFound       = errors.New("migration not found")
	ErrInvalidMigrationVersion = errors.New("invalid migration version")
	ErrChecksumMismatch        = errors.New("migration checksum mismatch")
)
