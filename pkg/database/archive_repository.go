package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// archiveRepository implements the ArchiveRepository interface
type archiveRepository struct {
	db *sql.DB
}

// NewArchiveRepository creates an archive repository over a migrated database
func NewArchiveRepository(db *sql.DB) ArchiveRepository {
	return &archiveRepository{db: db}
}

// CreateSession records the start of a pipeline run
func (r *archiveRepository) CreateSession(ctx context.Context, session *Session) error {
	query := `
	INSERT INTO pipeline_sessions (pipeline_id, started_at)
	VALUES (?, ?)
	`

	if _, err := r.db.ExecContext(ctx, query, session.PipelineID, session.StartedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// EndSession records the end of a pipeline run and its final counters
func (r *archiveRepository) EndSession(ctx context.Context, pipelineID, finalState string, metrics map[string]int64) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal session metrics: %w", err)
	}

	query := `
	UPDATE pipeline_sessions
	SET ended_at = ?, final_state = ?, metrics = ?
	WHERE pipeline_id = ? AND ended_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, time.Now(), finalState, string(data), pipelineID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if affected == 0 {
		session, getErr := r.GetSession(ctx, pipelineID)
		if getErr != nil {
			return getErr
		}
		if !session.IsActive() {
			return fmt.Errorf("%w: %s", ErrSessionEnded, pipelineID)
		}
	}
	return nil
}

// GetSession returns one session by pipeline ID
func (r *archiveRepository) GetSession(ctx context.Context, pipelineID string) (*Session, error) {
	query := `
	SELECT pipeline_id, started_at, ended_at, final_state, metrics
	FROM pipeline_sessions
	WHERE pipeline_id = ?
	`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, pipelineID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, pipelineID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// GetActiveSessions returns sessions that have not ended
func (r *archiveRepository) GetActiveSessions(ctx context.Context) ([]*Session, error) {
	query := `
	SELECT pipeline_id, started_at, ended_at, final_state, metrics
	FROM pipeline_sessions
	WHERE ended_at IS NULL
	ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		session    Session
		endedAt    sql.NullTime
		finalState sql.NullString
		metrics    sql.NullString
	)

	if err := row.Scan(&session.PipelineID, &session.StartedAt, &endedAt, &finalState, &metrics); err != nil {
		return nil, err
	}

	if endedAt.Valid {
		ended := endedAt.Time
		session.EndedAt = &ended
	}
	session.FinalState = finalState.String

	if metrics.Valid && metrics.String != "" {
		if err := json.Unmarshal([]byte(metrics.String), &session.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session metrics: %w", err)
		}
	}

	return &session, nil
}

// StoreAnswer appends an answer to the archive
func (r *archiveRepository) StoreAnswer(ctx context.Context, answer *AnswerRecord) error {
	query := `
	INSERT INTO answers (pipeline_id, item_id, question, category, confidence, body, generated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		answer.PipelineID,
		answer.ItemID,
		answer.Question,
		answer.Category,
		answer.Confidence,
		answer.Body,
		answer.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store answer: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		answer.ID = id
	}
	return nil
}

// GetAnswers returns answers matching the query, newest first
func (r *archiveRepository) GetAnswers(ctx context.Context, query *AnswerQuery) ([]*AnswerRecord, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if query != nil {
		if query.PipelineID != "" {
			conditions = append(conditions, "pipeline_id = ?")
			args = append(args, query.PipelineID)
		}
		if query.Category != "" {
			conditions = append(conditions, "category = ?")
			args = append(args, query.Category)
		}
		if !query.Since.IsZero() {
			conditions = append(conditions, "generated_at >= ?")
			args = append(args, query.Since)
		}
	}

	sqlQuery := `
	SELECT id, pipeline_id, item_id, question, category, confidence, body, generated_at
	FROM answers`
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlQuery += " ORDER BY generated_at DESC, id DESC"
	if query != nil && query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	var answers []*AnswerRecord
	for rows.Next() {
		answer := &AnswerRecord{}
		err := rows.Scan(
			&answer.ID,
			&answer.PipelineID,
			&answer.ItemID,
			&answer.Question,
			&answer.Category,
			&answer.Confidence,
			&answer.Body,
			&answer.GeneratedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, answer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answers: %w", err)
	}
	return answers, nil
}

// StoreEvents inserts events in one transaction. Events already archived
// are skipped; the returned count only includes new rows.
func (r *archiveRepository) StoreEvents(ctx context.Context, events []*EventRecord) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO pipeline_events (event_id, pipeline_id, event_type, component, message, fields, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	stored := 0
	for _, event := range events {
		fields, err := json.Marshal(event.Fields)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal event fields: %w", err)
		}

		result, err := stmt.ExecContext(ctx,
			event.EventID,
			event.PipelineID,
			event.Type,
			event.Component,
			event.Message,
			string(fields),
			event.Timestamp,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to store event %s: %w", event.EventID, err)
		}
		if affected, err := result.RowsAffected(); err == nil {
			stored += int(affected)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit events: %w", err)
	}
	return stored, nil
}

// GetEvents returns events matching the query, oldest first
func (r *archiveRepository) GetEvents(ctx context.Context, query *EventQuery) ([]*EventRecord, error) {
	var (
		conditions []string
		args       []interface{}
	)

	if query != nil {
		if query.PipelineID != "" {
			conditions = append(conditions, "pipeline_id = ?")
			args = append(args, query.PipelineID)
		}
		if query.Type != "" {
			conditions = append(conditions, "event_type = ?")
			args = append(args, query.Type)
		}
		if !query.Since.IsZero() {
			conditions = append(conditions, "timestamp >= ?")
			args = append(args, query.Since)
		}
	}

	sqlQuery := `
	SELECT event_id, pipeline_id, event_type, component, message, fields, timestamp
	FROM pipeline_events`
	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	sqlQuery += " ORDER BY timestamp ASC, id ASC"
	if query != nil && query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		var (
			event     EventRecord
			component sql.NullString
			fields    sql.NullString
		)
		err := rows.Scan(
			&event.EventID,
			&event.PipelineID,
			&event.Type,
			&component,
			&event.Message,
			&fields,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Component = component.String
		if fields.Valid && fields.String != "" && fields.String != "null" {
			if err := json.Unmarshal([]byte(fields.String), &event.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event fields: %w", err)
			}
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// CleanExpired deletes answers, events and ended sessions older than before
func (r *archiveRepository) CleanExpired(ctx context.Context, before time.Time) (*CleanupStats, error) {
	start := time.Now()
	stats := &CleanupStats{}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	steps := []struct {
		query string
		count *int64
	}{
		{"DELETE FROM answers WHERE generated_at < ?", &stats.AnswersDeleted},
		{"DELETE FROM pipeline_events WHERE timestamp < ?", &stats.EventsDeleted},
		{"DELETE FROM pipeline_sessions WHERE ended_at IS NOT NULL AND ended_at < ?", &stats.SessionsDeleted},
	}

	for _, step := range steps {
		result, err := tx.ExecContext(ctx, step.query, before)
		if err != nil {
			return nil, fmt.Errorf("failed to clean expired rows: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil {
			*step.count = affected
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// Counts returns row counts and the answer time range
func (r *archiveRepository) Counts(ctx context.Context) (*DatabaseStats, error) {
	stats := &DatabaseStats{}

	counts := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM pipeline_sessions", &stats.TotalSessions},
		{"SELECT COUNT(*) FROM pipeline_sessions WHERE ended_at IS NULL", &stats.ActiveSessions},
		{"SELECT COUNT(*) FROM answers", &stats.TotalAnswers},
		{"SELECT COUNT(*) FROM pipeline_events", &stats.TotalEvents},
	}

	for _, c := range counts {
		if err := r.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	if stats.TotalAnswers > 0 {
		var oldest, newest time.Time
		err := r.db.QueryRowContext(ctx, "SELECT generated_at FROM answers ORDER BY generated_at ASC LIMIT 1").Scan(&oldest)
		if err == nil {
			stats.OldestAnswer = &oldest
		}
		err = r.db.QueryRowContext(ctx, "SELECT generated_at FROM answers ORDER BY generated_at DESC LIMIT 1").Scan(&newest)
		if err == nil {
			stats.NewestAnswer = &newest
		}
	}

	return stats, nil
}
