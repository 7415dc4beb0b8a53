package database

import (
	"context"
	"sync"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// Archive connects a pipeline run to the database. It is a pipeline.Display
// that stores every shown answer, and it records the run's session and events.
type Archive struct {
	dm     DatabaseManager
	logger pipeline.Logger

	mu         sync.RWMutex
	pipelineID string
}

// NewArchive creates an archive over a connected database manager
func NewArchive(dm DatabaseManager, logger pipeline.Logger) *Archive {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Archive{
		dm:     dm,
		logger: logger.With(pipeline.String("component", "archive")),
	}
}

// BeginSession records the start of the run identified by pipelineID.
// Answers shown afterwards are attributed to it.
func (a *Archive) BeginSession(ctx context.Context, pipelineID string, startedAt time.Time) error {
	repo := a.dm.ArchiveRepository()
	if repo == nil {
		return ErrDatabaseNotConnected
	}

	if err := repo.CreateSession(ctx, &Session{PipelineID: pipelineID, StartedAt: startedAt}); err != nil {
		return err
	}

	a.mu.Lock()
	a.pipelineID = pipelineID
	a.mu.Unlock()

	a.logger.Info("Session started", pipeline.String("pipeline_id", pipelineID))
	return nil
}

// EndSession records the final state and counters of the current run
func (a *Archive) EndSession(ctx context.Context, finalState string, metrics map[string]int64) error {
	repo := a.dm.ArchiveRepository()
	if repo == nil {
		return ErrDatabaseNotConnected
	}

	pipelineID := a.PipelineID()
	if pipelineID == "" {
		return ErrSessionNotFound
	}

	if err := repo.EndSession(ctx, pipelineID, finalState, metrics); err != nil {
		return err
	}

	a.logger.Info("Session ended",
		pipeline.String("pipeline_id", pipelineID),
		pipeline.String("final_state", finalState),
	)
	return nil
}

// PipelineID returns the run answers are attributed to
func (a *Archive) PipelineID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pipelineID
}

// Show stores the answer
func (a *Archive) Show(ctx context.Context, answer pipeline.Answer) error {
	repo := a.dm.ArchiveRepository()
	if repo == nil {
		return ErrDatabaseNotConnected
	}

	generatedAt := answer.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	return repo.StoreAnswer(ctx, &AnswerRecord{
		PipelineID:  a.PipelineID(),
		ItemID:      answer.ItemID,
		Question:    answer.Question,
		Category:    answer.Category,
		Confidence:  answer.Confidence,
		Body:        answer.Body,
		GeneratedAt: generatedAt,
	})
}

// Hide is a no-op; archived answers are never withdrawn
func (a *Archive) Hide(ctx context.Context) error {
	return nil
}

// Healthy reports whether the database answers a ping
func (a *Archive) Healthy(ctx context.Context) bool {
	return a.dm.Ping(ctx) == nil
}

// Restart reconnects a dropped database
func (a *Archive) Restart(ctx context.Context) error {
	if a.dm.Ping(ctx) == nil {
		return nil
	}
	_ = a.dm.Close()
	return a.dm.Connect()
}

// ArchiveEvents stores pipeline events of the current run. Events already
// archived are skipped, so the full recent history can be passed each time.
func (a *Archive) ArchiveEvents(ctx context.Context, events []pipeline.Event) (int, error) {
	repo := a.dm.ArchiveRepository()
	if repo == nil {
		return 0, ErrDatabaseNotConnected
	}

	pipelineID := a.PipelineID()
	records := make([]*EventRecord, 0, len(events))
	for _, event := range events {
		records = append(records, &EventRecord{
			EventID:    event.ID,
			PipelineID: pipelineID,
			Type:       string(event.Type),
			Component:  event.Component,
			Message:    event.Message,
			Fields:     event.Fields,
			Timestamp:  event.Timestamp,
		})
	}

	return repo.StoreEvents(ctx, records)
}
