package cron

import (
	"context"
	"sync"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/database"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the report every five minutes
const DefaultSchedule = "0 */5 * * * *"

// StatusSource is the part of the pipeline the reporter reads
type StatusSource interface {
	Status() pipeline.StatusReport
	Events(limit int) []pipeline.Event
}

// EventArchiver persists pipeline events
type EventArchiver interface {
	ArchiveEvents(ctx context.Context, events []pipeline.Event) (int, error)
}

// ArchiveStats reports the size of the answer archive
type ArchiveStats interface {
	GetStats(ctx context.Context) (*database.DatabaseStats, error)
}

// StatusReporter logs a health digest of the pipeline on a cron schedule
// and flushes recent events to the archive
type StatusReporter struct {
	cron      *cron.Cron
	cronEntry cron.EntryID
	source    StatusSource
	archive   EventArchiver
	stats     ArchiveStats
	logger    pipeline.Logger
	mutex     sync.RWMutex
	isRunning bool
	schedule  string
	runs      int
	lastRun   time.Time
}

// NewStatusReporter schedules the report. archive may be nil.
func NewStatusReporter(source StatusSource, archive EventArchiver, schedule string, logger pipeline.Logger) (*StatusReporter, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	reporter := &StatusReporter{
		cron:     cron.New(cron.WithSeconds()),
		source:   source,
		archive:  archive,
		logger:   logger.With(pipeline.String("component", "status_reporter")),
		schedule: schedule,
	}

	entryID, err := reporter.cron.AddFunc(schedule, reporter.run)
	if err != nil {
		return nil, err
	}
	reporter.cronEntry = entryID

	return reporter, nil
}

// Start starts the scheduler
func (sr *StatusReporter) Start() {
	sr.cron.Start()
	sr.logger.Info("Scheduled status report", pipeline.String("schedule", sr.schedule))
}

func (sr *StatusReporter) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sr.Report(ctx)
}

// Report logs one digest and archives events. A report already in progress
// makes this call a no-op.
func (sr *StatusReporter) Report(ctx context.Context) {
	sr.mutex.Lock()
	if sr.isRunning {
		sr.mutex.Unlock()
		sr.logger.Debug("Status report already in progress, skipping")
		return
	}
	sr.isRunning = true
	sr.mutex.Unlock()

	defer func() {
		sr.mutex.Lock()
		sr.isRunning = false
		sr.runs++
		sr.lastRun = time.Now()
		sr.mutex.Unlock()
	}()

	report := sr.source.Status()

	var failed []string
	for _, component := range report.Components {
		if component.Status == pipeline.StatusFailed || component.Status == pipeline.StatusRecovering {
			failed = append(failed, component.Name)
		}
	}

	sr.logger.Info("Pipeline status",
		pipeline.String("pipeline_id", report.PipelineID),
		pipeline.String("state", report.State.String()),
		pipeline.String("overall", report.Overall.String()),
		pipeline.String("input_method", report.InputMethod.String()),
		pipeline.Any("unhealthy", failed),
		pipeline.Any("counters", report.Metrics),
		pipeline.Any("queue_depths", report.QueueDepths),
		pipeline.Any("stage_latency", report.Telemetry.StageLatency),
		pipeline.Any("stage_errors", report.Telemetry.StageErrors),
		pipeline.Any("recoveries", report.Telemetry.Recoveries),
		pipeline.String("uptime", report.Uptime),
	)

	sr.archiveEvents(ctx)
	sr.logArchiveStats(ctx)
}

// SetArchiveStats adds archive statistics to every report
func (sr *StatusReporter) SetArchiveStats(stats ArchiveStats) {
	sr.mutex.Lock()
	defer sr.mutex.Unlock()
	sr.stats = stats
}

func (sr *StatusReporter) archiveEvents(ctx context.Context) {
	if sr.archive == nil {
		return
	}

	stored, err := sr.archive.ArchiveEvents(ctx, sr.source.Events(0))
	if err != nil {
		sr.logger.Warn("Failed to archive events", pipeline.Error(err))
		return
	}
	if stored > 0 {
		sr.logger.Debug("Archived events", pipeline.Int("count", stored))
	}
}

func (sr *StatusReporter) logArchiveStats(ctx context.Context) {
	sr.mutex.RLock()
	source := sr.stats
	sr.mutex.RUnlock()
	if source == nil {
		return
	}

	stats, err := source.GetStats(ctx)
	if err != nil {
		sr.logger.Warn("Failed to read archive stats", pipeline.Error(err))
		return
	}

	sr.logger.Info("Archive status",
		pipeline.Int("schema_version", stats.SchemaVersion),
		pipeline.Int64("sessions", stats.TotalSessions),
		pipeline.Int64("active_sessions", stats.ActiveSessions),
		pipeline.Int64("answers", stats.TotalAnswers),
		pipeline.Int64("events", stats.TotalEvents),
		pipeline.Int64("file_size", stats.FileSize),
	)
}

// Stop stops the scheduler and waits for a running report
func (sr *StatusReporter) Stop() {
	if sr.cron != nil {
		<-sr.cron.Stop().Done()
		sr.logger.Info("Status reporter stopped")
	}
}

// GetNextRun returns the next scheduled run time
func (sr *StatusReporter) GetNextRun() time.Time {
	return sr.cron.Entry(sr.cronEntry).Next
}

// IsRunning returns whether a report is currently in progress
func (sr *StatusReporter) IsRunning() bool {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()
	return sr.isRunning
}

// Runs returns how many reports completed and when the last one finished
func (sr *StatusReporter) Runs() (int, time.Time) {
	sr.mutex.RLock()
	defer sr.mutex.RUnlock()
	return sr.runs, sr.lastRun
}

// GetSchedule returns the cron schedule
func (sr *StatusReporter) GetSchedule() string {
	return sr.schedule
}
