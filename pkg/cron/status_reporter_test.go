package cron

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/database"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	events []pipeline.Event
}

func (f *fakeSource) Status() pipeline.StatusReport {
	return pipeline.StatusReport{
		PipelineID:  "p1",
		State:       pipeline.StateDegraded,
		Overall:     pipeline.OverallComponentsFailed,
		InputMethod: pipeline.MethodSecondary,
		Components: []pipeline.ComponentRecord{
			{Name: "classifier", Status: pipeline.StatusHealthy},
			{Name: "capture.primary", Status: pipeline.StatusFailed},
		},
		Metrics: map[string]int64{"items_answered": 4},
		Telemetry: pipeline.CollectorSnapshot{
			StageLatency: map[string]pipeline.LatencyStats{"classify": {Count: 4, AvgMs: 8}},
		},
	}
}

func (f *fakeSource) Events(limit int) []pipeline.Event { return f.events }

type fakeArchive struct {
	mu      sync.Mutex
	batches [][]pipeline.Event
	err     error
}

func (f *fakeArchive) ArchiveEvents(_ context.Context, events []pipeline.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.batches = append(f.batches, events)
	return len(events), nil
}

func (f *fakeArchive) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func TestReportLogsDigestAndArchives(t *testing.T) {
	var buf bytes.Buffer
	logger, err := pipeline.NewZapLoggerWithWriter(pipeline.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	source := &fakeSource{events: []pipeline.Event{
		pipeline.NewEvent(pipeline.EventStateChange, "", "running"),
	}}
	archive := &fakeArchive{}

	reporter, err := NewStatusReporter(source, archive, "", logger)
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, reporter.GetSchedule())

	reporter.Report(context.Background())

	out := buf.String()
	assert.Contains(t, out, `"state":"degraded"`)
	assert.Contains(t, out, `"input_method":"secondary"`)
	assert.Contains(t, out, "capture.primary")
	assert.Contains(t, out, `"avg_ms":8`)
	assert.Equal(t, 1, archive.count())

	runs, last := reporter.Runs()
	assert.Equal(t, 1, runs)
	assert.False(t, last.IsZero())
	assert.False(t, reporter.IsRunning())
}

type fakeStats struct {
	err error
}

func (f *fakeStats) GetStats(context.Context) (*database.DatabaseStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &database.DatabaseStats{SchemaVersion: 2, TotalSessions: 3, TotalAnswers: 17, FileSize: 4096}, nil
}

func TestReportIncludesArchiveStats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := pipeline.NewZapLoggerWithWriter(pipeline.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	reporter, err := NewStatusReporter(&fakeSource{}, nil, "", logger)
	require.NoError(t, err)
	reporter.SetArchiveStats(&fakeStats{})

	reporter.Report(context.Background())

	out := buf.String()
	assert.Contains(t, out, "Archive status")
	assert.Contains(t, out, `"schema_version":2`)
	assert.Contains(t, out, `"answers":17`)

	buf.Reset()
	reporter.SetArchiveStats(&fakeStats{err: errors.New("no such table")})
	reporter.Report(context.Background())
	assert.Contains(t, buf.String(), "Failed to read archive stats")
}

func TestReportSurvivesArchiveFailure(t *testing.T) {
	archive := &fakeArchive{err: errors.New("database is locked")}
	reporter, err := NewStatusReporter(&fakeSource{}, archive, "", nil)
	require.NoError(t, err)

	reporter.Report(context.Background())

	runs, _ := reporter.Runs()
	assert.Equal(t, 1, runs)
}

func TestReportWithoutArchive(t *testing.T) {
	reporter, err := NewStatusReporter(&fakeSource{}, nil, "", nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() { reporter.Report(context.Background()) })
}

func TestInvalidSchedule(t *testing.T) {
	_, err := NewStatusReporter(&fakeSource{}, nil, "every tuesday", nil)
	assert.Error(t, err)
}

func TestScheduledRuns(t *testing.T) {
	archive := &fakeArchive{}
	reporter, err := NewStatusReporter(&fakeSource{}, archive, "@every 1s", nil)
	require.NoError(t, err)

	reporter.Start()
	defer reporter.Stop()

	assert.False(t, reporter.GetNextRun().IsZero())
	assert.Eventually(t, func() bool { return archive.count() > 0 }, 3*time.Second, 50*time.Millisecond)
}
