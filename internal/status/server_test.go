package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/database"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	running   bool
	healthy   bool
	submitted []string
	recovered []string
	events    []pipeline.Event
}

func (f *fakePipeline) Start(context.Context) error { f.running = true; return nil }
func (f *fakePipeline) Stop() error                 { f.running = false; return nil }

func (f *fakePipeline) SubmitManualInput(text string) error {
	if !f.running {
		return pipeline.ErrPipelineNotRunning
	}
	if strings.TrimSpace(text) == "" {
		return pipeline.ErrEmptyInput
	}
	f.submitted = append(f.submitted, text)
	return nil
}

func (f *fakePipeline) FullRecovery(reason string) error {
	if !f.running {
		return pipeline.ErrPipelineNotRunning
	}
	f.recovered = append(f.recovered, reason)
	return nil
}

func (f *fakePipeline) GetState() pipeline.PipelineState {
	if f.running {
		return pipeline.StateRunning
	}
	return pipeline.StateIdle
}

func (f *fakePipeline) Status() pipeline.StatusReport {
	overall := pipeline.OverallHealthy
	if !f.healthy {
		overall = pipeline.OverallComponentsFailed
	}
	return pipeline.StatusReport{
		PipelineID: "p1",
		State:      f.GetState(),
		Overall:    overall,
		Components: []pipeline.ComponentRecord{
			{Name: "classifier", Status: pipeline.StatusHealthy},
			{Name: "capture.primary", Status: pipeline.StatusFailed, FailureCount: 2},
		},
		Metrics:     map[string]int64{"items_answered": 3},
		QueueDepths: map[string]int{"transcription": 1},
		Telemetry: pipeline.CollectorSnapshot{
			StageLatency: map[string]pipeline.LatencyStats{"classify": {Count: 3, AvgMs: 12.5}},
			StageErrors:  map[string]int64{"capture.primary": 2},
		},
	}
}

func (f *fakePipeline) Events(limit int) []pipeline.Event {
	if limit < len(f.events) {
		return f.events[len(f.events)-limit:]
	}
	return f.events
}

func (f *fakePipeline) IsHealthy() bool { return f.healthy }

type fakeAnswers struct {
	query *database.AnswerQuery
	err   error
}

func (f *fakeAnswers) GetAnswers(_ context.Context, query *database.AnswerQuery) ([]*database.AnswerRecord, error) {
	f.query = query
	if f.err != nil {
		return nil, f.err
	}
	return []*database.AnswerRecord{{ItemID: "a1", Question: "what is dns", Category: query.Category, GeneratedAt: time.Now()}}, nil
}

func do(t *testing.T, s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	p := &fakePipeline{running: true, healthy: true}
	s := NewServer("", "", p, nil, nil)

	rec := do(t, s, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Healthy bool   `json:"healthy"`
		State   string `json:"state"`
		Overall string `json:"overall"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Healthy)
	assert.Equal(t, "running", body.State)
	assert.Equal(t, pipeline.OverallHealthy.String(), body.Overall)

	p.healthy = false
	rec = do(t, s, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadEndpoints(t *testing.T) {
	p := &fakePipeline{running: true, healthy: true}
	for i := 0; i < 5; i++ {
		p.events = append(p.events, pipeline.NewEvent(pipeline.EventStateChange, "", "changed"))
	}
	s := NewServer("", "", p, nil, nil)

	rec := do(t, s, http.MethodGet, "/api/status", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pipeline_id":"p1"`)

	rec = do(t, s, http.MethodGet, "/api/components", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var components []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &components))
	assert.Len(t, components, 2)

	rec = do(t, s, http.MethodGet, "/api/components/capture.primary", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failure_count":2`)

	rec = do(t, s, http.MethodGet, "/api/components/ghost", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items_answered":3`)

	var metrics struct {
		StageLatency map[string]pipeline.LatencyStats `json:"stage_latency"`
		StageErrors  map[string]int64                 `json:"stage_errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, int64(3), metrics.StageLatency["classify"].Count)
	assert.Equal(t, 12.5, metrics.StageLatency["classify"].AvgMs)
	assert.Equal(t, int64(2), metrics.StageErrors["capture.primary"])

	rec = do(t, s, http.MethodGet, "/api/events?limit=2", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var events []pipeline.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	assert.Len(t, events, 2)
}

func TestAnswersEndpoint(t *testing.T) {
	p := &fakePipeline{running: true}

	disabled := NewServer("", "", p, nil, nil)
	assert.Equal(t, http.StatusNotFound, do(t, disabled, http.MethodGet, "/api/answers", "", "").Code)

	answers := &fakeAnswers{}
	s := NewServer("", "", p, answers, nil)
	rec := do(t, s, http.MethodGet, "/api/answers?category=networking&limit=5", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "what is dns")
	assert.Equal(t, "networking", answers.query.Category)
	assert.Equal(t, 5, answers.query.Limit)

	answers.err = errors.New("disk full")
	assert.Equal(t, http.StatusInternalServerError, do(t, s, http.MethodGet, "/api/answers", "", "").Code)
}

func TestSubmitInput(t *testing.T) {
	p := &fakePipeline{}
	s := NewServer("", "", p, nil, nil)

	rec := do(t, s, http.MethodPost, "/api/input", `{"text":"what is a heap"}`, "")
	assert.Equal(t, http.StatusConflict, rec.Code, "pipeline not running")

	p.running = true
	rec = do(t, s, http.MethodPost, "/api/input", `{"text":"what is a heap"}`, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"what is a heap"}, p.submitted)

	rec = do(t, s, http.MethodPost, "/api/input", `{"text":"   "}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/input", `{"text":`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecover(t *testing.T) {
	p := &fakePipeline{running: true}
	s := NewServer("", "", p, nil, nil)

	rec := do(t, s, http.MethodPost, "/api/recovery", `{"reason":"mic replugged"}`, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/recovery", `{}`, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"mic replugged", "requested over http"}, p.recovered)
}

func TestTokenProtectsWrites(t *testing.T) {
	p := &fakePipeline{running: true, healthy: true}
	s := NewServer("", "secret", p, nil, nil)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/health", "", "").Code, "reads stay open")

	assert.NotEqual(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/input", `{"text":"x y z"}`, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodPost, "/api/input", `{"text":"x y z"}`, "wrong").Code)
	assert.Equal(t, http.StatusAccepted, do(t, s, http.MethodPost, "/api/input", `{"text":"x y z"}`, "secret").Code)
	assert.Equal(t, []string{"x y z"}, p.submitted)
}

func TestServerStartAndShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", "", &fakePipeline{}, nil, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
