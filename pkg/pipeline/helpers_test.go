package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type stubCapture struct {
	name      string
	capturing atomic.Bool
	starts    atomic.Int32
	mu        sync.Mutex
	chunks    [][]byte
	startErr  error
}

func newStubCapture(name string, capturing bool) *stubCapture {
	c := &stubCapture{name: name}
	c.capturing.Store(capturing)
	return c
}

func (c *stubCapture) Name() string { return c.name }

func (c *stubCapture) Start(ctx context.Context) error {
	c.starts.Add(1)
	return c.startErr
}

func (c *stubCapture) Stop() error { return nil }

func (c *stubCapture) IsCapturing() bool { return c.capturing.Load() }

func (c *stubCapture) feed(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, data)
}

func (c *stubCapture) PullAvailableData() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.chunks) == 0 {
		return nil
	}
	data := c.chunks[0]
	c.chunks = c.chunks[1:]
	return data
}

type stubTranscriber struct {
	err        error
	confidence float64
	calls      atomic.Int32
}

func (s *stubTranscriber) Transcribe(ctx context.Context, data []byte) (Transcription, error) {
	s.calls.Add(1)
	if s.err != nil {
		return Transcription{}, s.err
	}
	return Transcription{Text: string(data), Confidence: s.confidence}, nil
}

type stubClassifier struct {
	confidence float64
	err        error
	calls      atomic.Int32
}

func (s *stubClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	s.calls.Add(1)
	if s.err != nil {
		return Classification{}, s.err
	}
	return Classification{Category: "algorithm", Confidence: s.confidence}, nil
}

// flakyClassifier fails its first failures calls, then answers with full confidence
type flakyClassifier struct {
	failures atomic.Int32
	calls    atomic.Int32
}

func (s *flakyClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	s.calls.Add(1)
	if s.failures.Add(-1) >= 0 {
		return Classification{}, errBoom
	}
	return Classification{Category: "algorithm", Confidence: 1.0}, nil
}

// panickyCapture panics in PullAvailableData while panics is positive
type panickyCapture struct {
	*stubCapture
	panics atomic.Int32
}

func (c *panickyCapture) PullAvailableData() []byte {
	if c.panics.Add(-1) >= 0 {
		panic("capture device vanished")
	}
	return c.stubCapture.PullAvailableData()
}

type stubGenerator struct {
	err   error
	panic bool
}

func (s *stubGenerator) Generate(ctx context.Context, c Classification, text string) (Answer, error) {
	if s.panic {
		panic("template exploded")
	}
	if s.err != nil {
		return Answer{}, s.err
	}
	return Answer{Body: "answer for " + text}, nil
}

type stubDisplay struct {
	mu     sync.Mutex
	shown  []Answer
	hidden int
	delay  time.Duration
}

func (d *stubDisplay) Show(ctx context.Context, answer Answer) error {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown = append(d.shown, answer)
	return nil
}

func (d *stubDisplay) Hide(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hidden++
	return nil
}

func (d *stubDisplay) Shown() []Answer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Answer, len(d.shown))
	copy(out, d.shown)
	return out
}

var errBoom = errors.New("boom")

// testConfig returns a configuration with short intervals for loop tests
func testConfig() *PipelineConfig {
	cfg := DefaultPipelineConfig()
	cfg.Health.CheckInterval = time.Hour
	cfg.Health.CheckTimeout = 200 * time.Millisecond
	cfg.Recovery.Cooldown = 0
	cfg.Processing.CaptureInterval = 5 * time.Millisecond
	cfg.Processing.ProcessInterval = 5 * time.Millisecond
	cfg.Processing.DisplayInterval = 5 * time.Millisecond
	cfg.Processing.StageTimeout = time.Second
	cfg.Processing.RenderBudget = 100 * time.Millisecond
	cfg.Processing.ShutdownTimeout = 2 * time.Second
	return cfg
}

func newTestCollaborators() (Collaborators, *stubCapture, *stubClassifier, *stubDisplay) {
	capture := newStubCapture("mic", true)
	classifier := &stubClassifier{confidence: 1.0}
	display := &stubDisplay{}
	return Collaborators{
		Inputs: map[InputMethod]InputBinding{
			MethodPrimary: {Capture: capture},
		},
		Transcriber: &stubTranscriber{confidence: 0.9},
		Classifier:  classifier,
		Generator:   &stubGenerator{},
		Display:     display,
	}, capture, classifier, display
}
