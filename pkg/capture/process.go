package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/audio"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// ErrNotRunning is returned when a stopped capture is asked for its process
var ErrNotRunning = errors.New("capture is not running")

// ProcessConfig configures a recorder subprocess writing s16le PCM to stdout
type ProcessConfig struct {
	Name    string
	Command string
	Args    []string
	Format  audio.Format
	// ChunkDuration is the minimum audio handed out per pull
	ChunkDuration time.Duration
	// MaxBuffer bounds the unread audio kept in memory
	MaxBuffer time.Duration
	// StallTimeout is how long the recorder may go without output
	// before IsCapturing reports false
	StallTimeout time.Duration
}

// ProcessCapture runs a recorder process and buffers its output
type ProcessCapture struct {
	config ProcessConfig
	logger pipeline.Logger
	buffer *pcmBuffer

	mu        sync.RWMutex
	cmd       *exec.Cmd
	cancel    context.CancelFunc
	done      chan struct{}
	running   bool
	startedAt time.Time
	lastData  time.Time
	exitErr   error
	stderr    string
}

// NewProcessCapture creates a capture over the given recorder command
func NewProcessCapture(config ProcessConfig, logger pipeline.Logger) (*ProcessCapture, error) {
	if config.Command == "" {
		return nil, fmt.Errorf("capture %s: missing command", config.Name)
	}
	if config.Format.SampleRate == 0 {
		config.Format = audio.SpeechFormat
	}
	if config.ChunkDuration <= 0 {
		config.ChunkDuration = 2 * time.Second
	}
	if config.MaxBuffer < config.ChunkDuration {
		config.MaxBuffer = 5 * config.ChunkDuration
	}
	if config.StallTimeout <= 0 {
		config.StallTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	maxBytes := int(config.MaxBuffer.Seconds() * float64(config.Format.BytesPerSecond()))

	return &ProcessCapture{
		config: config,
		logger: logger.With(pipeline.String("component", "capture"), pipeline.String("capture", config.Name)),
		buffer: newPCMBuffer(maxBytes, config.Format.FrameSize()),
	}, nil
}

// Name implements pipeline.Capture
func (pc *ProcessCapture) Name() string {
	return pc.config.Name
}

// Start launches the recorder. The process is not bound to ctx; it runs
// until Stop.
func (pc *ProcessCapture) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.running {
		return nil
	}
	if pc.cancel != nil {
		pc.cancel()
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, pc.config.Command, pc.config.Args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stdout pipe: %v", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stderr pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start %s: %w", pc.config.Command, err)
	}

	now := time.Now()
	pc.cmd = cmd
	pc.cancel = cancel
	pc.done = make(chan struct{})
	pc.running = true
	pc.startedAt = now
	pc.lastData = time.Time{}
	pc.exitErr = nil
	pc.stderr = ""
	pc.buffer.Reset()

	pc.logger.Info("Started recorder process",
		pipeline.String("command", pc.config.Command),
		pipeline.Int("pid", cmd.Process.Pid),
	)

	go pc.run(cmd, stdout, stderr, pc.done)
	return nil
}

// run reads the recorder output until it exits
func (pc *ProcessCapture) run(cmd *exec.Cmd, stdout, stderr io.ReadCloser, done chan struct{}) {
	defer close(done)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pc.consumeStderr(stderr)
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			pc.buffer.Append(buf[:n])
			pc.mu.Lock()
			pc.lastData = time.Now()
			pc.mu.Unlock()
		}
		if err != nil {
			break
		}
	}

	wg.Wait()
	waitErr := cmd.Wait()

	pc.mu.Lock()
	if pc.cmd == cmd {
		pc.running = false
		pc.exitErr = waitErr
	}
	tail := pc.stderr
	pc.mu.Unlock()

	pc.logger.Info("Recorder process exited", pipeline.Error(waitErr), pipeline.String("stderr", tail))
}

// consumeStderr drains stderr and keeps its last line for diagnostics
func (pc *ProcessCapture) consumeStderr(stderr io.Reader) {
	buffer := make([]byte, 1024)
	for {
		n, err := stderr.Read(buffer)
		if n > 0 {
			lines := strings.Split(strings.TrimSpace(string(buffer[:n])), "\n")
			pc.mu.Lock()
			pc.stderr = lines[len(lines)-1]
			pc.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// Stop kills the recorder and waits for it to exit
func (pc *ProcessCapture) Stop() error {
	pc.mu.Lock()
	if pc.cmd == nil {
		pc.mu.Unlock()
		return nil
	}
	cancel, done := pc.cancel, pc.done
	pc.running = false
	pc.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		return fmt.Errorf("capture %s: recorder did not exit", pc.config.Name)
	}

	pc.mu.Lock()
	pc.cmd = nil
	pc.mu.Unlock()
	return nil
}

// Restart implements pipeline.Restarter
func (pc *ProcessCapture) Restart(ctx context.Context) error {
	if err := pc.Stop(); err != nil {
		pc.logger.Warn("Recorder did not stop cleanly", pipeline.Error(err))
	}
	return pc.Start(ctx)
}

// IsCapturing reports whether the recorder runs and produced output
// within the stall timeout
func (pc *ProcessCapture) IsCapturing() bool {
	pc.mu.RLock()
	defer pc.mu.RUnlock()

	if !pc.running {
		return false
	}

	last := pc.lastData
	if last.IsZero() {
		last = pc.startedAt
	}
	return time.Since(last) < pc.config.StallTimeout
}

// PullAvailableData returns at least one chunk of buffered audio, or nil
func (pc *ProcessCapture) PullAvailableData() []byte {
	chunk := int(pc.config.ChunkDuration.Seconds() * float64(pc.config.Format.BytesPerSecond()))
	return pc.buffer.TakeAtLeast(chunk)
}

// ExitError returns the error of the last recorder exit
func (pc *ProcessCapture) ExitError() error {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	return pc.exitErr
}

// Pid returns the process id of the running recorder
func (pc *ProcessCapture) Pid() (int, error) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	if !pc.running || pc.cmd == nil || pc.cmd.Process == nil {
		return 0, ErrNotRunning
	}
	return pc.cmd.Process.Pid, nil
}

// DroppedBytes is the amount of audio discarded because nobody pulled it
func (pc *ProcessCapture) DroppedBytes() uint64 {
	return pc.buffer.Dropped()
}
