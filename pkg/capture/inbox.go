package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// TextInboxConfig configures a text file tailed for typed questions
type TextInboxConfig struct {
	Name         string        `mapstructure:"name"`
	Path         string        `mapstructure:"path"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxPending   int           `mapstructure:"max_pending"`
}

// TextInbox yields lines appended to a file after Start. Lines already in
// the file when it starts are skipped.
type TextInbox struct {
	config  TextInboxConfig
	logger  pipeline.Logger
	pending *pipeline.BoundedQueue[[]byte]
	poller  poller

	mu      sync.Mutex
	offset  int64
	partial []byte
}

// NewTextInbox creates an inbox over config.Path
func NewTextInbox(config TextInboxConfig, logger pipeline.Logger) (*TextInbox, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("text inbox %s: missing path", config.Name)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	if config.MaxPending <= 0 {
		config.MaxPending = 32
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	return &TextInbox{
		config:  config,
		logger:  logger.With(pipeline.String("component", "capture"), pipeline.String("capture", config.Name)),
		pending: pipeline.NewBoundedQueue[[]byte](config.MaxPending),
	}, nil
}

// Name implements pipeline.Capture
func (ti *TextInbox) Name() string {
	return ti.config.Name
}

// Start creates the file when missing and begins tailing it
func (ti *TextInbox) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(ti.config.Path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(ti.config.Path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open inbox: %w", err)
	}
	info, err := f.Stat()
	f.Close()
	if err != nil {
		return err
	}

	ti.mu.Lock()
	if !ti.poller.isRunning() {
		ti.offset = info.Size()
		ti.partial = nil
	}
	ti.mu.Unlock()

	if ti.poller.start(ti.config.PollInterval, ti.poll) {
		ti.logger.Info("Tailing text inbox", pipeline.String("path", ti.config.Path))
	}
	return nil
}

// Stop ends tailing
func (ti *TextInbox) Stop() error {
	ti.poller.halt()
	return nil
}

// IsCapturing reports whether tailing runs and the file exists
func (ti *TextInbox) IsCapturing() bool {
	if !ti.poller.isRunning() {
		return false
	}
	_, err := os.Stat(ti.config.Path)
	return err == nil
}

// PullAvailableData returns the next complete line, or nil
func (ti *TextInbox) PullAvailableData() []byte {
	line, ok := ti.pending.Pop()
	if !ok {
		return nil
	}
	return line
}

func (ti *TextInbox) poll() {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	f, err := os.Open(ti.config.Path)
	if err != nil {
		ti.logger.Warn("Failed to open text inbox", pipeline.Error(err))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return
	}
	if info.Size() < ti.offset {
		// truncated
		ti.offset = 0
		ti.partial = nil
	}
	if info.Size() == ti.offset {
		return
	}

	if _, err := f.Seek(ti.offset, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(f)
	if err != nil {
		ti.logger.Warn("Failed to read text inbox", pipeline.Error(err))
		return
	}
	ti.offset += int64(len(data))

	data = append(ti.partial, data...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(data[:i])
		data = data[i+1:]
		if len(line) == 0 {
			continue
		}
		if ti.pending.Push(append([]byte(nil), line...)) {
			ti.logger.Warn("Dropped oldest pending line", pipeline.Int("max_pending", ti.config.MaxPending))
		}
	}
	ti.partial = append([]byte(nil), data...)
}
