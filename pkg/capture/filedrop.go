package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/audio"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

const (
	doneDir   = "done"
	failedDir = "failed"
)

// FileDropConfig configures a watched directory of recordings
type FileDropConfig struct {
	Name         string        `mapstructure:"name"`
	Dir          string        `mapstructure:"dir"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxPending   int           `mapstructure:"max_pending"`
}

// FileDropCapture decodes .wav and .mp3 files dropped into a directory.
// Processed files move to done/, undecodable ones to failed/.
type FileDropCapture struct {
	config  FileDropConfig
	format  audio.Format
	logger  pipeline.Logger
	pending *pipeline.BoundedQueue[[]byte]
	poller  poller
}

// NewFileDropCapture creates a capture over config.Dir producing PCM in format
func NewFileDropCapture(config FileDropConfig, format audio.Format, logger pipeline.Logger) (*FileDropCapture, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("file drop capture %s: missing directory", config.Name)
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.MaxPending <= 0 {
		config.MaxPending = 8
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	return &FileDropCapture{
		config:  config,
		format:  format,
		logger:  logger.With(pipeline.String("component", "capture"), pipeline.String("capture", config.Name)),
		pending: pipeline.NewBoundedQueue[[]byte](config.MaxPending),
	}, nil
}

// Name implements pipeline.Capture
func (fc *FileDropCapture) Name() string {
	return fc.config.Name
}

// Start creates the directories and begins polling
func (fc *FileDropCapture) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, dir := range []string{fc.config.Dir, filepath.Join(fc.config.Dir, doneDir), filepath.Join(fc.config.Dir, failedDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if fc.poller.start(fc.config.PollInterval, fc.scan) {
		fc.logger.Info("Watching for recordings", pipeline.String("dir", fc.config.Dir))
	}
	return nil
}

// Stop ends polling. Decoded recordings not yet pulled are kept.
func (fc *FileDropCapture) Stop() error {
	fc.poller.halt()
	return nil
}

// IsCapturing reports whether polling runs and the directory is readable
func (fc *FileDropCapture) IsCapturing() bool {
	if !fc.poller.isRunning() {
		return false
	}
	info, err := os.Stat(fc.config.Dir)
	return err == nil && info.IsDir()
}

// PullAvailableData returns the next decoded recording, or nil
func (fc *FileDropCapture) PullAvailableData() []byte {
	data, ok := fc.pending.Pop()
	if !ok {
		return nil
	}
	return data
}

func (fc *FileDropCapture) scan() {
	entries, err := os.ReadDir(fc.config.Dir)
	if err != nil {
		fc.logger.Warn("Failed to read drop directory", pipeline.Error(err))
		return
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".wav", ".mp3":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(fc.config.Dir, name)
		pcm, err := audio.DecodeFile(path, fc.format)
		if err != nil {
			fc.logger.Warn("Failed to decode recording", pipeline.String("file", name), pipeline.Error(err))
			fc.move(path, failedDir)
			continue
		}

		if fc.pending.Push(pcm) {
			fc.logger.Warn("Dropped oldest pending recording", pipeline.Int("max_pending", fc.config.MaxPending))
		}
		fc.logger.Debug("Decoded recording", pipeline.String("file", name), pipeline.Int("bytes", len(pcm)))
		fc.move(path, doneDir)
	}
}

func (fc *FileDropCapture) move(path, dir string) {
	target := filepath.Join(fc.config.Dir, dir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		fc.logger.Error("Failed to move recording", pipeline.String("file", path), pipeline.Error(err))
		_ = os.Remove(path)
	}
}
