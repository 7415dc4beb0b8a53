package capture

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/audio"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

// ErrUnsupportedPlatform is returned when no recorder input is known for the OS
var ErrUnsupportedPlatform = errors.New("audio capture is not supported on this platform")

// DeviceConfig configures live capture from a system audio device
type DeviceConfig struct {
	Name          string        `mapstructure:"name"`
	Device        string        `mapstructure:"device"`
	FFmpegPath    string        `mapstructure:"ffmpeg_path"`
	ChunkDuration time.Duration `mapstructure:"chunk_duration"`
	MaxBuffer     time.Duration `mapstructure:"max_buffer"`
	StallTimeout  time.Duration `mapstructure:"stall_timeout"`
}

// NewDeviceCapture creates an ffmpeg recorder for the current OS
func NewDeviceCapture(config DeviceConfig, logger pipeline.Logger) (*ProcessCapture, error) {
	args, err := DeviceArgs(runtime.GOOS, config.Device, audio.SpeechFormat)
	if err != nil {
		return nil, err
	}

	command := config.FFmpegPath
	if command == "" {
		command = "ffmpeg"
	}

	return NewProcessCapture(ProcessConfig{
		Name:          config.Name,
		Command:       command,
		Args:          args,
		Format:        audio.SpeechFormat,
		ChunkDuration: config.ChunkDuration,
		MaxBuffer:     config.MaxBuffer,
		StallTimeout:  config.StallTimeout,
	}, logger)
}

// DeviceArgs builds the ffmpeg arguments recording device on goos as
// s16le PCM to stdout
func DeviceArgs(goos, device string, format audio.Format) ([]string, error) {
	var input []string
	switch goos {
	case "linux":
		if device == "" {
			device = "default"
		}
		input = []string{"-f", "alsa", "-i", device}
	case "darwin":
		if device == "" {
			device = "0"
		}
		input = []string{"-f", "avfoundation", "-i", ":" + device}
	case "windows":
		if device == "" {
			return nil, fmt.Errorf("dshow capture needs a device name")
		}
		input = []string{"-f", "dshow", "-i", "audio=" + device}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, input...)
	args = append(args,
		"-ac", strconv.Itoa(format.Channels),
		"-ar", strconv.Itoa(format.SampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-",
	)
	return args, nil
}
