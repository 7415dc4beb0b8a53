package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/latoulicious/Sasayaki/pkg/audio"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// WhisperConfig configures the speech to text client
type WhisperConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Language    string        `mapstructure:"language"`
	MinDuration time.Duration `mapstructure:"min_duration"`
	// SilenceLevel is the RMS level below which a chunk is not uploaded
	SilenceLevel float64 `mapstructure:"silence_level"`
}

// DefaultWhisperConfig returns the defaults used for live capture
func DefaultWhisperConfig() WhisperConfig {
	return WhisperConfig{
		Model:        openai.AudioModelWhisper1,
		Language:     "en",
		MinDuration:  500 * time.Millisecond,
		SilenceLevel: 0.01,
	}
}

// shortTextWords is the word count under which confidence is reduced
const shortTextWords = 3

// WhisperTranscriber uploads captured PCM to an OpenAI compatible
// transcription endpoint
type WhisperTranscriber struct {
	client   *openai.Client
	config   WhisperConfig
	format   audio.Format
	logger   pipeline.Logger
	minBytes int
}

// NewWhisperTranscriber creates a transcriber for PCM in the given format
func NewWhisperTranscriber(config WhisperConfig, format audio.Format, logger pipeline.Logger) (*WhisperTranscriber, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("whisper transcriber: missing api key")
	}
	if config.Model == "" {
		config.Model = openai.AudioModelWhisper1
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(1),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &WhisperTranscriber{
		client:   &client,
		config:   config,
		format:   format,
		logger:   logger.With(pipeline.String("component", "whisper")),
		minBytes: int(config.MinDuration.Seconds() * float64(format.BytesPerSecond())),
	}, nil
}

// Transcribe implements pipeline.Transcriber. Short or silent chunks
// produce an empty transcription without calling the API.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, data []byte) (pipeline.Transcription, error) {
	if len(data) < w.minBytes {
		return pipeline.Transcription{}, nil
	}
	if level := audio.RMS(data); level < w.config.SilenceLevel {
		w.logger.Debug("Skipping silent chunk", pipeline.Float64("rms", level), pipeline.Int("bytes", len(data)))
		return pipeline.Transcription{}, nil
	}

	wavData, err := audio.EncodeWAV(data, w.format)
	if err != nil {
		return pipeline.Transcription{}, err
	}

	params := openai.AudioTranscriptionNewParams{
		Model: w.config.Model,
		File:  openai.File(bytes.NewReader(wavData), "chunk.wav", "audio/wav"),
	}
	if w.config.Language != "" {
		params.Language = openai.String(w.config.Language)
	}

	start := time.Now()
	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return pipeline.Transcription{}, fmt.Errorf("whisper transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	w.logger.Debug("Transcribed chunk",
		pipeline.Int("bytes", len(data)),
		pipeline.Duration("latency", time.Since(start)),
		pipeline.Int("chars", len(text)),
	)

	return pipeline.Transcription{Text: text, Confidence: Confidence(text)}, nil
}

// Confidence scores a transcription: empty text is 0, very short output is
// penalized and anything else is 1.
func Confidence(text string) float64 {
	words := len(strings.Fields(text))
	switch {
	case words == 0:
		return 0
	case words < shortTextWords:
		return 0.6
	default:
		return 1.0
	}
}
