package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/latoulicious/Sasayaki/pkg/capture"
	"github.com/latoulicious/Sasayaki/pkg/database"
	"github.com/latoulicious/Sasayaki/pkg/guard"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SASAYAKI_GATE_CONFIDENCE_THRESHOLD
const EnvPrefix = "SASAYAKI"

// Config is the complete application configuration
type Config struct {
	Pipeline pipeline.PipelineConfig `mapstructure:"pipeline"`
	Database database.DatabaseConfig `mapstructure:"database"`
	Archive  ArchiveConfig           `mapstructure:"archive"`
	Status   StatusConfig            `mapstructure:"status"`
	Report   ReportConfig            `mapstructure:"report"`
	Discord  DiscordConfig           `mapstructure:"discord"`
	OpenAI   OpenAIConfig            `mapstructure:"openai"`
	Capture  CaptureConfig           `mapstructure:"capture"`
	Guard    GuardConfig             `mapstructure:"guard"`
}

// ArchiveConfig toggles the sqlite answer archive
type ArchiveConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// StatusConfig configures the HTTP status API
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	// Token protects the mutating endpoints when set
	Token string `mapstructure:"token"`
}

// ReportConfig configures the scheduled status digest
type ReportConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// DiscordConfig configures the Discord bot and answer channel
type DiscordConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Token     string `mapstructure:"token"`
	ChannelID string `mapstructure:"channel_id"`
	OwnerID   string `mapstructure:"owner_id"`
	Prefix    string `mapstructure:"prefix"`
	// RegisterCommands creates the slash commands on startup
	RegisterCommands bool `mapstructure:"register_commands"`
}

// OpenAIConfig configures the speech to text and chat clients
type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	ChatModel       string        `mapstructure:"chat_model"`
	MaxTokens       int64         `mapstructure:"max_tokens"`
	TranscribeModel string        `mapstructure:"transcribe_model"`
	Language        string        `mapstructure:"language"`
	MinDuration     time.Duration `mapstructure:"min_duration"`
	SilenceLevel    float64       `mapstructure:"silence_level"`
	// GenerateAnswers uses the chat model instead of templates
	GenerateAnswers bool `mapstructure:"generate_answers"`
}

// CaptureConfig binds capture sources to the input fallback chain
type CaptureConfig struct {
	Device   DeviceInput   `mapstructure:"device"`
	FileDrop FileDropInput `mapstructure:"file_drop"`
	Inbox    InboxInput    `mapstructure:"inbox"`
}

// DeviceInput is the live microphone capture, bound to the primary input.
// Device and file drop capture are off by default since they need an
// OpenAI key for speech to text.
type DeviceInput struct {
	Enabled              bool `mapstructure:"enabled"`
	capture.DeviceConfig `mapstructure:",squash"`
}

// FileDropInput watches a directory of recordings, bound to the secondary input
type FileDropInput struct {
	Enabled                bool `mapstructure:"enabled"`
	capture.FileDropConfig `mapstructure:",squash"`
}

// InboxInput tails a text file of typed questions, bound to the tertiary input
type InboxInput struct {
	Enabled                 bool `mapstructure:"enabled"`
	capture.TextInboxConfig `mapstructure:",squash"`
}

// GuardConfig configures the resource guard component
type GuardConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	guard.Config `mapstructure:",squash"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Pipeline: *pipeline.DefaultPipelineConfig(),
		Database: *database.DefaultDatabaseConfig(),
		Archive:  ArchiveConfig{Enabled: true},
		Status:   StatusConfig{Enabled: true, Addr: "127.0.0.1:8085"},
		Report:   ReportConfig{Enabled: true, Schedule: "0 */5 * * * *"},
		Discord:  DiscordConfig{Prefix: "!"},
		OpenAI: OpenAIConfig{
			ChatModel:       "gpt-4o-mini",
			TranscribeModel: "whisper-1",
			Language:        "en",
			MinDuration:     500 * time.Millisecond,
			SilenceLevel:    0.01,
		},
		Capture: CaptureConfig{
			Device: DeviceInput{
				DeviceConfig: capture.DeviceConfig{
					Name:          "microphone",
					ChunkDuration: 4 * time.Second,
					MaxBuffer:     20 * time.Second,
					StallTimeout:  5 * time.Second,
				},
			},
			FileDrop: FileDropInput{
				FileDropConfig: capture.FileDropConfig{
					Name:         "file_drop",
					Dir:          "recordings",
					PollInterval: time.Second,
					MaxPending:   8,
				},
			},
			Inbox: InboxInput{
				Enabled: true,
				TextInboxConfig: capture.TextInboxConfig{
					Name:         "inbox",
					Path:         "inbox.txt",
					PollInterval: 500 * time.Millisecond,
					MaxPending:   32,
				},
			},
		},
		Guard: GuardConfig{Enabled: true, Config: guard.DefaultConfig()},
	}
}

// Load reads .env, then the optional config file, then SASAYAKI_*
// environment overrides on top of Default. An empty path looks for
// sasayaki.{yaml,yml,json} in the working directory and ./configs.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	bindEnvs(v, reflect.TypeOf(*cfg), "")

	// Unprefixed names kept for existing deployments
	_ = v.BindEnv("discord.token", EnvPrefix+"_DISCORD_TOKEN", "DISCORD_TOKEN")
	_ = v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("sasayaki")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// bindEnvs registers every leaf key of t so AutomaticEnv applies to keys
// that have no value in the config file
func bindEnvs(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		name, opts, _ := strings.Cut(tag, ",")

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if opts == "squash" || field.Anonymous && name == "" {
				bindEnvs(v, field.Type, prefix)
				continue
			}
			bindEnvs(v, field.Type, join(prefix, keyName(field, name)))
			continue
		}

		_ = v.BindEnv(join(prefix, keyName(field, name)))
	}
}

func keyName(field reflect.StructField, tag string) string {
	if tag != "" {
		return tag
	}
	return strings.ToLower(field.Name)
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Validate checks the cross-section requirements
func (c *Config) Validate() error {
	var errs []error

	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Archive.Enabled {
		if err := c.Database.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}

	if c.Status.Enabled && c.Status.Addr == "" {
		errs = append(errs, errors.New("status addr is required when the status api is enabled"))
	}

	if c.Report.Enabled && c.Report.Schedule == "" {
		errs = append(errs, errors.New("report schedule is required when reports are enabled"))
	}

	if c.Discord.Enabled {
		if c.Discord.Token == "" {
			errs = append(errs, ErrDiscordTokenNotSet)
		}
		if c.Discord.ChannelID == "" {
			errs = append(errs, errors.New("discord channel_id is required when discord is enabled"))
		}
	}

	if c.Capture.Device.Enabled && c.OpenAI.APIKey == "" {
		errs = append(errs, fmt.Errorf("%w: live capture needs speech to text", ErrOpenAIKeyNotSet))
	}
	if c.Capture.FileDrop.Enabled && c.OpenAI.APIKey == "" {
		errs = append(errs, fmt.Errorf("%w: file drop capture needs speech to text", ErrOpenAIKeyNotSet))
	}
	if c.OpenAI.GenerateAnswers && c.OpenAI.APIKey == "" {
		errs = append(errs, fmt.Errorf("%w: answer generation is enabled", ErrOpenAIKeyNotSet))
	}

	return errors.Join(errs...)
}

// Configuration errors
var (
	ErrDiscordTokenNotSet = errors.New("discord token is not set")
	ErrOpenAIKeyNotSet    = errors.New("openai api key is not set")
)
