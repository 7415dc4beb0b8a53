package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Sasayaki/internal/commands"
	"github.com/latoulicious/Sasayaki/internal/config"
	"github.com/latoulicious/Sasayaki/internal/handlers"
	"github.com/latoulicious/Sasayaki/internal/presence"
	"github.com/latoulicious/Sasayaki/internal/status"
	"github.com/latoulicious/Sasayaki/pkg/answer"
	"github.com/latoulicious/Sasayaki/pkg/audio"
	"github.com/latoulicious/Sasayaki/pkg/capture"
	"github.com/latoulicious/Sasayaki/pkg/cron"
	"github.com/latoulicious/Sasayaki/pkg/database"
	"github.com/latoulicious/Sasayaki/pkg/display"
	"github.com/latoulicious/Sasayaki/pkg/guard"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
	"github.com/latoulicious/Sasayaki/pkg/transcribe"
)

const presenceInterval = time.Minute

// App is the assembled assistant: the pipeline, its collaborators and the
// surfaces around it
type App struct {
	cfg    *config.Config
	logger pipeline.Logger

	manager  *pipeline.AssistantPipelineManager
	db       database.DatabaseManager
	archive  *database.Archive
	reporter *cron.StatusReporter
	server   *status.Server

	session        *discordgo.Session
	discordDisplay *display.DiscordDisplay
	presence       *presence.PresenceManager
	cancelPresence context.CancelFunc

	serverErr chan error
}

// New builds every component the configuration enables. Console answers
// are written to out.
func New(cfg *config.Config, logger pipeline.Logger, out io.Writer) (*App, error) {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	a := &App{cfg: cfg, logger: logger, serverErr: make(chan error, 1)}

	if cfg.Archive.Enabled {
		dm, err := database.NewDatabaseManager(&cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if err := dm.Connect(); err != nil {
			return nil, fmt.Errorf("connect archive: %w", err)
		}
		a.db = dm
		a.archive = database.NewArchive(dm, logger)

		version, err := dm.GetSchemaVersion()
		if err != nil {
			a.closeDB()
			return nil, fmt.Errorf("read archive schema: %w", err)
		}
		logger.Info("Answer archive ready",
			pipeline.String("path", cfg.Database.DatabasePath),
			pipeline.Int("schema_version", version),
		)
	}

	if cfg.Discord.Enabled {
		session, err := discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			a.closeDB()
			return nil, fmt.Errorf("create discord session: %w", err)
		}
		a.session = session

		a.discordDisplay, err = display.NewDiscordDisplay(session, cfg.Discord.ChannelID, logger)
		if err != nil {
			a.closeDB()
			return nil, err
		}
	}

	collab, err := a.collaborators(out)
	if err != nil {
		a.closeDB()
		return nil, err
	}

	a.manager, err = pipeline.NewAssistantPipelineManager(&cfg.Pipeline, logger, collab)
	if err != nil {
		a.closeDB()
		return nil, err
	}

	if cfg.Report.Enabled {
		var archiver cron.EventArchiver
		if a.archive != nil {
			archiver = a.archive
		}
		a.reporter, err = cron.NewStatusReporter(a.manager, archiver, cfg.Report.Schedule, logger)
		if err != nil {
			a.closeDB()
			return nil, fmt.Errorf("schedule status report: %w", err)
		}
		if a.db != nil {
			a.reporter.SetArchiveStats(a.db)
		}
	}

	if cfg.Status.Enabled {
		var answers status.AnswerSource
		if a.db != nil {
			answers = a.db.ArchiveRepository()
		}
		a.server = status.NewServer(cfg.Status.Addr, cfg.Status.Token, a.manager, answers, logger)
	}

	if a.session != nil {
		var schedule commands.Schedule
		if a.reporter != nil {
			schedule = a.reporter
		}
		cmds := commands.New(a.manager, schedule, cfg.Discord.OwnerID, cfg.Discord.Prefix)

		a.session.AddHandler(handlers.NewMessageHandler(cmds, logger).Handle)
		a.session.AddHandler(handlers.NewSlashHandler(cmds, logger).Handle)
		a.session.AddHandler(handlers.NewReactionHandler(a.discordDisplay, logger).Handle)
		a.session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsGuildMessageReactions |
			discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

		a.presence = presence.NewPresenceManager(a.session, a.manager, logger)
	}

	return a, nil
}

func (a *App) collaborators(out io.Writer) (pipeline.Collaborators, error) {
	cfg := a.cfg

	inputs, err := BuildInputs(cfg, a.logger)
	if err != nil {
		return pipeline.Collaborators{}, err
	}

	templates, err := answer.NewTemplateGenerator(answer.DefaultTemplates)
	if err != nil {
		return pipeline.Collaborators{}, err
	}

	var generator pipeline.AnswerGenerator = templates
	if cfg.OpenAI.GenerateAnswers {
		generator, err = answer.NewOpenAIGenerator(answer.OpenAIConfig{
			APIKey:    cfg.OpenAI.APIKey,
			BaseURL:   cfg.OpenAI.BaseURL,
			Model:     cfg.OpenAI.ChatModel,
			MaxTokens: cfg.OpenAI.MaxTokens,
		}, templates, a.logger)
		if err != nil {
			return pipeline.Collaborators{}, err
		}
	}

	var mirrors []pipeline.Display
	if a.discordDisplay != nil {
		mirrors = append(mirrors, a.discordDisplay)
	}
	if a.archive != nil {
		mirrors = append(mirrors, a.archive)
	}

	collab := pipeline.Collaborators{
		Inputs:     inputs,
		Classifier: answer.NewKeywordClassifier(nil),
		Generator:  generator,
		Display:    display.NewMulti(a.logger, display.NewConsoleDisplay(out), mirrors...),
	}

	if cfg.Guard.Enabled {
		collab.Security = guard.NewResourceGuard(cfg.Guard.Config, a.logger)
	}

	return collab, nil
}

// BuildInputs binds the enabled capture sources to the fallback chain:
// device to primary, file drop to secondary and the text inbox to tertiary.
// Audio sources share one speech to text client.
func BuildInputs(cfg *config.Config, logger pipeline.Logger) (map[pipeline.InputMethod]pipeline.InputBinding, error) {
	inputs := make(map[pipeline.InputMethod]pipeline.InputBinding)

	var whisper *transcribe.WhisperTranscriber
	speechToText := func() (*transcribe.WhisperTranscriber, error) {
		if whisper != nil {
			return whisper, nil
		}
		var err error
		whisper, err = transcribe.NewWhisperTranscriber(transcribe.WhisperConfig{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Model:        cfg.OpenAI.TranscribeModel,
			Language:     cfg.OpenAI.Language,
			MinDuration:  cfg.OpenAI.MinDuration,
			SilenceLevel: cfg.OpenAI.SilenceLevel,
		}, audio.SpeechFormat, logger)
		return whisper, err
	}

	if cfg.Capture.Device.Enabled {
		device, err := capture.NewDeviceCapture(cfg.Capture.Device.DeviceConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("device capture: %w", err)
		}
		stt, err := speechToText()
		if err != nil {
			return nil, err
		}
		inputs[pipeline.MethodPrimary] = pipeline.InputBinding{Capture: device, Transcriber: stt}
	}

	if cfg.Capture.FileDrop.Enabled {
		drop, err := capture.NewFileDropCapture(cfg.Capture.FileDrop.FileDropConfig, audio.SpeechFormat, logger)
		if err != nil {
			return nil, fmt.Errorf("file drop capture: %w", err)
		}
		stt, err := speechToText()
		if err != nil {
			return nil, err
		}
		inputs[pipeline.MethodSecondary] = pipeline.InputBinding{Capture: drop, Transcriber: stt}
	}

	if cfg.Capture.Inbox.Enabled {
		inbox, err := capture.NewTextInbox(cfg.Capture.Inbox.TextInboxConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("text inbox: %w", err)
		}
		inputs[pipeline.MethodTertiary] = pipeline.InputBinding{Capture: inbox, Transcriber: transcribe.Passthrough{}}
	}

	return inputs, nil
}

// Manager returns the pipeline manager
func (a *App) Manager() *pipeline.AssistantPipelineManager {
	return a.manager
}

// Server returns the status API, nil when disabled
func (a *App) Server() *status.Server {
	return a.server
}

// Start runs the pipeline and then every enabled surface
func (a *App) Start(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	if a.archive != nil {
		if err := a.archive.BeginSession(ctx, a.manager.GetPipelineID(), time.Now()); err != nil {
			a.logger.Warn("Failed to record session start", pipeline.Error(err))
		}
	}

	if a.reporter != nil {
		a.reporter.Start()
	}

	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				a.logger.Error("Status API stopped", pipeline.Error(err))
				a.serverErr <- err
			}
		}()
	}

	if a.session != nil {
		if err := a.session.Open(); err != nil {
			return fmt.Errorf("open discord session: %w", err)
		}

		if a.cfg.Discord.RegisterCommands && a.session.State != nil && a.session.State.User != nil {
			if err := commands.RegisterSlashCommands(a.session, a.session.State.User.ID, "", a.logger); err != nil {
				a.logger.Warn("Failed to register slash commands", pipeline.Error(err))
			}
		}

		presenceCtx, cancel := context.WithCancel(context.Background())
		a.cancelPresence = cancel
		a.presence.StartPeriodicUpdates(presenceCtx, presenceInterval)
	}

	a.logger.Info("Sasayaki is running", pipeline.String("pipeline_id", a.manager.GetPipelineID()))
	return nil
}

// Errors reports a status API that stopped on its own
func (a *App) Errors() <-chan error {
	return a.serverErr
}

// Shutdown stops the surfaces, then the pipeline, and closes the archive
// after recording the final session state
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if a.cancelPresence != nil {
		a.cancelPresence()
	}
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close discord session: %w", err))
		}
	}

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown status api: %w", err))
		}
	}

	if a.reporter != nil {
		a.reporter.Stop()
	}

	final := a.manager.Status()
	if err := a.manager.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop pipeline: %w", err))
	}

	if a.archive != nil {
		if _, err := a.archive.ArchiveEvents(ctx, a.manager.Events(0)); err != nil {
			errs = append(errs, fmt.Errorf("archive events: %w", err))
		}
		if err := a.archive.EndSession(ctx, final.State.String(), final.Metrics); err != nil {
			errs = append(errs, fmt.Errorf("record session end: %w", err))
		}
	}
	if err := a.backup(); err != nil {
		errs = append(errs, err)
	}
	a.closeDB()

	return errors.Join(errs...)
}

// backup copies the archive into the backup directory, one file per shutdown
func (a *App) backup() error {
	if a.db == nil || a.cfg.Database.BackupDir == "" {
		return nil
	}
	if err := os.MkdirAll(a.cfg.Database.BackupDir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	name := fmt.Sprintf("sasayaki-%s.db", time.Now().Format("20060102-150405"))
	if err := a.db.Backup(filepath.Join(a.cfg.Database.BackupDir, name)); err != nil {
		return fmt.Errorf("backup archive: %w", err)
	}
	return nil
}

func (a *App) closeDB() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Failed to close archive", pipeline.Error(err))
	}
}
