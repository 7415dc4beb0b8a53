package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/latoulicious/Sasayaki/internal/app"
	"github.com/latoulicious/Sasayaki/internal/config"
	"github.com/latoulicious/Sasayaki/pkg/pipeline"
)

func main() {
	configPath := flag.String("config", "", "path to the config file (default: sasayaki.yaml in . or ./configs)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := pipeline.NewZapLogger(cfg.Pipeline.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// discordgo and other libraries log through the standard logger
	pipeline.NewStdLogAdapter(logger).SetAsStdLogger()

	assistant, err := app.New(cfg, logger, os.Stdout)
	if err != nil {
		logger.Fatal("Failed to build assistant", pipeline.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := assistant.Start(ctx); err != nil {
		logger.Error("Failed to start assistant", pipeline.Error(err))
		shutdown(assistant, logger)
		os.Exit(1)
	}

	logger.Info("Press CTRL-C to exit")
	// Wait here until CTRL-C or other term signal is received.
	select {
	case <-ctx.Done():
	case err := <-assistant.Errors():
		logger.Error("Status API failed", pipeline.Error(err))
	}

	shutdown(assistant, logger)
}

func shutdown(assistant *app.App, logger pipeline.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := assistant.Shutdown(ctx); err != nil {
		logger.Error("Shutdown finished with errors", pipeline.Error(err))
		return
	}
	logger.Info("Shutdown complete")
}
