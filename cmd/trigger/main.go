package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"mobilemech/internal/config"
	"mobilemech/internal/logging"
	"mobilemech/internal/trigger"

	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	once := flag.Bool("once", false, "invoke the endpoint once and exit")
	flag.Parse()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(baseLogger, "trigger")

	client, err := trigger.NewClient(cfg.Trigger, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		return invoke(ctx, client, logger)
	}

	scheduler, err := trigger.NewScheduler(cfg.Trigger.Schedule, logger)
	if err != nil {
		return err
	}
	return scheduler.Run(ctx, func(ctx context.Context) {
		_ = invoke(ctx, client, logger)
	})
}

func invoke(ctx context.Context, client *trigger.Client, logger *zerolog.Logger) error {
	res, err := client.Invoke(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("auto-cancel invocation failed")
		return err
	}

	ev := logger.Info()
	if len(res.Warnings) > 0 {
		ev = ev.Strs("warnings", res.Warnings)
	}
	ev.Int("eliminated", res.EliminatedCount).
		Strs("appointment_ids", res.EliminatedAppointments).
		Msg(res.Message)
	return nil
}
