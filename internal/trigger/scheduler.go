package trigger

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler runs a job on a standard five-field cron schedule. A tick that
// arrives while the previous job is still running is skipped.
type Scheduler struct {
	schedule string
	logger   *zerolog.Logger
}

func NewScheduler(schedule string, logger *zerolog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Scheduler{schedule: schedule, logger: logger}, nil
}

// Run blocks until ctx is done, then waits for a running job to return.
func (s *Scheduler) Run(ctx context.Context, job func(ctx context.Context)) error {
	l := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(l),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
	)
	if _, err := c.AddFunc(s.schedule, func() { job(ctx) }); err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}

	s.logger.Info().Str("schedule", s.schedule).Msg("scheduler started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
	return nil
}

type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
