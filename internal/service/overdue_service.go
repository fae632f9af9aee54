package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mobilemech/internal/domain"
	"mobilemech/internal/events"
	"mobilemech/internal/metrics"
	"mobilemech/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrNotConfigured = errors.New("missing persistence configuration: backend url or service credential not set")
	ErrScanFailed    = errors.New("scan overdue appointments")
	ErrCancelFailed  = errors.New("cancel overdue appointments")
)

const (
	MessageNoneOverdue = "No overdue appointments found"
	messageEliminated  = "Successfully eliminated %d overdue appointments"
)

// Outcome is the result of one overdue sweep. Cancelled holds the ids the
// update actually changed; Warnings holds non-fatal problems.
type Outcome struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Cutoff     time.Time
	Scanned    int
	Cancelled  []string
	Warnings   []string
}

func (o *Outcome) Message() string {
	if o.Scanned == 0 {
		return MessageNoneOverdue
	}
	return fmt.Sprintf(messageEliminated, len(o.Cancelled))
}

// OverdueCanceller cancels pending appointments whose start time passed
// more than the grace period ago and removes their quotes.
type OverdueCanceller struct {
	store     domain.AppointmentStore
	publisher domain.EventPublisher
	recorder  domain.RunRecorder
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewOverdueCanceller(store domain.AppointmentStore, publisher domain.EventPublisher, logger *zerolog.Logger) *OverdueCanceller {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &OverdueCanceller{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (s *OverdueCanceller) WithClock(now func() time.Time) *OverdueCanceller {
	s.now = now
	return s
}

// WithRecorder makes every run persist a RunRecord.
func (s *OverdueCanceller) WithRecorder(r domain.RunRecorder) *OverdueCanceller {
	s.recorder = r
	return s
}

// Scan returns pending appointments scheduled strictly before cutoff.
func (s *OverdueCanceller) Scan(ctx context.Context, cutoff time.Time) ([]models.Appointment, error) {
	if s.store == nil {
		return nil, ErrNotConfigured
	}
	appts, err := s.store.FindOverduePending(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanFailed, err)
	}
	return appts, nil
}

// Apply cancels ids that are still pending and returns those it changed.
func (s *OverdueCanceller) Apply(ctx context.Context, ids []string, at time.Time) ([]string, error) {
	if s.store == nil {
		return nil, ErrNotConfigured
	}
	if len(ids) == 0 {
		return []string{}, nil
	}
	cancelled, err := s.store.CancelPending(ctx, ids, models.AutoCancellation(at))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelFailed, err)
	}
	if cancelled == nil {
		cancelled = []string{}
	}
	return cancelled, nil
}

// Cleanup deletes quotes of cancelled appointments.
func (s *OverdueCanceller) Cleanup(ctx context.Context, cancelled []string) (int64, error) {
	if s.store == nil {
		return 0, ErrNotConfigured
	}
	if len(cancelled) == 0 {
		return 0, nil
	}
	return s.store.DeleteQuotesForAppointments(ctx, cancelled)
}

// Run performs scan, cancel and cleanup in order. Only scan and cancel
// failures are returned; a cleanup failure becomes a warning.
func (s *OverdueCanceller) Run(ctx context.Context) (*Outcome, error) {
	out := &Outcome{
		RunID:     uuid.NewString(),
		StartedAt: s.now(),
		Cancelled: []string{},
	}
	out.Cutoff = models.OverdueCutoff(out.StartedAt)

	log := s.logger.With().Str("run_id", out.RunID).Logger()

	if s.store == nil {
		return s.finish(ctx, &log, out, ErrNotConfigured)
	}

	log.Info().Time("cutoff", out.Cutoff).Msg("scanning for overdue pending appointments")

	appts, err := s.Scan(ctx, out.Cutoff)
	if err != nil {
		return s.finish(ctx, &log, out, err)
	}
	out.Scanned = len(appts)

	if len(appts) == 0 {
		log.Info().Msg("no overdue appointments found")
		return s.finish(ctx, &log, out, nil)
	}

	byID := make(map[string]models.Appointment, len(appts))
	ids := make([]string, 0, len(appts))
	for _, a := range appts {
		log.Info().
			Str("appointment_id", a.ID).
			Time("appointment_date", a.AppointmentDate).
			Str("location", a.Location).
			Msg("overdue appointment")
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}

	at := s.now()
	cancelled, err := s.Apply(ctx, ids, at)
	if err != nil {
		return s.finish(ctx, &log, out, err)
	}
	out.Cancelled = cancelled

	log.Info().Int("eligible", len(ids)).Int("cancelled", len(cancelled)).Msg("overdue appointments cancelled")
	if skipped := len(ids) - len(cancelled); skipped > 0 {
		log.Info().Int("skipped", skipped).Msg("appointments no longer pending at update time")
	}

	if len(cancelled) > 0 {
		deleted, err := s.Cleanup(ctx, cancelled)
		if err != nil {
			metrics.IncCleanupFailure()
			log.Warn().Err(err).Strs("appointment_ids", cancelled).Msg("failed to delete quotes for cancelled appointments")
			out.Warnings = append(out.Warnings, fmt.Sprintf("failed to delete quotes for cancelled appointments: %v", err))
		} else {
			log.Info().Int64("deleted", deleted).Msg("quotes deleted for cancelled appointments")
		}
	}

	s.publishCancelled(&log, cancelled, byID, at)

	return s.finish(ctx, &log, out, nil)
}

func (s *OverdueCanceller) publishCancelled(log *zerolog.Logger, cancelled []string, byID map[string]models.Appointment, at time.Time) {
	if s.publisher == nil || len(cancelled) == 0 {
		return
	}
	payloads := make([]interface{}, 0, len(cancelled))
	for _, id := range cancelled {
		a := byID[id]
		payloads = append(payloads, events.AppointmentEventPayload{
			AppointmentID:   id,
			AppointmentDate: a.AppointmentDate,
			Location:        a.Location,
			Status:          models.StatusCancelled,
			CancelledAt:     at,
			CancelledBy:     models.SystemActor,
			Reason:          models.AutoCancelReason,
		})
	}
	if err := s.publisher.PublishBatchJSON(events.EventAppointmentAutoCancelled, payloads); err != nil {
		log.Warn().Err(err).Int("events", len(payloads)).Msg("failed to publish auto-cancel events")
	}
}

func (s *OverdueCanceller) finish(ctx context.Context, log *zerolog.Logger, out *Outcome, runErr error) (*Outcome, error) {
	out.FinishedAt = s.now()
	metrics.ObserveRun(runErr == nil, len(out.Cancelled), out.FinishedAt.Sub(out.StartedAt))

	if runErr != nil {
		log.Error().Err(runErr).Msg("overdue sweep failed")
	}

	if s.recorder != nil {
		rec := &models.RunRecord{
			ID:         out.RunID,
			StartedAt:  out.StartedAt,
			FinishedAt: out.FinishedAt,
			Success:    runErr == nil,
			Scanned:    out.Scanned,
			Cancelled:  out.Cancelled,
			Warnings:   out.Warnings,
		}
		if runErr != nil {
			rec.Error = runErr.Error()
		}
		if err := s.recorder.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
			log.Warn().Err(err).Msg("failed to record run")
		}
	}

	return out, runErr
}
