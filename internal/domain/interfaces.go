package domain

import (
	"context"
	"time"

	"mobilemech/internal/models"
)

// AppointmentStore is the persistence surface the overdue sweep needs.
type AppointmentStore interface {
	// FindOverduePending returns pending appointments scheduled strictly before cutoff.
	FindOverduePending(ctx context.Context, cutoff time.Time) ([]models.Appointment, error)
	// CancelPending cancels the given appointments that are still pending and
	// returns the ids it actually changed.
	CancelPending(ctx context.Context, ids []string, c models.Cancellation) ([]string, error)
	// DeleteQuotesForAppointments removes every quote referencing ids.
	DeleteQuotesForAppointments(ctx context.Context, ids []string) (int64, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
	// PublishBatchJSON delivers all payloads in one round trip where the
	// transport allows it.
	PublishBatchJSON(eventType string, payloads []interface{}) error
}

type RunRecorder interface {
	SaveRun(ctx context.Context, run *models.RunRecord) error
}

type RunRepository interface {
	RunRecorder
	RecentRuns(ctx context.Context, limit int) ([]*models.RunRecord, error)
}
