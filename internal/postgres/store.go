package postgres

import (
	"context"
	"fmt"
	"time"

	"mobilemech/internal/models"

	"github.com/jackc/pgx/v5"
)

// Id filters cast the parameter, never the column, so the primary key and
// appointment_id indexes stay usable.
const (
	findOverdueSQL = `
		SELECT id::text, status, appointment_date, COALESCE(location, '')
		FROM appointments
		WHERE status = $1
			AND appointment_date < $2
		ORDER BY appointment_date ASC`

	cancelPendingSQL = `
		UPDATE appointments
		SET status = $2,
			cancelled_at = $3,
			cancelled_by = $4,
			cancellation_reason = $5
		WHERE id = ANY($1::text[]::uuid[])
			AND status = $6
		RETURNING id::text`

	deleteQuotesSQL = `
		DELETE FROM mechanic_quotes
		WHERE appointment_id = ANY($1::text[]::uuid[])`
)

// Store runs the overdue sweep directly against the hosted Postgres schema.
type Store struct {
	pool *Pool
}

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) FindOverduePending(ctx context.Context, cutoff time.Time) ([]models.Appointment, error) {
	rows, err := s.pool.Query(ctx, findOverdueSQL, models.StatusPending, models.CeilMicrosecond(cutoff))
	if err != nil {
		return nil, fmt.Errorf("query overdue appointments: %w", err)
	}
	defer rows.Close()

	var appts []models.Appointment
	for rows.Next() {
		var appt models.Appointment
		if err := rows.Scan(&appt.ID, &appt.Status, &appt.AppointmentDate, &appt.Location); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appts = append(appts, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate appointments: %w", err)
	}
	return appts, nil
}

func (s *Store) CancelPending(ctx context.Context, ids []string, c models.Cancellation) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, cancelPendingSQL, ids, models.StatusCancelled, c.At, c.By, c.Reason, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("cancel appointments: %w", err)
	}

	cancelled, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("cancel appointments: %w", err)
	}
	return cancelled, nil
}

func (s *Store) DeleteQuotesForAppointments(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, deleteQuotesSQL, ids)
	if err != nil {
		return 0, fmt.Errorf("delete quotes: %w", err)
	}
	return tag.RowsAffected(), nil
}
