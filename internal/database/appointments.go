package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mobilemech/internal/models"

	"github.com/google/uuid"
)

const appointmentColumns = `id, COALESCE(customer_id, ''), COALESCE(mechanic_id, ''), status,
                 appointment_date, location, cancelled_at, COALESCE(cancelled_by, ''),
                 COALESCE(cancellation_reason, ''), created_at, updated_at`

func (db *DB) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if appt.Status == "" {
		appt.Status = models.StatusPending
	}
	if !models.IsValidStatus(appt.Status) {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, appt.Status)
	}

	now := time.Now().UTC()
	query := `INSERT INTO appointments (
				id, customer_id, mechanic_id, status, appointment_date, location,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		appt.ID,
		appt.CustomerID,
		appt.MechanicID,
		appt.Status,
		formatTime(appt.AppointmentDate),
		appt.Location,
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	appt.CreatedAt = now
	appt.UpdatedAt = now
	return nil
}

func (db *DB) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = ?`
	appt, err := scanAppointment(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appt, nil
}

// UpdateAppointmentStatus is the human path (mechanic confirms, customer
// completes). It never touches the cancellation audit fields.
func (db *DB) UpdateAppointmentStatus(ctx context.Context, id, status string) error {
	if !models.IsValidStatus(status) {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	query := `UPDATE appointments SET status = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) FindOverduePending(ctx context.Context, cutoff time.Time) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
              FROM appointments
              WHERE status = ? AND appointment_date < ?
              ORDER BY appointment_date ASC`
	rows, err := db.QueryContext(ctx, query, models.StatusPending, formatUpperBound(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue appointments: %w", err)
	}
	defer rows.Close()

	var appts []models.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}
	return appts, nil
}

// CancelPending runs one UPDATE guarded by status = 'pending' so rows that a
// human moved on since the scan are left alone.
func (db *DB) CancelPending(ctx context.Context, ids []string, c models.Cancellation) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	marks, idArgs := placeholders(ids)
	query := `UPDATE appointments
              SET status = ?, cancelled_at = ?, cancelled_by = ?, cancellation_reason = ?, updated_at = ?
              WHERE id IN (` + marks + `) AND status = ?
              RETURNING id`

	at := formatTime(c.At)
	args := make([]any, 0, len(idArgs)+6)
	args = append(args, models.StatusCancelled, at, c.By, c.Reason, at)
	args = append(args, idArgs...)
	args = append(args, models.StatusPending)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel appointments: %w", err)
	}
	defer rows.Close()

	cancelled := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cancelled id: %w", err)
		}
		cancelled = append(cancelled, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to cancel appointments: %w", err)
	}
	return cancelled, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		appt        models.Appointment
		dateStr     string
		cancelledAt sql.NullString
		createdStr  string
		updatedStr  string
	)
	err := row.Scan(
		&appt.ID, &appt.CustomerID, &appt.MechanicID, &appt.Status,
		&dateStr, &appt.Location, &cancelledAt, &appt.CancelledBy,
		&appt.CancellationReason, &createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}

	if appt.AppointmentDate, err = parseTime(dateStr); err != nil {
		return nil, fmt.Errorf("parse appointment_date %q: %w", dateStr, err)
	}
	if cancelledAt.Valid {
		t, err := parseTime(cancelledAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse cancelled_at %q: %w", cancelledAt.String, err)
		}
		appt.CancelledAt = &t
	}
	if appt.CreatedAt, err = parseTime(createdStr); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdStr, err)
	}
	if appt.UpdatedAt, err = parseTime(updatedStr); err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updatedStr, err)
	}
	return &appt, nil
}
