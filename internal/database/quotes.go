package database

import (
	"context"
	"fmt"
	"time"

	"mobilemech/internal/models"

	"github.com/google/uuid"
)

func (db *DB) CreateQuote(ctx context.Context, quote *models.MechanicQuote) error {
	if quote.AppointmentID == "" {
		return fmt.Errorf("quote requires an appointment id")
	}
	if quote.ID == "" {
		quote.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	query := `INSERT INTO mechanic_quotes (id, appointment_id, mechanic_id, price, note, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		quote.ID, quote.AppointmentID, quote.MechanicID, quote.Price, quote.Note, formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to create quote: %w", err)
	}
	quote.CreatedAt = now
	return nil
}

func (db *DB) ListQuotesForAppointment(ctx context.Context, appointmentID string) ([]models.MechanicQuote, error) {
	query := `SELECT id, appointment_id, COALESCE(mechanic_id, ''), price, COALESCE(note, ''), created_at
              FROM mechanic_quotes WHERE appointment_id = ? ORDER BY created_at ASC`
	rows, err := db.QueryContext(ctx, query, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}
	defer rows.Close()

	var quotes []models.MechanicQuote
	for rows.Next() {
		var q models.MechanicQuote
		var createdStr string
		if err := rows.Scan(&q.ID, &q.AppointmentID, &q.MechanicID, &q.Price, &q.Note, &createdStr); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		if q.CreatedAt, err = parseTime(createdStr); err != nil {
			return nil, fmt.Errorf("parse quote created_at %q: %w", createdStr, err)
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func (db *DB) DeleteQuotesForAppointments(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	marks, args := placeholders(ids)
	query := `DELETE FROM mechanic_quotes WHERE appointment_id IN (` + marks + `)`
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete quotes: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted quotes: %w", err)
	}
	return deleted, nil
}
