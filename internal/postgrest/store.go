package postgrest

import (
	"context"
	"fmt"
	"time"

	"mobilemech/internal/models"
)

// maxIDsPerRequest bounds the in.(...) filter. A quoted, URL-encoded uuid is
// about 45 bytes, so a full chunk stays well under common 8 KiB URL limits.
const maxIDsPerRequest = 100

// Store implements the overdue sweep over PostgREST.
type Store struct {
	client *Client
}

func NewStore(client *Client) *Store {
	return &Store{client: client}
}

type appointmentRow struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	AppointmentDate time.Time `json:"appointment_date"`
	Location        *string   `json:"location"`
}

type idRow struct {
	ID string `json:"id"`
}

func (s *Store) FindOverduePending(ctx context.Context, cutoff time.Time) ([]models.Appointment, error) {
	resp, err := s.client.From(models.TableAppointments).
		Select("id,status,appointment_date,location").
		Eq("status", models.StatusPending).
		Lt("appointment_date", models.CeilMicrosecond(cutoff).UTC().Format(time.RFC3339Nano)).
		Order("appointment_date", true).
		Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("query overdue appointments: %w", err)
	}
	if err := resp.Error(); err != nil {
		return nil, fmt.Errorf("query overdue appointments: %w", err)
	}

	var rows []appointmentRow
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("decode appointments: %w", err)
	}

	appts := make([]models.Appointment, 0, len(rows))
	for _, r := range rows {
		appt := models.Appointment{ID: r.ID, Status: r.Status, AppointmentDate: r.AppointmentDate}
		if r.Location != nil {
			appt.Location = *r.Location
		}
		appts = append(appts, appt)
	}
	return appts, nil
}

// CancelPending patches ids in chunks of maxIDsPerRequest. On a failed chunk
// it returns the ids already cancelled by earlier chunks with the error.
func (s *Store) CancelPending(ctx context.Context, ids []string, c models.Cancellation) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	patch := map[string]any{
		"status":              models.StatusCancelled,
		"cancelled_at":        c.At.UTC().Format(time.RFC3339Nano),
		"cancelled_by":        c.By,
		"cancellation_reason": c.Reason,
	}

	cancelled := make([]string, 0, len(ids))
	for _, chunk := range chunkIDs(ids, maxIDsPerRequest) {
		resp, err := s.client.From(models.TableAppointments).
			Select("id").
			In("id", chunk).
			Eq("status", models.StatusPending).
			ExecuteUpdate(ctx, patch)
		if err != nil {
			return cancelled, fmt.Errorf("cancel appointments: %w", err)
		}
		if err := resp.Error(); err != nil {
			return cancelled, fmt.Errorf("cancel appointments: %w", err)
		}

		got, err := decodeIDs(resp)
		if err != nil {
			return cancelled, err
		}
		cancelled = append(cancelled, got...)
	}
	return cancelled, nil
}

func (s *Store) DeleteQuotesForAppointments(ctx context.Context, ids []string) (int64, error) {
	var total int64
	for _, chunk := range chunkIDs(ids, maxIDsPerRequest) {
		resp, err := s.client.From(models.TableMechanicQuotes).
			Select("id").
			In("appointment_id", chunk).
			ExecuteDelete(ctx)
		if err != nil {
			return total, fmt.Errorf("delete quotes: %w", err)
		}
		if err := resp.Error(); err != nil {
			return total, fmt.Errorf("delete quotes: %w", err)
		}

		deleted, err := decodeIDs(resp)
		if err != nil {
			return total, err
		}
		total += int64(len(deleted))
	}
	return total, nil
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func decodeIDs(resp *Response) ([]string, error) {
	var rows []idRow
	if len(resp.Body) > 0 {
		if err := resp.JSON(&rows); err != nil {
			return nil, fmt.Errorf("decode ids: %w", err)
		}
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}
