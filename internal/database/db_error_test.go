package database

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"mobilemech/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close() // Close the DB to trigger errors

	ctx := context.Background()

	t.Run("FindOverduePending_Error", func(t *testing.T) {
		_, err := db.FindOverduePending(ctx, time.Now())
		assert.Error(t, err)
	})

	t.Run("CancelPending_Error", func(t *testing.T) {
		_, err := db.CancelPending(ctx, []string{"a"}, models.AutoCancellation(time.Now()))
		assert.Error(t, err)
	})

	t.Run("DeleteQuotes_Error", func(t *testing.T) {
		_, err := db.DeleteQuotesForAppointments(ctx, []string{"a"})
		assert.Error(t, err)
	})

	t.Run("CreateAppointment_Error", func(t *testing.T) {
		err := db.CreateAppointment(ctx, &models.Appointment{AppointmentDate: time.Now()})
		assert.Error(t, err)
	})
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return New(sqlDB, nil), mock
}

func TestCancelPending_QueryShape(t *testing.T) {
	db, mock := newMockDB(t)
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE appointments\s+SET status = \?, cancelled_at = \?, cancelled_by = \?, cancellation_reason = \?, updated_at = \?\s+WHERE id IN \(\?, \?\) AND status = \?\s+RETURNING id`).
		WithArgs(models.StatusCancelled, formatTime(at), models.SystemActor, models.AutoCancelReason, formatTime(at), "a", "b", models.StatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("b"))

	cancelled, err := db.CancelPending(context.Background(), []string{"a", "b"}, models.AutoCancellation(at))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPending_DriverError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`UPDATE appointments`).WillReturnError(errors.New("connection reset"))

	_, err := db.CancelPending(context.Background(), []string{"a"}, models.AutoCancellation(time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOverduePending_RowError(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{
		"id", "customer_id", "mechanic_id", "status", "appointment_date", "location",
		"cancelled_at", "cancelled_by", "cancellation_reason", "created_at", "updated_at",
	}).AddRow("a", "", "", "pending", "not-a-time", "", nil, "", "", "x", "x")
	mock.ExpectQuery(`(?s)SELECT .* FROM appointments\s+WHERE status = \? AND appointment_date < \?`).
		WithArgs(models.StatusPending, sqlmock.AnyArg()).
		WillReturnRows(rows)

	_, err := db.FindOverduePending(context.Background(), time.Now())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteQuotes_DriverError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(`DELETE FROM mechanic_quotes WHERE appointment_id IN \(\?\)`).
		WithArgs("a").
		WillReturnError(errors.New("permission denied for table mechanic_quotes"))

	_, err := db.DeleteQuotesForAppointments(context.Background(), []string{"a"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
