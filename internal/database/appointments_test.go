package database

import (
	"context"
	"testing"
	"time"

	"mobilemech/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createAppointment(t *testing.T, db *DB, status string, date time.Time) *models.Appointment {
	t.Helper()
	appt := &models.Appointment{
		CustomerID:      "customer-1",
		Status:          status,
		AppointmentDate: date,
		Location:        "12 Garage Lane",
	}
	require.NoError(t, db.CreateAppointment(context.Background(), appt))
	return appt
}

func TestCreateAndGetAppointment(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	date := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	appt := createAppointment(t, db, "", date)
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, models.StatusPending, appt.Status)

	got, err := db.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, got.AppointmentDate.Equal(date))
	assert.Equal(t, "12 Garage Lane", got.Location)
	assert.Nil(t, got.CancelledAt)
	assert.Empty(t, got.CancelledBy)
}

func TestCreateAppointment_InvalidStatus(t *testing.T) {
	db := setupTestDB(t)

	err := db.CreateAppointment(context.Background(), &models.Appointment{Status: "rejected", AppointmentDate: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestGetAppointment_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetAppointment(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAppointmentStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	appt := createAppointment(t, db, models.StatusPending, time.Now())

	require.NoError(t, db.UpdateAppointmentStatus(ctx, appt.ID, models.StatusConfirmed))
	got, err := db.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)

	assert.ErrorIs(t, db.UpdateAppointmentStatus(ctx, appt.ID, "bogus"), ErrInvalidStatus)
	assert.ErrorIs(t, db.UpdateAppointmentStatus(ctx, "missing", models.StatusConfirmed), ErrNotFound)
}

func TestFindOverduePending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	cutoff := models.OverdueCutoff(now)

	overdueOld := createAppointment(t, db, models.StatusPending, now.Add(-3*time.Hour))
	overdue := createAppointment(t, db, models.StatusPending, now.Add(-20*time.Minute))
	// not overdue yet
	createAppointment(t, db, models.StatusPending, cutoff)
	createAppointment(t, db, models.StatusPending, now.Add(-10*time.Minute))
	createAppointment(t, db, models.StatusPending, now.Add(72*time.Hour))
	// not pending
	createAppointment(t, db, models.StatusConfirmed, now.Add(-2*time.Hour))
	createAppointment(t, db, models.StatusInProgress, now.Add(-2*time.Hour))
	createAppointment(t, db, models.StatusCompleted, now.Add(-48*time.Hour))

	found, err := db.FindOverduePending(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, overdueOld.ID, found[0].ID)
	assert.Equal(t, overdue.ID, found[1].ID)
	assert.Equal(t, "12 Garage Lane", found[1].Location)
}

func TestFindOverduePending_SubMicrosecondCutoff(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	whole := time.Date(2026, 5, 1, 11, 45, 0, 0, time.UTC)
	cutoff := whole.Add(500 * time.Nanosecond)

	// 500ns before the cutoff
	overdue := createAppointment(t, db, models.StatusPending, whole)
	// after the cutoff
	createAppointment(t, db, models.StatusPending, whole.Add(time.Microsecond))

	found, err := db.FindOverduePending(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, overdue.ID, found[0].ID)

	found, err = db.FindOverduePending(ctx, whole)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindOverduePending_Empty(t *testing.T) {
	db := setupTestDB(t)

	found, err := db.FindOverduePending(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestCancelPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a := createAppointment(t, db, models.StatusPending, now.Add(-time.Hour))
	b := createAppointment(t, db, models.StatusPending, now.Add(-time.Hour))
	confirmed := createAppointment(t, db, models.StatusConfirmed, now.Add(-time.Hour))

	cancelled, err := db.CancelPending(ctx, []string{a.ID, b.ID, confirmed.ID}, models.AutoCancellation(now))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, cancelled)

	got, err := db.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, models.SystemActor, got.CancelledBy)
	assert.Equal(t, models.AutoCancelReason, got.CancellationReason)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, got.CancelledAt.Equal(now))

	untouched, err := db.GetAppointment(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, untouched.Status)
	assert.Nil(t, untouched.CancelledAt)
	assert.Empty(t, untouched.CancelledBy)
	assert.Empty(t, untouched.CancellationReason)
}

func TestCancelPending_SecondCallIsNoop(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	a := createAppointment(t, db, models.StatusPending, now.Add(-time.Hour))

	first, err := db.CancelPending(ctx, []string{a.ID}, models.AutoCancellation(now))
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, first)

	second, err := db.CancelPending(ctx, []string{a.ID}, models.AutoCancellation(now.Add(time.Minute)))
	require.NoError(t, err)
	assert.Empty(t, second)

	got, err := db.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, got.CancelledAt.Equal(now.Truncate(time.Microsecond)), "first cancellation timestamp must survive")
}

func TestCancelPending_EmptyIDs(t *testing.T) {
	db := setupTestDB(t)

	cancelled, err := db.CancelPending(context.Background(), nil, models.AutoCancellation(time.Now()))
	require.NoError(t, err)
	assert.Empty(t, cancelled)
}
