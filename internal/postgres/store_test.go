package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"mobilemech/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS appointments (
	id uuid PRIMARY KEY,
	status text NOT NULL DEFAULT 'pending',
	appointment_date timestamptz NOT NULL,
	location text,
	cancelled_at timestamptz,
	cancelled_by text,
	cancellation_reason text
);
CREATE TABLE IF NOT EXISTS mechanic_quotes (
	id uuid PRIMARY KEY,
	appointment_id uuid NOT NULL REFERENCES appointments(id),
	price numeric NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS mechanic_quotes_appointment_id_idx ON mechanic_quotes (appointment_id);
`

func openTestPool(t *testing.T) *Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	pool, err := Open(ctx, dsn, 2)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, testSchema)
	require.NoError(t, err)
	return pool
}

func insertAppointment(t *testing.T, pool *Pool, status string, date time.Time) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO appointments (id, status, appointment_date, location) VALUES ($1, $2, $3, 'Depot 4')`,
		id, status, date)
	require.NoError(t, err)
	return id
}

func TestStoreIntegration(t *testing.T) {
	pool := openTestPool(t)
	store := NewStore(pool)
	ctx := context.Background()

	// far past so rows from other runs never interfere with ordering checks
	now := time.Date(1999, 1, 1, 12, 0, 0, 0, time.UTC)
	cutoff := models.OverdueCutoff(now)

	overdue := insertAppointment(t, pool, models.StatusPending, now.Add(-20*time.Minute))
	boundary := insertAppointment(t, pool, models.StatusPending, cutoff)
	confirmed := insertAppointment(t, pool, models.StatusConfirmed, now.Add(-time.Hour))

	_, err := pool.Exec(ctx, `INSERT INTO mechanic_quotes (id, appointment_id) VALUES ($1, $2)`, uuid.NewString(), overdue)
	require.NoError(t, err)

	found, err := store.FindOverduePending(ctx, cutoff)
	require.NoError(t, err)
	var foundIDs []string
	for _, a := range found {
		foundIDs = append(foundIDs, a.ID)
	}
	assert.Contains(t, foundIDs, overdue)
	assert.NotContains(t, foundIDs, boundary)
	assert.NotContains(t, foundIDs, confirmed)

	cancelled, err := store.CancelPending(ctx, []string{overdue, confirmed}, models.AutoCancellation(now))
	require.NoError(t, err)
	assert.Equal(t, []string{overdue}, cancelled)

	again, err := store.CancelPending(ctx, []string{overdue}, models.AutoCancellation(now))
	require.NoError(t, err)
	assert.Empty(t, again)

	deleted, err := store.DeleteQuotesForAppointments(ctx, cancelled)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestStore_EmptyIDsSkipQuery(t *testing.T) {
	store := NewStore(nil)

	cancelled, err := store.CancelPending(context.Background(), nil, models.AutoCancellation(time.Now()))
	require.NoError(t, err)
	assert.Empty(t, cancelled)

	deleted, err := store.DeleteQuotesForAppointments(context.Background(), []string{})
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestIDFiltersDoNotCastColumns(t *testing.T) {
	for _, q := range []string{cancelPendingSQL, deleteQuotesSQL} {
		assert.NotContains(t, q, "id::text =")
		assert.Contains(t, q, "= ANY($1::text[]::uuid[])")
	}
}

func TestIDFiltersUseIndexes(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `SET LOCAL enable_seqscan = off`)
	require.NoError(t, err)

	ids := []string{uuid.NewString(), uuid.NewString()}
	plans := map[string][]any{
		cancelPendingSQL: {ids, models.StatusCancelled, time.Now(), models.SystemActor, models.AutoCancelReason, models.StatusPending},
		deleteQuotesSQL:  {ids},
	}
	for q, args := range plans {
		rows, err := tx.Query(ctx, "EXPLAIN "+q, args...)
		require.NoError(t, err)
		lines, err := pgx.CollectRows(rows, pgx.RowTo[string])
		require.NoError(t, err)
		assert.Contains(t, strings.Join(lines, "\n"), "Index", q)
	}
}

func TestReadyCheck_NotConfigured(t *testing.T) {
	check := ReadyCheck(nil)
	assert.Error(t, check(context.Background()))
}
