package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mobilemech/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// timeLayout is fixed-width UTC so that text comparison in SQL orders the
// same way as the instants themselves.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// NewDB opens (creating if needed) the sqlite database at path and
// bootstraps the local schema.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every new connection to :memory: is a fresh empty database
	if path == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := New(sqlDB, logger)
	if err := db.createTables(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	db.logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

// New wraps an already opened handle without touching the schema.
func New(sqlDB *sql.DB, logger *zerolog.Logger) *DB {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &DB{DB: sqlDB, logger: logger}
}

func (db *DB) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS appointments (
            id TEXT PRIMARY KEY,
            customer_id TEXT,
            mechanic_id TEXT,
            status TEXT NOT NULL DEFAULT 'pending'
                CHECK (status IN ('pending', 'confirmed', 'in_progress', 'completed', 'cancelled')),
            appointment_date TEXT NOT NULL,
            location TEXT NOT NULL DEFAULT '',
            cancelled_at TEXT,
            cancelled_by TEXT,
            cancellation_reason TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS mechanic_quotes (
            id TEXT PRIMARY KEY,
            appointment_id TEXT NOT NULL REFERENCES appointments(id),
            mechanic_id TEXT,
            price REAL NOT NULL DEFAULT 0,
            note TEXT,
            created_at TEXT NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_appointments_status_date ON appointments(status, appointment_date)`,
		`CREATE INDEX IF NOT EXISTS idx_mechanic_quotes_appointment_id ON mechanic_quotes(appointment_id)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// formatUpperBound formats t for an exclusive "< t" comparison. Stored values
// are truncated to microseconds, so a sub-microsecond t is rounded up to keep
// every stored instant before t on the matching side.
func formatUpperBound(t time.Time) string {
	return formatTime(models.CeilMicrosecond(t))
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// placeholders returns "?, ?, ?" with n markers and the ids as driver args.
func placeholders(ids []string) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}
