package models

import "time"

const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

const (
	// SystemActor marks cancellations made without a human in the loop.
	SystemActor = "system"

	// OverdueGracePeriod is how long a pending appointment may sit past its
	// scheduled start before it is cancelled automatically.
	OverdueGracePeriod = 15 * time.Minute

	// AutoCancelReason is written to cancellation_reason by the overdue sweep.
	AutoCancelReason = "Automatically cancelled - more than 15 minutes overdue"
)

const (
	TableAppointments   = "appointments"
	TableMechanicQuotes = "mechanic_quotes"
)

const (
	// DefaultRunHistorySize caps the number of stored run records.
	DefaultRunHistorySize = 100

	// RunHistoryKey is the redis list holding recent run records.
	RunHistoryKey = "autocancel:runs"
)

// IsValidStatus reports whether s is a known appointment status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}
