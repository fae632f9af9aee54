package models

import "time"

type Appointment struct {
	ID                 string     `json:"id"`
	CustomerID         string     `json:"customer_id,omitempty"`
	MechanicID         string     `json:"mechanic_id,omitempty"`
	Status             string     `json:"status"` // pending, confirmed, in_progress, completed, cancelled
	AppointmentDate    time.Time  `json:"appointment_date"`
	Location           string     `json:"location"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsOverdue reports whether the appointment is still pending and its
// scheduled start is strictly before cutoff.
func (a *Appointment) IsOverdue(cutoff time.Time) bool {
	return a.Status == StatusPending && a.AppointmentDate.Before(cutoff)
}

// Cancellation carries the audit fields written by a cancellation.
type Cancellation struct {
	At     time.Time
	By     string
	Reason string
}

// AutoCancellation returns the audit fields for a system cancellation at t.
func AutoCancellation(t time.Time) Cancellation {
	return Cancellation{At: t, By: SystemActor, Reason: AutoCancelReason}
}

// CeilMicrosecond rounds t up to the next whole microsecond, the precision
// every backing store keeps for timestamps.
func CeilMicrosecond(t time.Time) time.Time {
	if c := t.Truncate(time.Microsecond); !c.Equal(t) {
		return c.Add(time.Microsecond)
	}
	return t
}

// OverdueCutoff returns the instant before which pending appointments are overdue.
func OverdueCutoff(now time.Time) time.Time {
	return now.Add(-OverdueGracePeriod)
}
