package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppointment_IsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cutoff := OverdueCutoff(now)

	tests := []struct {
		name string
		appt Appointment
		want bool
	}{
		{"pending 20 minutes late", Appointment{Status: StatusPending, AppointmentDate: now.Add(-20 * time.Minute)}, true},
		{"pending exactly at cutoff", Appointment{Status: StatusPending, AppointmentDate: cutoff}, false},
		{"pending 10 minutes late", Appointment{Status: StatusPending, AppointmentDate: now.Add(-10 * time.Minute)}, false},
		{"pending in the future", Appointment{Status: StatusPending, AppointmentDate: now.Add(48 * time.Hour)}, false},
		{"confirmed long ago", Appointment{Status: StatusConfirmed, AppointmentDate: now.Add(-24 * time.Hour)}, false},
		{"cancelled long ago", Appointment{Status: StatusCancelled, AppointmentDate: now.Add(-24 * time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appt.IsOverdue(cutoff))
		})
	}
}

func TestAutoCancellation(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	c := AutoCancellation(at)

	assert.Equal(t, at, c.At)
	assert.Equal(t, "system", c.By)
	assert.Equal(t, "Automatically cancelled - more than 15 minutes overdue", c.Reason)
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range []string{StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled} {
		assert.True(t, IsValidStatus(s), s)
	}
	assert.False(t, IsValidStatus("rejected"))
	assert.False(t, IsValidStatus(""))
}

func TestRunRecord_Duration(t *testing.T) {
	start := time.Now()
	r := RunRecord{StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}
	assert.Equal(t, 1500*time.Millisecond, r.Duration())
}

func TestCeilMicrosecond(t *testing.T) {
	base := time.Date(2026, 3, 10, 11, 45, 0, 0, time.UTC)

	assert.True(t, CeilMicrosecond(base).Equal(base))
	assert.True(t, CeilMicrosecond(base.Add(time.Nanosecond)).Equal(base.Add(time.Microsecond)))
	assert.True(t, CeilMicrosecond(base.Add(-time.Nanosecond)).Equal(base))
	assert.True(t, CeilMicrosecond(base.Add(2*time.Microsecond)).Equal(base.Add(2*time.Microsecond)))
}
