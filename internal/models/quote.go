package models

import "time"

type MechanicQuote struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointment_id"`
	MechanicID    string    `json:"mechanic_id"`
	Price         float64   `json:"price"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
