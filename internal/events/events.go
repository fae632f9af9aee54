package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventAppointmentAutoCancelled = "appointment_auto_cancelled"
)

// AppointmentEventPayload describes an appointment cancelled by the overdue sweep.
type AppointmentEventPayload struct {
	AppointmentID   string    `json:"appointment_id"`
	AppointmentDate time.Time `json:"appointment_date"`
	Location        string    `json:"location,omitempty"`
	Status          string    `json:"status"`
	CancelledAt     time.Time `json:"cancelled_at"`
	CancelledBy     string    `json:"cancelled_by"`
	Reason          string    `json:"reason"`
}

// EventKey partitions downstream messages per appointment.
func (p AppointmentEventPayload) EventKey() string {
	return p.AppointmentID
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns the first
// handler error. Every handler runs regardless.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	return b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}

// PublishBatchJSON publishes each payload in order and returns the first error.
func (b *EventBus) PublishBatchJSON(eventType string, payloads []interface{}) error {
	var first error
	for _, payload := range payloads {
		if err := b.PublishJSON(eventType, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}
