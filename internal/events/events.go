package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventAppointmentCreated     = "appointment_created"
	EventAppointmentRescheduled = "appointment_rescheduled"
	EventAppointmentCancelled   = "appointment_cancelled"
	EventMessageQueued          = "message_queued"
)

// AppointmentEventPayload is the minimal appointment snapshot for consumers.
type AppointmentEventPayload struct {
	AppointmentID   int64     `json:"appointment_id"`
	WorkspaceID     int64     `json:"workspace_id"`
	Provider        string    `json:"provider"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	ServiceType     string    `json:"service_type,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

// MessageEventPayload announces an outbound message awaiting delivery.
type MessageEventPayload struct {
	MessageID   int64  `json:"message_id"`
	WorkspaceID int64  `json:"workspace_id"`
	Provider    string `json:"provider"`
	Direction   string `json:"direction"`
	FromNumber  string `json:"from_number"`
	ToNumber    string `json:"to_number"`
	Body        string `json:"body"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub. Local mutations publish here and the
// engine's subscribers translate them into sync jobs.
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

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
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

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
