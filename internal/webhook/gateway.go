package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"syncengine/internal/database"
	"syncengine/internal/metrics"
	"syncengine/internal/models"
	"syncengine/internal/provider"

	"github.com/rs/zerolog"
)

// Normalized inbound event types.
const (
	EventCreated     = "created"
	EventRescheduled = "rescheduled"
	EventCancelled   = "cancelled"
)

// inboundEvent is the provider-agnostic view of a webhook body. Each provider
// extractor fills it from its own wire format.
type inboundEvent struct {
	ExternalID      string
	EventType       string
	ScheduledAt     *time.Time
	DurationMinutes int
}

// Gateway ingests provider webhooks through the idempotency ledger. The
// contract with the HTTP layer is that Handle only returns an error for
// internal faults (ledger unavailable); handler failures are swallowed after
// logging so the provider is never asked to redeliver.
type Gateway struct {
	db     *database.DB
	logger *zerolog.Logger
}

func NewGateway(db *database.DB, logger *zerolog.Logger) *Gateway {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Gateway{db: db, logger: logger}
}

// Handle runs one inbound event through extraction, deduplication, and
// dispatch. Duplicates and events without a natural key are acknowledged
// without side effects.
func (g *Gateway) Handle(ctx context.Context, providerID, rawEventType string, payload []byte) error {
	ev, err := extractEvent(providerID, rawEventType, payload)
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("provider", providerID).
			Str("raw_event_type", rawEventType).
			Msg("webhook: unparseable payload, acknowledging without ledger entry")
		metrics.IncWebhookEvent(providerID, metrics.WebhookNoKey)
		return nil
	}
	if ev.ExternalID == "" {
		// Nothing to deduplicate against.
		g.logger.Warn().
			Str("provider", providerID).
			Str("raw_event_type", rawEventType).
			Msg("webhook: missing natural key, acknowledging without ledger entry")
		metrics.IncWebhookEvent(providerID, metrics.WebhookNoKey)
		return nil
	}

	entry := &models.WebhookEvent{
		Provider:        providerID,
		EventType:       ev.EventType,
		ExternalEventID: ev.ExternalID,
		Payload:         string(payload),
	}
	inserted, existing, err := g.db.InsertWebhookEvent(ctx, entry)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	if !inserted {
		g.logger.Info().
			Str("provider", providerID).
			Str("external_event_id", ev.ExternalID).
			Int64("ledger_id", existing.ID).
			Msg("webhook: duplicate delivery, acknowledging without reprocessing")
		metrics.IncWebhookEvent(providerID, metrics.WebhookDuplicate)
		return nil
	}

	// Processing is best effort. The ledger entry is marked processed even
	// when the handler fails: a provider redelivery would be short-circuited
	// by the ledger anyway, so holding the flag back buys nothing.
	if err := g.dispatch(ctx, providerID, ev); err != nil {
		g.logger.Error().
			Err(err).
			Str("provider", providerID).
			Str("event_type", ev.EventType).
			Str("external_event_id", ev.ExternalID).
			Msg("webhook: handler failed")
		metrics.IncWebhookEvent(providerID, metrics.WebhookError)
	} else {
		metrics.IncWebhookEvent(providerID, metrics.WebhookAccepted)
	}

	if err := g.db.MarkWebhookEventProcessed(ctx, entry.ID); err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}

func (g *Gateway) dispatch(ctx context.Context, providerID string, ev *inboundEvent) error {
	switch ev.EventType {
	case EventCreated:
		// Inbound creates never spawn local entities; the booking subsystem
		// owns appointment creation.
		g.logger.Info().
			Str("provider", providerID).
			Str("external_event_id", ev.ExternalID).
			Msg("webhook: inbound create logged and dropped")
		return nil
	case EventRescheduled:
		return g.handleRescheduled(ctx, providerID, ev)
	case EventCancelled:
		return g.handleCancelled(ctx, providerID, ev)
	default:
		g.logger.Info().
			Str("provider", providerID).
			Str("event_type", ev.EventType).
			Msg("webhook: unrecognized event type dropped")
		return nil
	}
}

func (g *Gateway) handleRescheduled(ctx context.Context, providerID string, ev *inboundEvent) error {
	appt, err := g.db.GetAppointmentByExternalID(ctx, providerID, ev.ExternalID)
	if errors.Is(err, database.ErrNotFound) {
		g.logger.Info().
			Str("provider", providerID).
			Str("external_event_id", ev.ExternalID).
			Msg("webhook: reschedule for untracked appointment dropped")
		return nil
	}
	if err != nil {
		return err
	}
	if ev.ScheduledAt == nil {
		return fmt.Errorf("reschedule event %s carries no start time", ev.ExternalID)
	}

	duration := ev.DurationMinutes
	if duration == 0 {
		duration = appt.DurationMinutes
	}
	if err := g.db.RescheduleAppointment(ctx, appt.ID, *ev.ScheduledAt, duration); err != nil {
		return err
	}
	g.logger.Info().
		Int64("appointment_id", appt.ID).
		Str("provider", providerID).
		Time("scheduled_at", *ev.ScheduledAt).
		Msg("webhook: appointment rescheduled")
	return nil
}

func (g *Gateway) handleCancelled(ctx context.Context, providerID string, ev *inboundEvent) error {
	appt, err := g.db.GetAppointmentByExternalID(ctx, providerID, ev.ExternalID)
	if errors.Is(err, database.ErrNotFound) {
		g.logger.Info().
			Str("provider", providerID).
			Str("external_event_id", ev.ExternalID).
			Msg("webhook: cancellation for untracked appointment dropped")
		return nil
	}
	if err != nil {
		return err
	}
	if err := g.db.CancelAppointment(ctx, appt.ID); err != nil {
		return err
	}
	g.logger.Info().
		Int64("appointment_id", appt.ID).
		Str("provider", providerID).
		Msg("webhook: appointment cancelled")
	return nil
}

// extractEvent pulls the natural key and normalized event type out of a
// provider payload.
func extractEvent(providerID, rawEventType string, payload []byte) (*inboundEvent, error) {
	switch providerID {
	case provider.CalCom:
		return extractCalComEvent(rawEventType, payload)
	case provider.Calendly:
		return extractCalendlyEvent(rawEventType, payload)
	case provider.GHL:
		return extractGHLEvent(rawEventType, payload)
	default:
		return nil, fmt.Errorf("no webhook extractor for provider %q", providerID)
	}
}

type calcomWebhookBody struct {
	TriggerEvent string `json:"triggerEvent"`
	Payload      struct {
		UID       string    `json:"uid"`
		StartTime time.Time `json:"startTime"`
		EndTime   time.Time `json:"endTime"`
	} `json:"payload"`
}

func extractCalComEvent(rawEventType string, payload []byte) (*inboundEvent, error) {
	var body calcomWebhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode calcom webhook: %w", err)
	}

	raw := rawEventType
	if raw == "" {
		raw = body.TriggerEvent
	}
	var eventType string
	switch raw {
	case "BOOKING_CREATED":
		eventType = EventCreated
	case "BOOKING_RESCHEDULED":
		eventType = EventRescheduled
	case "BOOKING_CANCELLED":
		eventType = EventCancelled
	default:
		eventType = strings.ToLower(raw)
	}

	ev := &inboundEvent{ExternalID: body.Payload.UID, EventType: eventType}
	if !body.Payload.StartTime.IsZero() {
		start := body.Payload.StartTime
		ev.ScheduledAt = &start
		if body.Payload.EndTime.After(start) {
			ev.DurationMinutes = int(body.Payload.EndTime.Sub(start).Minutes())
		}
	}
	return ev, nil
}

type calendlyWebhookBody struct {
	Event   string `json:"event"`
	Payload struct {
		Event          string `json:"event"` // scheduled event URI
		ScheduledEvent struct {
			URI       string    `json:"uri"`
			StartTime time.Time `json:"start_time"`
			EndTime   time.Time `json:"end_time"`
		} `json:"scheduled_event"`
	} `json:"payload"`
}

func extractCalendlyEvent(rawEventType string, payload []byte) (*inboundEvent, error) {
	var body calendlyWebhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode calendly webhook: %w", err)
	}

	raw := rawEventType
	if raw == "" {
		raw = body.Event
	}
	var eventType string
	switch raw {
	case "invitee.created":
		eventType = EventCreated
	case "invitee.canceled":
		eventType = EventCancelled
	default:
		eventType = strings.ToLower(raw)
	}

	// The natural key is the scheduled event URI suffix.
	uri := body.Payload.Event
	if uri == "" {
		uri = body.Payload.ScheduledEvent.URI
	}
	ev := &inboundEvent{ExternalID: uriSuffix(uri), EventType: eventType}
	if start := body.Payload.ScheduledEvent.StartTime; !start.IsZero() {
		ev.ScheduledAt = &start
		if end := body.Payload.ScheduledEvent.EndTime; end.After(start) {
			ev.DurationMinutes = int(end.Sub(start).Minutes())
		}
	}
	return ev, nil
}

type ghlWebhookBody struct {
	Type          string `json:"type"`
	AppointmentID string `json:"appointmentId"`
	Appointment   struct {
		ID        string    `json:"id"`
		StartTime time.Time `json:"startTime"`
		EndTime   time.Time `json:"endTime"`
	} `json:"appointment"`
}

func extractGHLEvent(rawEventType string, payload []byte) (*inboundEvent, error) {
	var body ghlWebhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode ghl webhook: %w", err)
	}

	raw := rawEventType
	if raw == "" {
		raw = body.Type
	}
	var eventType string
	switch raw {
	case "AppointmentCreate":
		eventType = EventCreated
	case "AppointmentUpdate":
		eventType = EventRescheduled
	case "AppointmentDelete":
		eventType = EventCancelled
	default:
		eventType = strings.ToLower(raw)
	}

	id := body.AppointmentID
	if id == "" {
		id = body.Appointment.ID
	}
	ev := &inboundEvent{ExternalID: id, EventType: eventType}
	if start := body.Appointment.StartTime; !start.IsZero() {
		ev.ScheduledAt = &start
		if end := body.Appointment.EndTime; end.After(start) {
			ev.DurationMinutes = int(end.Sub(start).Minutes())
		}
	}
	return ev, nil
}

func uriSuffix(uri string) string {
	if uri == "" {
		return ""
	}
	trimmed := strings.TrimRight(uri, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
