package provider

import (
	"context"
	"errors"

	"syncengine/internal/models"
)

// Provider ids understood by the factory.
const (
	CalCom   = "calcom"
	Calendly = "calendly"
	GHL      = "ghl"
)

var (
	// ErrUnknownProvider is a configuration error raised at construction
	// time, never at call time.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNotConnected means the workspace has no active integration for
	// the provider. The worker treats it as a retryable failure.
	ErrNotConnected = errors.New("provider integration is not connected")

	// ErrUnsupported marks an operation the provider cannot perform
	// (link-only calendars require the customer to self-schedule).
	ErrUnsupported = errors.New("operation not supported by provider")

	// ErrNotConfigured marks a missing provider-side default resource,
	// e.g. no booking calendar selected for a CRM-calendar hybrid.
	ErrNotConfigured = errors.New("provider integration is not configured")
)

// BookingResult carries the identifiers a calendar provider returns for a
// created event. SecondaryID is the separate stable handle some providers
// use alongside the primary id.
type BookingResult struct {
	EventID     string
	SecondaryID string
}

// CalendarAdapter is a capability-bounded client for one external calendar.
// Implementations return ErrUnsupported or ErrNotConfigured for operations
// they cannot perform rather than attempting the call.
type CalendarAdapter interface {
	CreateEvent(ctx context.Context, payload models.AppointmentPayload) (*BookingResult, error)
	UpdateEvent(ctx context.Context, externalID string, payload models.AppointmentPayload) error
	CancelEvent(ctx context.Context, externalID, reason string) error
	Close() error
}

// MessageSender delivers an SMS to the provider's inbox and returns the
// provider message id.
type MessageSender interface {
	SendMessage(ctx context.Context, payload models.MessagePayload) (string, error)
	Close() error
}
