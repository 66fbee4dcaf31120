package provider

import (
	"context"
	"fmt"
	"time"

	"syncengine/internal/config"
	"syncengine/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// ghlAdapter covers the CRM-calendar hybrid: calendar booking needs a
// pre-configured default calendar id, while cancellation and inbox message
// delivery work with the base credentials alone.
type ghlAdapter struct {
	client *resty.Client
	creds  GHLCredentials
}

func newGHLAdapter(cfg config.ProviderConfig, creds GHLCredentials) *ghlAdapter {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.Timeout) * time.Second).
		SetAuthToken(creds.APIKey).
		SetHeader("Version", "2021-07-28").
		SetHeader("Content-Type", "application/json")
	return &ghlAdapter{client: client, creds: creds}
}

type ghlAppointmentRequest struct {
	CalendarID string `json:"calendarId"`
	LocationID string `json:"locationId"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Title      string `json:"title,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type ghlAppointmentResponse struct {
	ID string `json:"id"`
}

func (a *ghlAdapter) CreateEvent(ctx context.Context, payload models.AppointmentPayload) (*BookingResult, error) {
	if a.creds.CalendarID == "" {
		return nil, fmt.Errorf("%w: no default booking calendar selected for this location", ErrNotConfigured)
	}

	var created ghlAppointmentResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(ghlAppointmentRequest{
			CalendarID: a.creds.CalendarID,
			LocationID: a.creds.LocationID,
			StartTime:  payload.ScheduledAt.UTC().Format(time.RFC3339),
			EndTime:    bookingEnd(payload),
			Title:      payload.ServiceType,
			Notes:      payload.Notes,
		}).
		SetResult(&created).
		Post("/calendars/events/appointments")
	if err != nil {
		return nil, fmt.Errorf("ghl create appointment: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ghl create appointment: status %d: %s", resp.StatusCode(), resp.String())
	}
	if created.ID == "" {
		return nil, fmt.Errorf("ghl create appointment: response missing id")
	}
	return &BookingResult{EventID: created.ID}, nil
}

func (a *ghlAdapter) UpdateEvent(ctx context.Context, externalID string, payload models.AppointmentPayload) error {
	if a.creds.CalendarID == "" {
		return fmt.Errorf("%w: no default booking calendar selected for this location", ErrNotConfigured)
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"startTime": payload.ScheduledAt.UTC().Format(time.RFC3339),
			"endTime":   bookingEnd(payload),
		}).
		Put("/calendars/events/appointments/" + externalID)
	if err != nil {
		return fmt.Errorf("ghl update appointment %s: %w", externalID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("ghl update appointment %s: status %d: %s", externalID, resp.StatusCode(), resp.String())
	}
	return nil
}

func (a *ghlAdapter) CancelEvent(ctx context.Context, externalID, reason string) error {
	resp, err := a.client.R().
		SetContext(ctx).
		Delete("/calendars/events/" + externalID)
	if err != nil {
		return fmt.Errorf("ghl cancel appointment %s: %w", externalID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("ghl cancel appointment %s: status %d: %s", externalID, resp.StatusCode(), resp.String())
	}
	return nil
}

type ghlMessageRequest struct {
	Type       string `json:"type"`
	LocationID string `json:"locationId"`
	FromNumber string `json:"fromNumber"`
	ToNumber   string `json:"toNumber"`
	Message    string `json:"message"`
}

type ghlMessageResponse struct {
	MessageID string `json:"messageId"`
}

// SendMessage delivers an SMS into the CRM inbox and returns the provider
// message id.
func (a *ghlAdapter) SendMessage(ctx context.Context, payload models.MessagePayload) (string, error) {
	var sent ghlMessageResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(ghlMessageRequest{
			Type:       "SMS",
			LocationID: a.creds.LocationID,
			FromNumber: payload.FromNumber,
			ToNumber:   payload.ToNumber,
			Message:    payload.Body,
		}).
		SetResult(&sent).
		Post("/conversations/messages")
	if err != nil {
		return "", fmt.Errorf("ghl send message: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ghl send message: status %d: %s", resp.StatusCode(), resp.String())
	}
	if sent.MessageID == "" {
		return "", fmt.Errorf("ghl send message: response missing messageId")
	}
	return sent.MessageID, nil
}

func (a *ghlAdapter) Close() error {
	a.client.GetClient().CloseIdleConnections()
	return nil
}
