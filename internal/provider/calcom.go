package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"syncengine/internal/config"
	"syncengine/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// calcomAdapter is the direct-booking calendar: create, update and cancel all
// work natively against the provider's REST API.
type calcomAdapter struct {
	client *resty.Client
	creds  CalComCredentials
}

func newCalComAdapter(cfg config.ProviderConfig, creds CalComCredentials) *calcomAdapter {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.Timeout) * time.Second).
		SetQueryParam("apiKey", creds.APIKey).
		SetHeader("Content-Type", "application/json")
	return &calcomAdapter{client: client, creds: creds}
}

type calcomBookingRequest struct {
	EventTypeID int    `json:"eventTypeId"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type calcomBookingResponse struct {
	ID  int64  `json:"id"`
	UID string `json:"uid"`
}

func (a *calcomAdapter) CreateEvent(ctx context.Context, payload models.AppointmentPayload) (*BookingResult, error) {
	var booked calcomBookingResponse
	resp, err := a.client.R().
		SetContext(ctx).
		// Fresh key per logical create; a crash after send may still
		// duplicate the booking on replay.
		SetHeader("Idempotency-Key", uuid.NewString()).
		SetBody(calcomBookingRequest{
			EventTypeID: a.creds.EventTypeID,
			Start:       payload.ScheduledAt.UTC().Format(time.RFC3339),
			End:         bookingEnd(payload),
			Title:       payload.ServiceType,
			Description: payload.Notes,
		}).
		SetResult(&booked).
		Post("/bookings")
	if err != nil {
		return nil, fmt.Errorf("calcom create booking: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("calcom create booking: status %d: %s", resp.StatusCode(), resp.String())
	}
	if booked.ID == 0 {
		return nil, fmt.Errorf("calcom create booking: response missing booking id")
	}

	return &BookingResult{
		EventID:     strconv.FormatInt(booked.ID, 10),
		SecondaryID: booked.UID,
	}, nil
}

func (a *calcomAdapter) UpdateEvent(ctx context.Context, externalID string, payload models.AppointmentPayload) error {
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"start": payload.ScheduledAt.UTC().Format(time.RFC3339),
			"end":   bookingEnd(payload),
		}).
		Patch("/bookings/" + externalID)
	if err != nil {
		return fmt.Errorf("calcom update booking %s: %w", externalID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("calcom update booking %s: status %d: %s", externalID, resp.StatusCode(), resp.String())
	}
	return nil
}

func (a *calcomAdapter) CancelEvent(ctx context.Context, externalID, reason string) error {
	req := a.client.R().SetContext(ctx)
	if reason != "" {
		req.SetBody(map[string]string{"cancellationReason": reason})
	}
	resp, err := req.Delete("/bookings/" + externalID + "/cancel")
	if err != nil {
		return fmt.Errorf("calcom cancel booking %s: %w", externalID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("calcom cancel booking %s: status %d: %s", externalID, resp.StatusCode(), resp.String())
	}
	return nil
}

func (a *calcomAdapter) Close() error {
	a.client.GetClient().CloseIdleConnections()
	return nil
}

func bookingEnd(payload models.AppointmentPayload) string {
	minutes := payload.DurationMinutes
	if minutes <= 0 {
		minutes = 30
	}
	return payload.ScheduledAt.UTC().Add(time.Duration(minutes) * time.Minute).Format(time.RFC3339)
}
