package provider

import (
	"context"
	"fmt"
	"time"

	"syncengine/internal/config"
	"syncengine/internal/models"

	"github.com/go-resty/resty/v2"
)

// calendlyAdapter is link-only: the end customer self-schedules through a
// booking link, so the platform can never create or move events on their
// behalf. Cancellation is the one functional operation.
type calendlyAdapter struct {
	client *resty.Client
}

func newCalendlyAdapter(cfg config.ProviderConfig, creds CalendlyCredentials) *calendlyAdapter {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.Timeout) * time.Second).
		SetAuthToken(creds.Token).
		SetHeader("Content-Type", "application/json")
	return &calendlyAdapter{client: client}
}

func (a *calendlyAdapter) CreateEvent(ctx context.Context, payload models.AppointmentPayload) (*BookingResult, error) {
	return nil, fmt.Errorf("%w: calendly bookings are created by the invitee via the scheduling link", ErrUnsupported)
}

func (a *calendlyAdapter) UpdateEvent(ctx context.Context, externalID string, payload models.AppointmentPayload) error {
	return fmt.Errorf("%w: calendly reschedules are done by the invitee via the scheduling link", ErrUnsupported)
}

func (a *calendlyAdapter) CancelEvent(ctx context.Context, externalID, reason string) error {
	body := map[string]string{}
	if reason != "" {
		body["reason"] = reason
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/scheduled_events/" + externalID + "/cancellation")
	if err != nil {
		return fmt.Errorf("calendly cancel event %s: %w", externalID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("calendly cancel event %s: status %d: %s", externalID, resp.StatusCode(), resp.String())
	}
	return nil
}

func (a *calendlyAdapter) Close() error {
	a.client.GetClient().CloseIdleConnections()
	return nil
}
