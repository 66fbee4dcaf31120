package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"syncengine/internal/config"
	"syncengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ghlTestAdapter(baseURL, calendarID string) *ghlAdapter {
	return newGHLAdapter(
		config.ProviderConfig{BaseURL: baseURL, Timeout: 2},
		GHLCredentials{APIKey: "key", LocationID: "loc-1", CalendarID: calendarID},
	)
}

func TestGHLCreateRequiresCalendar(t *testing.T) {
	adapter := ghlTestAdapter("http://ghl.test", "")
	defer adapter.Close()

	// No HTTP server: the configuration error must come before any call.
	_, err := adapter.CreateEvent(context.Background(), testPayload())
	assert.ErrorIs(t, err, ErrNotConfigured)

	err = adapter.UpdateEvent(context.Background(), "ev-1", testPayload())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestGHLCreateEvent(t *testing.T) {
	var gotReq ghlAppointmentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST /calendars/events/appointments", r.Method+" "+r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.Equal(t, "2021-07-28", r.Header.Get("Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ghlAppointmentResponse{ID: "appt-1"})
	}))
	defer srv.Close()

	adapter := ghlTestAdapter(srv.URL, "cal-9")
	defer adapter.Close()

	res, err := adapter.CreateEvent(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "appt-1", res.EventID)
	assert.Empty(t, res.SecondaryID)
	assert.Equal(t, "cal-9", gotReq.CalendarID)
	assert.Equal(t, "loc-1", gotReq.LocationID)
}

func TestGHLCancelWorksWithoutCalendar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "DELETE /calendars/events/appt-1", r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	adapter := ghlTestAdapter(srv.URL, "")
	defer adapter.Close()

	require.NoError(t, adapter.CancelEvent(context.Background(), "appt-1", ""))
}

func TestGHLSendMessage(t *testing.T) {
	var gotReq ghlMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST /conversations/messages", r.Method+" "+r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ghlMessageResponse{MessageID: "msg-5"})
	}))
	defer srv.Close()

	adapter := ghlTestAdapter(srv.URL, "")
	defer adapter.Close()

	id, err := adapter.SendMessage(context.Background(), models.MessagePayload{
		Direction:  models.DirectionOutbound,
		FromNumber: "+15550001111",
		ToNumber:   "+15550002222",
		Body:       "reminder",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-5", id)
	assert.Equal(t, "SMS", gotReq.Type)
	assert.Equal(t, "reminder", gotReq.Message)
}

func TestGHLSendMessageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid number"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	adapter := ghlTestAdapter(srv.URL, "")
	defer adapter.Close()

	_, err := adapter.SendMessage(context.Background(), models.MessagePayload{ToNumber: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestCalendlyLinkOnly(t *testing.T) {
	adapter := newCalendlyAdapter(
		config.ProviderConfig{BaseURL: "http://calendly.test", Timeout: 1},
		CalendlyCredentials{Token: "t"},
	)
	defer adapter.Close()

	_, err := adapter.CreateEvent(context.Background(), testPayload())
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.ErrorIs(t, adapter.UpdateEvent(context.Background(), "ev", testPayload()), ErrUnsupported)
}

func TestCalendlyCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST /scheduled_events/ev-7/cancellation", r.Method+" "+r.URL.Path)
		require.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	adapter := newCalendlyAdapter(
		config.ProviderConfig{BaseURL: srv.URL, Timeout: 2},
		CalendlyCredentials{Token: "t"},
	)
	defer adapter.Close()

	require.NoError(t, adapter.CancelEvent(context.Background(), "ev-7", "duplicate"))
}
