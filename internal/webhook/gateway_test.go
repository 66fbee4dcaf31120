package webhook

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"syncengine/internal/database"
	"syncengine/internal/models"
	"syncengine/internal/provider"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestGateway(t *testing.T) (*Gateway, *database.DB) {
	t.Helper()
	db := newGatewayTestDB(t)
	return NewGateway(db, nil), db
}

func countLedgerEntries(t *testing.T, db *database.DB) int {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM webhook_events").Scan(&n)
	require.NoError(t, err)
	return n
}

func linkAppointment(t *testing.T, db *database.DB, providerID, externalID string) *models.Appointment {
	t.Helper()
	ctx := context.Background()
	appt := &models.Appointment{
		WorkspaceID:     1,
		ContactID:       3,
		ScheduledAt:     time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 30,
	}
	require.NoError(t, db.CreateAppointment(ctx, appt))
	require.NoError(t, db.MarkAppointmentSynced(ctx, appt.ID, providerID, externalID, ""))
	return appt
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	gw, db := newTestGateway(t)
	ctx := context.Background()

	payload := []byte(`{"triggerEvent":"BOOKING_CREATED","payload":{"uid":"evt-1"}}`)

	require.NoError(t, gw.Handle(ctx, provider.CalCom, "BOOKING_CREATED", payload))
	require.NoError(t, gw.Handle(ctx, provider.CalCom, "BOOKING_CREATED", payload))

	assert.Equal(t, 1, countLedgerEntries(t, db))

	// Inbound creates never materialize local appointments.
	var appointments int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM appointments").Scan(&appointments))
	assert.Equal(t, 0, appointments)
}

func TestRescheduleUpdatesLinkedAppointment(t *testing.T) {
	gw, db := newTestGateway(t)
	ctx := context.Background()

	appt := linkAppointment(t, db, provider.CalCom, "evt-2")

	newStart := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	payload := fmt.Sprintf(
		`{"triggerEvent":"BOOKING_RESCHEDULED","payload":{"uid":"evt-2","startTime":%q,"endTime":%q}}`,
		newStart.Format(time.RFC3339), newStart.Add(45*time.Minute).Format(time.RFC3339),
	)
	require.NoError(t, gw.Handle(ctx, provider.CalCom, "BOOKING_RESCHEDULED", []byte(payload)))

	got, err := db.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.True(t, got.ScheduledAt.Equal(newStart), "scheduled_at not updated: %v", got.ScheduledAt)
	assert.Equal(t, 45, got.DurationMinutes)
	assert.Equal(t, models.SyncSynced, got.SyncStatus)
}

func TestCancellationSetsLifecycleStatus(t *testing.T) {
	gw, db := newTestGateway(t)
	ctx := context.Background()

	appt := linkAppointment(t, db, provider.GHL, "apt-7")

	payload := []byte(`{"type":"AppointmentDelete","appointment":{"id":"apt-7"}}`)
	require.NoError(t, gw.Handle(ctx, provider.GHL, "AppointmentDelete", payload))

	got, err := db.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, got.Status)
	assert.Equal(t, models.SyncSynced, got.SyncStatus)
}

func TestCalendlyKeyIsURISuffix(t *testing.T) {
	gw, db := newTestGateway(t)
	ctx := context.Background()

	appt := linkAppointment(t, db, provider.Calendly, "ABCDEF123")

	payload := []byte(`{
        "event": "invitee.canceled",
        "payload": {
            "event": "https://api.calendly.com/scheduled_events/ABCDEF123"
        }
    }`)
	require.NoError(t, gw.Handle(ctx, provider.Calendly, "invitee.canceled", payload))

	entry, err := db.GetWebhookEvent(ctx, provider.Calendly, "ABCDEF123")
	require.NoError(t, err)
	assert.Equal(t, EventCancelled, entry.EventType)
	assert.True(t, entry.Processed)

	got, err := db.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, got.Status)
}

func TestMissingNaturalKeyAckedWithoutLedgerEntry(t *testing.T) {
	gw, db := newTestGateway(t)

	payload := []byte(`{"triggerEvent":"BOOKING_CREATED","payload":{}}`)
	require.NoError(t, gw.Handle(context.Background(), provider.CalCom, "BOOKING_CREATED", payload))

	assert.Equal(t, 0, countLedgerEntries(t, db))
}

func TestUnknownProviderAckedWithoutLedgerEntry(t *testing.T) {
	gw, db := newTestGateway(t)

	require.NoError(t, gw.Handle(context.Background(), "someprovider", "anything", []byte(`{}`)))
	assert.Equal(t, 0, countLedgerEntries(t, db))
}

func TestRescheduleForUntrackedAppointmentDropped(t *testing.T) {
	gw, db := newTestGateway(t)
	ctx := context.Background()

	payload := []byte(`{"triggerEvent":"BOOKING_RESCHEDULED","payload":{"uid":"evt-ghost","startTime":"2025-06-01T10:00:00Z","endTime":"2025-06-01T10:30:00Z"}}`)
	require.NoError(t, gw.Handle(ctx, provider.CalCom, "BOOKING_RESCHEDULED", payload))

	entry, err := db.GetWebhookEvent(ctx, provider.CalCom, "evt-ghost")
	require.NoError(t, err)
	assert.True(t, entry.Processed)
}

func TestHandlerErrorStillMarksEntryProcessed(t *testing.T) {
	gw, db := newTestGateway(t)
	ctx := context.Background()

	linkAppointment(t, db, provider.CalCom, "evt-3")

	// Reschedule without a start time fails inside the handler; the ledger
	// entry is marked processed regardless and the caller still acks.
	payload := []byte(`{"triggerEvent":"BOOKING_RESCHEDULED","payload":{"uid":"evt-3"}}`)
	require.NoError(t, gw.Handle(ctx, provider.CalCom, "BOOKING_RESCHEDULED", payload))

	entry, err := db.GetWebhookEvent(ctx, provider.CalCom, "evt-3")
	require.NoError(t, err)
	assert.True(t, entry.Processed)
}
