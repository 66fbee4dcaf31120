package database

import (
	"context"
	"sync"
	"testing"

	"syncengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookEventIdempotentInsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ev := &models.WebhookEvent{
		Provider:        "calcom",
		EventType:       "created",
		ExternalEventID: "evt-1",
		Payload:         `{"uid":"evt-1"}`,
	}

	inserted, existing, err := db.InsertWebhookEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Nil(t, existing)
	assert.NotZero(t, ev.ID)

	// Same (provider, external id) again: no new row, existing entry returned.
	dup := &models.WebhookEvent{Provider: "calcom", EventType: "created", ExternalEventID: "evt-1"}
	inserted, existing, err = db.InsertWebhookEvent(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NotNil(t, existing)
	assert.Equal(t, ev.ID, existing.ID)

	// Same external id under a different provider is a distinct event.
	other := &models.WebhookEvent{Provider: "calendly", EventType: "created", ExternalEventID: "evt-1"}
	inserted, _, err = db.InsertWebhookEvent(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestWebhookEventMarkProcessed(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ev := &models.WebhookEvent{Provider: "calcom", EventType: "cancelled", ExternalEventID: "evt-2"}
	_, _, err := db.InsertWebhookEvent(ctx, ev)
	require.NoError(t, err)

	require.NoError(t, db.MarkWebhookEventProcessed(ctx, ev.ID))

	got, err := db.GetWebhookEvent(ctx, "calcom", "evt-2")
	require.NoError(t, err)
	assert.True(t, got.Processed)
	require.NotNil(t, got.ProcessedAt)
}

func TestWebhookEventConcurrentInsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	const attempts = 10
	var wg sync.WaitGroup
	wg.Add(attempts)
	insertedCount := make(chan bool, attempts)

	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			ev := &models.WebhookEvent{Provider: "calcom", EventType: "created", ExternalEventID: "evt-race"}
			inserted, _, err := db.InsertWebhookEvent(ctx, ev)
			if err != nil {
				t.Error(err)
				return
			}
			insertedCount <- inserted
		}()
	}
	wg.Wait()
	close(insertedCount)

	wins := 0
	for inserted := range insertedCount {
		if inserted {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent delivery should create the ledger entry")
}
