package database

import (
	"context"
	"testing"

	"syncengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrationUpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	in := &models.Integration{
		WorkspaceID: 1,
		Provider:    "ghl",
		Credentials: map[string]string{"api_key": "k1", "location_id": "loc1", "calendar_id": "cal1"},
		Active:      true,
	}
	require.NoError(t, db.UpsertIntegration(ctx, in))

	got, err := db.GetIntegration(ctx, 1, "ghl")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.Credentials["api_key"])

	// Replacing credentials keeps a single row per (workspace, provider).
	in.Credentials["api_key"] = "k2"
	require.NoError(t, db.UpsertIntegration(ctx, in))
	got, err = db.GetIntegration(ctx, 1, "ghl")
	require.NoError(t, err)
	assert.Equal(t, "k2", got.Credentials["api_key"])
}

func TestIntegrationInactiveIsNotFound(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	in := &models.Integration{
		WorkspaceID: 2,
		Provider:    "calcom",
		Credentials: map[string]string{"api_key": "k"},
		Active:      false,
	}
	require.NoError(t, db.UpsertIntegration(ctx, in))

	_, err := db.GetIntegration(ctx, 2, "calcom")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.GetIntegration(ctx, 3, "calcom")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	msg := &models.Message{
		WorkspaceID:    1,
		ConversationID: 5,
		Direction:      models.DirectionOutbound,
		FromNumber:     "+15550001111",
		ToNumber:       "+15550002222",
		Body:           "see you tomorrow",
	}
	require.NoError(t, db.CreateMessage(ctx, msg))
	require.NotZero(t, msg.ID)

	got, err := db.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "see you tomorrow", got.Body)

	_, err = db.GetMessage(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}
