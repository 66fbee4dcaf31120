package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"syncengine/internal/models"
)

// InsertWebhookEvent appends a ledger entry for an inbound event. The insert
// is atomic under concurrent delivery of the same (provider, external id):
// the unique index makes the second insert a no-op, and the existing entry is
// returned so the caller can acknowledge without reprocessing.
func (db *DB) InsertWebhookEvent(ctx context.Context, ev *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	query := `INSERT OR IGNORE INTO webhook_events (provider, event_type, external_event_id, payload, processed, created_at)
              VALUES (?, ?, ?, ?, 0, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, ev.Provider, ev.EventType, ev.ExternalEventID, ev.Payload, now)
	if err != nil {
		return false, nil, fmt.Errorf("failed to insert webhook event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		existing, err := db.GetWebhookEvent(ctx, ev.Provider, ev.ExternalEventID)
		if err != nil {
			return false, nil, err
		}
		return false, existing, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	ev.ID = id
	ev.CreatedAt = now
	return true, nil, nil
}

// GetWebhookEvent returns the ledger entry for a (provider, external id) pair.
func (db *DB) GetWebhookEvent(ctx context.Context, provider, externalEventID string) (*models.WebhookEvent, error) {
	query := `SELECT id, provider, event_type, external_event_id, payload, processed, processed_at, created_at
              FROM webhook_events WHERE provider = ? AND external_event_id = ?`

	var ev models.WebhookEvent
	err := db.QueryRowContext(ctx, query, provider, externalEventID).Scan(
		&ev.ID,
		&ev.Provider,
		&ev.EventType,
		&ev.ExternalEventID,
		&ev.Payload,
		&ev.Processed,
		&ev.ProcessedAt,
		&ev.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan webhook event: %w", err)
	}
	return &ev, nil
}

// MarkWebhookEventProcessed flips the processed flag. This is the only
// mutation the ledger allows.
func (db *DB) MarkWebhookEventProcessed(ctx context.Context, id int64) error {
	query := `UPDATE webhook_events SET processed = 1, processed_at = ? WHERE id = ?`
	if _, err := db.ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}
