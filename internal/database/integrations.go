package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"syncengine/internal/models"
)

// UpsertIntegration stores or replaces a workspace's provider connection.
func (db *DB) UpsertIntegration(ctx context.Context, in *models.Integration) error {
	creds, err := json.Marshal(in.Credentials)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	query := `
        INSERT INTO integrations (workspace_id, provider, credentials, active, created_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(workspace_id, provider) DO UPDATE SET
            credentials = excluded.credentials,
            active = excluded.active
    `
	if _, err := db.ExecContext(ctx, query, in.WorkspaceID, in.Provider, string(creds), in.Active, time.Now()); err != nil {
		return fmt.Errorf("failed to upsert integration: %w", err)
	}
	return nil
}

// GetIntegration returns the active integration for a workspace/provider pair.
// ErrNotFound covers both a missing row and a deactivated one.
func (db *DB) GetIntegration(ctx context.Context, workspaceID int64, provider string) (*models.Integration, error) {
	query := `SELECT id, workspace_id, provider, credentials, active, created_at
        FROM integrations WHERE workspace_id = ? AND provider = ? AND active = 1`

	var in models.Integration
	var creds string
	err := db.QueryRowContext(ctx, query, workspaceID, provider).Scan(
		&in.ID,
		&in.WorkspaceID,
		&in.Provider,
		&creds,
		&in.Active,
		&in.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan integration: %w", err)
	}

	if err := json.Unmarshal([]byte(creds), &in.Credentials); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return &in, nil
}
