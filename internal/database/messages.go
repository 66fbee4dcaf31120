package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"syncengine/internal/models"
)

// CreateMessage inserts an SMS record.
func (db *DB) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
        INSERT INTO messages (workspace_id, conversation_id, direction, from_number, to_number, body, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
    `
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		msg.WorkspaceID,
		msg.ConversationID,
		msg.Direction,
		msg.FromNumber,
		msg.ToNumber,
		msg.Body,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = now
	return nil
}

// GetMessage returns a message by ID.
func (db *DB) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	query := `SELECT id, workspace_id, conversation_id, direction, from_number, to_number, body, created_at
        FROM messages WHERE id = ?`

	var msg models.Message
	err := db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.WorkspaceID,
		&msg.ConversationID,
		&msg.Direction,
		&msg.FromNumber,
		&msg.ToNumber,
		&msg.Body,
		&msg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	return &msg, nil
}
