package models

import "time"

// WebhookEvent is an idempotency ledger entry. The pair
// (provider, external_event_id) is unique; a second delivery with the same
// pair is acknowledged without re-running handler logic. Entries are never
// mutated except to flip Processed.
type WebhookEvent struct {
	ID              int64      `json:"id"`
	Provider        string     `json:"provider"`
	EventType       string     `json:"event_type"`
	ExternalEventID string     `json:"external_event_id"`
	Payload         string     `json:"payload"`
	Processed       bool       `json:"processed"`
	ProcessedAt     *time.Time `json:"processed_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Integration holds a workspace's connection to one external provider.
type Integration struct {
	ID          int64             `json:"id"`
	WorkspaceID int64             `json:"workspace_id"`
	Provider    string            `json:"provider"`
	Credentials map[string]string `json:"credentials"`
	Active      bool              `json:"active"`
	CreatedAt   time.Time         `json:"created_at"`
}
