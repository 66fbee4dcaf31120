package models

import "time"

// Message is an SMS record. It carries no sync fields of its own; the linked
// sync job records the delivery outcome.
type Message struct {
	ID             int64     `json:"id"`
	WorkspaceID    int64     `json:"workspace_id"`
	ConversationID int64     `json:"conversation_id"`
	Direction      string    `json:"direction"`
	FromNumber     string    `json:"from_number"`
	ToNumber       string    `json:"to_number"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessagePayload is the job snapshot for inbox delivery.
type MessagePayload struct {
	Direction  string `json:"direction"`
	FromNumber string `json:"fromNumber"`
	ToNumber   string `json:"toNumber"`
	Body       string `json:"body"`
}
