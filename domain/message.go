package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a persisted chat message. Created by the pipeline on
// send, mutated only by read receipts, never deleted by this core.
type Message struct {
	ID             uuid.UUID
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	CreatedAt      time.Time
	Read           bool
}

// MessagePayload is a Message joined with the sender's display attributes.
// The broadcast payload is always built from a post-persistence re-read of
// this shape, so what subscribers receive matches exactly what is queryable
// afterwards.
type MessagePayload struct {
	Message
	SenderUsername    string
	SenderDisplayName string
}
