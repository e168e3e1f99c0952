// Package event defines the events delivered to live connections.
package event

import (
	"time"

	"chat-core/domain"

	"github.com/google/uuid"
)

// Event is anything deliverable to a connection's sink. Name is the wire
// event name the transport layer uses for the envelope.
type Event interface {
	Name() string
}

// NewMessage carries the full persisted message payload to every subscriber
// of the conversation channel. SenderUserID always comes from the
// authenticated connection, never from client input.
type NewMessage struct {
	ID             uuid.UUID             `json:"id"`
	ConversationID domain.ConversationID `json:"conversationId"`
	SenderUserID   domain.UserID         `json:"sender_user_id"`
	SenderUsername string                `json:"senderUsername"`
	SenderName     string                `json:"senderName"`
	Content        string                `json:"content"`
	CreatedAt      time.Time             `json:"createdAt"`
	Read           bool                  `json:"read"`
}

func (NewMessage) Name() string { return "new_message" }

// MessageNotification is the truncated preview delivered to the receiver's
// private channel, reaching them even when they have not joined the
// conversation channel.
type MessageNotification struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	Sender         string                `json:"sender"`
	Preview        string                `json:"preview"`
}

func (MessageNotification) Name() string { return "message_notification" }

type UserTyping struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

func (UserTyping) Name() string { return "user_typing" }

type UserStoppedTyping struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

func (UserStoppedTyping) Name() string { return "user_stopped_typing" }

type MessagesRead struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	ReadBy         domain.UserID         `json:"readBy"`
}

func (MessagesRead) Name() string { return "messages_read" }

// ConversationHistory is pushed to a connection right after a successful
// join: the most recent page of the conversation plus the cursor for older
// pages.
type ConversationHistory struct {
	ConversationID domain.ConversationID `json:"conversationId"`
	Messages       []NewMessage          `json:"messages"`
	Cursor         *string               `json:"cursor,omitempty"`
}

func (ConversationHistory) Name() string { return "conversation_history" }

// Error is scoped to the originating connection only; it is never broadcast.
type Error struct {
	Message string `json:"message"`
}

func (Error) Name() string { return "error" }
