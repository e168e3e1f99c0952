package domain

type ConversationID int64

type ConversationStatus string

const (
	StatusPending  ConversationStatus = "pending"
	StatusAccepted ConversationStatus = "accepted"
	StatusRejected ConversationStatus = "rejected"
)

// Conversation is the mutual-acceptance relationship between two users.
// It authorizes a conversation channel and is read-only from this core:
// acceptance can be revoked at any time by the owning subsystem, which is
// why authorization is re-derived on every operation instead of cached.
type Conversation struct {
	ID         ConversationID
	SenderID   UserID
	ReceiverID UserID
	Status     ConversationStatus
}

// Participant reports whether the user is one of the two sides.
func (c Conversation) Participant(u UserID) bool {
	return c.SenderID == u || c.ReceiverID == u
}

// OtherParticipant returns the opposite side of the pair.
func (c Conversation) OtherParticipant(u UserID) UserID {
	if c.SenderID == u {
		return c.ReceiverID
	}
	return c.SenderID
}
