package domain

// Inbound client intents. Each websocket event decodes into exactly one of
// these; sender identity is never taken from the payload but from the
// authenticated connection handling it.

type Command interface {
	Conversation() ConversationID
}

type JoinConversationCommand struct {
	ConversationID ConversationID `json:"conversationId"`
}

func (c JoinConversationCommand) Conversation() ConversationID { return c.ConversationID }

type SendMessageCommand struct {
	ConversationID ConversationID `json:"conversationId"`
	Content        string         `json:"content"`
}

func (c SendMessageCommand) Conversation() ConversationID { return c.ConversationID }

type TypingCommand struct {
	ConversationID ConversationID `json:"conversationId"`
}

func (c TypingCommand) Conversation() ConversationID { return c.ConversationID }

type MarkMessagesReadCommand struct {
	ConversationID ConversationID `json:"conversationId"`
}

func (c MarkMessagesReadCommand) Conversation() ConversationID { return c.ConversationID }
