//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-core/domain"
	"chat-core/domain/event"

	"github.com/google/uuid"
)

// EventSink is one live connection's delivery endpoint. Consume must be
// best-effort and non-blocking: a slow subscriber never stalls the sender.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Registry holds presence and channel membership. All mutation is
// linearizable behind a single lock.
type Registry interface {
	Register(connID string, user domain.User, sink EventSink)
	Deregister(connID string)
	Subscribe(connID string, channel domain.ChannelID)
	Member(connID string, channel domain.ChannelID) bool
	Online(u domain.UserID) bool
	Sinks(channel domain.ChannelID) []EventSink
	SinksExcept(channel domain.ChannelID, connID string) []EventSink
}

// UserStore is the external account lookup. Returns errors.ErrNotFound for
// unknown ids.
type UserStore interface {
	GetUserByID(ctx context.Context, id domain.UserID) (domain.User, error)
}

// ConversationStore reads the mutual-acceptance relationship that authorizes
// a channel. Read-only from this core.
type ConversationStore interface {
	GetConversation(ctx context.Context, id domain.ConversationID) (domain.Conversation, error)
}

// MessageStore is the single source of truth for message state. No component
// caches mutable message state across calls.
type MessageStore interface {
	InsertMessage(ctx context.Context, conversationID domain.ConversationID, senderID domain.UserID, content string) (uuid.UUID, error)
	GetMessageWithSender(ctx context.Context, id uuid.UUID) (domain.MessagePayload, error)
	MarkRead(ctx context.Context, conversationID domain.ConversationID, readerID domain.UserID) (int, error)
	Messages(ctx context.Context, conversationID domain.ConversationID, cursor *string) ([]domain.MessagePayload, *string, error)
}

// TokenVerifier resolves a bearer credential to a user id, or fails.
type TokenVerifier interface {
	Verify(token string) (domain.UserID, error)
}

// Worker doesn't protect itself; supervision is the Supervisor's job.
type Worker interface {
	Run(ctx context.Context) error
}

type Supervisor interface {
	Add(worker ...Worker) Supervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// WorkerName resolves the type name of a worker for logs and supervision,
// avoiding a manual naming method on the Worker interface.
func WorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
