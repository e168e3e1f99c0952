//go:generate go run go.uber.org/mock/mockgen -source=messaging_service.go -destination=../mocks/mock_messaging_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/moderation"
	"chat-core/runtime/workers"

	"github.com/go-playground/validator/v10"
)

// previewLength is the number of code points of content carried by a
// message_notification before the ellipsis is appended.
const previewLength = 50

type IMessaging interface {
	Join(ctx context.Context, conn domain.Connection, conversationID domain.ConversationID) error
	Send(ctx context.Context, conn domain.Connection, conversationID domain.ConversationID, content string) error
	Typing(ctx context.Context, conn domain.Connection, conversationID domain.ConversationID, started bool)
	MarkRead(ctx context.Context, conn domain.Connection, conversationID domain.ConversationID) error
	History(ctx context.Context, conn domain.Connection, conversationID domain.ConversationID, cursor *string) ([]domain.MessagePayload, *string, error)
}

// Notifier hands a notification to the fanout worker without blocking.
type Notifier interface {
	Enqueue(n workers.Notification)
}

// Messaging is the message pipeline: it authorizes, validates, persists and
// broadcasts chat traffic, and maintains read/typing state. It only ever
// reads the membership tables; mutation happens through Join and the
// transport layer's deregistration.
type Messaging struct {
	log              *slog.Logger
	registry         contract.Registry
	conversations    contract.ConversationStore
	messages         contract.MessageStore
	moderator        *moderation.Moderator
	notifier         Notifier
	validate         *validator.Validate
	contentRule      string
	maxContentLength int
}

func NewMessaging(log *slog.Logger, registry contract.Registry,
	conversations contract.ConversationStore, messages contract.MessageStore,
	moderator *moderation.Moderator, notifier Notifier, maxContentLength int) *Messaging {
	return &Messaging{
		log:              log,
		registry:         registry,
		conversations:    conversations,
		messages:         messages,
		moderator:        moderator,
		notifier:         notifier,
		validate:         validator.New(),
		contentRule:      fmt.Sprintf("required,max=%d", maxContentLength),
		maxContentLength: maxContentLength,
	}
}

// authorize re-fetches the conversation and checks that the caller is a
// participant of an accepted pair. Always re-derived, never cached past the
// single operation: acceptance can be revoked between a join and a send.
// A missing conversation is reported as ErrUnauthorized so existence is not
// leaked.
func (s *Messaging) authorize(ctx context.Context, user domain.UserID,
	conversationID domain.ConversationID) (domain.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			s.log.Debug("Conversation not found", "conversation", conversationID)
			return domain.Conversation{}, errors.ErrUnauthorized
		}
		return domain.Conversation{}, fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}
	if !conv.Participant(user) || conv.Status != domain.StatusAccepted {
		return domain.Conversation{}, errors.ErrUnauthorized
	}
	return conv, nil
}

// Join subscribes the connection to the conversation channel after
// authorization. Idempotent: joining twice is a no-op. On failure no channel
// state changes; the caller surfaces the scoped error.
func (s *Messaging) Join(ctx context.Context, conn domain.Connection,
	conversationID domain.ConversationID) error {
	if _, err := s.authorize(ctx, conn.User.ID, conversationID); err != nil {
		s.log.Info("Join refused", "user", conn.User.ID, "conversation", conversationID, "error", err)
		return err
	}
	s.registry.Subscribe(conn.ID, domain.ConversationChannel(conversationID))
	s.log.Debug("Connection joined conversation", "user", conn.User.ID, "conversation", conversationID)
	return nil
}

// Send runs the full pipeline: authorize, validate, moderate, persist,
// re-read, broadcast, notify. Persistence must complete before any broadcast;
// a persistence failure aborts the whole operation with no partial delivery.
func (s *Messaging) Send(ctx context.Context, conn domain.Connection,
	conversationID domain.ConversationID, content string) error {
	conv, err := s.authorize(ctx, conn.User.ID, conversationID)
	if err != nil {
		s.log.Info("Send refused", "user", conn.User.ID, "conversation", conversationID, "error", err)
		return err
	}

	if err := s.validate.Var(content, s.contentRule); err != nil {
		return fmt.Errorf("%w: content must be non-empty and at most %d characters",
			errors.ErrInvalidMessage, s.maxContentLength)
	}

	// Masking happens before the write so stored and broadcast content are
	// one and the same.
	censored := s.moderator.Censor(content)

	id, err := s.messages.InsertMessage(ctx, conversationID, conn.User.ID, censored)
	if err != nil {
		s.log.Error("Message insert failed", "conversation", conversationID, "error", err)
		return fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}

	payload, err := s.messages.GetMessageWithSender(ctx, id)
	if err != nil {
		s.log.Error("Persisted message re-read failed", "message", id, "error", err)
		return fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}

	s.broadcast(ctx, s.registry.Sinks(domain.ConversationChannel(conversationID)), event.NewMessage{
		ID:             payload.ID,
		ConversationID: payload.ConversationID,
		// Sender identity comes from the authenticated connection, never
		// from client-supplied data.
		SenderUserID:   conn.User.ID,
		SenderUsername: payload.SenderUsername,
		SenderName:     payload.SenderDisplayName,
		Content:        payload.Content,
		CreatedAt:      payload.CreatedAt,
		Read:           payload.Read,
	})

	s.notifier.Enqueue(workers.Notification{
		Target: conv.OtherParticipant(conn.User.ID),
		Payload: event.MessageNotification{
			ConversationID: conversationID,
			Sender:         conn.User.Username,
			Preview:        preview(payload.Content),
		},
	})
	return nil
}

// Typing relays a typing indicator to the channel's other members.
// Fire-and-forget: membership was gated at join time, nothing is persisted,
// and delivery is at-most-once with no ordering guarantee.
func (s *Messaging) Typing(ctx context.Context, conn domain.Connection,
	conversationID domain.ConversationID, started bool) {
	channel := domain.ConversationChannel(conversationID)
	if !s.registry.Member(conn.ID, channel) {
		s.log.Debug("Typing event from non-member dropped", "user", conn.User.ID, "conversation", conversationID)
		return
	}

	var evt event.Event
	if started {
		evt = event.UserTyping{UserID: conn.User.ID, Username: conn.User.Username}
	} else {
		evt = event.UserStoppedTyping{UserID: conn.User.ID, Username: conn.User.Username}
	}
	s.broadcast(ctx, s.registry.SinksExcept(channel, conn.ID), evt)
}

// MarkRead bulk-flips the unread messages addressed to the caller and tells
// the channel's other members. Idempotent: a repeat call updates zero rows
// and still fires the event.
func (s *Messaging) MarkRead(ctx context.Context, conn domain.Connection,
	conversationID domain.ConversationID) error {
	if _, err := s.authorize(ctx, conn.User.ID, conversationID); err != nil {
		s.log.Info("MarkRead refused", "user", conn.User.ID, "conversation", conversationID, "error", err)
		return err
	}

	rows, err := s.messages.MarkRead(ctx, conversationID, conn.User.ID)
	if err != nil {
		s.log.Error("MarkRead failed", "conversation", conversationID, "error", err)
		return fmt.Errorf("%w: %w", errors.ErrPersistence, err)
	}
	s.log.Debug("Messages marked read", "conversation", conversationID, "reader", conn.User.ID, "rows", rows)

	s.broadcast(ctx, s.registry.SinksExcept(domain.ConversationChannel(conversationID), conn.ID),
		event.MessagesRead{ConversationID: conversationID, ReadBy: conn.User.ID})
	return nil
}

// History returns a reverse-chronological page of the conversation, gated by
// the same authorization as every other operation.
func (s *Messaging) History(ctx context.Context, conn domain.Connection,
	conversationID domain.ConversationID, cursor *string) ([]domain.MessagePayload, *string, error) {
	if _, err := s.authorize(ctx, conn.User.ID, conversationID); err != nil {
		return nil, nil, err
	}
	return s.messages.Messages(ctx, conversationID, cursor)
}

// broadcast delivers an event to each sink best-effort: sinks are
// non-blocking by contract, and one slow or dead subscriber never affects
// the others or the sender.
func (s *Messaging) broadcast(ctx context.Context, sinks []contract.EventSink, evt event.Event) {
	for _, sink := range sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			s.log.Debug("Sink rejected event", "event", evt.Name(), "error", err)
		}
	}
}

// preview truncates content to previewLength code points, appending an
// ellipsis only when something was cut.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
