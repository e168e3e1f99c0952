package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/moderation"
	"chat-core/runtime"
	"chat-core/runtime/workers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// In-memory collaborators. The registry is the real one; stores and notifier
// are stubs so every pipeline decision is observable.

type stubConversations struct {
	conversations map[domain.ConversationID]domain.Conversation
}

func (s *stubConversations) GetConversation(_ context.Context, id domain.ConversationID) (domain.Conversation, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return domain.Conversation{}, errors.ErrNotFound
	}
	return conv, nil
}

type stubMessages struct {
	mu        sync.Mutex
	users     map[domain.UserID]domain.User
	stored    []domain.Message
	insertErr error
}

func (s *stubMessages) InsertMessage(_ context.Context, conversationID domain.ConversationID,
	senderID domain.UserID, content string) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return uuid.Nil, s.insertErr
	}
	msg := domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	s.stored = append(s.stored, msg)
	return msg.ID, nil
}

func (s *stubMessages) GetMessageWithSender(_ context.Context, id uuid.UUID) (domain.MessagePayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.stored {
		if msg.ID == id {
			sender := s.users[msg.SenderID]
			return domain.MessagePayload{
				Message:           msg,
				SenderUsername:    sender.Username,
				SenderDisplayName: sender.DisplayName,
			}, nil
		}
	}
	return domain.MessagePayload{}, errors.ErrNotFound
}

func (s *stubMessages) MarkRead(_ context.Context, conversationID domain.ConversationID,
	readerID domain.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated := 0
	for i, msg := range s.stored {
		if msg.ConversationID == conversationID && !msg.Read && msg.SenderID != readerID {
			s.stored[i].Read = true
			updated++
		}
	}
	return updated, nil
}

func (s *stubMessages) Messages(_ context.Context, conversationID domain.ConversationID,
	cursor *string) ([]domain.MessagePayload, *string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var payloads []domain.MessagePayload
	for _, msg := range s.stored {
		if msg.ConversationID == conversationID {
			payloads = append(payloads, domain.MessagePayload{Message: msg})
		}
	}
	return payloads, nil, nil
}

func (s *stubMessages) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func (s *stubMessages) last() domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored[len(s.stored)-1]
}

type stubNotifier struct {
	mu            sync.Mutex
	notifications []workers.Notification
}

func (n *stubNotifier) Enqueue(notification workers.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
}

func (n *stubNotifier) all() []workers.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]workers.Notification(nil), n.notifications...)
}

type captureSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *captureSink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) all() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

type fixture struct {
	messaging *Messaging
	registry  *runtime.Registry
	messages  *stubMessages
	notifier  *stubNotifier
	alice     domain.User
	bob       domain.User
	mallory   domain.User
}

const acceptedConversation = domain.ConversationID(7)
const pendingConversation = domain.ConversationID(8)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	alice := domain.User{ID: uuid.NewString(), Username: "alice", DisplayName: "Alice A.", Role: "user"}
	bob := domain.User{ID: uuid.NewString(), Username: "bob", DisplayName: "Bob B.", Role: "user"}
	mallory := domain.User{ID: uuid.NewString(), Username: "mallory", DisplayName: "Mallory M.", Role: "user"}

	conversations := &stubConversations{conversations: map[domain.ConversationID]domain.Conversation{
		acceptedConversation: {ID: acceptedConversation, SenderID: alice.ID, ReceiverID: bob.ID, Status: domain.StatusAccepted},
		pendingConversation:  {ID: pendingConversation, SenderID: alice.ID, ReceiverID: bob.ID, Status: domain.StatusPending},
	}}
	messages := &stubMessages{users: map[domain.UserID]domain.User{
		alice.ID: alice, bob.ID: bob, mallory.ID: mallory,
	}}
	notifier := &stubNotifier{}
	registry := runtime.NewRegistry()

	moderator, err := moderation.NewModerator([]string{"badger"}, '*')
	require.NoError(t, err)

	messaging := NewMessaging(slog.Default(), registry, conversations, messages,
		&moderator, notifier, 10000)
	return &fixture{
		messaging: messaging,
		registry:  registry,
		messages:  messages,
		notifier:  notifier,
		alice:     alice,
		bob:       bob,
		mallory:   mallory,
	}
}

func (f *fixture) connect(u domain.User) (domain.Connection, *captureSink) {
	sink := &captureSink{}
	conn := domain.Connection{ID: uuid.NewString(), User: u}
	f.registry.Register(conn.ID, u, sink)
	return conn, sink
}

func eventsNamed(events []event.Event, name string) []event.Event {
	var out []event.Event
	for _, e := range events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

func TestSend_BroadcastsToChannel_AndNotifiesReceiver(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	// Given both participants joined conversation 7
	aliceConn, aliceSink := f.connect(f.alice)
	bobConn, bobSink := f.connect(f.bob)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))
	req.NoError(f.messaging.Join(ctx, bobConn, acceptedConversation))

	// When Alice sends "hi"
	req.NoError(f.messaging.Send(ctx, aliceConn, acceptedConversation, "hi"))

	// Then a message is persisted with Alice as sender
	req.Equal(1, f.messages.count())
	req.Equal(f.alice.ID, f.messages.last().SenderID)

	// And both joined connections receive new_message with content "hi"
	for _, sink := range []*captureSink{aliceSink, bobSink} {
		delivered := eventsNamed(sink.all(), "new_message")
		req.Len(delivered, 1)
		msg := delivered[0].(event.NewMessage)
		req.Equal("hi", msg.Content)
		req.Equal(f.alice.ID, msg.SenderUserID)
		req.Equal("alice", msg.SenderUsername)
	}

	// And Bob's private channel gets the preview notification
	notifications := f.notifier.all()
	req.Len(notifications, 1)
	req.Equal(f.bob.ID, notifications[0].Target)
	req.Equal(acceptedConversation, notifications[0].Payload.ConversationID)
	req.Equal("hi", notifications[0].Payload.Preview)
	req.Equal("alice", notifications[0].Payload.Sender)
}

func TestSend_ReachesReceiver_EvenWithoutJoin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	// Given Bob is connected but never joined the conversation channel
	aliceConn, _ := f.connect(f.alice)
	_, bobSink := f.connect(f.bob)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))

	// When Alice sends
	req.NoError(f.messaging.Send(ctx, aliceConn, acceptedConversation, "hello"))

	// Then Bob got no new_message on the conversation channel
	req.Empty(eventsNamed(bobSink.all(), "new_message"))
	// But the notifier targets his private channel regardless
	notifications := f.notifier.all()
	req.Len(notifications, 1)
	req.Equal(f.bob.ID, notifications[0].Target)
}

func TestSend_SenderIdentityComesFromConnection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	aliceConn, aliceSink := f.connect(f.alice)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))

	// Whatever a client might claim, the pipeline only ever uses the
	// authenticated connection's user
	req.NoError(f.messaging.Send(ctx, aliceConn, acceptedConversation, "spoof attempt"))

	delivered := eventsNamed(aliceSink.all(), "new_message")
	req.Len(delivered, 1)
	req.Equal(f.alice.ID, delivered[0].(event.NewMessage).SenderUserID)
	req.Equal(f.alice.ID, f.messages.last().SenderID)
}

func TestSend_NonParticipant_NothingPersistedOrBroadcast(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	// Given a joined legitimate participant watching the channel
	aliceConn, aliceSink := f.connect(f.alice)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))

	// When Mallory, not a participant, sends to conversation 7
	malloryConn, _ := f.connect(f.mallory)
	err := f.messaging.Send(ctx, malloryConn, acceptedConversation, "intrusion")

	// Then the operation fails scoped to Mallory; nothing persisted, nobody
	// receives anything
	req.ErrorIs(err, errors.ErrUnauthorized)
	req.Zero(f.messages.count())
	req.Empty(aliceSink.all())
	req.Empty(f.notifier.all())
}

func TestSend_PendingConversation_Unauthorized(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	aliceConn, _ := f.connect(f.alice)
	err := f.messaging.Send(context.Background(), aliceConn, pendingConversation, "too soon")
	req.ErrorIs(err, errors.ErrUnauthorized)
	req.Zero(f.messages.count())
}

func TestSend_UnknownConversation_MaskedAsUnauthorized(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	aliceConn, _ := f.connect(f.alice)
	err := f.messaging.Send(context.Background(), aliceConn, 999, "hello?")

	// NotFound is indistinguishable from a refusal
	req.ErrorIs(err, errors.ErrUnauthorized)
}

func TestSend_ContentValidation(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()
	aliceConn, _ := f.connect(f.alice)

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"Empty content", "", true},
		{"Oversized content", strings.Repeat("a", 10001), true},
		{"At the limit", strings.Repeat("a", 10000), false},
		{"Multibyte runes count as code points", strings.Repeat("é", 10000), false},
		{"Regular content", "bonjour", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.messaging.Send(ctx, aliceConn, acceptedConversation, tt.content)
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrInvalidMessage)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestSend_PersistenceFailure_AbortsBeforeBroadcast(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	aliceConn, aliceSink := f.connect(f.alice)
	bobConn, bobSink := f.connect(f.bob)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))
	req.NoError(f.messaging.Join(ctx, bobConn, acceptedConversation))

	// Given the store is down
	f.messages.insertErr = stderrors.New("disk on fire")

	// When Alice sends
	err := f.messaging.Send(ctx, aliceConn, acceptedConversation, "lost")

	// Then the operation aborts with a scoped persistence failure and no
	// partial broadcast ever goes out
	req.ErrorIs(err, errors.ErrPersistence)
	req.Empty(aliceSink.all())
	req.Empty(bobSink.all())
	req.Empty(f.notifier.all())
}

func TestSend_ModerationMasksBeforePersisting(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	aliceConn, aliceSink := f.connect(f.alice)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))

	req.NoError(f.messaging.Send(ctx, aliceConn, acceptedConversation, "the badger strikes"))

	// Stored and broadcast content are the same masked string
	req.Equal("the ****** strikes", f.messages.last().Content)
	delivered := eventsNamed(aliceSink.all(), "new_message")
	req.Len(delivered, 1)
	req.Equal("the ****** strikes", delivered[0].(event.NewMessage).Content)
}

func TestSend_NotificationPreview_Truncated(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	aliceConn, _ := f.connect(f.alice)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))

	// When the content is 120 characters long
	content := strings.Repeat("x", 120)
	req.NoError(f.messaging.Send(ctx, aliceConn, acceptedConversation, content))

	// Then the preview is exactly the first 50 followed by an ellipsis
	notifications := f.notifier.all()
	req.Len(notifications, 1)
	req.Equal(strings.Repeat("x", 50)+"...", notifications[0].Payload.Preview)
}

func TestJoin_NonParticipant_NoSubscription(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	malloryConn, _ := f.connect(f.mallory)
	err := f.messaging.Join(context.Background(), malloryConn, acceptedConversation)

	req.ErrorIs(err, errors.ErrUnauthorized)
	req.False(f.registry.Member(malloryConn.ID, domain.ConversationChannel(acceptedConversation)))
}

func TestJoin_Twice_IsNoOp(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	aliceConn, _ := f.connect(f.alice)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))

	req.Len(f.registry.Sinks(domain.ConversationChannel(acceptedConversation)), 1)
}

func TestTyping_BroadcastsToOtherMembersOnly(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	aliceConn, aliceSink := f.connect(f.alice)
	bobConn, bobSink := f.connect(f.bob)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))
	req.NoError(f.messaging.Join(ctx, bobConn, acceptedConversation))

	f.messaging.Typing(ctx, aliceConn, acceptedConversation, true)
	f.messaging.Typing(ctx, aliceConn, acceptedConversation, false)

	// The sender never hears their own typing events
	req.Empty(aliceSink.all())

	events := bobSink.all()
	req.Len(events, 2)
	typing := events[0].(event.UserTyping)
	req.Equal(f.alice.ID, typing.UserID)
	req.Equal("alice", typing.Username)
	req.IsType(event.UserStoppedTyping{}, events[1])
}

func TestTyping_FromNonMember_Dropped(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	aliceConn, _ := f.connect(f.alice)
	bobConn, bobSink := f.connect(f.bob)
	req.NoError(f.messaging.Join(ctx, bobConn, acceptedConversation))

	// Alice never joined: her typing event goes nowhere
	f.messaging.Typing(ctx, aliceConn, acceptedConversation, true)
	req.Empty(bobSink.all())
}

func TestMarkRead_Idempotent(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	aliceConn, _ := f.connect(f.alice)
	bobConn, _ := f.connect(f.bob)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))
	req.NoError(f.messaging.Join(ctx, bobConn, acceptedConversation))

	// Given two messages from Alice
	req.NoError(f.messaging.Send(ctx, aliceConn, acceptedConversation, "one"))
	req.NoError(f.messaging.Send(ctx, aliceConn, acceptedConversation, "two"))

	// When Bob marks the conversation read twice
	req.NoError(f.messaging.MarkRead(ctx, bobConn, acceptedConversation))
	firstState := []bool{f.messages.stored[0].Read, f.messages.stored[1].Read}
	req.NoError(f.messaging.MarkRead(ctx, bobConn, acceptedConversation))

	// Then the final read-state is identical after both calls
	req.Equal([]bool{true, true}, firstState)
	req.Equal(firstState, []bool{f.messages.stored[0].Read, f.messages.stored[1].Read})
}

func TestMarkRead_EventGoesToOtherMembers(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	aliceConn, aliceSink := f.connect(f.alice)
	bobConn, bobSink := f.connect(f.bob)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))
	req.NoError(f.messaging.Join(ctx, bobConn, acceptedConversation))

	req.NoError(f.messaging.MarkRead(ctx, bobConn, acceptedConversation))

	// The reader does not receive their own receipt
	req.Empty(eventsNamed(bobSink.all(), "messages_read"))

	receipts := eventsNamed(aliceSink.all(), "messages_read")
	req.Len(receipts, 1)
	receipt := receipts[0].(event.MessagesRead)
	req.Equal(acceptedConversation, receipt.ConversationID)
	req.Equal(f.bob.ID, receipt.ReadBy)
}

func TestDisconnect_StopsDelivery(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	ctx := context.Background()

	aliceConn, _ := f.connect(f.alice)
	bobConn, bobSink := f.connect(f.bob)
	req.NoError(f.messaging.Join(ctx, aliceConn, acceptedConversation))
	req.NoError(f.messaging.Join(ctx, bobConn, acceptedConversation))

	// When Bob disconnects
	f.registry.Deregister(bobConn.ID)

	req.NoError(f.messaging.Send(ctx, aliceConn, acceptedConversation, "anyone there?"))

	// Then nothing reaches the closed connection, channel or private
	req.Empty(bobSink.all())
}
