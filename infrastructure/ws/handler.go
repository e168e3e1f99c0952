package ws

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"

	"chat-core/auth"
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/errors"
	"chat-core/services"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Handler upgrades HTTP requests to websocket sessions, authenticates them,
// and routes inbound frames through an explicit dispatch table: each event
// name maps to exactly one handler with a defined input type.
type Handler struct {
	log            *slog.Logger
	authenticator  auth.Authenticator
	messaging      services.IMessaging
	registry       contract.Registry
	upgrader       websocket.Upgrader
	bufferSize     int
	maxMessageSize int64
	dispatchTable  map[string]func(ctx context.Context, c *Client, data json.RawMessage)
}

func NewHandler(log *slog.Logger, authenticator auth.Authenticator,
	messaging services.IMessaging, registry contract.Registry,
	bufferSize int, maxMessageSize int64) *Handler {
	h := &Handler{
		log:           log,
		authenticator: authenticator,
		messaging:     messaging,
		registry:      registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		bufferSize:     bufferSize,
		maxMessageSize: maxMessageSize,
	}
	h.dispatchTable = map[string]func(ctx context.Context, c *Client, data json.RawMessage){
		"join_conversation":  h.onJoin,
		"send_message":       h.onSendMessage,
		"typing_start":       h.onTypingStart,
		"typing_stop":        h.onTypingStop,
		"mark_messages_read": h.onMarkRead,
	}
	return h
}

// ServeHTTP authenticates the credential before the upgrade: a refused
// connection never enters the registry and the failure stays generic.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticator.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		http.Error(w, errors.ErrAuthentication.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("Upgrade failed", "error", err)
		return
	}

	client := newClient(uuid.NewString(), user, conn, h.bufferSize, h.maxMessageSize, h.log)
	h.registry.Register(client.id, user, client)
	h.log.Info("Connection established", "connection", client.id, "user", user.ID)

	ctx, cancel := context.WithCancel(context.Background())
	go client.writePump(ctx)

	// The read pump runs on the request goroutine; when it returns the
	// connection is gone and the session is torn down completely.
	client.readPump(ctx, h.dispatch)

	cancel()
	h.registry.Deregister(client.id)
	_ = conn.Close()
	h.log.Info("Connection closed", "connection", client.id, "user", user.ID)
}

// bearerToken accepts the credential either as an Authorization header or as
// a query parameter, browsers cannot set headers on websocket dials.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (h *Handler) dispatch(ctx context.Context, c *Client, env envelope) {
	handle, ok := h.dispatchTable[env.Event]
	if !ok {
		c.sendError("unknown event: " + env.Event)
		return
	}
	handle(ctx, c, env.Data)
}

func (h *Handler) onJoin(ctx context.Context, c *Client, data json.RawMessage) {
	var cmd domain.JoinConversationCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed join_conversation payload")
		return
	}
	if err := h.messaging.Join(ctx, c.Connection(), cmd.ConversationID); err != nil {
		h.sendScopedError(c, err)
		return
	}
	h.sendHistory(ctx, c, cmd.ConversationID)
}

// sendHistory pushes the most recent page of the conversation to the joining
// connection so the client can render without a separate fetch.
func (h *Handler) sendHistory(ctx context.Context, c *Client, conversationID domain.ConversationID) {
	payloads, cursor, err := h.messaging.History(ctx, c.Connection(), conversationID, nil)
	if err != nil {
		h.log.Debug("History fetch failed", "conversation", conversationID, "error", err)
		return
	}
	messages := lo.Map(payloads, func(p domain.MessagePayload, _ int) event.NewMessage {
		return event.NewMessage{
			ID:             p.ID,
			ConversationID: p.ConversationID,
			SenderUserID:   p.SenderID,
			SenderUsername: p.SenderUsername,
			SenderName:     p.SenderDisplayName,
			Content:        p.Content,
			CreatedAt:      p.CreatedAt,
			Read:           p.Read,
		}
	})
	evt := event.ConversationHistory{ConversationID: conversationID, Messages: messages, Cursor: cursor}
	if err := c.Consume(ctx, evt); err != nil {
		h.log.Debug("History delivery dropped", "connection", c.id, "error", err)
	}
}

func (h *Handler) onSendMessage(ctx context.Context, c *Client, data json.RawMessage) {
	var cmd domain.SendMessageCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed send_message payload")
		return
	}
	if err := h.messaging.Send(ctx, c.Connection(), cmd.ConversationID, cmd.Content); err != nil {
		h.sendScopedError(c, err)
	}
}

func (h *Handler) onTypingStart(ctx context.Context, c *Client, data json.RawMessage) {
	h.onTyping(ctx, c, data, true)
}

func (h *Handler) onTypingStop(ctx context.Context, c *Client, data json.RawMessage) {
	h.onTyping(ctx, c, data, false)
}

func (h *Handler) onTyping(ctx context.Context, c *Client, data json.RawMessage, started bool) {
	var cmd domain.TypingCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		// Fire-and-forget: malformed typing frames are dropped silently.
		return
	}
	h.messaging.Typing(ctx, c.Connection(), cmd.ConversationID, started)
}

func (h *Handler) onMarkRead(ctx context.Context, c *Client, data json.RawMessage) {
	var cmd domain.MarkMessagesReadCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		c.sendError("malformed mark_messages_read payload")
		return
	}
	if err := h.messaging.MarkRead(ctx, c.Connection(), cmd.ConversationID); err != nil {
		h.sendScopedError(c, err)
	}
}

// sendScopedError converts a pipeline error into the generic wire messages
// of the error taxonomy; internals never leak to the client.
func (h *Handler) sendScopedError(c *Client, err error) {
	switch {
	case stderrors.Is(err, errors.ErrUnauthorized):
		c.sendError(errors.ErrUnauthorized.Error())
	case stderrors.Is(err, errors.ErrInvalidMessage):
		c.sendError(errors.ErrInvalidMessage.Error())
	case stderrors.Is(err, errors.ErrPersistence):
		c.sendError(errors.ErrPersistence.Error())
	default:
		c.sendError("internal error")
	}
}
