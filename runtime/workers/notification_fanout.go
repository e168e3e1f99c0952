package workers

import (
	"context"
	"log/slog"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/domain/event"
)

// Notification targets one user's private channel, independent of which
// conversation channels their connections have joined.
type Notification struct {
	Target  domain.UserID
	Payload event.MessageNotification
}

// NotificationFanout delivers out-of-channel alerts to every live connection
// of the target user.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability, or retries: a full queue drops the notification, and a user
// with zero live connections receives nothing. Durable missed-notification
// state, if any, belongs to an external collaborator.
//
// NotificationFanout is safe for concurrent use by multiple goroutines.
type NotificationFanout struct {
	log      *slog.Logger
	registry contract.Registry
	queue    chan Notification
}

func NewNotificationFanout(log *slog.Logger, registry contract.Registry, bufferSize int) *NotificationFanout {
	return &NotificationFanout{
		log:      log,
		registry: registry,
		queue:    make(chan Notification, bufferSize),
	}
}

// Enqueue hands a notification to the worker without ever blocking the
// sender's pipeline. Queue full means the notification is lost.
func (w *NotificationFanout) Enqueue(n Notification) {
	select {
	case w.queue <- n:
	default:
		w.log.Warn("Notification queue full, dropping",
			"target", n.Target, "conversation", n.Payload.ConversationID)
	}
}

func (w *NotificationFanout) Run(ctx context.Context) error {
	for {
		select {
		case n := <-w.queue:
			w.Fanout(ctx, n)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping notification fanout")
			return nil
		}
	}
}

// Fanout resolves the target's private-channel sinks at delivery time, so a
// connection opened after Enqueue still receives the alert and a closed one
// never does.
func (w *NotificationFanout) Fanout(ctx context.Context, n Notification) {
	sinks := w.registry.Sinks(domain.PrivateChannel(n.Target))
	if len(sinks) == 0 {
		w.log.Debug("No live connection for notification target, dropping", "target", n.Target)
		return
	}
	for _, sink := range sinks {
		if err := sink.Consume(ctx, n.Payload); err != nil {
			w.log.Debug("Notification sink rejected event", "target", n.Target, "error", err)
		}
	}
}
