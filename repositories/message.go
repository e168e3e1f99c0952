//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// MessageRepository persists chat messages in BadgerDB.
//
// The primary key is "msg:{conversation_id}:{timestamp_padded}:{uuid}":
//  1. 19-digit zero padding keeps keys chronologically sorted under
//     lexicographical iteration.
//  2. The UUID suffix disconnects collisions if two messages land on the
//     same nanosecond.
//
// A secondary index "msgidx:{uuid}" points back to the primary key so the
// post-persistence re-read can resolve a message by id alone.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type diskMessage struct {
	ID             string `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	At             int64  `json:"at"`
	Read           bool   `json:"read"`
}

func messageKey(conversationID domain.ConversationID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%d:%019d:%s", conversationID, at.UnixNano(), id))
}

func messagePrefix(conversationID domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("msg:%d:", conversationID))
}

func messageIndexKey(id uuid.UUID) []byte {
	return []byte("msgidx:" + id.String())
}

// InsertMessage durably writes the message and its id index in one
// transaction; the caller only broadcasts after this returns.
func (m MessageRepository) InsertMessage(_ context.Context, conversationID domain.ConversationID,
	senderID domain.UserID, content string) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()

	data, err := json.Marshal(diskMessage{
		ID:             id.String(),
		ConversationID: int64(conversationID),
		SenderID:       senderID,
		Content:        content,
		At:             now.UnixNano(),
		Read:           false,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal message: %w", err)
	}

	key := messageKey(conversationID, now, id)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(id), key)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("store message: %w", err)
	}
	return id, nil
}

// GetMessageWithSender re-reads a persisted message joined with the sender's
// display attributes. Broadcast payloads are always built from this read so
// subscribers see exactly what is queryable afterwards.
func (m MessageRepository) GetMessageWithSender(ctx context.Context, id uuid.UUID) (domain.MessagePayload, error) {
	var stored diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		idxItem, err := txn.Get(messageIndexKey(id))
		if err != nil {
			return err
		}
		var primaryKey []byte
		if err := idxItem.Value(func(val []byte) error {
			primaryKey = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}

		item, err := txn.Get(primaryKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.MessagePayload{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.MessagePayload{}, fmt.Errorf("get message %s: %w", id, err)
	}

	message, err := toMessage(stored)
	if err != nil {
		return domain.MessagePayload{}, err
	}
	return m.withSender(ctx, message)
}

// MarkRead bulk-flips every unread message in the conversation that the
// reader did not send. Returns the number of rows updated; zero on a repeat
// call, which makes the operation idempotent.
func (m MessageRepository) MarkRead(_ context.Context, conversationID domain.ConversationID,
	readerID domain.UserID) (int, error) {
	updated := 0
	prefix := messagePrefix(conversationID)

	err := m.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var stored diskMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}

			if stored.Read || stored.SenderID == readerID {
				continue
			}
			stored.Read = true

			data, err := json.Marshal(stored)
			if err != nil {
				return err
			}
			if err := txn.Set(append([]byte(nil), item.Key()...), data); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark read in conversation %d: %w", conversationID, err)
	}
	return updated, nil
}

// Messages retrieves a reverse-chronological page of a conversation's
// messages joined with sender attributes. The padded timestamp in the key
// makes the prefix scan naturally time-sorted; the returned cursor is the key
// remainder of the last row, to be passed back for the next page.
func (m MessageRepository) Messages(ctx context.Context, conversationID domain.ConversationID,
	cursor *string) ([]domain.MessagePayload, *string, error) {
	var rows []diskMessage
	var lastKey string
	prefix := messagePrefix(conversationID)
	prefixLen := len(prefix)

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards.
			seekKey = append(append([]byte(nil), prefix...), []byte("9999999999999999999")...)
		default:
			seekKey = append(append([]byte(nil), prefix...), []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(rows) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])

			var stored diskMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}
			rows = append(rows, stored)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list messages of conversation %d: %w", conversationID, err)
	}

	payloads := make([]domain.MessagePayload, 0, len(rows))
	for _, stored := range rows {
		message, err := toMessage(stored)
		if err != nil {
			return nil, nil, err
		}
		payload, err := m.withSender(ctx, message)
		if err != nil {
			return nil, nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, &lastKey, nil
}

// withSender joins the message with the sender's current display attributes.
func (m MessageRepository) withSender(ctx context.Context, message domain.Message) (domain.MessagePayload, error) {
	sender, err := NewUserRepository(m.db).GetUserByID(ctx, message.SenderID)
	if err != nil {
		return domain.MessagePayload{}, fmt.Errorf("resolve sender %s: %w", message.SenderID, err)
	}
	return domain.MessagePayload{
		Message:           message,
		SenderUsername:    sender.Username,
		SenderDisplayName: sender.DisplayName,
	}, nil
}

func toMessage(stored diskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("parse message id: %w", err)
	}
	return domain.Message{
		ID:             parsedID,
		ConversationID: domain.ConversationID(stored.ConversationID),
		SenderID:       stored.SenderID,
		Content:        stored.Content,
		CreatedAt:      time.Unix(0, stored.At).UTC(),
		Read:           stored.Read,
	}, nil
}
