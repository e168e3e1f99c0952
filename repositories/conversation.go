package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/dgraph-io/badger/v4"
)

// ConversationRepository reads the mutual-acceptance rows that authorize
// conversation channels. Status is owned by the connections subsystem and can
// flip between any two reads, which is why callers re-fetch per operation.
type ConversationRepository struct {
	db *badger.DB
}

func NewConversationRepository(db *badger.DB) ConversationRepository {
	return ConversationRepository{db: db}
}

type diskConversation struct {
	ID         int64  `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Status     string `json:"status"`
}

func conversationKey(id domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("conv:%d", id))
}

func (r ConversationRepository) GetConversation(_ context.Context, id domain.ConversationID) (domain.Conversation, error) {
	var stored diskConversation
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("get conversation %d: %w", id, err)
	}

	return domain.Conversation{
		ID:         domain.ConversationID(stored.ID),
		SenderID:   stored.SenderID,
		ReceiverID: stored.ReceiverID,
		Status:     domain.ConversationStatus(stored.Status),
	}, nil
}

// SaveConversation exists for seeding and tests; the connections subsystem
// owns these rows in production.
func (r ConversationRepository) SaveConversation(_ context.Context, conv domain.Conversation) error {
	data, err := json.Marshal(diskConversation{
		ID:         int64(conv.ID),
		SenderID:   conv.SenderID,
		ReceiverID: conv.ReceiverID,
		Status:     string(conv.Status),
	})
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(conversationKey(conv.ID), data)
	})
}
