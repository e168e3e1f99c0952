package repositories

import (
	"context"
	"testing"

	"chat-core/domain"
	"chat-core/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Conversation_Roundtrip(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	ctx := context.Background()
	repository := NewConversationRepository(db)

	conv := domain.Conversation{
		ID:         7,
		SenderID:   uuid.NewString(),
		ReceiverID: uuid.NewString(),
		Status:     domain.StatusAccepted,
	}
	req.NoError(repository.SaveConversation(ctx, conv))

	fetched, err := repository.GetConversation(ctx, 7)
	req.NoError(err)
	req.Equal(conv, fetched)
}

func Test_Conversation_NotFound(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewConversationRepository(db)

	_, err := repository.GetConversation(context.Background(), 404)
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_User_NotFound(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewUserRepository(db)

	_, err := repository.GetUserByID(context.Background(), uuid.NewString())
	req.ErrorIs(err, errors.ErrNotFound)
}
