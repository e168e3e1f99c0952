//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
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

// UserRepository reads the externally owned account records. This core never
// creates or mutates users; SaveUser exists for seeding and tests.
type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

// diskUser is the stored representation of a user record.
type diskUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func userKey(id domain.UserID) []byte {
	return []byte("user:" + id)
}

func (r UserRepository) GetUserByID(_ context.Context, id domain.UserID) (domain.User, error) {
	var stored diskUser
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user %s: %w", id, err)
	}

	return domain.User{
		ID:          stored.ID,
		Username:    stored.Username,
		DisplayName: stored.DisplayName,
		Role:        stored.Role,
	}, nil
}

func (r UserRepository) SaveUser(_ context.Context, user domain.User) error {
	data, err := json.Marshal(diskUser{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	})
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	})
}
