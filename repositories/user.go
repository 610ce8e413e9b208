//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"errors"
	"fmt"
	"time"

	"chat-relay/domain"
	relayerrors "chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(email, username, hashedPassword, role string) (string, error)
	GetUserByEmail(email string) (domain.User, error)
	GetUserByID(id string) (domain.User, error)
	ListUsers(role string) ([]domain.User, error)
	UpdatePassword(id, hashedPassword string) error
	CountByRole(role string) (int, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

type storedUser struct {
	ID           string `cbor:"id"`
	Email        string `cbor:"email"`
	Username     string `cbor:"username"`
	PasswordHash string `cbor:"password_hash"`
	Role         string `cbor:"role"`
	IsFirstLogin bool   `cbor:"is_first_login"`
	CreatedAt    int64  `cbor:"created_at"`
}

func userKey(id string) []byte {
	return []byte("user:id:" + id)
}

// emailIndexKey points at the user ID, so lookups by email and by ID
// share one record.
func emailIndexKey(email string) []byte {
	return []byte("user:email:" + email)
}

// CreateUser persists a new user and returns the generated ID.
// The email index doubles as the uniqueness guard.
func (u *UserRepository) CreateUser(email, username, hashedPassword, role string) (string, error) {
	newID := uuid.New().String()
	stored := storedUser{
		ID:           newID,
		Email:        email,
		Username:     username,
		PasswordHash: hashedPassword,
		Role:         role,
		IsFirstLogin: true,
		CreatedAt:    time.Now().Unix(),
	}

	data, err := cbor.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailIndexKey(email)); err == nil {
			return relayerrors.ErrUserAlreadyExists
		}
		if err := txn.Set(emailIndexKey(email), []byte(newID)); err != nil {
			return err
		}
		return txn.Set(userKey(newID), data)
	})

	return newID, err
}

func (u *UserRepository) GetUserByEmail(email string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailIndexKey(email))
		if err != nil {
			return err
		}
		var id []byte
		if err := item.Value(func(val []byte) error {
			id = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		user, err = getUser(txn, string(id))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, relayerrors.ErrUserNotFound
	}
	return user, err
}

func (u *UserRepository) GetUserByID(id string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, relayerrors.ErrUserNotFound
	}
	return user, err
}

// ListUsers returns users with the given role, or every user when the
// role filter is empty.
func (u *UserRepository) ListUsers(role string) ([]domain.User, error) {
	var users []domain.User
	prefix := []byte("user:id:")

	err := u.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var stored storedUser
			if err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}
			if role != "" && stored.Role != role {
				continue
			}
			users = append(users, toUser(stored))
		}
		return nil
	})
	return users, err
}

// UpdatePassword replaces the password hash and clears the first-login
// flag, mirroring the change-password endpoint of the account surface.
func (u *UserRepository) UpdatePassword(id, hashedPassword string) error {
	return u.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return relayerrors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		var stored storedUser
		if err := item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &stored)
		}); err != nil {
			return err
		}
		stored.PasswordHash = hashedPassword
		stored.IsFirstLogin = false
		data, err := cbor.Marshal(stored)
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), data)
	})
}

func (u *UserRepository) CountByRole(role string) (int, error) {
	users, err := u.ListUsers(role)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

func getUser(txn *badger.Txn, id string) (domain.User, error) {
	item, err := txn.Get(userKey(id))
	if err != nil {
		return domain.User{}, err
	}
	var stored storedUser
	if err := item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &stored)
	}); err != nil {
		return domain.User{}, err
	}
	return toUser(stored), nil
}

func toUser(stored storedUser) domain.User {
	return domain.User{
		ID:           stored.ID,
		Email:        stored.Email,
		Username:     stored.Username,
		PasswordHash: stored.PasswordHash,
		Role:         stored.Role,
		IsFirstLogin: stored.IsFirstLogin,
		CreatedAt:    time.Unix(stored.CreatedAt, 0).UTC(),
	}
}
