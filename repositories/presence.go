//go:generate go run go.uber.org/mock/mockgen -source=presence.go -destination=../mocks/mock_presence_repository.go -package=mocks
package repositories

import (
	"errors"
	"time"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

type IPresenceRepository interface {
	SetOnline(userID string) error
	SetOffline(userID string, at time.Time) error
	Get(userID string) (domain.Presence, error)
}

// PresenceRepository persists the online/offline state so it survives
// restarts. Membership in the connection registry remains the source of
// truth for the current process; this record may lag by one registry
// operation.
type PresenceRepository struct {
	db *badger.DB
}

func NewPresenceRepository(db *badger.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

type storedPresence struct {
	IsOnline bool   `cbor:"is_online"`
	LastSeen *int64 `cbor:"last_seen,omitempty"`
}

func presenceKey(userID string) []byte {
	return []byte("presence:" + userID)
}

// SetOnline flips the user online. Calling it on an already-online user
// rewrites the same value, which keeps the operation idempotent.
func (p *PresenceRepository) SetOnline(userID string) error {
	return p.db.Update(func(txn *badger.Txn) error {
		stored, err := readPresence(txn, userID)
		if err != nil {
			return err
		}
		stored.IsOnline = true
		return writePresence(txn, userID, stored)
	})
}

// SetOffline flips the user offline and stamps last_seen.
func (p *PresenceRepository) SetOffline(userID string, at time.Time) error {
	return p.db.Update(func(txn *badger.Txn) error {
		stored, err := readPresence(txn, userID)
		if err != nil {
			return err
		}
		nanos := at.UTC().UnixNano()
		stored.IsOnline = false
		stored.LastSeen = &nanos
		return writePresence(txn, userID, stored)
	})
}

// Get returns the presence record. An unknown user is offline with no
// last-seen, not an error.
func (p *PresenceRepository) Get(userID string) (domain.Presence, error) {
	presence := domain.Presence{UserID: userID}
	err := p.db.View(func(txn *badger.Txn) error {
		stored, err := readPresence(txn, userID)
		if err != nil {
			return err
		}
		presence.IsOnline = stored.IsOnline
		if stored.LastSeen != nil {
			lastSeen := time.Unix(0, *stored.LastSeen).UTC()
			presence.LastSeen = &lastSeen
		}
		return nil
	})
	return presence, err
}

func readPresence(txn *badger.Txn, userID string) (storedPresence, error) {
	var stored storedPresence
	item, err := txn.Get(presenceKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return stored, nil
	}
	if err != nil {
		return stored, err
	}
	err = item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &stored)
	})
	return stored, err
}

func writePresence(txn *badger.Txn, userID string, stored storedPresence) error {
	bytes, err := cbor.Marshal(stored)
	if err != nil {
		return err
	}
	return txn.Set(presenceKey(userID), bytes)
}
