//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	Append(draft domain.MessageDraft) (domain.Message, error)
	ListFor(userID string) ([]domain.Message, error)
	AdvanceStatus(message domain.Message, next domain.DeliveryStatus) error
	MarkRead(senderID, receiverID string, at time.Time) (int, error)
	CountAll() (int, error)
	CountSince(since time.Time) (int, error)
	DistinctSendersSince(since time.Time) (int, error)
	RecentMessages(limit int) ([]domain.Message, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// storedMessage is the CBOR shape persisted in BadgerDB.
type storedMessage struct {
	ID         string `cbor:"id"`
	SenderID   string `cbor:"sender_id"`
	ReceiverID string `cbor:"receiver_id"`
	Content    string `cbor:"content"`
	At         int64  `cbor:"at"` // unix nanoseconds, UTC
	Status     string `cbor:"status"`
	ReadAt     *int64 `cbor:"read_at,omitempty"`
}

// messageKey builds the primary key "msg:{timestamp_padded}:{uuid}".
// The 19-digit zero padding keeps lexicographical order equal to
// chronological order; the UUID disambiguates two messages persisted
// at the same nanosecond.
func messageKey(at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%019d:%s", at.UnixNano(), id))
}

// userIndexKey builds the per-user index key "umsg:{user}:{timestamp_padded}:{uuid}".
// One index entry exists for the sender and one for the receiver, so a
// single prefix scan covers both directions of a user's history.
func userIndexKey(userID string, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("umsg:%s:%019d:%s", userID, at.UnixNano(), id))
}

// Append persists a draft as a new message with status "sent".
// The store owns the ID, the clock and the initial status.
func (m *MessageRepository) Append(draft domain.MessageDraft) (domain.Message, error) {
	message := domain.Message{
		ID:         uuid.New(),
		SenderID:   draft.SenderID,
		ReceiverID: draft.ReceiverID,
		Content:    draft.Content,
		CreatedAt:  time.Now().UTC(),
		Status:     domain.StatusSent,
	}

	bytes, err := cbor.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, err
	}

	primary := messageKey(message.CreatedAt, message.ID)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(primary, bytes); err != nil {
			return err
		}
		if err := txn.Set(userIndexKey(message.SenderID, message.CreatedAt, message.ID), primary); err != nil {
			return err
		}
		if message.ReceiverID != message.SenderID {
			return txn.Set(userIndexKey(message.ReceiverID, message.CreatedAt, message.ID), primary)
		}
		return nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	return message, nil
}

// ListFor returns every message where the user is sender or receiver,
// in chronological order, bounded by the configured limitMessages.
func (m *MessageRepository) ListFor(userID string) ([]domain.Message, error) {
	var messages []domain.Message
	prefix := []byte(fmt.Sprintf("umsg:%s:", userID))

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(messages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}

			var primary []byte
			if err := it.Item().Value(func(value []byte) error {
				primary = append([]byte(nil), value...)
				return nil
			}); err != nil {
				return err
			}

			message, err := loadMessage(txn, primary)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	return messages, err
}

// AdvanceStatus moves a persisted message forward in its lifecycle.
// Regressions (delivered -> sent, read -> delivered) are silent no-ops:
// a lost delivery race must never rewind a read receipt.
func (m *MessageRepository) AdvanceStatus(message domain.Message, next domain.DeliveryStatus) error {
	key := messageKey(message.CreatedAt, message.ID)

	return m.db.Update(func(txn *badger.Txn) error {
		current, err := loadMessage(txn, key)
		if err != nil {
			return err
		}
		if !current.Status.CanAdvanceTo(next) {
			return nil
		}

		current.Status = next
		if next == domain.StatusRead && current.ReadAt == nil {
			now := time.Now().UTC()
			current.ReadAt = &now
		}

		bytes, err := cbor.Marshal(fromMessage(current))
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
}

// MarkRead bulk-transitions every unread message from senderID to
// receiverID to "read", stamping read_at once. Returns the number of
// messages updated. This is the read-receipt path; it never touches
// live connections.
func (m *MessageRepository) MarkRead(senderID, receiverID string, at time.Time) (int, error) {
	updated := 0
	prefix := []byte(fmt.Sprintf("umsg:%s:", receiverID))
	readAt := at.UTC().UnixNano()

	err := m.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var primary []byte
			if err := it.Item().Value(func(value []byte) error {
				primary = append([]byte(nil), value...)
				return nil
			}); err != nil {
				return err
			}

			item, err := txn.Get(primary)
			if err != nil {
				return err
			}
			var stored storedMessage
			if err := item.Value(func(val []byte) error {
				return cbor.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}

			if stored.SenderID != senderID || stored.ReceiverID != receiverID {
				continue
			}
			if stored.Status == string(domain.StatusRead) {
				continue
			}

			stored.Status = string(domain.StatusRead)
			if stored.ReadAt == nil {
				stored.ReadAt = &readAt
			}
			bytes, err := cbor.Marshal(stored)
			if err != nil {
				return err
			}
			if err := txn.Set(primary, bytes); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	return updated, err
}

func (m *MessageRepository) CountAll() (int, error) {
	return m.countFrom([]byte("msg:"))
}

// CountSince counts messages persisted at or after the given instant.
// The padded-timestamp key makes this a single forward seek.
func (m *MessageRepository) CountSince(since time.Time) (int, error) {
	return m.countFrom([]byte(fmt.Sprintf("msg:%019d", since.UTC().UnixNano())))
}

func (m *MessageRepository) countFrom(seekKey []byte) (int, error) {
	count := 0
	prefix := []byte("msg:")

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// DistinctSendersSince counts how many different users sent at least
// one message since the given instant.
func (m *MessageRepository) DistinctSendersSince(since time.Time) (int, error) {
	senders := make(map[string]struct{})
	seekKey := []byte(fmt.Sprintf("msg:%019d", since.UTC().UnixNano()))
	prefix := []byte("msg:")

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			var stored storedMessage
			if err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}
			senders[stored.SenderID] = struct{}{}
		}
		return nil
	})
	return len(senders), err
}

// RecentMessages returns up to limit messages, newest first.
func (m *MessageRepository) RecentMessages(limit int) ([]domain.Message, error) {
	var messages []domain.Message
	prefix := []byte("msg:")

	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the highest possible timestamp, then walk backwards.
		seekKey := append(append([]byte(nil), prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			var stored storedMessage
			if err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &stored)
			}); err != nil {
				return err
			}
			message, err := toMessage(stored)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	return messages, err
}

func loadMessage(txn *badger.Txn, key []byte) (domain.Message, error) {
	item, err := txn.Get(key)
	if err != nil {
		return domain.Message{}, err
	}
	var stored storedMessage
	if err := item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &stored)
	}); err != nil {
		return domain.Message{}, err
	}
	return toMessage(stored)
}

func fromMessage(message domain.Message) storedMessage {
	stored := storedMessage{
		ID:         message.ID.String(),
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Content:    message.Content,
		At:         message.CreatedAt.UnixNano(),
		Status:     string(message.Status),
	}
	if message.ReadAt != nil {
		nanos := message.ReadAt.UnixNano()
		stored.ReadAt = &nanos
	}
	return stored
}

func toMessage(stored storedMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:         parsedID,
		SenderID:   stored.SenderID,
		ReceiverID: stored.ReceiverID,
		Content:    stored.Content,
		CreatedAt:  time.Unix(0, stored.At).UTC(),
		Status:     domain.DeliveryStatus(stored.Status),
	}
	if stored.ReadAt != nil {
		readAt := time.Unix(0, *stored.ReadAt).UTC()
		message.ReadAt = &readAt
	}
	return message, nil
}
