//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"fmt"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/relay"
	"chat-relay/repositories"
)

type IChatService interface {
	Send(draft domain.MessageDraft) (domain.Message, relay.DeliveryOutcome, error)
	History(userID string) ([]domain.Message, error)
	MarkRead(senderID, receiverID string) (int, error)
}

// ChatService ties the message store to the dispatcher.
// Persistence always happens first; a failed or skipped delivery never
// invalidates a persisted message.
type ChatService struct {
	messages   repositories.IMessageRepository
	dispatcher *relay.Dispatcher
}

func NewChatService(messages repositories.IMessageRepository, dispatcher *relay.Dispatcher) *ChatService {
	return &ChatService{messages: messages, dispatcher: dispatcher}
}

// Send persists the draft, then attempts best-effort delivery to the
// recipient's live connection.
func (s *ChatService) Send(draft domain.MessageDraft) (domain.Message, relay.DeliveryOutcome, error) {
	message, err := s.messages.Append(draft)
	if err != nil {
		return domain.Message{}, relay.RecipientOffline, fmt.Errorf("%w: %v", errors.ErrStoreWrite, err)
	}
	return message, s.dispatcher.Deliver(message), nil
}

// History returns every message where the user is sender or receiver,
// in chronological order. Used by the pull path on reconnect.
func (s *ChatService) History(userID string) ([]domain.Message, error) {
	return s.messages.ListFor(userID)
}

// MarkRead is the read-receipt path: it bulk-transitions persisted
// messages in the store and never touches live connections.
func (s *ChatService) MarkRead(senderID, receiverID string) (int, error) {
	return s.messages.MarkRead(senderID, receiverID, time.Now().UTC())
}
