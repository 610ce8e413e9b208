package relay

import (
	"log/slog"

	"chat-relay/domain"
	"chat-relay/repositories"
)

// DeliveryOutcome is the first-class result of a dispatch attempt.
// Non-delivery is not an error condition: the message is already
// durable and the recipient catches up through history.
type DeliveryOutcome int

const (
	Delivered DeliveryOutcome = iota
	RecipientOffline
	TransportFailed
)

func (o DeliveryOutcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case RecipientOffline:
		return "recipient_offline"
	case TransportFailed:
		return "transport_failed"
	}
	return "unknown"
}

// Dispatcher pushes a persisted message to the recipient's live
// connection, if any. It never retries: a broken handle is evicted so
// the next lookup does not repeat the failure, and the client-side
// resend or history pull takes over.
type Dispatcher struct {
	log      *slog.Logger
	registry *Registry
	messages repositories.IMessageRepository
}

func NewDispatcher(log *slog.Logger, registry *Registry, messages repositories.IMessageRepository) *Dispatcher {
	return &Dispatcher{log: log, registry: registry, messages: messages}
}

// Deliver attempts a non-blocking push of the message to its receiver.
func (d *Dispatcher) Deliver(message domain.Message) DeliveryOutcome {
	conn, ok := d.registry.Lookup(message.ReceiverID)
	if !ok {
		d.log.Debug("Recipient not connected", "receiver_id", message.ReceiverID)
		return RecipientOffline
	}

	payload, err := EncodeOutbound(message)
	if err != nil {
		d.log.Error("Failed to encode outbound frame", "message_id", message.ID, "error", err)
		return TransportFailed
	}

	if err := conn.TrySend(payload); err != nil {
		// Evict exactly the handle that failed; a newer connection
		// registered in the meantime stays untouched.
		d.registry.Unregister(message.ReceiverID, conn)
		conn.Close()
		d.log.Warn("Push failed, evicted broken connection",
			"receiver_id", message.ReceiverID, "error", err)
		return TransportFailed
	}

	// Delivered is a derived signal: a failed status write never undoes
	// the push, and the read transition belongs to the receipt path.
	if err := d.messages.AdvanceStatus(message, domain.StatusDelivered); err != nil {
		d.log.Warn("Failed to advance message status",
			"message_id", message.ID, "error", err)
	}
	return Delivered
}
