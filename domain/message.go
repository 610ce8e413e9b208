// Package domain contains core concepts of the chat system.
// This file defines Message records and the delivery status lifecycle.
// Messages are immutable once persisted, except for their delivery status.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus tracks how far a message has travelled.
// The lifecycle is strictly monotonic: sent -> delivered -> read.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

func (s DeliveryStatus) rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving to next respects the lifecycle.
// A transition to the same or an earlier status is a regression and is refused.
func (s DeliveryStatus) CanAdvanceTo(next DeliveryStatus) bool {
	return s.rank() >= 0 && next.rank() > s.rank()
}

// Message represents one direct message between two users.
type Message struct {
	ID         uuid.UUID // assigned by the store at persistence time
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time // store clock, set once
	Status     DeliveryStatus
	ReadAt     *time.Time // set exactly once, on the transition to read
}

// MessageDraft carries the unsaved fields a relay session hands to the store.
// ID, CreatedAt and Status are owned by the store.
type MessageDraft struct {
	SenderID   string
	ReceiverID string
	Content    string
}
