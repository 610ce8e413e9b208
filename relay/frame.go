package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"
)

// InboundFrame is what a connected client sends: one direct message.
type InboundFrame struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

// OutboundFrame is what a recipient's connection receives on dispatch.
type OutboundFrame struct {
	SenderID  string `json:"sender_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ErrorFrame tells a sender its message was not persisted. Delivery
// failures are never reported this way; only store write failures are.
type ErrorFrame struct {
	Error string `json:"error"`
}

// DecodeInbound parses a raw frame. Anything that is not valid JSON
// with both fields present is a malformed frame: the session logs and
// skips it without terminating.
func DecodeInbound(raw []byte) (InboundFrame, error) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", errors.ErrMalformedFrame, err)
	}
	if frame.RecipientID == "" || frame.Content == "" {
		return InboundFrame{}, fmt.Errorf("%w: missing recipient_id or content", errors.ErrMalformedFrame)
	}
	return frame, nil
}

// EncodeOutbound renders a persisted message for the recipient's socket.
func EncodeOutbound(message domain.Message) ([]byte, error) {
	return json.Marshal(OutboundFrame{
		SenderID:  message.SenderID,
		Content:   message.Content,
		CreatedAt: message.CreatedAt.Format(time.RFC3339Nano),
	})
}

// EncodeError renders an error frame for the sender's socket.
func EncodeError(reason string) []byte {
	payload, _ := json.Marshal(ErrorFrame{Error: reason})
	return payload
}
