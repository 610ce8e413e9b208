package relay

import (
	"log/slog"
	"sync"
	"time"

	"chat-relay/errors"

	"github.com/gorilla/websocket"
)

// Transport is the subset of a websocket connection the relay needs.
// *websocket.Conn satisfies it; tests substitute an in-memory fake.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Conn is the live connection handle held by the registry.
// It lives exactly as long as one physical connection: a reconnecting
// user gets a fresh Conn and the registry closes the superseded one.
//
// All writes to the transport go through the write pump; producers use
// TrySend, which never blocks. A slow consumer fills the buffer and
// sees ErrTransportFailed instead of stalling the sender's goroutine.
type Conn struct {
	UserID      string
	ConnectedAt time.Time

	log       *slog.Logger
	transport Transport
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(log *slog.Logger, userID string, transport Transport, bufferSize int) *Conn {
	return &Conn{
		UserID:      userID,
		ConnectedAt: time.Now().UTC(),
		log:         log,
		transport:   transport,
		send:        make(chan []byte, bufferSize),
		done:        make(chan struct{}),
	}
}

// TrySend queues a payload for the write pump without ever blocking.
// A closed connection or a full buffer both surface as ErrTransportFailed:
// the caller treats delivery as best-effort and relies on store-backed
// history for catch-up.
func (c *Conn) TrySend(payload []byte) error {
	select {
	case <-c.done:
		return errors.ErrTransportFailed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errors.ErrTransportFailed
	default:
		c.log.Warn("Outbound buffer full, dropping payload", "user_id", c.UserID)
		return errors.ErrTransportFailed
	}
}

// Close tears down the physical transport. Safe to call from any
// goroutine and from multiple exit paths; only the first call acts.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.transport.Close()
	})
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// WritePump owns every write to the transport: queued payloads and
// keepalive pings. It exits when the connection closes or a write
// fails, closing the connection in both cases.
func (c *Conn) WritePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.transport.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			if err := c.transport.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.transport.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Debug("Write failed, closing connection", "user_id", c.UserID, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.transport.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.transport.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
