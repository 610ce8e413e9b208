package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/repositories"
)

// MessageSender is the persist-then-dispatch path a session hands valid
// frames to. Persistence and dispatch stay ordered: a message is always
// durable before any delivery attempt.
type MessageSender interface {
	Send(draft domain.MessageDraft) (domain.Message, DeliveryOutcome, error)
}

// SessionState is the linear lifecycle of a relay session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosing
	StateClosed
)

// Session owns one user's socket from registration to cleanup.
// Each session runs in its own goroutine; errors inside a session are
// contained to it and never block or crash other sessions.
type Session struct {
	log        *slog.Logger
	registry   *Registry
	presence   repositories.IPresenceRepository
	sender     MessageSender
	monitoring *observability.MonitoringManager
	conn       *Conn

	readTimeout  time.Duration
	pingInterval time.Duration
	writeTimeout time.Duration

	state       SessionState
	stateMu     sync.Mutex
	cleanupOnce sync.Once
}

func NewSession(
	log *slog.Logger,
	registry *Registry,
	presence repositories.IPresenceRepository,
	sender MessageSender,
	monitoring *observability.MonitoringManager,
	conn *Conn,
	readTimeout, pingInterval, writeTimeout time.Duration,
) *Session {
	return &Session{
		log:          log,
		registry:     registry,
		presence:     presence,
		sender:       sender,
		monitoring:   monitoring,
		conn:         conn,
		readTimeout:  readTimeout,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		state:        StateConnecting,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}

// Run drives the session until the connection closes. Identity was
// already resolved at handshake; Run registers the handle, flips
// presence online, then consumes inbound frames. Cleanup runs exactly
// once on every exit path.
func (s *Session) Run(ctx context.Context) {
	// Last-connection-wins: the superseded transport is closed
	// silently, reconnect storms are expected.
	if old := s.registry.Register(s.conn.UserID, s.conn); old != nil {
		s.log.Info("Superseding previous connection", "user_id", s.conn.UserID)
		old.Close()
	}
	s.setState(StateActive)

	if err := s.presence.SetOnline(s.conn.UserID); err != nil {
		s.log.Error("Failed to persist online presence", "user_id", s.conn.UserID, "error", err)
	}
	s.monitoring.SetActiveConnections(s.registry.Len())

	// Cancelling the context only closes this session's transport;
	// in-flight dispatches from other sessions resolve to TransportFailed.
	stop := context.AfterFunc(ctx, s.conn.Close)
	defer stop()
	defer s.cleanup()

	go s.conn.WritePump(s.pingInterval, s.writeTimeout)

	s.readLoop()
}

// readLoop consumes inbound frames until the transport errors out or
// the connection is closed. Frames from one sender are processed in
// arrival order; nothing here reorders persistence.
func (s *Session) readLoop() {
	s.conn.transport.SetPongHandler(func(string) error {
		return s.refreshReadDeadline()
	})
	if err := s.refreshReadDeadline(); err != nil {
		return
	}

	for {
		_, raw, err := s.conn.transport.ReadMessage()
		if err != nil {
			s.setState(StateClosing)
			s.log.Debug("Read loop ending", "user_id", s.conn.UserID, "error", err)
			return
		}
		if err := s.refreshReadDeadline(); err != nil {
			s.setState(StateClosing)
			return
		}

		s.monitoring.IncrFramesIn()
		frame, err := DecodeInbound(raw)
		if err != nil {
			// Malformed frames are skipped, never fatal.
			s.monitoring.IncrMalformedFrames()
			s.log.Warn("Skipping malformed frame", "user_id", s.conn.UserID, "error", err)
			continue
		}

		s.handleFrame(frame)
	}
}

func (s *Session) refreshReadDeadline() error {
	if s.readTimeout <= 0 {
		return nil
	}
	return s.conn.transport.SetReadDeadline(time.Now().Add(s.readTimeout))
}

// handleFrame persists the message and attempts delivery. A store write
// failure must not drop the message silently: the sender gets an error
// frame if the transport still works, otherwise the session terminates.
func (s *Session) handleFrame(frame InboundFrame) {
	message, outcome, err := s.sender.Send(domain.MessageDraft{
		SenderID:   s.conn.UserID,
		ReceiverID: frame.RecipientID,
		Content:    frame.Content,
	})
	if err != nil {
		s.log.Error("Message not persisted", "sender_id", s.conn.UserID, "error", err)
		if sendErr := s.conn.TrySend(EncodeError("message not persisted")); sendErr != nil {
			s.conn.Close()
		}
		return
	}

	s.monitoring.IncrMessagesPersisted()
	switch outcome {
	case Delivered:
		s.monitoring.IncrMessagesDelivered()
	case TransportFailed:
		s.monitoring.IncrDroppedDeliveries()
	}
	s.log.Debug("Frame relayed",
		"sender_id", message.SenderID,
		"receiver_id", message.ReceiverID,
		"outcome", outcome.String())
}

// cleanup deregisters the session and, if it was still the user's
// current one, flips presence offline with a last-seen stamp. Guarded
// by sync.Once so transport errors, protocol errors and graceful
// closes all converge on a single execution.
func (s *Session) cleanup() {
	s.cleanupOnce.Do(func() {
		s.setState(StateClosing)
		removed := s.registry.Unregister(s.conn.UserID, s.conn)
		s.conn.Close()

		// A superseded session no longer owns the user's presence: its
		// late cleanup must not mark a freshly reconnected user offline.
		if removed {
			if err := s.presence.SetOffline(s.conn.UserID, time.Now().UTC()); err != nil {
				s.log.Error("Failed to persist offline presence", "user_id", s.conn.UserID, "error", err)
			}
		}
		s.monitoring.SetActiveConnections(s.registry.Len())
		s.setState(StateClosed)
		s.log.Info("Session closed", "user_id", s.conn.UserID, "was_current", removed)
	})
}
