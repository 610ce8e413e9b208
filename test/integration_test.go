package test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/observability"
	"chat-relay/relay"
	"chat-relay/repositories"
	"chat-relay/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// wireTransport is an in-memory stand-in for a websocket connection.
type wireTransport struct {
	inbound chan []byte

	mu        sync.Mutex
	written   [][]byte
	closeOnce sync.Once
}

func newWireTransport() *wireTransport {
	return &wireTransport{inbound: make(chan []byte, 16)}
}

func (w *wireTransport) ReadMessage() (int, []byte, error) {
	raw, ok := <-w.inbound
	if !ok {
		return 0, nil, io.EOF
	}
	return websocket.TextMessage, raw, nil
}

func (w *wireTransport) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, append([]byte(nil), data...))
	return nil
}

func (w *wireTransport) SetReadDeadline(t time.Time) error  { return nil }
func (w *wireTransport) SetWriteDeadline(t time.Time) error { return nil }
func (w *wireTransport) SetPongHandler(h func(string) error) {}

func (w *wireTransport) Close() error {
	w.closeOnce.Do(func() { close(w.inbound) })
	return nil
}

func (w *wireTransport) payloads() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]byte, len(w.written))
	copy(out, w.written)
	return out
}

// Test_Scenario drives a full relay exchange through real storage:
// two users connect, one sends a direct message, the other receives it
// live, the store records the delivery, and disconnecting flips
// presence offline.
func Test_Scenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := relay.NewRegistry()
	monitoring := observability.NewMonitoringManager(log)
	messageRepository := repositories.NewMessageRepository(db, log, lo.ToPtr(100))
	presenceRepository := repositories.NewPresenceRepository(db)
	dispatcher := relay.NewDispatcher(log, registry, messageRepository)
	chatService := services.NewChatService(messageRepository, dispatcher)

	startSession := func(userID string) (*wireTransport, chan struct{}) {
		transport := newWireTransport()
		conn := relay.NewConn(log, userID, transport, 8)
		session := relay.NewSession(
			log, registry, presenceRepository, chatService, monitoring, conn,
			0, time.Hour, time.Second,
		)
		done := make(chan struct{})
		go func() {
			session.Run(ctx)
			close(done)
		}()
		return transport, done
	}

	aliceTransport, aliceDone := startSession("alice")
	bobTransport, bobDone := startSession("bob")

	req.Eventually(func() bool { return registry.Len() == 2 }, time.Second, 5*time.Millisecond)

	// When alice sends bob a direct message
	content := "this message will self destruct in 5 seconds"
	frame, err := json.Marshal(map[string]string{"recipient_id": "bob", "content": content})
	req.NoError(err)
	aliceTransport.inbound <- frame

	// Then bob's live connection receives it
	req.Eventually(func() bool {
		return len(bobTransport.payloads()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	var received relay.OutboundFrame
	req.NoError(json.Unmarshal(bobTransport.payloads()[0], &received))
	req.Equal("alice", received.SenderID)
	req.Equal(content, received.Content)

	// And the store holds the message as delivered
	req.Eventually(func() bool {
		messages, err := messageRepository.ListFor("bob")
		return err == nil && len(messages) == 1 && messages[0].Status == domain.StatusDelivered
	}, 2*time.Second, 5*time.Millisecond)

	// When alice disconnects, her presence flips offline with a last-seen
	aliceTransport.Close()
	<-aliceDone

	presence, err := presenceRepository.Get("alice")
	req.NoError(err)
	req.False(presence.IsOnline)
	req.NotNil(presence.LastSeen)

	bobPresence, err := presenceRepository.Get("bob")
	req.NoError(err)
	req.True(bobPresence.IsOnline)

	bobTransport.Close()
	<-bobDone
	req.Equal(0, registry.Len())
}

// Test_Reconnect_Presence covers the reconnect storm case: the
// superseded session's late cleanup must not durably mark a user
// offline while its fresh connection is live.
func Test_Reconnect_Presence(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := relay.NewRegistry()
	monitoring := observability.NewMonitoringManager(log)
	messageRepository := repositories.NewMessageRepository(db, log, lo.ToPtr(100))
	presenceRepository := repositories.NewPresenceRepository(db)
	dispatcher := relay.NewDispatcher(log, registry, messageRepository)
	chatService := services.NewChatService(messageRepository, dispatcher)

	startSession := func() (*wireTransport, *relay.Conn, chan struct{}) {
		transport := newWireTransport()
		conn := relay.NewConn(log, "alice", transport, 8)
		session := relay.NewSession(
			log, registry, presenceRepository, chatService, monitoring, conn,
			0, time.Hour, time.Second,
		)
		done := make(chan struct{})
		go func() {
			session.Run(ctx)
			close(done)
		}()
		return transport, conn, done
	}

	_, firstConn, firstDone := startSession()
	req.Eventually(func() bool {
		current, ok := registry.Lookup("alice")
		return ok && current == firstConn
	}, time.Second, 5*time.Millisecond)

	// When alice reconnects quickly, the first session is superseded
	// and finishes its cleanup after the second one went online
	secondTransport, secondConn, secondDone := startSession()
	select {
	case <-firstDone:
	case <-time.After(time.Second):
		req.Fail("superseded session did not terminate")
	}

	// Then the durable presence record still matches the live registration
	current, ok := registry.Lookup("alice")
	req.True(ok)
	req.Same(secondConn, current)
	presence, err := presenceRepository.Get("alice")
	req.NoError(err)
	req.True(presence.IsOnline)

	// The real disconnect flips presence offline with a last-seen
	secondTransport.Close()
	<-secondDone
	presence, err = presenceRepository.Get("alice")
	req.NoError(err)
	req.False(presence.IsOnline)
	req.NotNil(presence.LastSeen)
}
