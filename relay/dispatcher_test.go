package relay_test

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/mocks"
	"chat-relay/relay"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testMessage(sender, receiver string) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    "ping",
		CreatedAt:  time.Now().UTC(),
		Status:     domain.StatusSent,
	}
}

func TestDispatcher_RecipientOffline(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	messagesMock := mocks.NewMockIMessageRepository(ctrl)
	// No live connection, no status write
	messagesMock.EXPECT().AdvanceStatus(gomock.Any(), gomock.Any()).Times(0)

	dispatcher := relay.NewDispatcher(slog.Default(), relay.NewRegistry(), messagesMock)

	outcome := dispatcher.Deliver(testMessage("alice", "bob"))

	req.Equal(relay.RecipientOffline, outcome)
}

func TestDispatcher_DeliversToLiveConnection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := relay.NewRegistry()
	transport := newFakeTransport()
	conn := relay.NewConn(slog.Default(), "bob", transport, 8)
	registry.Register("bob", conn)
	go conn.WritePump(time.Hour, time.Second)
	defer conn.Close()

	message := testMessage("alice", "bob")

	messagesMock := mocks.NewMockIMessageRepository(ctrl)
	messagesMock.EXPECT().
		AdvanceStatus(message, domain.StatusDelivered).
		Return(nil).
		Times(1)

	dispatcher := relay.NewDispatcher(slog.Default(), registry, messagesMock)

	outcome := dispatcher.Deliver(message)
	req.Equal(relay.Delivered, outcome)

	// The recipient's socket eventually sees the encoded frame
	req.Eventually(func() bool {
		return len(transport.writtenPayloads()) == 1
	}, time.Second, 5*time.Millisecond)

	var frame relay.OutboundFrame
	req.NoError(json.Unmarshal(transport.writtenPayloads()[0], &frame))
	req.Equal("alice", frame.SenderID)
	req.Equal("ping", frame.Content)
}

func TestDispatcher_EvictsBrokenConnection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := relay.NewRegistry()
	// Zero buffer and no write pump: every push fails immediately
	conn := relay.NewConn(slog.Default(), "bob", newFakeTransport(), 0)
	registry.Register("bob", conn)

	messagesMock := mocks.NewMockIMessageRepository(ctrl)
	messagesMock.EXPECT().AdvanceStatus(gomock.Any(), gomock.Any()).Times(0)

	dispatcher := relay.NewDispatcher(slog.Default(), registry, messagesMock)

	outcome := dispatcher.Deliver(testMessage("alice", "bob"))

	req.Equal(relay.TransportFailed, outcome)
	req.True(conn.Closed())
	_, ok := registry.Lookup("bob")
	req.False(ok)
}

func TestDispatcher_FailedStatusWriteDoesNotUndoDelivery(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := relay.NewRegistry()
	conn := relay.NewConn(slog.Default(), "bob", newFakeTransport(), 8)
	registry.Register("bob", conn)
	defer conn.Close()

	message := testMessage("alice", "bob")

	messagesMock := mocks.NewMockIMessageRepository(ctrl)
	messagesMock.EXPECT().
		AdvanceStatus(message, domain.StatusDelivered).
		Return(badgerishError{}).
		Times(1)

	dispatcher := relay.NewDispatcher(slog.Default(), registry, messagesMock)

	req.Equal(relay.Delivered, dispatcher.Deliver(message))
}

type badgerishError struct{}

func (badgerishError) Error() string { return "store unavailable" }
