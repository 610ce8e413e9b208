package relay_test

import (
	"log/slog"
	"testing"
	"time"

	"chat-relay/errors"
	"chat-relay/relay"

	"github.com/stretchr/testify/require"
)

func TestConn_TrySendNeverBlocks(t *testing.T) {
	req := require.New(t)
	transport := newFakeTransport()
	conn := relay.NewConn(slog.Default(), "alice", transport, 1)

	// Given a buffer of one and no write pump draining it
	req.NoError(conn.TrySend([]byte("first")))

	// When the buffer is full, the caller gets an immediate error
	// instead of blocking
	err := conn.TrySend([]byte("second"))
	req.ErrorIs(err, errors.ErrTransportFailed)
}

func TestConn_TrySendAfterClose(t *testing.T) {
	req := require.New(t)
	conn := relay.NewConn(slog.Default(), "alice", newFakeTransport(), 8)

	conn.Close()

	err := conn.TrySend([]byte("late"))
	req.ErrorIs(err, errors.ErrTransportFailed)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	req := require.New(t)
	transport := newFakeTransport()
	conn := relay.NewConn(slog.Default(), "alice", transport, 8)

	req.False(conn.Closed())
	conn.Close()
	conn.Close()
	conn.Close()

	req.True(conn.Closed())
	req.True(transport.isClosed())
}

func TestConn_WritePumpDrainsQueuedPayloads(t *testing.T) {
	req := require.New(t)
	transport := newFakeTransport()
	conn := relay.NewConn(slog.Default(), "alice", transport, 8)

	req.NoError(conn.TrySend([]byte("hello")))
	req.NoError(conn.TrySend([]byte("world")))

	go conn.WritePump(time.Hour, time.Second)

	req.Eventually(func() bool {
		return len(transport.writtenPayloads()) == 2
	}, time.Second, 5*time.Millisecond)

	payloads := transport.writtenPayloads()
	req.Equal([]byte("hello"), payloads[0])
	req.Equal([]byte("world"), payloads[1])

	conn.Close()
}
