package relay_test

import (
	"log/slog"
	"testing"

	"chat-relay/relay"

	"github.com/stretchr/testify/require"
)

func newTestConn(userID string) *relay.Conn {
	return relay.NewConn(slog.Default(), userID, newFakeTransport(), 8)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	req := require.New(t)
	registry := relay.NewRegistry()
	conn := newTestConn("alice")

	// Given an empty registry, registering returns no previous handle
	old := registry.Register("alice", conn)
	req.Nil(old)

	// Then lookup returns exactly that handle
	found, ok := registry.Lookup("alice")
	req.True(ok)
	req.Same(conn, found)
	req.Equal(1, registry.Len())
}

func TestRegistry_LastConnectionWins(t *testing.T) {
	req := require.New(t)
	registry := relay.NewRegistry()
	first := newTestConn("alice")
	second := newTestConn("alice")

	// Given an already registered connection
	registry.Register("alice", first)

	// When the same user registers a new one
	old := registry.Register("alice", second)

	// Then the previous handle is handed back for closing and the
	// registry holds exactly the newer one
	req.Same(first, old)
	found, ok := registry.Lookup("alice")
	req.True(ok)
	req.Same(second, found)
	req.Equal(1, registry.Len())
}

func TestRegistry_StaleUnregisterIsNoOp(t *testing.T) {
	req := require.New(t)
	registry := relay.NewRegistry()
	stale := newTestConn("alice")
	current := newTestConn("alice")

	registry.Register("alice", stale)
	registry.Register("alice", current)

	// When the superseded connection disconnects late
	removed := registry.Unregister("alice", stale)

	// Then the newer connection stays registered
	req.False(removed)
	found, ok := registry.Lookup("alice")
	req.True(ok)
	req.Same(current, found)
}

func TestRegistry_UnregisterCurrent(t *testing.T) {
	req := require.New(t)
	registry := relay.NewRegistry()
	conn := newTestConn("alice")

	registry.Register("alice", conn)
	removed := registry.Unregister("alice", conn)

	req.True(removed)
	_, ok := registry.Lookup("alice")
	req.False(ok)
	req.Equal(0, registry.Len())
}
