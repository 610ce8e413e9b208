package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Presence_UnknownUserIsOffline(t *testing.T) {
	req := require.New(t)
	repository := NewPresenceRepository(openTestDB(t))

	presence, err := repository.Get("ghost")
	req.NoError(err)
	req.Equal("ghost", presence.UserID)
	req.False(presence.IsOnline)
	req.Nil(presence.LastSeen)
}

func Test_Presence_OnlineOfflineCycle(t *testing.T) {
	req := require.New(t)
	repository := NewPresenceRepository(openTestDB(t))

	req.NoError(repository.SetOnline("alice"))

	presence, err := repository.Get("alice")
	req.NoError(err)
	req.True(presence.IsOnline)
	req.Nil(presence.LastSeen)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	req.NoError(repository.SetOffline("alice", at))

	presence, err = repository.Get("alice")
	req.NoError(err)
	req.False(presence.IsOnline)
	req.NotNil(presence.LastSeen)
	req.Equal(at, *presence.LastSeen)
}

func Test_Presence_SetOnlineIsIdempotent(t *testing.T) {
	req := require.New(t)
	repository := NewPresenceRepository(openTestDB(t))

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	req.NoError(repository.SetOffline("alice", at))

	// Going online twice keeps the historical last_seen intact
	req.NoError(repository.SetOnline("alice"))
	req.NoError(repository.SetOnline("alice"))

	presence, err := repository.Get("alice")
	req.NoError(err)
	req.True(presence.IsOnline)
	req.NotNil(presence.LastSeen)
	req.Equal(at, *presence.LastSeen)
}
