package domain

import "time"

// Presence is the durable online/offline record for a user.
// IsOnline mirrors connection registry membership for the current process
// incarnation; LastSeen is written only on the online -> offline transition.
type Presence struct {
	UserID   string
	IsOnline bool
	LastSeen *time.Time
}
