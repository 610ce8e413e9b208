package domain

import "time"

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// User is issued by the account surface. The relay core only ever sees
// its ID, which it treats as an opaque comparable key.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Role         string
	IsFirstLogin bool
	CreatedAt    time.Time
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
