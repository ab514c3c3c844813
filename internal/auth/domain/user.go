package domain

import "time"

// InitialRefreshTokenVersion is the refresh_token_version every account
// starts with.
const InitialRefreshTokenVersion int64 = 1

// Application roles. Anything else is rejected.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is the persisted account record. It is created on the first
// successful provider login and never deleted here.
type User struct {
	ID                  string // provider subject
	PreferredUsername   string
	Email               string
	RefreshTokenVersion int64
	Role                string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// ValidRole reports whether role is one of the application roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}
