// Package session keeps short lived per-browser state, the login nonce,
// between the redirect to the provider and the callback.
package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL matches the inactivity expiry of a browser session.
const DefaultTTL = 2 * time.Minute

var ErrNotFound = errors.New("session: not found")

// Store holds string values per session. Take is atomic: of any number of
// concurrent Takes for the same key, at most one sees the value.
type Store interface {
	Put(ctx context.Context, sessionID, key, value string) error
	Take(ctx context.Context, sessionID, key string) (string, error)
	Ping(ctx context.Context) error
}
