// Package snapshot persists the minimal guest-session fields that must
// survive a client restart. The snapshot is a seed for resuming a session,
// never an authority: the server's verdict always wins once reachable.
package snapshot

import (
	"errors"
	"time"
)

// ErrNoSnapshot is returned by Load when no usable snapshot exists.
// A malformed snapshot is treated as absent and removed.
var ErrNoSnapshot = errors.New("no guest session snapshot")

// Snapshot is the durable copy of a guest session.
type Snapshot struct {
	SessionID      string    `json:"sessionId"`
	ExpiresAt      time.Time `json:"expiresAt"`
	ExtensionCount int       `json:"extensionCount"`
	MaxExtensions  int       `json:"maxExtensions"`
}

// Store reads and writes the session snapshot.
type Store interface {
	Load() (*Snapshot, error)
	Save(*Snapshot) error
	Clear() error
}
