// Package guest implements the lifecycle of a time-boxed anonymous session:
// a local countdown between authoritative server syncs, warning/expiry
// policy, and the user actions that extend, convert, resume, or abandon the
// session. The server is always authoritative; the local countdown is only
// a projection between syncs.
package guest

import "time"

// Session is the client's view of a guest session.
type Session struct {
	SessionID      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	ExtensionCount int
	MaxExtensions  int
	RemainingMs    int64
	IsValid        bool
}

// CanExtend reports whether the server-configured extension ceiling has not
// been reached yet.
func (s *Session) CanExtend() bool {
	return s.ExtensionCount < s.MaxExtensions
}

// Lifetime is the total span of the session. Zero when the creation time is
// not yet known (snapshot-seeded sessions learn it on the first sync).
func (s *Session) Lifetime() time.Duration {
	if s.CreatedAt.IsZero() || !s.ExpiresAt.After(s.CreatedAt) {
		return 0
	}
	return s.ExpiresAt.Sub(s.CreatedAt)
}

// Tick subtracts ms from the remaining time, floored at zero.
func (s *Session) Tick(ms int64) {
	s.RemainingMs -= ms
	if s.RemainingMs < 0 {
		s.RemainingMs = 0
	}
}

// Status is an authoritative server report applied over local state.
type Status struct {
	RemainingMs    int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
	ExtensionCount int
	MaxExtensions  int
	IsValid        bool
}
