package guest

import "time"

// EventType classifies session events pushed to subscribers.
type EventType string

const (
	// EventState is a full state sync, sent on subscribe and after actions.
	EventState EventType = "session_state"
	// EventTick is the once-a-second countdown update.
	EventTick EventType = "session_tick"
	// EventWarning fires once per epoch when time runs low.
	EventWarning EventType = "session_warning"
	// EventExpired fires when the session reaches its end.
	EventExpired EventType = "session_expired"
	// EventExtended fires after a successful extension.
	EventExtended EventType = "session_extended"
	// EventConverted fires when the guest became a permanent account.
	EventConverted EventType = "session_converted"
	// EventEnded fires when the session was abandoned and the actor logged out.
	EventEnded EventType = "session_ended"
)

// Event is a point-in-time view of the session, pushed to the UI.
type Event struct {
	Type           EventType `json:"type"`
	Phase          Phase     `json:"phase"`
	SessionID      string    `json:"sessionId,omitempty"`
	RemainingMs    int64     `json:"remainingMs"`
	ExpiresAt      time.Time `json:"expiresAt,omitzero"`
	ExtensionCount int       `json:"extensionCount"`
	MaxExtensions  int       `json:"maxExtensions"`
	CanExtend      bool      `json:"canExtend"`
	ShowWarning    bool      `json:"showWarning"`
	ShowExpired    bool      `json:"showExpired"`
	Timestamp      time.Time `json:"timestamp"`
}
