package identity

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// ChangeKind classifies an identity transition.
type ChangeKind string

const (
	ChangeLogin     ChangeKind = "login"
	ChangeLogout    ChangeKind = "logout"
	ChangeConverted ChangeKind = "converted"
)

// Change is published whenever the current actor changes.
type Change struct {
	Kind     ChangeKind
	Identity Identity
}

// Bus fans identity changes out to subscribers.
type Bus struct {
	mu      sync.Mutex
	current Identity
	subs    map[chan Change]bool
}

// NewBus creates an empty identity bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Change]bool)}
}

// Current returns the last published identity.
func (b *Bus) Current() Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe registers a listener. The returned cancel func must be called on
// teardown to release the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Change, func()) {
	ch := make(chan Change, buffer)

	b.mu.Lock()
	b.subs[ch] = true
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish records the new identity and notifies subscribers. Slow
// subscribers with a full buffer miss the event rather than block the
// publisher.
func (b *Bus) Publish(change Change) {
	b.mu.Lock()
	b.current = change.Identity
	subs := make([]chan Change, 0, len(b.subs))
	for ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- change:
		default:
			log.Warn().Str("kind", string(change.Kind)).Msg("identity subscriber buffer full, dropping change")
		}
	}
}
