package guest

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/vaultdrive/client-go/clients/driveapi"
	"github.com/vaultdrive/client-go/internal/identity"
	"github.com/vaultdrive/client-go/internal/snapshot"
)

// DriveAPI defines what the controller needs from the drive API client.
type DriveAPI interface {
	GuestStatus(ctx context.Context) (*driveapi.GuestStatusResponse, error)
	ExtendGuestSession(ctx context.Context) (*driveapi.ExtendResponse, error)
	ResumeGuestSession(ctx context.Context, sessionID string) (*driveapi.AuthResponse, error)
	CreateGuestSession(ctx context.Context, priorSessionID string) (*driveapi.AuthResponse, error)
	ConvertGuestToUser(ctx context.Context, req driveapi.ConvertRequest) (*driveapi.ConvertResponse, error)
	Logout(ctx context.Context) error
	SetToken(token string)
}

// Config tunes the controller's timing.
type Config struct {
	// TickInterval is the local countdown resolution.
	TickInterval time.Duration
	// SyncInterval is the cadence of authoritative status fetches.
	SyncInterval time.Duration
	// InitialSyncDelay postpones the first fetch until the fresh token has
	// had a moment to propagate server-side.
	InitialSyncDelay time.Duration
	// WarningFraction is the share of session lifetime below which the
	// low-time warning begins.
	WarningFraction float64
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = 30 * time.Second
	}
	if c.InitialSyncDelay <= 0 {
		c.InitialSyncDelay = 2 * time.Second
	}
	if c.WarningFraction <= 0 || c.WarningFraction >= 1 {
		c.WarningFraction = 0.10
	}
	return c
}

// State is a consistent snapshot of the controller for request/response
// consumers (the gateway's GET endpoint).
type State struct {
	Phase   Phase          `json:"phase"`
	Session Session        `json:"-"`
	Notify  NotifyDecision `json:"notify"`
}

// Controller owns the guest-session machinery: the state machine, the local
// countdown, the periodic synchronizer, and the user actions. All mutation
// is serialized behind one mutex; the countdown and sync tickers live in a
// single goroutine that is stopped the instant the actor leaves guest mode.
type Controller struct {
	cfg   Config
	api   DriveAPI
	store snapshot.Store
	bus   *identity.Bus
	clock clockwork.Clock

	mu          sync.Mutex
	machine     *Machine
	syncSeq     uint64
	lastApplied uint64
	loopCancel  context.CancelFunc
	loopDone    chan struct{}

	subMu sync.Mutex
	subs  map[chan Event]bool
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock swaps the wall clock, e.g. for a clockwork fake in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// NewController wires the guest-session controller.
func NewController(api DriveAPI, store snapshot.Store, bus *identity.Bus, cfg Config, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:     cfg,
		api:     api,
		store:   store,
		bus:     bus,
		clock:   clockwork.NewRealClock(),
		machine: NewMachine(cfg.WarningFraction),
		subs:    make(map[chan Event]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current phase, session, and notice visibility.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Phase:   c.machine.Phase(),
		Session: c.machine.Session(),
		Notify:  c.machine.Notify(),
	}
}

// StateEvent returns the current state as a session_state event, used for
// the sync message sent to a freshly connected UI.
func (c *Controller) StateEvent() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eventLocked(EventState)
}

// Subscribe registers an event listener. Send on a full buffer drops the
// event rather than blocking the controller.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	c.subMu.Lock()
	c.subs[ch] = true
	c.subMu.Unlock()

	cancel := func() {
		c.subMu.Lock()
		delete(c.subs, ch)
		c.subMu.Unlock()
	}
	return ch, cancel
}

func (c *Controller) publish(events ...Event) {
	c.subMu.Lock()
	subs := make([]chan Event, 0, len(c.subs))
	for ch := range c.subs {
		subs = append(subs, ch)
	}
	c.subMu.Unlock()

	for _, ev := range events {
		for _, ch := range subs {
			select {
			case ch <- ev:
			default:
				log.Warn().Str("event", string(ev.Type)).Msg("session event subscriber buffer full, dropping")
			}
		}
	}
}

// eventLocked builds an event from current machine state. Callers hold c.mu.
func (c *Controller) eventLocked(t EventType) Event {
	s := c.machine.Session()
	decision := c.machine.Notify()
	return Event{
		Type:           t,
		Phase:          c.machine.Phase(),
		SessionID:      s.SessionID,
		RemainingMs:    s.RemainingMs,
		ExpiresAt:      s.ExpiresAt,
		ExtensionCount: s.ExtensionCount,
		MaxExtensions:  s.MaxExtensions,
		CanExtend:      s.CanExtend() && c.machine.Phase() != PhaseExpired,
		ShowWarning:    decision.ShowWarning,
		ShowExpired:    decision.ShowExpired,
		Timestamp:      c.clock.Now(),
	}
}

// startLoopLocked launches the countdown/sync goroutine if guest mode is
// active and no loop is running. Callers hold c.mu.
func (c *Controller) startLoopLocked() {
	if c.loopCancel != nil || !c.machine.InGuestMode() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.loopCancel = cancel
	c.loopDone = make(chan struct{})
	go c.run(ctx, c.loopDone)
	log.Info().Str("session_id", c.machine.Session().SessionID).Msg("guest session loop started")
}

// stopLoop cancels the countdown and sync tickers and waits for the loop
// goroutine to exit.
func (c *Controller) stopLoop() {
	c.mu.Lock()
	cancel := c.loopCancel
	done := c.loopDone
	c.loopCancel = nil
	c.loopDone = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		log.Info().Msg("guest session loop stopped")
	}
}

// Close tears the controller down. Safe to call more than once.
func (c *Controller) Close() {
	c.stopLoop()
}

// run is the single goroutine driving local time: the one-second countdown,
// the delayed first sync, and the periodic re-sync. Fetches run in their own
// short-lived goroutines so an in-flight sync never pauses the countdown.
func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	tick := c.clock.NewTicker(c.cfg.TickInterval)
	defer tick.Stop()
	syncTick := c.clock.NewTicker(c.cfg.SyncInterval)
	defer syncTick.Stop()
	initial := c.clock.NewTimer(c.cfg.InitialSyncDelay)
	defer stopAndDrainTimer(initial)

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.Chan():
			c.handleTick()
		case <-initial.Chan():
			go c.fetchStatus(ctx, c.nextSeq())
		case <-syncTick.Chan():
			go c.fetchStatus(ctx, c.nextSeq())
		}
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel, following
// the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
