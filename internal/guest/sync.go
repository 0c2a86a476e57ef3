package guest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vaultdrive/client-go/clients/driveapi"
	"github.com/vaultdrive/client-go/internal/snapshot"
)

// ErrSessionLapsed is the user-facing verdict when a stored session can no
// longer be resumed: the server reports it expired or unknown.
var ErrSessionLapsed = errors.New("your previous guest session has expired")

// nextSeq hands out a tag for an outgoing status fetch. Responses are
// applied in tag order; a stale response arriving after a newer one is
// dropped.
func (c *Controller) nextSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncSeq++
	return c.syncSeq
}

// markActionAppliedLocked invalidates every in-flight status fetch. Action
// responses (extend, convert) are authoritative and must not be overwritten
// by an older sync completing late. Callers hold c.mu.
func (c *Controller) markActionAppliedLocked() {
	c.lastApplied = c.syncSeq
}

// fetchStatus performs one authoritative status fetch. Session-gone codes
// expire the session; every other failure is logged and the local countdown
// simply continues until the next scheduled sync.
func (c *Controller) fetchStatus(ctx context.Context, seq uint64) {
	st, err := c.api.GuestStatus(ctx)
	if err != nil {
		if driveapi.IsSessionGone(err) {
			c.expireFromServer(err)
			return
		}
		if ctx.Err() == nil {
			log.Warn().Err(err).Uint64("seq", seq).Msg("guest status sync failed, keeping local countdown")
		}
		return
	}

	c.applyStatus(seq, Status{
		RemainingMs:    st.RemainingMs,
		CreatedAt:      st.CreatedAt,
		ExpiresAt:      st.ExpiresAt,
		ExtensionCount: st.ExtensionCount,
		MaxExtensions:  st.MaxExtensions,
		IsValid:        st.IsValid,
	})
}

// applyStatus overwrites local projection with a server report, unless the
// report is stale.
func (c *Controller) applyStatus(seq uint64, st Status) {
	c.mu.Lock()
	if seq <= c.lastApplied {
		c.mu.Unlock()
		log.Debug().Uint64("seq", seq).Uint64("last_applied", c.lastApplied).Msg("dropping stale sync response")
		return
	}
	c.lastApplied = seq

	if !c.machine.InGuestMode() {
		c.mu.Unlock()
		return
	}

	before := c.machine.Phase()
	c.machine.ApplyStatus(st)
	after := c.machine.Phase()

	events := []Event{c.eventLocked(EventState)}
	if after == PhaseExpired && before != PhaseExpired {
		events = append(events, c.eventLocked(EventExpired))
	}
	if after == PhaseWarning && before != PhaseWarning {
		events = append(events, c.eventLocked(EventWarning))
	}
	c.mu.Unlock()

	c.publish(events...)
}

// expireFromServer handles an authoritative expired/not-found verdict: the
// session is over, the snapshot is useless, and the UI gets a blocking
// expired notice.
func (c *Controller) expireFromServer(cause error) {
	c.mu.Lock()
	if !c.machine.InGuestMode() || c.machine.Phase() == PhaseExpired {
		c.mu.Unlock()
		return
	}
	c.machine.Expire()
	c.markActionAppliedLocked()
	ev := c.eventLocked(EventExpired)
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear session snapshot")
	}
	log.Info().Err(cause).Msg("server reports guest session gone")
	c.publish(ev)
}

// SeedFromSnapshot restores a persisted session without server contact: the
// bootstrap path after a client restart while still holding a usable guest
// token. The seeded state is provisional until the first sync; a snapshot
// that is absent, malformed, or already past its expiry yields
// snapshot.ErrNoSnapshot and is cleared.
func (c *Controller) SeedFromSnapshot() error {
	snap, err := c.store.Load()
	if err != nil {
		return err
	}

	now := c.clock.Now()
	if !snap.ExpiresAt.After(now) {
		if err := c.store.Clear(); err != nil {
			log.Warn().Err(err).Msg("failed to clear expired snapshot")
		}
		return fmt.Errorf("snapshot already expired: %w", snapshot.ErrNoSnapshot)
	}

	s := Session{
		SessionID:      snap.SessionID,
		ExpiresAt:      snap.ExpiresAt,
		ExtensionCount: snap.ExtensionCount,
		MaxExtensions:  snap.MaxExtensions,
		RemainingMs:    snap.ExpiresAt.Sub(now).Milliseconds(),
		IsValid:        true,
	}

	c.mu.Lock()
	c.machine.Begin(s)
	c.startLoopLocked()
	ev := c.eventLocked(EventState)
	c.mu.Unlock()

	log.Info().Str("session_id", s.SessionID).Int64("remaining_ms", s.RemainingMs).Msg("guest session seeded from snapshot")
	c.publish(ev)
	return nil
}
