package guest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/vaultdrive/client-go/clients/driveapi"
	"github.com/vaultdrive/client-go/internal/identity"
	"github.com/vaultdrive/client-go/internal/snapshot"
)

var (
	// ErrNoExtensionsLeft rejects an extend attempt once the ceiling is hit.
	ErrNoExtensionsLeft = errors.New("no session extensions left")
	// ErrNoActiveSession rejects actions that need a running guest session.
	ErrNoActiveSession = errors.New("no active guest session")
	// ErrNotGuestSession rejects adopting an auth response without a guest
	// session attached.
	ErrNotGuestSession = errors.New("auth response is not a guest session")
)

// Extend asks the server for more time. On success the new expiry is
// applied, the warning epoch resets, and the snapshot is rewritten. On
// failure local state is untouched so the actor can retry.
func (c *Controller) Extend(ctx context.Context) error {
	c.mu.Lock()
	if !c.machine.CountingDown() {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	if s := c.machine.Session(); !s.CanExtend() {
		c.mu.Unlock()
		return ErrNoExtensionsLeft
	}
	c.mu.Unlock()

	resp, err := c.api.ExtendGuestSession(ctx)
	if err != nil {
		if driveapi.IsSessionGone(err) {
			c.expireFromServer(err)
		}
		return fmt.Errorf("extend rejected: %w", err)
	}

	c.mu.Lock()
	c.machine.ApplyExtension(Status{
		RemainingMs:    resp.RemainingMs,
		ExpiresAt:      resp.ExpiresAt,
		ExtensionCount: resp.ExtensionCount,
	})
	c.markActionAppliedLocked()
	s := c.machine.Session()
	ev := c.eventLocked(EventExtended)
	c.mu.Unlock()

	c.saveSnapshot(s)
	log.Info().Str("session_id", s.SessionID).Time("expires_at", s.ExpiresAt).Int("extension_count", s.ExtensionCount).Msg("guest session extended")
	c.publish(ev)
	return nil
}

// Convert upgrades the guest into a permanent account. Success discards all
// guest state and publishes the new identity so every dependent context
// re-evaluates, exactly like a fresh login. Failure leaves the session
// running untouched.
func (c *Controller) Convert(ctx context.Context, name, email, password string) (identity.Identity, error) {
	c.mu.Lock()
	if err := c.machine.BeginConversion(); err != nil {
		c.mu.Unlock()
		return identity.Identity{}, err
	}
	c.mu.Unlock()

	resp, err := c.api.ConvertGuestToUser(ctx, driveapi.ConvertRequest{
		Name:     name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		c.mu.Lock()
		c.machine.AbortConversion()
		c.mu.Unlock()
		return identity.Identity{}, fmt.Errorf("conversion rejected: %w", err)
	}

	c.mu.Lock()
	c.machine.CompleteConversion()
	c.markActionAppliedLocked()
	ev := c.eventLocked(EventConverted)
	c.mu.Unlock()

	c.stopLoop()
	if err := c.store.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear session snapshot after conversion")
	}

	id := identity.Identity{
		UserID:  resp.User.ID,
		Name:    resp.User.Name,
		Email:   resp.User.Email,
		IsGuest: false,
		Token:   resp.Token,
	}
	c.api.SetToken(resp.Token)
	c.bus.Publish(identity.Change{Kind: identity.ChangeConverted, Identity: id})

	log.Info().Str("user_id", id.UserID).Msg("guest session converted to permanent account")
	c.publish(ev)
	return id, nil
}

// Resume validates the persisted session with the server and adopts it.
// When the server reports the session gone, the snapshot is discarded and
// the actor is left unauthenticated with a lapsed-session message.
func (c *Controller) Resume(ctx context.Context) (identity.Identity, error) {
	snap, err := c.store.Load()
	if err != nil {
		return identity.Identity{}, err
	}

	resp, err := c.api.ResumeGuestSession(ctx, snap.SessionID)
	if err != nil {
		if driveapi.IsSessionGone(err) {
			if clearErr := c.store.Clear(); clearErr != nil {
				log.Warn().Err(clearErr).Msg("failed to clear lapsed snapshot")
			}
			log.Info().Str("session_id", snap.SessionID).Msg("stored guest session lapsed")
			return identity.Identity{}, ErrSessionLapsed
		}
		return identity.Identity{}, fmt.Errorf("resume failed: %w", err)
	}

	return c.adopt(resp)
}

// StartFresh creates a brand-new guest session, handing any leftover
// session ID to the server for cleanup.
func (c *Controller) StartFresh(ctx context.Context) (identity.Identity, error) {
	prior := ""
	if snap, err := c.store.Load(); err == nil {
		prior = snap.SessionID
	}

	resp, err := c.api.CreateGuestSession(ctx, prior)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("failed to create guest session: %w", err)
	}

	return c.adopt(resp)
}

// Abandon unconditionally discards the session, its snapshot, and the
// actor's identity. It is both the explicit exit and the resolution of a
// dismissed expired notice.
func (c *Controller) Abandon(ctx context.Context) {
	c.mu.Lock()
	hadSession := c.machine.InGuestMode()
	sessionID := c.machine.Session().SessionID
	c.machine.Reset()
	c.markActionAppliedLocked()
	ev := c.eventLocked(EventEnded)
	c.mu.Unlock()

	c.stopLoop()
	if err := c.store.Clear(); err != nil {
		log.Warn().Err(err).Msg("failed to clear session snapshot on abandon")
	}
	if hadSession {
		if err := c.api.Logout(ctx); err != nil {
			log.Warn().Err(err).Msg("server logout failed during abandon")
		}
	}
	c.api.SetToken("")
	c.bus.Publish(identity.Change{Kind: identity.ChangeLogout})

	log.Info().Str("session_id", sessionID).Msg("guest session abandoned")
	c.publish(ev)
}

// DismissWarning suppresses the low-time warning for the current epoch.
func (c *Controller) DismissWarning() {
	c.mu.Lock()
	c.machine.DismissWarning()
	ev := c.eventLocked(EventState)
	c.mu.Unlock()
	c.publish(ev)
}

// adopt installs a server-issued guest session as the active one: token,
// identity change, state machine, snapshot, and the countdown/sync loop.
func (c *Controller) adopt(resp *driveapi.AuthResponse) (identity.Identity, error) {
	if resp.Session == nil || !resp.User.IsGuest {
		return identity.Identity{}, ErrNotGuestSession
	}

	sess := resp.Session
	remaining := sess.RemainingMs
	if remaining <= 0 {
		remaining = sess.ExpiresAt.Sub(c.clock.Now()).Milliseconds()
	}
	s := Session{
		SessionID:      sess.SessionID,
		CreatedAt:      sess.CreatedAt,
		ExpiresAt:      sess.ExpiresAt,
		ExtensionCount: sess.ExtensionCount,
		MaxExtensions:  sess.MaxExtensions,
		RemainingMs:    remaining,
		IsValid:        true,
	}

	id := identity.Identity{
		UserID:  resp.User.ID,
		Name:    resp.User.Name,
		Email:   resp.User.Email,
		IsGuest: true,
		Token:   resp.Token,
	}
	c.api.SetToken(resp.Token)

	c.mu.Lock()
	c.machine.Begin(s)
	c.markActionAppliedLocked()
	c.startLoopLocked()
	ev := c.eventLocked(EventState)
	c.mu.Unlock()

	c.saveSnapshot(s)
	c.bus.Publish(identity.Change{Kind: identity.ChangeLogin, Identity: id})

	log.Info().Str("session_id", s.SessionID).Time("expires_at", s.ExpiresAt).Msg("guest session adopted")
	c.publish(ev)
	return id, nil
}

func (c *Controller) saveSnapshot(s Session) {
	err := c.store.Save(&snapshot.Snapshot{
		SessionID:      s.SessionID,
		ExpiresAt:      s.ExpiresAt,
		ExtensionCount: s.ExtensionCount,
		MaxExtensions:  s.MaxExtensions,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to persist session snapshot")
	}
}
