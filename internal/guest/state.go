package guest

import (
	"errors"
	"fmt"
)

// Phase is the lifecycle phase of the guest session.
type Phase int

const (
	// PhaseInactive means the actor is not a guest.
	PhaseInactive Phase = iota
	// PhaseActive is the normal countdown.
	PhaseActive
	// PhaseWarning means remaining time dropped below the warning threshold.
	PhaseWarning
	// PhaseExpired is terminal until the actor acts (abandon or convert).
	PhaseExpired
	// PhaseConverting means a conversion request is in flight.
	PhaseConverting
	// PhaseConverted means the guest became a permanent account.
	PhaseConverted
)

func (p Phase) String() string {
	switch p {
	case PhaseInactive:
		return "inactive"
	case PhaseActive:
		return "active"
	case PhaseWarning:
		return "warning"
	case PhaseExpired:
		return "expired"
	case PhaseConverting:
		return "converting"
	case PhaseConverted:
		return "converted"
	}
	return "unknown"
}

// MarshalText makes phases render as their lowercase names in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a lowercase phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "inactive":
		*p = PhaseInactive
	case "active":
		*p = PhaseActive
	case "warning":
		*p = PhaseWarning
	case "expired":
		*p = PhaseExpired
	case "converting":
		*p = PhaseConverting
	case "converted":
		*p = PhaseConverted
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// ErrNotConvertible is returned when a conversion is attempted while no
// guest session is active.
var ErrNotConvertible = errors.New("no guest session to convert")

// Machine owns the session phase and the transition rules between phases.
// It is pure state: no timers, no I/O. Callers drive it with ticks, server
// status reports, and user actions, and must serialize access.
type Machine struct {
	phase     Phase
	prevPhase Phase
	session   Session

	// One-shot warning flags, scoped to the current epoch. An epoch ends on
	// extension or expiry.
	warningShown     bool
	warningDismissed bool

	warningFraction float64
}

// NewMachine creates a machine in PhaseInactive. warningFraction is the
// share of total session lifetime below which the warning phase begins.
func NewMachine(warningFraction float64) *Machine {
	if warningFraction <= 0 || warningFraction >= 1 {
		warningFraction = 0.10
	}
	return &Machine{warningFraction: warningFraction}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Session returns a copy of the current session.
func (m *Machine) Session() Session {
	return m.session
}

// InGuestMode reports whether the actor is still a guest (any phase except
// Inactive and Converted).
func (m *Machine) InGuestMode() bool {
	return m.phase != PhaseInactive && m.phase != PhaseConverted
}

// CountingDown reports whether local ticks should still decrement time.
func (m *Machine) CountingDown() bool {
	return m.phase == PhaseActive || m.phase == PhaseWarning
}

// WarningShown reports whether the warning fired in the current epoch.
func (m *Machine) WarningShown() bool {
	return m.warningShown
}

// WarningDismissed reports whether the actor dismissed the warning in the
// current epoch.
func (m *Machine) WarningDismissed() bool {
	return m.warningDismissed
}

// thresholdMs is the warning threshold in milliseconds. Zero (warning
// disabled) while the session lifetime is unknown.
func (m *Machine) thresholdMs() int64 {
	lifetime := m.session.Lifetime()
	if lifetime <= 0 {
		return 0
	}
	return int64(float64(lifetime.Milliseconds()) * m.warningFraction)
}

// Begin adopts a session and enters guest mode. Warning flags start a fresh
// epoch.
func (m *Machine) Begin(s Session) {
	m.session = s
	m.warningShown = false
	m.warningDismissed = false
	if !s.IsValid || s.RemainingMs <= 0 {
		m.session.RemainingMs = 0
		m.phase = PhaseExpired
		return
	}
	m.phase = PhaseActive
	m.refreshPhase()
}

// Tick applies one local countdown step. A no-op outside the countdown
// phases, which keeps Expired sticky at zero.
func (m *Machine) Tick(ms int64) {
	if !m.CountingDown() {
		return
	}
	m.session.Tick(ms)
	m.refreshPhase()
}

// ApplyStatus overwrites local projection with an authoritative server
// report. ExpiresAt never moves backward; everything else is taken verbatim.
// A server report that the session is live again recovers from a locally
// projected expiry.
func (m *Machine) ApplyStatus(st Status) {
	if !m.InGuestMode() || m.phase == PhaseConverting {
		return
	}

	if !st.IsValid {
		m.Expire()
		return
	}

	// An extension observed through sync (e.g. granted in another client)
	// starts a new warning epoch and returns the session to the active
	// phase, the same as a locally requested extension.
	if st.ExtensionCount > m.session.ExtensionCount {
		m.warningShown = false
		m.warningDismissed = false
		if m.phase == PhaseWarning {
			m.phase = PhaseActive
		}
	}

	if !st.CreatedAt.IsZero() {
		m.session.CreatedAt = st.CreatedAt
	}
	if st.ExpiresAt.After(m.session.ExpiresAt) {
		m.session.ExpiresAt = st.ExpiresAt
	}
	m.session.ExtensionCount = st.ExtensionCount
	if st.MaxExtensions > 0 {
		m.session.MaxExtensions = st.MaxExtensions
	}
	m.session.RemainingMs = st.RemainingMs
	if m.session.RemainingMs < 0 {
		m.session.RemainingMs = 0
	}
	m.session.IsValid = true

	if m.phase == PhaseExpired && m.session.RemainingMs > 0 {
		m.phase = PhaseActive
	}
	m.refreshPhase()
}

// ApplyExtension applies a successful extend response. The new expiry must
// be strictly later than the old one; the warning epoch resets and the
// session returns to the active phase.
func (m *Machine) ApplyExtension(st Status) {
	if !st.ExpiresAt.After(m.session.ExpiresAt) {
		return
	}
	m.session.ExpiresAt = st.ExpiresAt
	m.session.ExtensionCount = st.ExtensionCount
	m.session.RemainingMs = st.RemainingMs
	m.session.IsValid = true
	m.warningShown = false
	m.warningDismissed = false
	m.phase = PhaseActive
	m.refreshPhase()
}

// Expire forces the terminal expired phase. Remaining time clamps to zero.
func (m *Machine) Expire() {
	if !m.InGuestMode() {
		return
	}
	m.session.RemainingMs = 0
	m.session.IsValid = false
	m.phase = PhaseExpired
}

// DismissWarning suppresses the warning for the rest of the epoch.
func (m *Machine) DismissWarning() {
	if m.warningShown {
		m.warningDismissed = true
	}
}

// BeginConversion marks a conversion in flight. The previous phase is kept
// so a failed conversion leaves the session exactly as it was.
func (m *Machine) BeginConversion() error {
	if !m.InGuestMode() || m.phase == PhaseConverting {
		return ErrNotConvertible
	}
	m.prevPhase = m.phase
	m.phase = PhaseConverting
	return nil
}

// AbortConversion restores the phase saved by BeginConversion.
func (m *Machine) AbortConversion() {
	if m.phase == PhaseConverting {
		m.phase = m.prevPhase
	}
}

// CompleteConversion leaves guest mode on the success path.
func (m *Machine) CompleteConversion() {
	m.phase = PhaseConverted
	m.session = Session{}
	m.warningShown = false
	m.warningDismissed = false
}

// Reset discards all guest state and returns to PhaseInactive. Used for
// abandon/logout.
func (m *Machine) Reset() {
	m.phase = PhaseInactive
	m.session = Session{}
	m.warningShown = false
	m.warningDismissed = false
}

// Notify evaluates the notification policy against current machine state.
func (m *Machine) Notify() NotifyDecision {
	return Evaluate(NotifyInput{
		RemainingMs:      m.session.RemainingMs,
		ThresholdMs:      m.thresholdMs(),
		WarningShown:     m.warningShown,
		WarningDismissed: m.warningDismissed,
		Expired:          m.phase == PhaseExpired,
	})
}

// refreshPhase recomputes Active/Warning/Expired from remaining time while
// counting down. The warning transition is one-shot per epoch.
func (m *Machine) refreshPhase() {
	if !m.CountingDown() {
		return
	}
	if m.session.RemainingMs <= 0 {
		m.session.RemainingMs = 0
		m.phase = PhaseExpired
		return
	}
	if m.phase == PhaseActive && !m.warningShown {
		if threshold := m.thresholdMs(); threshold > 0 && m.session.RemainingMs <= threshold {
			m.phase = PhaseWarning
			m.warningShown = true
		}
	}
}
