package guest

// NotifyInput is everything the notification policy looks at.
type NotifyInput struct {
	RemainingMs      int64
	ThresholdMs      int64
	WarningShown     bool
	WarningDismissed bool
	Expired          bool
}

// NotifyDecision says which notices the UI should be showing right now.
type NotifyDecision struct {
	ShowWarning bool `json:"showWarning"`
	ShowExpired bool `json:"showExpired"`
}

// Evaluate derives notice visibility from session state. The expired notice
// is unconditional and persistent; the warning shows once it has fired for
// the current epoch, while remaining time is inside the threshold, unless
// the actor dismissed it this epoch.
func Evaluate(in NotifyInput) NotifyDecision {
	if in.Expired {
		return NotifyDecision{ShowExpired: true}
	}
	inWindow := in.ThresholdMs > 0 && in.RemainingMs > 0 && in.RemainingMs <= in.ThresholdMs
	return NotifyDecision{
		ShowWarning: inWindow && in.WarningShown && !in.WarningDismissed,
	}
}
