package guest

// handleTick applies one local countdown step and pushes the resulting
// view to subscribers. The tick itself never raises notices; the warning
// and expired events fall out of the phase transition it may cause.
func (c *Controller) handleTick() {
	c.mu.Lock()
	if !c.machine.CountingDown() {
		c.mu.Unlock()
		return
	}

	before := c.machine.Phase()
	c.machine.Tick(c.cfg.TickInterval.Milliseconds())
	after := c.machine.Phase()

	events := []Event{c.eventLocked(EventTick)}
	if after != before {
		switch after {
		case PhaseWarning:
			events = append(events, c.eventLocked(EventWarning))
		case PhaseExpired:
			events = append(events, c.eventLocked(EventExpired))
		}
	}
	c.mu.Unlock()

	c.publish(events...)
}
