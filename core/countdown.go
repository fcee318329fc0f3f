package core

// countdown tracks the remaining seconds of a session. It only counts; the
// owning session decides whether a tick applies.
type countdown struct {
	remaining int
	fired     bool
}

func newCountdown(seconds int) countdown {
	if seconds < 0 {
		seconds = 0
	}
	return countdown{remaining: seconds}
}

// Tick decrements the remaining time and reports whether this tick reached
// zero. It reports true at most once.
func (c *countdown) Tick() bool {
	if c.fired {
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining == 0 {
		c.fired = true
		return true
	}
	return false
}

// Extend adds seconds to a countdown that has not fired.
func (c *countdown) Extend(seconds int) bool {
	if c.fired || seconds <= 0 {
		return false
	}
	c.remaining += seconds
	return true
}

func (c *countdown) Remaining() int {
	return c.remaining
}

func (c *countdown) Fired() bool {
	return c.fired
}
