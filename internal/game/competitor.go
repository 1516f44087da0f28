package game

import "time"

const unsetAttempt int64 = -1

// Competitor is one registered participant. The device token never leaves
// this package except through Identify lookups.
type Competitor struct {
	id          string
	name        string
	deviceToken string

	attempts []int64 // ms, unsetAttempt when empty

	armedAt       time.Time
	activeAttempt int // -1 when not armed
	anchor        *runningAnchor
}

func newCompetitor(id, name, token string, slots int) *Competitor {
	attempts := make([]int64, slots)
	for i := range attempts {
		attempts[i] = unsetAttempt
	}
	return &Competitor{
		id:            id,
		name:          name,
		deviceToken:   token,
		attempts:      attempts,
		activeAttempt: -1,
	}
}

func (c *Competitor) ID() string   { return c.id }
func (c *Competitor) Name() string { return c.name }

func (c *Competitor) Armed() bool { return !c.armedAt.IsZero() }

// Attempt returns the recorded time of slot i in ms.
func (c *Competitor) Attempt(i int) (int64, bool) {
	if i < 0 || i >= len(c.attempts) || c.attempts[i] == unsetAttempt {
		return 0, false
	}
	return c.attempts[i], true
}

// nextSlot returns the first unset attempt index.
func (c *Competitor) nextSlot() (int, bool) {
	for i, v := range c.attempts {
		if v == unsetAttempt {
			return i, true
		}
	}
	return -1, false
}

func (c *Competitor) arm(now time.Time) error {
	if c.Armed() {
		return ErrAlreadyArmed
	}
	idx, ok := c.nextSlot()
	if !ok {
		return ErrAttemptsExhausted
	}
	c.armedAt = now
	c.anchor = nil
	c.activeAttempt = idx
	return nil
}

func (c *Competitor) disarm() {
	c.armedAt = time.Time{}
	c.anchor = nil
	c.activeAttempt = -1
}

// materialize starts the running anchor once the pre-roll is over. It is a
// no-op when the anchor already exists, so repeated observations keep the
// first startedAt. Returns true when state changed.
func (c *Competitor) materialize(t Timings, now time.Time) bool {
	if !prerollCrossed(c, t, now) {
		return false
	}
	if c.activeAttempt < 0 || c.activeAttempt >= len(c.attempts) || c.attempts[c.activeAttempt] != unsetAttempt {
		c.disarm()
		return true
	}
	c.anchor = &runningAnchor{startedAt: now}
	return true
}

// record stops the running anchor and stores the result in the active slot.
func (c *Competitor) record(now time.Time) (int64, error) {
	if c.anchor == nil {
		return 0, ErrNotRunning
	}
	final := c.anchor.accumulated + now.Sub(c.anchor.startedAt)
	if final < 0 {
		final = 0
	}
	ms := final.Milliseconds()
	c.attempts[c.activeAttempt] = ms
	c.disarm()
	return ms, nil
}
