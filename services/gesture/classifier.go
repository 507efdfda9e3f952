package gesture

import (
	"time"

	"github.com/dimarconicola/storiellai/types"
)

// Params are the classification thresholds, consumed from config.
type Params struct {
	DebounceFloor   time.Duration
	LongPress       time.Duration
	DoubleTapWindow time.Duration
	Cooldown        time.Duration
}

type phase uint8

const (
	phaseIdle       phase = iota
	phaseDown             // first press held
	phaseWaitSecond       // tap candidate, double-tap window open
	phaseSecondDown       // second press held
	phaseCooldown         // long press fired, ignoring the same physical press
)

// classifier turns raw timestamped edges into gestures. It is pure
// sequential logic: feed edges with Edge and the passage of time with
// Tick, each may yield at most one gesture. Not safe for concurrent
// use; the owning service serializes access.
type classifier struct {
	p Params

	phase        phase
	downAt       time.Time
	lastUpAt     time.Time
	windowEnds   time.Time
	cooldownEnds time.Time
}

func newClassifier(p Params) *classifier {
	return &classifier{p: p}
}

// Edge processes one raw edge.
func (c *classifier) Edge(e types.Edge) (types.Gesture, bool) {
	if c.phase == phaseCooldown {
		if e.At.Before(c.cooldownEnds) {
			return 0, false
		}
		c.phase = phaseIdle
	}

	switch e.Kind {
	case types.EdgeDown:
		// Release bounce: a down right after an up is noise.
		if !c.lastUpAt.IsZero() && e.At.Sub(c.lastUpAt) < c.p.DebounceFloor {
			return 0, false
		}
		switch c.phase {
		case phaseIdle:
			c.phase = phaseDown
			c.downAt = e.At
		case phaseWaitSecond:
			if e.At.Before(c.windowEnds) {
				c.phase = phaseSecondDown
				c.downAt = e.At
			} else {
				// Window already over but Tick hasn't run: settle the
				// pending tap first, then treat this as a fresh press.
				c.phase = phaseDown
				c.downAt = e.At
				return types.GestureTap, true
			}
		}

	case types.EdgeUp:
		switch c.phase {
		case phaseDown:
			if e.At.Sub(c.downAt) < c.p.DebounceFloor {
				// Glitch press, pretend it never happened.
				c.phase = phaseIdle
				return 0, false
			}
			c.lastUpAt = e.At
			c.phase = phaseWaitSecond
			c.windowEnds = e.At.Add(c.p.DoubleTapWindow)
		case phaseSecondDown:
			if e.At.Sub(c.downAt) < c.p.DebounceFloor {
				c.phase = phaseWaitSecond
				return 0, false
			}
			c.lastUpAt = e.At
			c.phase = phaseIdle
			// The suppressed intermediate Tap never fires.
			return types.GestureDoubleTap, true
		default:
			c.lastUpAt = e.At
		}
	}
	return 0, false
}

// Tick advances time-driven classification: long-press detection while
// held, tap emission at double-tap window expiry, cooldown release.
func (c *classifier) Tick(now time.Time) (types.Gesture, bool) {
	switch c.phase {
	case phaseDown, phaseSecondDown:
		if now.Sub(c.downAt) >= c.p.LongPress {
			// Fires immediately, without waiting for release.
			c.phase = phaseCooldown
			c.cooldownEnds = now.Add(c.p.Cooldown)
			return types.GestureLongPress, true
		}
	case phaseWaitSecond:
		if !now.Before(c.windowEnds) {
			c.phase = phaseIdle
			return types.GestureTap, true
		}
	case phaseCooldown:
		if !now.Before(c.cooldownEnds) {
			c.phase = phaseIdle
		}
	}
	return 0, false
}
