package types

import "time"

// EdgeKind is the direction of a raw button edge.
type EdgeKind uint8

const (
	EdgeDown EdgeKind = iota // button pressed
	EdgeUp                   // button released
)

func (k EdgeKind) String() string {
	if k == EdgeDown {
		return "down"
	}
	return "up"
}

// Edge is a raw, timestamped button edge as read from hardware.
type Edge struct {
	Kind EdgeKind
	At   time.Time
}

// Hardware is the collaborator boundary to the physical device.
// Implementations must be safe for concurrent use: the token source,
// gesture detector, battery monitor and LED engine each poll it from
// their own goroutine.
type Hardware interface {
	// ReadUID returns the UID of a present token, or ok=false when the
	// field is empty. A non-nil error means an unreadable/corrupt read.
	ReadUID() (uid string, ok bool, err error)

	// ReadButtonEdge returns the next queued raw edge, or ok=false when
	// there is none pending.
	ReadButtonEdge() (edge Edge, ok bool)

	// ReadAnalog returns a normalized 0..1 reading for the channel.
	ReadAnalog(channel int) (float64, error)

	// SetDimmableOutput drives the status LED, brightness 0..100.
	SetDimmableOutput(brightness int)

	// SupportsDimming reports whether the LED output interpolates
	// brightness. Discrete patterns may bypass PWM when it does not.
	SupportsDimming() bool

	// RequestSystemShutdown asks the host to power down. It must not block.
	RequestSystemShutdown(reason string)
}
