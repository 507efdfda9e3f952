package types

import (
	"time"

	"github.com/dimarconicola/storiellai/errcode"
)

// Gesture is a classified button gesture.
type Gesture uint8

const (
	GestureTap Gesture = iota
	GestureDoubleTap
	GestureLongPress
)

func (g Gesture) String() string {
	switch g {
	case GestureTap:
		return "tap"
	case GestureDoubleTap:
		return "double_tap"
	case GestureLongPress:
		return "long_press"
	}
	return "unknown"
}

// ButtonEvent is emitted by the gesture detector, exactly once per gesture.
type ButtonEvent struct {
	Gesture Gesture
	At      time.Time
}

// TokenEvent is a debounced card presentation.
type TokenEvent struct {
	UID string
	At  time.Time
}

// TokenReadError reports an unreadable or corrupt token read.
type TokenReadError struct {
	At time.Time
}

// BatteryLevel classifies the sensed battery voltage.
type BatteryLevel uint8

const (
	BatteryNormal BatteryLevel = iota
	BatteryLow
	BatteryCritical
)

func (l BatteryLevel) String() string {
	switch l {
	case BatteryNormal:
		return "normal"
	case BatteryLow:
		return "low"
	case BatteryCritical:
		return "critical"
	}
	return "unknown"
}

// BatteryState is the monitor's last published sample. Single writer:
// the battery monitor. Everyone else sees it through events only.
type BatteryState struct {
	Voltage   float64
	Level     BatteryLevel
	SampledAt time.Time
}

// BatteryLevelChanged is emitted only on an actual level transition
// (and always for Critical).
type BatteryLevelChanged struct {
	State BatteryState
}

// BootComplete signals that startup work is done and the core may
// leave BOOTING.
type BootComplete struct{}

// StorySelected carries the selector's choice for the active token.
type StorySelected struct {
	UID   string
	Story StoryRecord
}

// SelectionFailed reports why no story could be chosen for a token.
// Code is one of errcode.UnknownCard, errcode.EmptyCard,
// errcode.CardReadError.
type SelectionFailed struct {
	UID  string
	Code errcode.Code
}

// PlaybackStarted is the asynchronous completion of a LoadAndPlay.
// Gen identifies the load so stale completions can be discarded.
type PlaybackStarted struct {
	Gen     uint64
	StoryID string
}

// AudioLoadFailed is the asynchronous failure of a LoadAndPlay.
// No session exists after it.
type AudioLoadFailed struct {
	Gen     uint64
	StoryID string
}

// NarrationFinished is raised when the one-shot narration layer
// completes on its own.
type NarrationFinished struct {
	StoryID string
}

// EndFadeDone is raised by the LED engine when the end-of-story
// fadeout pattern completes.
type EndFadeDone struct{}

// ShutdownReason distinguishes the shutdown variants. All are terminal.
type ShutdownReason uint8

const (
	ShutdownUser ShutdownReason = iota
	ShutdownBattery
	ShutdownInactivity
	ShutdownErrors
)

func (r ShutdownReason) String() string {
	switch r {
	case ShutdownUser:
		return "user"
	case ShutdownBattery:
		return "battery"
	case ShutdownInactivity:
		return "inactivity"
	case ShutdownErrors:
		return "errors"
	}
	return "unknown"
}
