// Package led renders declarative brightness patterns onto the single
// status LED. One pattern is active at any tick; replacing it resets
// the phase to zero, never blending with the previous pattern.
package led

import "time"

// Kind tags the pattern variants.
type Kind uint8

const (
	KindOff Kind = iota
	KindSolid
	KindBlink
	KindBreathing
	KindPulse
	KindFadeOut
	KindCountdown
	KindRainbow
	KindSequence
)

// Segment is one step of a composite pattern.
type Segment struct {
	Brightness int // 0..100
	Duration   time.Duration
}

// Spec is the tagged-variant pattern description. Exactly one Spec is
// active in the engine at a time; it is owned by the engine once set.
type Spec struct {
	Kind Kind

	// Continuous parameters.
	Period time.Duration // blink/breathing/pulse/rainbow cycle
	Level  int           // peak brightness 0..100
	Floor  int           // breathing minimum brightness
	Duty   float64       // blink on-fraction, 0..1
	Total  time.Duration // fadeout/countdown span

	// Composite parameters.
	Segments []Segment
	Count    int // repeats; 0 means forever

	// Next is entered automatically when a finite pattern completes.
	Next *Spec
	// Callback fires exactly once on completion, before Next starts.
	Callback func()
}

// Discrete reports patterns that are plain on/off and may bypass PWM
// interpolation when the output lacks dimming.
func (s Spec) Discrete() bool {
	switch s.Kind {
	case KindOff, KindSolid, KindBlink:
		return true
	}
	return false
}

// --- named patterns ---

func Off() Spec { return Spec{Kind: KindOff} }

func Solid(level int) Spec { return Spec{Kind: KindSolid, Level: level} }

func Blink(period time.Duration, duty float64, level int) Spec {
	return Spec{Kind: KindBlink, Period: period, Duty: duty, Level: level}
}

// Breathing is the idle pattern: a cosine swell between floor and peak.
func Breathing(period time.Duration) Spec {
	return Spec{Kind: KindBreathing, Period: period, Floor: 10, Level: 100}
}

// BreathingPaused is the slower, dimmer variant shown while paused.
func BreathingPaused() Spec {
	return Spec{Kind: KindBreathing, Period: 4 * time.Second, Floor: 10, Level: 70}
}

func Pulse(period time.Duration, level int) Spec {
	return Spec{Kind: KindPulse, Period: period, Level: level}
}

// FadeOut ramps linearly from level to dark over total, then completes.
func FadeOut(level int, total time.Duration) Spec {
	return Spec{Kind: KindFadeOut, Level: level, Total: total}
}

// Countdown steps down in ten discrete levels over total.
func Countdown(level int, total time.Duration) Spec {
	return Spec{Kind: KindCountdown, Level: level, Total: total}
}

// Rainbow is a triangle sweep; on a single-color LED it reads as a
// slow shimmer.
func Rainbow(period time.Duration) Spec {
	return Spec{Kind: KindRainbow, Period: period, Level: 100}
}

// Loading is the 4 Hz blink shown while audio loads.
func Loading() Spec { return Blink(250*time.Millisecond, 0.5, 100) }

// BootSequence is three quickening flashes shown once at startup.
func BootSequence() Spec {
	return Spec{
		Kind: KindSequence,
		Segments: []Segment{
			{Brightness: 100, Duration: 300 * time.Millisecond},
			{Brightness: 0, Duration: 300 * time.Millisecond},
			{Brightness: 100, Duration: 200 * time.Millisecond},
			{Brightness: 0, Duration: 200 * time.Millisecond},
			{Brightness: 100, Duration: 100 * time.Millisecond},
			{Brightness: 0, Duration: 100 * time.Millisecond},
		},
		Count: 1,
	}
}

// CardRecognized is two crisp blinks acknowledging a token.
func CardRecognized() Spec {
	return Spec{
		Kind: KindSequence,
		Segments: []Segment{
			{Brightness: 100, Duration: 100 * time.Millisecond},
			{Brightness: 0, Duration: 100 * time.Millisecond},
		},
		Count: 2,
	}
}

// Success is three slow affirmative blinks.
func Success() Spec {
	return Spec{
		Kind: KindSequence,
		Segments: []Segment{
			{Brightness: 100, Duration: 200 * time.Millisecond},
			{Brightness: 0, Duration: 300 * time.Millisecond},
		},
		Count: 3,
	}
}

// ErrorFlash is the 8 Hz error strobe held for three seconds.
func ErrorFlash() Spec {
	return Spec{
		Kind: KindSequence,
		Segments: []Segment{
			{Brightness: 100, Duration: 62500 * time.Microsecond},
			{Brightness: 0, Duration: 62500 * time.Microsecond},
		},
		Count: 24,
	}
}

// SOS is the morse distress pattern, once.
func SOS() Spec {
	dot := 150 * time.Millisecond
	dash := 450 * time.Millisecond
	gap := 150 * time.Millisecond
	var segs []Segment
	for _, d := range []time.Duration{dot, dot, dot, dash, dash, dash, dot, dot, dot} {
		segs = append(segs, Segment{Brightness: 100, Duration: d}, Segment{Brightness: 0, Duration: gap})
	}
	return Spec{Kind: KindSequence, Segments: segs, Count: 1}
}

// Attention is a double bright pulse used for non-fatal warnings.
func Attention() Spec {
	return Spec{
		Kind: KindSequence,
		Segments: []Segment{
			{Brightness: 100, Duration: 120 * time.Millisecond},
			{Brightness: 20, Duration: 120 * time.Millisecond},
		},
		Count: 2,
	}
}

// ShutdownSequence is the brisk strobe confirming a user shutdown.
func ShutdownSequence() Spec {
	return Spec{
		Kind: KindSequence,
		Segments: []Segment{
			{Brightness: 100, Duration: 100 * time.Millisecond},
			{Brightness: 0, Duration: 100 * time.Millisecond},
		},
		Count: 10,
	}
}

// PowerSaveSequence is the gentle wind-down used for the inactivity
// sleep, deliberately distinct from the user-triggered shutdown.
func PowerSaveSequence() Spec {
	return Spec{
		Kind: KindSequence,
		Segments: []Segment{
			{Brightness: 60, Duration: 500 * time.Millisecond},
			{Brightness: 30, Duration: 500 * time.Millisecond},
			{Brightness: 10, Duration: 500 * time.Millisecond},
			{Brightness: 0, Duration: 500 * time.Millisecond},
		},
		Count: 1,
	}
}

// BatteryWarning is three urgent short flashes.
func BatteryWarning() Spec {
	return Spec{
		Kind: KindSequence,
		Segments: []Segment{
			{Brightness: 100, Duration: 80 * time.Millisecond},
			{Brightness: 0, Duration: 160 * time.Millisecond},
		},
		Count: 3,
	}
}
