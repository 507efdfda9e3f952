package led

import (
	"math"
	"time"

	"github.com/dimarconicola/storiellai/x/mathx"
)

// Render evaluates a pattern at a given phase offset. It is pure:
// brightness depends only on the spec and the elapsed time since the
// pattern became active. done reports that a finite pattern has run
// its course; infinite patterns never complete.
func Render(s Spec, elapsed time.Duration) (brightness int, done bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	switch s.Kind {
	case KindOff:
		return 0, false
	case KindSolid:
		return mathx.Clamp(s.Level, 0, 100), false
	case KindBlink:
		if s.Period <= 0 {
			return 0, false
		}
		phase := float64(elapsed%s.Period) / float64(s.Period)
		if phase < s.Duty {
			return mathx.Clamp(s.Level, 0, 100), false
		}
		return 0, false
	case KindBreathing:
		if s.Period <= 0 {
			return s.Floor, false
		}
		phase := float64(elapsed%s.Period) / float64(s.Period)
		swell := 0.5 * (1 - math.Cos(2*math.Pi*phase))
		return mathx.Clamp(int(mathx.Lerp(float64(s.Floor), float64(s.Level), swell)), 0, 100), false
	case KindPulse:
		if s.Period <= 0 {
			return 0, false
		}
		phase := float64(elapsed%s.Period) / float64(s.Period)
		return mathx.Clamp(int(float64(s.Level)*math.Sin(math.Pi*phase)), 0, 100), false
	case KindFadeOut:
		if s.Total <= 0 || elapsed >= s.Total {
			return 0, true
		}
		frac := 1 - float64(elapsed)/float64(s.Total)
		return mathx.Clamp(int(float64(s.Level)*frac), 0, 100), false
	case KindCountdown:
		if s.Total <= 0 || elapsed >= s.Total {
			return 0, true
		}
		steps := 10
		remaining := steps - int(float64(elapsed)/float64(s.Total)*float64(steps))
		return mathx.Clamp(s.Level*remaining/steps, 0, 100), false
	case KindRainbow:
		if s.Period <= 0 {
			return 0, false
		}
		phase := float64(elapsed%s.Period) / float64(s.Period)
		tri := 1 - math.Abs(2*phase-1)
		return mathx.Clamp(int(float64(s.Level)*tri), 0, 100), false
	case KindSequence:
		return renderSequence(s, elapsed)
	}
	return 0, false
}

func renderSequence(s Spec, elapsed time.Duration) (int, bool) {
	var cycle time.Duration
	for _, seg := range s.Segments {
		cycle += seg.Duration
	}
	if cycle <= 0 || len(s.Segments) == 0 {
		return 0, true
	}
	if s.Count > 0 && elapsed >= cycle*time.Duration(s.Count) {
		return 0, true
	}
	offset := elapsed % cycle
	for _, seg := range s.Segments {
		if offset < seg.Duration {
			return mathx.Clamp(seg.Brightness, 0, 100), false
		}
		offset -= seg.Duration
	}
	return 0, false
}

// quantize collapses a brightness to full on or off for outputs
// without PWM dimming.
func quantize(brightness int) int {
	if brightness >= 50 {
		return 100
	}
	return 0
}
