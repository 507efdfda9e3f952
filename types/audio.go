package types

import "time"

// AudioHandle is a loaded, playable audio layer. Handles are owned by
// the playback controller; nothing else touches them.
type AudioHandle interface {
	// Play starts (or restarts) playback. loop makes the layer repeat
	// until stopped, used for the background music bed.
	Play(loop bool) error
	Pause()
	// Resume continues from exactly the paused position, never rewinds.
	Resume()
	Stop()
	// SetGain applies a multiplicative gain 0..1. Valid in any state,
	// including paused.
	SetGain(g float64)
	// Position is the current playback offset.
	Position() time.Duration
	// Done is closed when a non-looping layer completes on its own.
	// It is never closed by Stop.
	Done() <-chan struct{}
}

// AudioBackend loads audio by reference. Decoding and mixing internals
// live behind this boundary.
type AudioBackend interface {
	Load(ref string) (AudioHandle, error)
}
