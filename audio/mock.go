// Package audio carries the mock audio backend used by tests and the
// simulator. Decoding and mixing live behind types.AudioBackend on the
// real appliance.
package audio

import (
	"sync"
	"time"

	"github.com/dimarconicola/storiellai/errcode"
	"github.com/dimarconicola/storiellai/types"
)

// MockBackend tracks loads and hands out clock-driven handles.
type MockBackend struct {
	mu       sync.Mutex
	failRefs map[string]bool
	handles  []*MockHandle
	autoLen  time.Duration // >0: non-looping layers self-complete
}

func NewMockBackend() *MockBackend {
	return &MockBackend{failRefs: make(map[string]bool)}
}

// FailRef makes loads of ref fail with AudioLoadError.
func (b *MockBackend) FailRef(ref string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failRefs[ref] = true
}

// AutoFinishAfter makes every subsequently loaded one-shot layer
// complete by itself after d of play time. Used by the simulator.
func (b *MockBackend) AutoFinishAfter(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.autoLen = d
}

// Handles returns every handle loaded so far, in load order.
func (b *MockBackend) Handles() []*MockHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*MockHandle, len(b.handles))
	copy(out, b.handles)
	return out
}

// HandleFor returns the most recently loaded handle for ref.
func (b *MockBackend) HandleFor(ref string) *MockHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.handles) - 1; i >= 0; i-- {
		if b.handles[i].ref == ref {
			return b.handles[i]
		}
	}
	return nil
}

func (b *MockBackend) Load(ref string) (types.AudioHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failRefs[ref] {
		return nil, &errcode.E{C: errcode.AudioLoadError, Op: "load", Msg: ref}
	}
	h := &MockHandle{ref: ref, done: make(chan struct{}), autoLen: b.autoLen}
	b.handles = append(b.handles, h)
	return h, nil
}

// MockHandle is a clock-driven types.AudioHandle.
type MockHandle struct {
	mu sync.Mutex

	ref     string
	looping bool
	playing bool
	paused  bool
	stopped bool
	gain    float64

	startedAt   time.Time
	accumulated time.Duration

	autoLen time.Duration
	timer   *time.Timer

	done     chan struct{}
	doneOnce sync.Once
}

func (h *MockHandle) Ref() string { return h.ref }

func (h *MockHandle) Play(loop bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return &errcode.E{C: errcode.AudioLoadError, Op: "play", Msg: "handle stopped"}
	}
	h.looping = loop
	h.playing = true
	h.paused = false
	h.startedAt = time.Now()
	if !loop && h.autoLen > 0 {
		h.timer = time.AfterFunc(h.autoLen, h.Complete)
	}
	return nil
}

func (h *MockHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.playing || h.paused {
		return
	}
	h.accumulated += time.Since(h.startedAt)
	h.paused = true
	if h.timer != nil {
		h.timer.Stop()
	}
}

func (h *MockHandle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.playing || !h.paused {
		return
	}
	h.paused = false
	h.startedAt = time.Now()
	if !h.looping && h.autoLen > 0 {
		remaining := h.autoLen - h.accumulated
		if remaining < 0 {
			remaining = 0
		}
		h.timer = time.AfterFunc(remaining, h.Complete)
	}
}

func (h *MockHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.playing = false
	h.paused = false
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
	}
}

func (h *MockHandle) SetGain(g float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gain = g
}

func (h *MockHandle) Gain() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gain
}

func (h *MockHandle) Position() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.playing && !h.paused {
		return h.accumulated + time.Since(h.startedAt)
	}
	return h.accumulated
}

func (h *MockHandle) Done() <-chan struct{} { return h.done }

// Complete signals natural end of a one-shot layer. Stop never does.
func (h *MockHandle) Complete() {
	h.doneOnce.Do(func() { close(h.done) })
}

// state accessors for tests

func (h *MockHandle) Playing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.playing && !h.paused
}

func (h *MockHandle) Paused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

func (h *MockHandle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func (h *MockHandle) Looping() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.looping
}
