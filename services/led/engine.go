package led

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/types"
)

// Engine drives the LED from its own goroutine so a stalled pattern
// never blocks the rest of the device, and a busy device never stalls
// the LED. Callers swap patterns with SetPattern; the tick loop does
// everything else.
type Engine struct {
	hw     types.Hardware
	logger *zap.SugaredLogger
	tick   time.Duration

	now func() time.Time

	mu        sync.Mutex
	active    Spec
	startedAt time.Time
	gen       uint64
}

func NewEngine(hw types.Hardware, logger *zap.SugaredLogger, tickHz int) *Engine {
	if tickHz <= 0 {
		tickHz = 50
	}
	return &Engine{
		hw:     hw,
		logger: logger.Named("led"),
		tick:   time.Second / time.Duration(tickHz),
		now:    time.Now,
		active: Spec{Kind: KindOff},
	}
}

// SetPattern replaces the active pattern and resets its phase to zero.
// The previous pattern is discarded mid-cycle; its callback, if any,
// does not fire.
func (e *Engine) SetPattern(s Spec) {
	e.mu.Lock()
	e.active = s
	e.startedAt = e.now()
	e.gen++
	e.mu.Unlock()
	e.logger.Debugw("Pattern set", "kind", s.Kind)
}

// Start runs the render loop until ctx is cancelled, then darkens the
// LED on the way out.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.hw.SetDimmableOutput(0)
				return
			case <-ticker.C:
				e.step(e.now())
			}
		}
	}()
}

// step renders one frame. Exposed to tests via synthetic timestamps.
func (e *Engine) step(now time.Time) {
	e.mu.Lock()
	spec := e.active
	gen := e.gen
	elapsed := now.Sub(e.startedAt)
	e.mu.Unlock()

	brightness, done := Render(spec, elapsed)
	if done {
		if next, ok := e.complete(gen, now); ok {
			spec = next
			brightness, _ = Render(spec, 0)
		}
	}

	if !e.hw.SupportsDimming() && spec.Discrete() {
		brightness = quantize(brightness)
	}
	e.hw.SetDimmableOutput(brightness)
}

// complete fires the finished pattern's callback at most once and
// advances to the chained pattern, or darkness when there is none.
// The generation check drops completions that raced a SetPattern.
func (e *Engine) complete(gen uint64, now time.Time) (Spec, bool) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return Spec{}, false
	}
	cb := e.active.Callback
	if e.active.Next != nil {
		e.active = *e.active.Next
	} else {
		e.active = Spec{Kind: KindOff}
	}
	e.startedAt = now
	e.gen++
	next := e.active
	e.mu.Unlock()

	if cb != nil {
		cb()
	}
	return next, true
}
