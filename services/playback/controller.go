// Package playback owns the two audio layers of a story session: the
// looping background bed and the one-shot narration. The core issues
// synchronous commands; loads and completions report back on the bus.
package playback

import (
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/bus"
	"github.com/dimarconicola/storiellai/config"
	"github.com/dimarconicola/storiellai/types"
	"github.com/dimarconicola/storiellai/x/mathx"
)

const fadeStep = 50 * time.Millisecond

// Controller is safe for concurrent use. One session at most is live;
// a new LoadAndPlay replaces whatever was playing.
type Controller struct {
	backend types.AudioBackend
	conn    *bus.Connection
	cfg     config.AudioConfig
	vol     config.VolumeConfig
	logger  *zap.SugaredLogger

	mu        sync.Mutex
	bgm       types.AudioHandle
	narration types.AudioHandle
	storyID   string
	bgmBase   float64 // intro/duck/outro level before volume
	volume    float64
	session   uint64 // invalidates in-flight loads and watchers
}

func NewController(backend types.AudioBackend, conn *bus.Connection, cfg config.AudioConfig, vol config.VolumeConfig, logger *zap.SugaredLogger) *Controller {
	return &Controller{
		backend: backend,
		conn:    conn,
		cfg:     cfg,
		vol:     vol,
		logger:  logger.Named("playback"),
		volume:  vol.Max,
	}
}

// LoadAndPlay loads both layers and starts them, asynchronously. The
// outcome arrives on the bus as PlaybackStarted or AudioLoadFailed
// carrying gen, so the caller can discard results it no longer wants.
// Any live session is stopped first.
func (c *Controller) LoadAndPlay(story types.StoryRecord, gen uint64) {
	// Claim the session before the load starts, so a stop or
	// replacement that lands while files are still being read
	// invalidates this call too.
	c.mu.Lock()
	c.stopLocked()
	session := c.session
	c.mu.Unlock()

	go func() {
		bgm := c.loadBed(story.Tone)

		narration, err := c.backend.Load(filepath.Join(c.cfg.StoriesDir, story.AudioRef))
		if err != nil {
			c.logger.Warnw("Narration load failed", "story", story.ID, "error", err)
			if bgm != nil {
				bgm.Stop()
			}
			c.conn.Emit(bus.TopicEvents, types.AudioLoadFailed{Gen: gen, StoryID: story.ID})
			return
		}

		c.mu.Lock()
		if c.session != session {
			c.mu.Unlock()
			if bgm != nil {
				bgm.Stop()
			}
			narration.Stop()
			return
		}
		c.bgm = bgm
		c.narration = narration
		c.storyID = story.ID

		if bgm != nil {
			c.bgmBase = c.cfg.BGMIntroGain
			bgm.SetGain(c.bgmBase * c.volume)
			if err := bgm.Play(true); err != nil {
				c.logger.Warnw("Background bed failed to start", "story", story.ID, "error", err)
				c.bgm = nil
			}
		}
		narration.SetGain(c.cfg.NarrationGain * c.volume)
		if err := narration.Play(false); err != nil {
			c.stopLocked()
			c.mu.Unlock()
			c.conn.Emit(bus.TopicEvents, types.AudioLoadFailed{Gen: gen, StoryID: story.ID})
			return
		}
		if c.bgm != nil {
			c.bgmBase = c.cfg.BGMDuckGain
			c.bgm.SetGain(c.bgmBase * c.volume)
		}
		c.mu.Unlock()

		c.conn.Emit(bus.TopicEvents, types.PlaybackStarted{Gen: gen, StoryID: story.ID})
		go c.watchNarration(narration, story.ID, session)
	}()
}

// loadBed resolves the tone's looping bed, falling back to the calm
// bed for unknown tones. A missing bed is not fatal: the story plays
// dry.
func (c *Controller) loadBed(tone string) types.AudioHandle {
	h, err := c.backend.Load(filepath.Join(c.cfg.BGMDir, tone+"_loop.mp3"))
	if err == nil {
		return h
	}
	h, err = c.backend.Load(filepath.Join(c.cfg.BGMDir, types.ToneCalmo+"_loop.mp3"))
	if err == nil {
		c.logger.Infow("Background bed missing, using calm bed", "tone", tone)
		return h
	}
	c.logger.Warnw("No background bed available", "tone", tone, "error", err)
	return nil
}

// watchNarration waits for the one-shot layer to complete on its own,
// then announces it and fades the bed out. Sessions that were stopped
// or replaced never report.
func (c *Controller) watchNarration(narration types.AudioHandle, storyID string, session uint64) {
	<-narration.Done()

	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		return
	}
	bgm := c.bgm
	c.narration = nil
	c.mu.Unlock()

	c.conn.Emit(bus.TopicEvents, types.NarrationFinished{StoryID: storyID})

	if bgm != nil {
		c.mu.Lock()
		c.bgmBase = c.cfg.BGMOutroGain
		start := c.bgmBase * c.volume
		bgm.SetGain(start)
		c.mu.Unlock()

		c.fade(bgm, start, c.cfg.Fade)

		c.mu.Lock()
		if c.session == session {
			bgm.Stop()
			c.bgm = nil
			c.storyID = ""
		}
		c.mu.Unlock()
	}
}

// fade ramps a layer's gain from start to silence over d.
func (c *Controller) fade(h types.AudioHandle, start float64, d time.Duration) {
	if d <= 0 {
		h.SetGain(0)
		return
	}
	steps := int(d / fadeStep)
	if steps < 1 {
		steps = 1
	}
	for i := 1; i <= steps; i++ {
		time.Sleep(fadeStep)
		h.SetGain(start * (1 - float64(i)/float64(steps)))
	}
}

// Pause freezes both layers at their current position.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.narration != nil {
		c.narration.Pause()
	}
	if c.bgm != nil {
		c.bgm.Pause()
	}
}

// Resume continues both layers from exactly where Pause left them.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.narration != nil {
		c.narration.Resume()
	}
	if c.bgm != nil {
		c.bgm.Resume()
	}
}

// StopImmediate halts both layers without fade and forgets the
// session. Used when a new token interrupts playback.
func (c *Controller) StopImmediate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	c.session++
	if c.narration != nil {
		c.narration.Stop()
		c.narration = nil
	}
	if c.bgm != nil {
		c.bgm.Stop()
		c.bgm = nil
	}
	c.storyID = ""
}

// Shutdown fades whatever is live over the grace period, then stops
// it. Blocks until silent.
func (c *Controller) Shutdown(grace time.Duration) {
	c.mu.Lock()
	narration := c.narration
	bgm := c.bgm
	narrGain := c.cfg.NarrationGain * c.volume
	bgmGain := c.bgmBase * c.volume
	c.mu.Unlock()

	var wg sync.WaitGroup
	if narration != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.fade(narration, narrGain, grace)
		}()
	}
	if bgm != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.fade(bgm, bgmGain, grace)
		}()
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// SetVolume applies a normalized 0..1 reading as a multiplicative
// gain on both layers, clamped to the software floor and ceiling.
// Valid in any state, paused included.
func (c *Controller) SetVolume(v float64) {
	v = mathx.Clamp(v, c.vol.Min, c.vol.Max)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = v
	if c.narration != nil {
		c.narration.SetGain(c.cfg.NarrationGain * v)
	}
	if c.bgm != nil {
		c.bgm.SetGain(c.bgmBase * v)
	}
}

// Volume returns the current clamped volume gain.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}
