package playback

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/audio"
	"github.com/dimarconicola/storiellai/bus"
	"github.com/dimarconicola/storiellai/config"
	"github.com/dimarconicola/storiellai/types"
)

var testStory = types.StoryRecord{ID: "s1", AudioRef: "s1.mp3", Tone: types.ToneAvventuroso}

func newTestController(t *testing.T) (*Controller, *audio.MockBackend, <-chan *bus.Message) {
	t.Helper()
	backend := audio.NewMockBackend()
	c, events := newTestControllerWith(t, backend)
	return c, backend, events
}

func newTestControllerWith(t *testing.T, backend types.AudioBackend) (*Controller, <-chan *bus.Message) {
	t.Helper()
	b := bus.NewBus(64)
	c := NewController(
		backend,
		b.NewConnection("playback"),
		config.AudioConfig{
			BGMDir:        "bgm",
			StoriesDir:    "stories",
			NarrationGain: 1.0,
			BGMIntroGain:  0.7,
			BGMDuckGain:   0.10,
			BGMOutroGain:  0.2,
			Fade:          100 * time.Millisecond,
			ShutdownFade:  100 * time.Millisecond,
		},
		config.VolumeConfig{Channel: 0, SampleInterval: 200 * time.Millisecond, Min: 0.1, Max: 0.9},
		zap.NewNop().Sugar(),
	)
	listener := b.NewConnection("test")
	sub := listener.Subscribe(bus.TopicEvents)
	t.Cleanup(listener.Disconnect)
	return c, sub.Channel()
}

// gatedBackend holds every Load until the gate opens, standing in for
// slow storage.
type gatedBackend struct {
	*audio.MockBackend
	gate chan struct{}
}

func (g *gatedBackend) Load(ref string) (types.AudioHandle, error) {
	<-g.gate
	return g.MockBackend.Load(ref)
}

// waitEvent drains the channel until a payload of type T arrives.
func waitEvent[T any](t *testing.T, ch <-chan *bus.Message) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-ch:
			if v, ok := m.Payload.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// assertNoEvent fails if a payload of type T shows up within the window.
func assertNoEvent[T any](t *testing.T, ch <-chan *bus.Message, window time.Duration) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case m := <-ch:
			if _, ok := m.Payload.(T); ok {
				t.Fatalf("unexpected %T", m.Payload)
			}
		case <-deadline:
			return
		}
	}
}

func TestLoadAndPlayStartsBothLayers(t *testing.T) {
	c, backend, events := newTestController(t)

	c.LoadAndPlay(testStory, 1)
	started := waitEvent[types.PlaybackStarted](t, events)
	assert.Equal(t, uint64(1), started.Gen)
	assert.Equal(t, "s1", started.StoryID)

	narr := backend.HandleFor(filepath.Join("stories", "s1.mp3"))
	require.NotNil(t, narr)
	assert.True(t, narr.Playing())
	assert.False(t, narr.Looping())
	assert.InDelta(t, 0.9, narr.Gain(), 1e-9) // narration gain x volume ceiling

	bed := backend.HandleFor(filepath.Join("bgm", "avventuroso_loop.mp3"))
	require.NotNil(t, bed)
	assert.True(t, bed.Playing())
	assert.True(t, bed.Looping())
	assert.InDelta(t, 0.09, bed.Gain(), 1e-9, "bed ducked under narration")
}

func TestNarrationLoadFailureLeavesNoSession(t *testing.T) {
	c, backend, events := newTestController(t)
	backend.FailRef(filepath.Join("stories", "s1.mp3"))

	c.LoadAndPlay(testStory, 3)
	failed := waitEvent[types.AudioLoadFailed](t, events)
	assert.Equal(t, uint64(3), failed.Gen)
	assert.Equal(t, "s1", failed.StoryID)

	for _, h := range backend.Handles() {
		assert.False(t, h.Playing())
	}
}

func TestBedFallsBackToCalm(t *testing.T) {
	c, backend, events := newTestController(t)
	backend.FailRef(filepath.Join("bgm", "avventuroso_loop.mp3"))

	c.LoadAndPlay(testStory, 1)
	waitEvent[types.PlaybackStarted](t, events)

	bed := backend.HandleFor(filepath.Join("bgm", "calmo_loop.mp3"))
	require.NotNil(t, bed)
	assert.True(t, bed.Playing())
}

func TestMissingBedIsNotFatal(t *testing.T) {
	c, backend, events := newTestController(t)
	backend.FailRef(filepath.Join("bgm", "avventuroso_loop.mp3"))
	backend.FailRef(filepath.Join("bgm", "calmo_loop.mp3"))

	c.LoadAndPlay(testStory, 1)
	waitEvent[types.PlaybackStarted](t, events)

	narr := backend.HandleFor(filepath.Join("stories", "s1.mp3"))
	require.NotNil(t, narr)
	assert.True(t, narr.Playing())
}

func TestPauseResumeHoldsPosition(t *testing.T) {
	c, backend, events := newTestController(t)

	c.LoadAndPlay(testStory, 1)
	waitEvent[types.PlaybackStarted](t, events)
	narr := backend.HandleFor(filepath.Join("stories", "s1.mp3"))

	time.Sleep(30 * time.Millisecond)
	c.Pause()
	assert.True(t, narr.Paused())
	pos := narr.Position()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, pos, narr.Position(), "position frozen while paused")

	c.Resume()
	assert.True(t, narr.Playing())
	require.Eventually(t, func() bool { return narr.Position() > pos },
		time.Second, 5*time.Millisecond, "resume continues, never rewinds")
}

func TestNarrationFinishedFadesBed(t *testing.T) {
	c, backend, events := newTestController(t)

	c.LoadAndPlay(testStory, 1)
	waitEvent[types.PlaybackStarted](t, events)
	narr := backend.HandleFor(filepath.Join("stories", "s1.mp3"))
	bed := backend.HandleFor(filepath.Join("bgm", "avventuroso_loop.mp3"))

	narr.Complete()
	fin := waitEvent[types.NarrationFinished](t, events)
	assert.Equal(t, "s1", fin.StoryID)

	require.Eventually(t, func() bool { return bed.Stopped() },
		time.Second, 10*time.Millisecond, "bed fades out after narration")
	assert.InDelta(t, 0, bed.Gain(), 1e-9)
}

func TestStopImmediateIsSilentOnTheBus(t *testing.T) {
	c, backend, events := newTestController(t)

	c.LoadAndPlay(testStory, 1)
	waitEvent[types.PlaybackStarted](t, events)
	narr := backend.HandleFor(filepath.Join("stories", "s1.mp3"))

	c.StopImmediate()
	assert.True(t, narr.Stopped())

	// A stop is not a completion; the watcher must not report one.
	narr.Complete()
	assertNoEvent[types.NarrationFinished](t, events, 150*time.Millisecond)
}

func TestReplacedSessionDoesNotReport(t *testing.T) {
	c, backend, events := newTestController(t)

	c.LoadAndPlay(testStory, 1)
	waitEvent[types.PlaybackStarted](t, events)
	first := backend.HandleFor(filepath.Join("stories", "s1.mp3"))

	second := types.StoryRecord{ID: "s2", AudioRef: "s2.mp3", Tone: types.ToneTenero}
	c.LoadAndPlay(second, 2)
	started := waitEvent[types.PlaybackStarted](t, events)
	assert.Equal(t, "s2", started.StoryID)
	assert.True(t, first.Stopped(), "old session stopped by the new load")

	first.Complete()
	assertNoEvent[types.NarrationFinished](t, events, 150*time.Millisecond)
}

func TestStopDuringLoadDiscardsSession(t *testing.T) {
	backend := &gatedBackend{MockBackend: audio.NewMockBackend(), gate: make(chan struct{})}
	c, events := newTestControllerWith(t, backend)

	c.LoadAndPlay(testStory, 1)
	// The stop lands while the files are still being read.
	c.StopImmediate()
	close(backend.gate)

	assertNoEvent[types.PlaybackStarted](t, events, 150*time.Millisecond)
	for _, h := range backend.Handles() {
		assert.False(t, h.Playing(), "superseded load must stay silent")
	}
}

func TestNewLoadSupersedesOneStillLoading(t *testing.T) {
	backend := &gatedBackend{MockBackend: audio.NewMockBackend(), gate: make(chan struct{})}
	c, events := newTestControllerWith(t, backend)

	c.LoadAndPlay(testStory, 1)
	second := types.StoryRecord{ID: "s2", AudioRef: "s2.mp3", Tone: types.ToneTenero}
	c.LoadAndPlay(second, 2)
	close(backend.gate)

	started := waitEvent[types.PlaybackStarted](t, events)
	assert.Equal(t, uint64(2), started.Gen)
	assert.Equal(t, "s2", started.StoryID)

	require.Eventually(t, func() bool {
		first := backend.HandleFor(filepath.Join("stories", "s1.mp3"))
		return first != nil && !first.Playing()
	}, time.Second, 5*time.Millisecond, "only the second story may play")
	assertNoEvent[types.PlaybackStarted](t, events, 150*time.Millisecond)
}

func TestSetVolumeClampsAndApplies(t *testing.T) {
	c, backend, events := newTestController(t)

	c.LoadAndPlay(testStory, 1)
	waitEvent[types.PlaybackStarted](t, events)
	narr := backend.HandleFor(filepath.Join("stories", "s1.mp3"))
	bed := backend.HandleFor(filepath.Join("bgm", "avventuroso_loop.mp3"))

	c.SetVolume(2.0)
	assert.InDelta(t, 0.9, c.Volume(), 1e-9, "ceiling")

	c.SetVolume(0.0)
	assert.InDelta(t, 0.1, c.Volume(), 1e-9, "floor")
	assert.InDelta(t, 0.1, narr.Gain(), 1e-9)
	assert.InDelta(t, 0.01, bed.Gain(), 1e-9)

	// Volume applies while paused too.
	c.Pause()
	c.SetVolume(0.5)
	assert.InDelta(t, 0.5, narr.Gain(), 1e-9)
}

func TestShutdownFadesToSilence(t *testing.T) {
	c, backend, events := newTestController(t)

	c.LoadAndPlay(testStory, 1)
	waitEvent[types.PlaybackStarted](t, events)
	narr := backend.HandleFor(filepath.Join("stories", "s1.mp3"))
	bed := backend.HandleFor(filepath.Join("bgm", "avventuroso_loop.mp3"))

	c.Shutdown(100 * time.Millisecond)
	assert.True(t, narr.Stopped())
	assert.True(t, bed.Stopped())
	assert.InDelta(t, 0, narr.Gain(), 1e-9)
}
