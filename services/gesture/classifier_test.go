package gesture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dimarconicola/storiellai/types"
)

var testParams = Params{
	DebounceFloor:   20 * time.Millisecond,
	LongPress:       1500 * time.Millisecond,
	DoubleTapWindow: 400 * time.Millisecond,
	Cooldown:        2 * time.Second,
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type emitted struct {
	g  types.Gesture
	at time.Time
}

// run feeds edges and then advances time in pollInterval steps until
// the deadline, collecting everything the classifier emits.
func run(c *classifier, edges []types.Edge, until time.Duration) []emitted {
	var out []emitted
	i := 0
	for now := t0; !now.After(t0.Add(until)); now = now.Add(5 * time.Millisecond) {
		for i < len(edges) && !edges[i].At.After(now) {
			if g, ok := c.Edge(edges[i]); ok {
				out = append(out, emitted{g, edges[i].At})
			}
			i++
		}
		if g, ok := c.Tick(now); ok {
			out = append(out, emitted{g, now})
		}
	}
	return out
}

func pair(at time.Time, held time.Duration) []types.Edge {
	return []types.Edge{
		{Kind: types.EdgeDown, At: at},
		{Kind: types.EdgeUp, At: at.Add(held)},
	}
}

func TestSingleTap(t *testing.T) {
	c := newClassifier(testParams)
	got := run(c, pair(t0, 100*time.Millisecond), 2*time.Second)

	require.Len(t, got, 1)
	assert.Equal(t, types.GestureTap, got[0].g)
	// Tap settles only after the double-tap window expires.
	assert.False(t, got[0].at.Before(t0.Add(100*time.Millisecond).Add(testParams.DoubleTapWindow)))
}

func TestDoubleTap(t *testing.T) {
	c := newClassifier(testParams)
	edges := pair(t0, 100*time.Millisecond)
	edges = append(edges, pair(t0.Add(300*time.Millisecond), 100*time.Millisecond)...)

	got := run(c, edges, 2*time.Second)

	require.Len(t, got, 1, "double tap must fully suppress the intermediate tap")
	assert.Equal(t, types.GestureDoubleTap, got[0].g)
}

func TestTwoSlowTapsAreTwoTaps(t *testing.T) {
	c := newClassifier(testParams)
	edges := pair(t0, 100*time.Millisecond)
	edges = append(edges, pair(t0.Add(800*time.Millisecond), 100*time.Millisecond)...)

	got := run(c, edges, 3*time.Second)

	require.Len(t, got, 2)
	assert.Equal(t, types.GestureTap, got[0].g)
	assert.Equal(t, types.GestureTap, got[1].g)
}

func TestLongPress(t *testing.T) {
	c := newClassifier(testParams)
	got := run(c, pair(t0, 4*time.Second), 6*time.Second)

	require.Len(t, got, 1, "holding past the threshold yields exactly one gesture")
	assert.Equal(t, types.GestureLongPress, got[0].g)
	// Fires at the threshold, not at release.
	assert.True(t, got[0].at.Before(t0.Add(2*time.Second)))
}

func TestLongPressCooldownSwallowsRelease(t *testing.T) {
	c := newClassifier(testParams)
	// Held for 1.6s: LongPress fires at 1.5s, the release lands inside
	// the cooldown and must not produce a tap candidate.
	got := run(c, pair(t0, 1600*time.Millisecond), 5*time.Second)

	require.Len(t, got, 1)
	assert.Equal(t, types.GestureLongPress, got[0].g)
}

func TestTapAfterCooldown(t *testing.T) {
	c := newClassifier(testParams)
	edges := pair(t0, 2*time.Second) // long press
	edges = append(edges, pair(t0.Add(5*time.Second), 100*time.Millisecond)...)

	got := run(c, edges, 7*time.Second)

	require.Len(t, got, 2)
	assert.Equal(t, types.GestureLongPress, got[0].g)
	assert.Equal(t, types.GestureTap, got[1].g)
}

func TestGlitchFiltered(t *testing.T) {
	c := newClassifier(testParams)
	// 5ms pulse: below the debounce floor, no gesture at all.
	got := run(c, pair(t0, 5*time.Millisecond), 2*time.Second)
	assert.Empty(t, got)
}

func TestReleaseBounceIgnored(t *testing.T) {
	c := newClassifier(testParams)
	edges := pair(t0, 100*time.Millisecond)
	// Contact bounce 5ms after release: must not count as second press.
	edges = append(edges, pair(t0.Add(105*time.Millisecond), 50*time.Millisecond)...)

	got := run(c, edges, 2*time.Second)

	require.Len(t, got, 1)
	assert.Equal(t, types.GestureTap, got[0].g)
}

func TestSecondPressHeldBecomesLongPress(t *testing.T) {
	c := newClassifier(testParams)
	edges := pair(t0, 100*time.Millisecond)
	edges = append(edges, types.Edge{Kind: types.EdgeDown, At: t0.Add(300 * time.Millisecond)})
	// Never released: long press from the second press, no tap, no double tap.
	got := run(c, edges, 4*time.Second)

	require.Len(t, got, 1)
	assert.Equal(t, types.GestureLongPress, got[0].g)
}
