package selector

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/config"
	"github.com/dimarconicola/storiellai/errcode"
	"github.com/dimarconicola/storiellai/types"
)

type stubCatalog struct {
	cards map[string][]types.StoryRecord
}

func (c *stubCatalog) Lookup(uid string) ([]types.StoryRecord, error) {
	stories, ok := c.cards[uid]
	if !ok {
		return nil, &errcode.E{C: errcode.UnknownCard, Op: "stub.lookup"}
	}
	return stories, nil
}

var mixedCard = []types.StoryRecord{
	{ID: "s1", Tone: types.ToneCalmo},
	{ID: "s2", Tone: types.ToneAvventuroso},
	{ID: "s3", Tone: types.ToneDivertente},
	{ID: "s4", Tone: "calm"},
}

func newTestSelector(cards map[string][]types.StoryRecord, at time.Time) *Selector {
	s := New(
		&stubCatalog{cards: cards},
		config.CalmConfig{StartMinute: 20*60 + 30, EndMinute: 6*60 + 30},
		zap.NewNop().Sugar(),
	)
	s.rng = rand.New(rand.NewSource(7))
	s.now = func() time.Time { return at }
	return s
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 1, hour, minute, 0, 0, time.Local)
}

func TestNightPicksOnlyCalm(t *testing.T) {
	s := newTestSelector(map[string][]types.StoryRecord{"abc": mixedCard}, at(21, 0))
	for i := 0; i < 50; i++ {
		st, err := s.Select("abc", "")
		require.NoError(t, err)
		assert.True(t, types.CalmTone(st.Tone), "picked %q at night", st.ID)
	}
}

func TestDayExcludesCalm(t *testing.T) {
	s := newTestSelector(map[string][]types.StoryRecord{"abc": mixedCard}, at(12, 0))
	for i := 0; i < 50; i++ {
		st, err := s.Select("abc", "")
		require.NoError(t, err)
		assert.False(t, types.CalmTone(st.Tone), "picked %q by day", st.ID)
	}
}

func TestWindowWrapsMidnight(t *testing.T) {
	cases := []struct {
		hour, minute int
		calm         bool
	}{
		{20, 29, false},
		{20, 30, true},
		{23, 59, true},
		{0, 0, true},
		{6, 29, true},
		{6, 30, false},
		{12, 0, false},
	}
	for _, c := range cases {
		got := inCalmWindow(c.hour*60+c.minute, 20*60+30, 6*60+30)
		assert.Equal(t, c.calm, got, "%02d:%02d", c.hour, c.minute)
	}
}

func TestFilterFallsBackWhenEmpty(t *testing.T) {
	onlyLively := []types.StoryRecord{
		{ID: "s1", Tone: types.ToneAvventuroso},
		{ID: "s2", Tone: types.ToneMisterioso},
	}
	s := newTestSelector(map[string][]types.StoryRecord{"abc": onlyLively}, at(22, 0))
	st, err := s.Select("abc", "")
	require.NoError(t, err)
	assert.NotEmpty(t, st.ID, "night pick still succeeds with no calm stories")
}

func TestNoConsecutiveRepeat(t *testing.T) {
	s := newTestSelector(map[string][]types.StoryRecord{"abc": mixedCard}, at(12, 0))
	prev := ""
	for i := 0; i < 30; i++ {
		st, err := s.Select("abc", prev)
		require.NoError(t, err)
		if prev != "" {
			assert.NotEqual(t, prev, st.ID, "iteration %d repeated", i)
		}
		prev = st.ID
	}
}

func TestSingleStoryMayRepeat(t *testing.T) {
	one := []types.StoryRecord{{ID: "only", Tone: types.ToneTenero}}
	s := newTestSelector(map[string][]types.StoryRecord{"abc": one}, at(12, 0))
	st, err := s.Select("abc", "only")
	require.NoError(t, err)
	assert.Equal(t, "only", st.ID)
}

func TestEmptyCard(t *testing.T) {
	s := newTestSelector(map[string][]types.StoryRecord{"abc": {}}, at(12, 0))
	_, err := s.Select("abc", "")
	assert.Equal(t, errcode.EmptyCard, errcode.Of(err))
}

func TestUnknownCardPropagates(t *testing.T) {
	s := newTestSelector(map[string][]types.StoryRecord{}, at(12, 0))
	_, err := s.Select("nope", "")
	var e *errcode.E
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errcode.UnknownCard, e.C)
}
