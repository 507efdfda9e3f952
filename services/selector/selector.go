// Package selector resolves a token UID and the time of day into one
// story. Night-time picks lean calm, daytime picks lean lively, and
// consecutive picks from the same card avoid repeating themselves.
package selector

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/catalog"
	"github.com/dimarconicola/storiellai/config"
	"github.com/dimarconicola/storiellai/errcode"
	"github.com/dimarconicola/storiellai/types"
)

type Selector struct {
	catalog catalog.Catalog
	calm    config.CalmConfig
	logger  *zap.SugaredLogger

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func New(cat catalog.Catalog, calm config.CalmConfig, logger *zap.SugaredLogger) *Selector {
	return &Selector{
		catalog: cat,
		calm:    calm,
		logger:  logger.Named("selector"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}
}

// Select picks a story for the card, honoring the calm window and
// skipping excludeID when the pool allows it. excludeID is the story
// playing (or just finished) so re-selection does not hand back the
// same one.
func (s *Selector) Select(uid, excludeID string) (types.StoryRecord, error) {
	stories, err := s.catalog.Lookup(uid)
	if err != nil {
		return types.StoryRecord{}, err
	}
	if len(stories) == 0 {
		return types.StoryRecord{}, &errcode.E{C: errcode.EmptyCard, Op: "selector.select", Msg: "card has no stories"}
	}

	calm := inCalmWindow(minutesOfDay(s.now()), s.calm.StartMinute, s.calm.EndMinute)
	pool := filterByTone(stories, calm)

	pool = excludePrevious(pool, excludeID)

	s.mu.Lock()
	pick := pool[s.rng.Intn(len(pool))]
	s.mu.Unlock()

	s.logger.Debugw("Story selected",
		"uid", uid,
		"story", pick.ID,
		"tone", pick.Tone,
		"calmWindow", calm)
	return pick, nil
}

// filterByTone narrows the pool to calm stories at night and non-calm
// stories by day. A filter that would empty the pool is skipped.
func filterByTone(stories []types.StoryRecord, calm bool) []types.StoryRecord {
	var kept []types.StoryRecord
	for _, st := range stories {
		if types.CalmTone(st.Tone) == calm {
			kept = append(kept, st)
		}
	}
	if len(kept) == 0 {
		return stories
	}
	return kept
}

// excludePrevious drops the previous pick, but only when at least one
// alternative remains.
func excludePrevious(pool []types.StoryRecord, excludeID string) []types.StoryRecord {
	if excludeID == "" || len(pool) <= 1 {
		return pool
	}
	var kept []types.StoryRecord
	for _, st := range pool {
		if st.ID != excludeID {
			kept = append(kept, st)
		}
	}
	if len(kept) == 0 {
		return pool
	}
	return kept
}

func minutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// inCalmWindow reports whether m falls in [start, end), wrapping
// midnight when start > end.
func inCalmWindow(m, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}
