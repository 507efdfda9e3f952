// Package catalog provides the story catalog: one JSON file per card,
// card_<uid>.json, owned by the content pipeline and read-only here.
package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/errcode"
	"github.com/dimarconicola/storiellai/types"
)

// Catalog resolves a token uid into the card's stories.
type Catalog interface {
	// Lookup returns the stories of a card. A missing card file yields
	// errcode.UnknownCard; an unreadable or corrupt one yields
	// errcode.CardReadError. A present card may have zero stories.
	Lookup(uid string) ([]types.StoryRecord, error)
}

// cardFile is the on-disk shape of a card.
type cardFile struct {
	UID     string              `json:"uid,omitempty"`
	Stories []types.StoryRecord `json:"stories"`
}

const (
	cacheTTL     = 5 * time.Minute
	cachePurge   = 10 * time.Minute
	cardFileFmt  = "card_%s.json"
	cardFileGlob = "card_*.json"
)

// FileCatalog reads per-card JSON files from a directory, caching
// parsed results so repeated taps of the same card avoid disk reads.
type FileCatalog struct {
	dir    string
	cache  *gocache.Cache
	logger *zap.SugaredLogger
}

func NewFileCatalog(logger *zap.SugaredLogger, dir string) *FileCatalog {
	return &FileCatalog{
		dir:    dir,
		cache:  gocache.New(cacheTTL, cachePurge),
		logger: logger.Named("catalog"),
	}
}

func (fc *FileCatalog) path(uid string) string {
	return filepath.Join(fc.dir, "card_"+uid+".json")
}

// Lookup implements Catalog.
func (fc *FileCatalog) Lookup(uid string) ([]types.StoryRecord, error) {
	if cached, ok := fc.cache.Get(uid); ok {
		return cached.([]types.StoryRecord), nil
	}

	path := fc.path(uid)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errcode.E{C: errcode.UnknownCard, Op: "lookup", Msg: uid}
		}
		return nil, &errcode.E{C: errcode.CardReadError, Op: "lookup", Msg: path, Err: err}
	}

	var card cardFile
	if err := json.Unmarshal(raw, &card); err != nil {
		fc.logger.Warnw("Corrupt card file", "path", path, "error", err)
		return nil, &errcode.E{C: errcode.CardReadError, Op: "parse", Msg: path, Err: err}
	}

	fc.cache.Set(uid, card.Stories, gocache.DefaultExpiration)
	return card.Stories, nil
}

// Invalidate drops a card from the parse cache, for tests and for the
// config-reload path.
func (fc *FileCatalog) Invalidate(uid string) {
	fc.cache.Delete(uid)
}

// VerifyReport summarizes the startup verification pass.
type VerifyReport struct {
	Cards            int
	Stories          int
	CorruptCards     []string
	MissingNarration []string
}

// Verify scans every card file and checks that each story's narration
// ref resolves under audioRoot. Non-fatal: problems are logged and
// reported, the appliance still starts.
func (fc *FileCatalog) Verify(audioRoot string) VerifyReport {
	var rep VerifyReport

	paths, err := filepath.Glob(filepath.Join(fc.dir, cardFileGlob))
	if err != nil {
		fc.logger.Warnw("Catalog verification failed to scan", "dir", fc.dir, "error", err)
		return rep
	}

	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			rep.CorruptCards = append(rep.CorruptCards, p)
			continue
		}
		var card cardFile
		if err := json.Unmarshal(raw, &card); err != nil {
			rep.CorruptCards = append(rep.CorruptCards, p)
			continue
		}
		rep.Cards++
		for _, s := range card.Stories {
			rep.Stories++
			ref := filepath.Join(audioRoot, s.AudioRef)
			if _, err := os.Stat(ref); err != nil {
				rep.MissingNarration = append(rep.MissingNarration, s.Title+" ("+ref+")")
			}
		}
	}

	if len(rep.CorruptCards) > 0 {
		fc.logger.Warnw("Corrupt card files", "count", len(rep.CorruptCards), "files", rep.CorruptCards)
	}
	if len(rep.MissingNarration) > 0 {
		fc.logger.Warnw("Missing narration audio", "count", len(rep.MissingNarration))
	} else {
		fc.logger.Infow("Catalog verified", "cards", rep.Cards, "stories", rep.Stories)
	}
	return rep
}
