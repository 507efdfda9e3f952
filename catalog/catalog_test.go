package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dimarconicola/storiellai/errcode"
)

const cardJSON = `{
  "uid": "000005",
  "stories": [
    {"id": "s1", "title": "La tartaruga Lenta", "audio": "audio/000005/s1.mp3", "tone": "calmo", "bedtime_suitable": true},
    {"id": "s2", "title": "Il fiume", "audio": "audio/000005/s2.mp3", "tone": "avventuroso", "bedtime_suitable": false}
  ]
}`

func newTestCatalog(t *testing.T) (*FileCatalog, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "card_000005.json"), []byte(cardJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "card_000009.json"), []byte(`{"stories": []}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "card_BAD.json"), []byte(`{nope`), 0o644))
	return NewFileCatalog(zap.NewNop().Sugar(), dir), dir
}

func TestLookup(t *testing.T) {
	fc, _ := newTestCatalog(t)

	stories, err := fc.Lookup("000005")
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, "s1", stories[0].ID)
	assert.Equal(t, "calmo", stories[0].Tone)
	assert.True(t, stories[0].BedtimeSuitable)
}

func TestLookupUnknownCard(t *testing.T) {
	fc, _ := newTestCatalog(t)

	_, err := fc.Lookup("ffffff")
	require.Error(t, err)
	assert.Equal(t, errcode.UnknownCard, errcode.Of(err))
}

func TestLookupCorruptCard(t *testing.T) {
	fc, _ := newTestCatalog(t)

	_, err := fc.Lookup("BAD")
	require.Error(t, err)
	assert.Equal(t, errcode.CardReadError, errcode.Of(err))
}

func TestLookupEmptyCard(t *testing.T) {
	fc, _ := newTestCatalog(t)

	stories, err := fc.Lookup("000009")
	require.NoError(t, err)
	assert.Empty(t, stories)
}

func TestLookupCaches(t *testing.T) {
	fc, dir := newTestCatalog(t)

	_, err := fc.Lookup("000005")
	require.NoError(t, err)

	// Remove the file: the cached parse still answers.
	require.NoError(t, os.Remove(filepath.Join(dir, "card_000005.json")))
	stories, err := fc.Lookup("000005")
	require.NoError(t, err)
	assert.Len(t, stories, 2)

	// After invalidation the miss surfaces.
	fc.Invalidate("000005")
	_, err = fc.Lookup("000005")
	assert.Equal(t, errcode.UnknownCard, errcode.Of(err))
}

func TestVerify(t *testing.T) {
	fc, dir := newTestCatalog(t)

	// Only s1's narration exists on disk.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "audio", "000005"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audio", "000005", "s1.mp3"), []byte("x"), 0o644))

	rep := fc.Verify(dir)
	assert.Equal(t, 2, rep.Cards) // 000005 and the empty 000009
	assert.Equal(t, 2, rep.Stories)
	assert.Len(t, rep.CorruptCards, 1)
	assert.Len(t, rep.MissingNarration, 1)
}
