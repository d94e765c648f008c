package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLexiconStoreMissingFileUsesDefaults(t *testing.T) {
	store, err := NewLexiconStore(filepath.Join(t.TempDir(), "nope.yaml"), zaptest.NewLogger(t))
	require.NoError(t, err)

	lex := store.Get()
	assert.Contains(t, lex.Greetings, "hello")
	assert.Contains(t, lex.VagueReferences, "it")
}

func TestLexiconStorePartialFileFallsBackPerSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	content := []byte("greetings:\n  - howdy\nmedical_subjects:\n  - diabetes\n  - lupus\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	store, err := NewLexiconStore(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	lex := store.Get()
	assert.Equal(t, []string{"howdy"}, lex.Greetings)
	assert.Equal(t, []string{"diabetes", "lupus"}, lex.MedicalSubjects)
	// Sections absent from the file keep defaults
	assert.NotEmpty(t, lex.Abusive)
	assert.NotEmpty(t, lex.HedgePhrases)
}

func TestLexiconStoreReloadSwapsSets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("greetings:\n  - hi\n"), 0o644))

	store, err := NewLexiconStore(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, store.Get().Greetings)

	require.NoError(t, os.WriteFile(path, []byte("greetings:\n  - bonjour\n"), 0o644))
	store.reload()
	assert.Equal(t, []string{"bonjour"}, store.Get().Greetings)
}

func TestLexiconStoreReloadKeepsPreviousOnBadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("greetings:\n  - hi\n"), 0o644))

	store, err := NewLexiconStore(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("greetings: [unclosed\n"), 0o644))
	store.reload()
	assert.Equal(t, []string{"hi"}, store.Get().Greetings)
}
