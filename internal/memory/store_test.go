package memory

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"
)

// #region helpers

func newStore(t *testing.T, opts Options) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s, err := NewStore(db, opts)
	require.NoError(t, err)
	return s
}

// #endregion helpers

// #region tokenize-tests

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Can you tell me where the lamp is?")
	assert.Equal(t, []string{"lamp"}, tokens)
}

func TestTokenize_DropsChatFiller(t *testing.T) {
	tokens := Tokenize("Hey, okay thanks! I don't wanna go to the kitchen yet")
	assert.Equal(t, []string{"kitchen", "yet"}, tokens)
}

func TestTokenize_Deduplicates(t *testing.T) {
	tokens := Tokenize("lamp lamp LAMP sofa")
	assert.Equal(t, []string{"lamp", "sofa"}, tokens)
}

func TestSharedKeywords(t *testing.T) {
	assert.Equal(t, 1, SharedKeywords([]string{"lamp", "sofa"}, []string{"sofa", "bed"}))
	assert.Equal(t, 0, SharedKeywords([]string{"lamp"}, []string{"bed"}))
}

// #endregion tokenize-tests

// #region store-tests

func TestRecentChronological(t *testing.T) {
	s := newStore(t, Options{})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Save(ctx, "user", fmt.Sprintf("message %d", i), "", nil)
		require.NoError(t, err)
	}

	got, err := s.Recent(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "message 2", got[0].Content)
	assert.Equal(t, "message 4", got[2].Content)
}

func TestGetContext_RetrievedThenRecent(t *testing.T) {
	s := newStore(t, Options{RecentContextSize: 2, RetrievedLimit: 2})
	ctx := context.Background()

	for _, c := range []string{
		"the lamp in the corner is lovely",
		"what is the weather like",
		"turn the lamp on later",
		"I like the sofa",
		"good morning",
		"how are you",
	} {
		_, err := s.Save(ctx, "user", c, "deskmate", map[string]interface{}{"k": "v"})
		require.NoError(t, err)
	}

	got, err := s.GetContext(ctx, "is the lamp still on", "deskmate")
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.True(t, got[0].Retrieved)
	assert.True(t, got[1].Retrieved)
	assert.Contains(t, got[0].Content, "lamp")
	assert.Contains(t, got[1].Content, "lamp")
	// Among equal scores the newer message ranks first.
	assert.Equal(t, "turn the lamp on later", got[0].Content)

	assert.False(t, got[2].Retrieved)
	assert.Equal(t, "good morning", got[2].Content)
	assert.Equal(t, "how are you", got[3].Content)
	assert.Equal(t, "v", got[3].Metadata["k"])
}

func TestGetContext_PersonaScoped(t *testing.T) {
	s := newStore(t, Options{})
	ctx := context.Background()
	s.Save(ctx, "user", "hello from alice", "alice", nil)
	s.Save(ctx, "user", "hello from bob", "bob", nil)

	got, err := s.GetContext(ctx, "hello", "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Persona)

	require.NoError(t, s.Clear(ctx, "alice"))
	got, _ = s.GetContext(ctx, "hello", "alice")
	assert.Empty(t, got)
	all, _ := s.Recent(ctx, "", 10)
	assert.Len(t, all, 1)
}

func TestRecent_BadMetadataIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := newStore(t, Options{Logger: zap.New(core)})
	ctx := context.Background()
	saved, err := s.Save(ctx, "user", "hello", "", map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	_, err = s.db.Exec(`UPDATE messages SET metadata_json = '{broken' WHERE id = ?`, saved.ID)
	require.NoError(t, err)

	got, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Content)
	assert.Nil(t, got[0].Metadata)

	entries := logs.FilterMessage("bad message metadata").All()
	require.Len(t, entries, 1)
	assert.Equal(t, saved.ID, entries[0].ContextMap()["id"])
}

func TestRecentContextSizeDefault(t *testing.T) {
	s := newStore(t, Options{})
	assert.Equal(t, 10, s.RecentContextSize())
}

// #endregion store-tests
