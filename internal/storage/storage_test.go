package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	logx "charitybot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queued struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
}

func TestOpenDisabled(t *testing.T) {
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	require.ErrorIs(t, err, ErrDisabled)
	assert.Nil(t, st)

	_, err = Open(Config{Driver: "etcd"}, logx.Nop())
	require.Error(t, err)
}

func TestMemoryGetMissing(t *testing.T) {
	st := NewMemory()
	var out []queued
	ok, err := st.Get(context.Background(), "tipQueue", &out)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, out)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "charitybot.db")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	want := []queued{{ID: "a", Amount: "2.5"}, {ID: "b", Amount: "10"}}
	require.NoError(t, st.Set(ctx, "tipQueue", want))
	require.NoError(t, st.Set(ctx, "remainingQuota", 14))
	require.NoError(t, st.Set(ctx, "remainingQuota", 13))

	// Simulate a crash: drop the handle without compacting.
	fs := st.(*codec).b.(*fileStore)
	require.NoError(t, fs.journal.Close())

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st2.Close()

	var got []queued
	ok, err := st2.Get(ctx, "tipQueue", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	var quota int
	ok, err = st2.Get(ctx, "remainingQuota", &quota)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 13, quota)
}

func TestFileStoreCompaction(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.json")

	b, err := openFile(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	b.compactEvery = 3
	st := &codec{b: b}

	for i := 0; i < 7; i++ {
		require.NoError(t, st.Set(ctx, "n", i))
	}
	_, err = os.Stat(b.snapshotPath)
	require.NoError(t, err)

	// Journal only holds the write after the last compaction.
	raw, err := os.ReadFile(filepath.Join(filepath.Dir(path), "kv.journal.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, `{"key":"n","value":6}`+"\n", string(raw))

	require.NoError(t, st.Close())

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st2.Close()
	var n int
	ok, err := st2.Get(ctx, "n", &n)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 6, n)
}

func TestFileStoreSkipsTornJournalLine(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	journal := filepath.Join(dir, "kv.journal.jsonl")
	require.NoError(t, os.WriteFile(journal, []byte("{\"key\":\"a\",\"value\":1}\n{\"key\":\"a\",\"val"), 0o600))

	path := filepath.Join(dir, "kv.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)

	var a int
	ok, err := st.Get(ctx, "a", &a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, a)

	// The next append must not be glued onto the torn line.
	require.NoError(t, st.Set(ctx, "a", 2))
	require.NoError(t, st.(*codec).b.(*fileStore).journal.Close())

	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st2.Close()
	ok, err = st2.Get(ctx, "a", &a)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, a)
}

func TestSQLiteStoreUpsert(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.sqlite")

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Set(ctx, "windowStart", int64(1000)))
	require.NoError(t, st.Set(ctx, "windowStart", int64(2000)))
	require.NoError(t, st.Close())

	st2, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st2.Close()

	var ws int64
	ok, err := st2.Get(ctx, "windowStart", &ws)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2000), ws)

	ok, err = st2.Get(ctx, "postQueue", &ws)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNamespaceIsolatesKeys(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	a := Namespace(base, "splitter")
	b := Namespace(base, "poster")

	require.NoError(t, a.Set(ctx, "queue", []string{"x"}))
	var got []string
	ok, err := b.Get(ctx, "queue", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = base.Get(ctx, "splitter/queue", &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, got)

	require.NoError(t, a.Close())
	require.NoError(t, base.Set(ctx, "still", true))
}

func TestClosedStoreRejects(t *testing.T) {
	st := NewMemory()
	require.NoError(t, st.Close())
	require.ErrorIs(t, st.Set(context.Background(), "k", 1), ErrClosed)
}
