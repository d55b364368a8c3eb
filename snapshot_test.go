package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSnapshotStoreLoadMissingReturnsFalse(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileSnapshotStoreSaveAndLoad(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	cfg := testConfiguration(3, Member{ID: "a", Type: Active}, Member{ID: "b", Type: Active})
	snapshot := Snapshot{LastIncludedIndex: 10, LastIncludedTerm: 2, Configuration: cfg, Data: []byte("state")}
	require.NoError(t, store.Save(snapshot))

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snapshot.LastIncludedIndex, loaded.LastIncludedIndex)
	assert.Equal(t, snapshot.LastIncludedTerm, loaded.LastIncludedTerm)
	assert.Equal(t, snapshot.Data, loaded.Data)
	assert.Equal(t, snapshot.Configuration.Index, loaded.Configuration.Index)
	assert.Len(t, loaded.Configuration.Members, 2)
}

func TestFileSnapshotStoreSaveReplacesPrevious(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(Snapshot{LastIncludedIndex: 1, Data: []byte("a")}))
	require.NoError(t, store.Save(Snapshot{LastIncludedIndex: 2, Data: []byte("b")}))

	loaded, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), loaded.LastIncludedIndex)
	assert.Equal(t, []byte("b"), loaded.Data)
}
