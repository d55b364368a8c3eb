package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHandleInstallSnapshotAccumulatesChunksBeforeRestoring checks that an
// in-progress chunked InstallRequest (Done == false) only buffers data, and
// only the final chunk triggers restoring the state machine, persisting the
// configuration and compacting or rebasing the log.
func TestHandleInstallSnapshotAccumulatesChunksBeforeRestoring(t *testing.T) {
	cfg := oneMemberConfig("a", "localhost:1")
	ctx := newTestContext(t, "a", nil, cfg)
	ctx.inLoop = true

	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)
	ctx.snapshots = store

	first := handleInstallSnapshot(ctx, &InstallRequest{
		Term: 1,
		Data: []byte("chunk-one-"),
		Done: false,
	})
	assert.Equal(t, StatusOK, first.Status)
	assert.Equal(t, []byte("chunk-one-"), ctx.pendingSnapshot)
	assert.Equal(t, uint64(0), ctx.lastApplied)

	final := handleInstallSnapshot(ctx, &InstallRequest{
		Term:              1,
		Data:              []byte("chunk-two"),
		Done:              true,
		LastIncludedIndex: 9,
		LastIncludedTerm:  1,
		Configuration:     cfg,
	})
	require.Equal(t, StatusOK, final.Status)
	assert.Nil(t, ctx.pendingSnapshot)
	assert.Equal(t, uint64(9), ctx.lastApplied)
	assert.Equal(t, uint64(9), ctx.commitIndex)

	saved, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("chunk-one-chunk-two"), saved.Data)

	// The follower's log never held index 9, so it was rebased rather than
	// compacted: replication can resume at 10, and the boundary term at 9
	// answers the leader's consistency check without the entry itself.
	assert.Equal(t, uint64(9), ctx.log.LastIndex())
	assert.Equal(t, uint64(1), ctx.log.TermAt(9))
}

func TestHandleInstallSnapshotRejectsStaleTerm(t *testing.T) {
	cfg := oneMemberConfig("a", "localhost:1")
	ctx := newTestContext(t, "a", nil, cfg)
	ctx.inLoop = true
	ctx.currentTerm = 4

	resp := handleInstallSnapshot(ctx, &InstallRequest{Term: 2, Done: true})
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, uint64(4), resp.Term)
}
