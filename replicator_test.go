package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newReplicatorTestFixture starts a two-member cluster's "a" side as a real
// running dispatch loop (so onAppendComplete's internal re-replication and
// ctx.submit calls have somewhere to land) and returns it forced into the
// Leader role with a standalone replicator for "b", bypassing election.
func newReplicatorTestFixture(t *testing.T) (*RaftContext, *replicator) {
	t.Helper()
	cfg := twoMemberConfig()
	transport := newFakeTransport()

	a := newTestContext(t, "a", transport, cfg)
	b := newTestContext(t, "b", transport, cfg)
	transport.register("a", a)
	transport.register("b", b)

	// Pre-seed a's log so replicateOnce's post-update probe (run at the end
	// of onAppendComplete) finds real entries to describe instead of
	// falling through to the snapshot-transfer path.
	require.NoError(t, a.log.AppendEntries(
		entryAt(1, 1), entryAt(2, 1), entryAt(3, 1), entryAt(4, 1), entryAt(5, 1),
	))

	a.Start()
	b.Start()
	t.Cleanup(func() {
		a.Stop()
		b.Stop()
	})

	leader := &leaderRole{replicators: map[string]*replicator{}, acked: map[string]int{}}
	var rp *replicator
	a.run(func() {
		a.role = RoleLeader
		a.impl = leader
		rp = newReplicator(a, leader, "b")
		leader.replicators["b"] = rp
	})
	return a, rp
}

// TestReplicatorBacksUpNextIndexOnConflict exercises the fast-backup path
// from the leader's side: a rejected AppendResponse carrying ConflictIndex
// should set the member's NextIndex straight to it, rather than
// decrementing one entry per round trip.
func TestReplicatorBacksUpNextIndexOnConflict(t *testing.T) {
	ctx, rp := newReplicatorTestFixture(t)
	ctx.run(func() {
		ctx.currentTerm = 3
		ctx.cluster.UpdateMemberProgress("b", func(m *Member) {
			m.NextIndex = 10
			m.AppendPending = true
		})

		rp.onAppendComplete(&AppendRequest{PrevLogIndex: 9}, &AppendResponse{
			Term:          3,
			Success:       false,
			ConflictIndex: 3,
			ConflictTerm:  1,
		}, nil)

		member, ok := ctx.cluster.MemberProgress("b")
		require.True(t, ok)
		assert.Equal(t, uint64(3), member.NextIndex)
		assert.Equal(t, 1, member.FailureCount)
		// AppendPending is back to true here: the failure handler's
		// trailing replicateOnce() call immediately retries from the
		// corrected NextIndex rather than waiting for the next heartbeat.
	})
}

// TestReplicatorAdvancesMatchIndexOnSuccess checks the happy path: a
// successful AppendResponse should advance MatchIndex/NextIndex to follow
// the last replicated entry and reset the failure count.
func TestReplicatorAdvancesMatchIndexOnSuccess(t *testing.T) {
	ctx, rp := newReplicatorTestFixture(t)
	ctx.run(func() {
		ctx.currentTerm = 1
		ctx.cluster.UpdateMemberProgress("b", func(m *Member) {
			m.NextIndex = 1
			m.AppendPending = true
			m.FailureCount = 2
		})

		req := &AppendRequest{Entries: []*LogEntry{entryAt(1, 1), entryAt(2, 1)}}
		rp.onAppendComplete(req, &AppendResponse{Term: 1, Success: true}, nil)

		member, ok := ctx.cluster.MemberProgress("b")
		require.True(t, ok)
		assert.Equal(t, uint64(2), member.MatchIndex)
		assert.Equal(t, uint64(3), member.NextIndex)
		assert.Equal(t, 0, member.FailureCount)
	})
}

// TestReplicatorCountsFailureOnTransportError checks that a transport-level
// failure (no response at all) clears AppendPending and is counted in
// FailureCount, without touching NextIndex/MatchIndex.
func TestReplicatorCountsFailureOnTransportError(t *testing.T) {
	ctx, rp := newReplicatorTestFixture(t)
	ctx.run(func() {
		ctx.cluster.UpdateMemberProgress("b", func(m *Member) {
			m.NextIndex = 5
			m.MatchIndex = 4
			m.AppendPending = true
		})

		rp.onAppendComplete(&AppendRequest{}, nil, errNoSuchPeer)

		member, ok := ctx.cluster.MemberProgress("b")
		require.True(t, ok)
		assert.False(t, member.AppendPending)
		assert.Equal(t, 1, member.FailureCount)
		assert.Equal(t, uint64(5), member.NextIndex)
		assert.Equal(t, uint64(4), member.MatchIndex)
	})
}
