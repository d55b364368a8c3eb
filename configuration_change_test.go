package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestJoinAdmitsNewMemberAsPassive exercises HandleJoin against a single-node
// leader: the new member should appear in the returned configuration as
// Passive, and only the leader should be able to service the request.
func TestJoinAdmitsNewMemberAsPassive(t *testing.T) {
	cfg := oneMemberConfig("a", "localhost:1")
	ctx := newTestContext(t, "a", nil, cfg)
	ctx.Start()
	t.Cleanup(ctx.Stop)

	waitForLeader(t, ctx)

	resp := ctx.HandleJoin(&JoinRequest{MemberID: "b", Address: "localhost:2"})
	require.Equal(t, StatusOK, resp.Status)

	member, ok := resp.Configuration.Members["b"]
	require.True(t, ok)
	assert.Equal(t, Passive, member.Type)
}

func TestReconfigurePromotesPassiveToActive(t *testing.T) {
	cfg := oneMemberConfig("a", "localhost:1")
	ctx := newTestContext(t, "a", nil, cfg)
	ctx.Start()
	t.Cleanup(ctx.Stop)

	waitForLeader(t, ctx)

	joined := ctx.HandleJoin(&JoinRequest{MemberID: "b", Address: "localhost:2"})
	require.Equal(t, StatusOK, joined.Status)

	resp := ctx.HandleReconfigure(&ReconfigureRequest{MemberID: "b", Type: Active})
	require.Equal(t, StatusOK, resp.Status)
	assert.Equal(t, Active, resp.Configuration.Members["b"].Type)
}

func TestJoinRejectedWhenNotLeader(t *testing.T) {
	cfg := NewConfiguration(0, 0, map[string]Member{
		"a": {ID: "a", Address: "localhost:1", Type: Active},
		"b": {ID: "b", Address: "localhost:2", Type: Active},
	})
	// "b" is never registered, so any RPC "a" sends it during an election
	// just fails rather than reaching a quorum -- "a" never becomes Leader.
	transport := newFakeTransport()
	ctx := newTestContext(t, "a", transport, cfg)
	transport.register("a", ctx)
	ctx.Start()
	t.Cleanup(ctx.Stop)

	resp := ctx.HandleJoin(&JoinRequest{MemberID: "c", Address: "localhost:3"})
	assert.Equal(t, StatusError, resp.Status)
}
