package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoMemberConfig() Configuration {
	return NewConfiguration(0, 0, map[string]Member{
		"a": {ID: "a", Address: "localhost:1", Type: Active},
		"b": {ID: "b", Address: "localhost:2", Type: Active},
	})
}

// TestPollDoesNotPersistAVote checks the pre-vote invariant (§4.2.1): a
// granted Poll must not record a vote or bump the responder's term, so a
// partitioned candidate's repeated pre-vote probes never cost anything.
func TestPollDoesNotPersistAVote(t *testing.T) {
	cfg := twoMemberConfig()
	ctx := newTestContext(t, "a", nil, cfg)
	ctx.inLoop = true
	ctx.impl = &followerRole{}
	ctx.currentTerm = 1

	resp := ctx.impl.HandlePoll(ctx, &PollRequest{CandidateID: "b", Term: 2, LastLogIndex: 0, LastLogTerm: 0})

	assert.True(t, resp.Accepted)
	assert.Equal(t, uint64(1), ctx.currentTerm)
	assert.Empty(t, ctx.votedFor)
}

func TestVoteGrantedOnlyOncePerTerm(t *testing.T) {
	cfg := twoMemberConfig()
	ctx := newTestContext(t, "a", nil, cfg)
	ctx.inLoop = true
	ctx.impl = &followerRole{}
	ctx.currentTerm = 1

	first := ctx.impl.HandleVote(ctx, &VoteRequest{CandidateID: "b", Term: 1})
	require.True(t, first.VoteGranted)
	assert.Equal(t, "b", ctx.votedFor)

	second := ctx.impl.HandleVote(ctx, &VoteRequest{CandidateID: "other", Term: 1})
	assert.False(t, second.VoteGranted)
}

func TestVoteRejectedWhenCandidateLogIsBehind(t *testing.T) {
	cfg := twoMemberConfig()
	ctx := newTestContext(t, "a", nil, cfg)
	ctx.inLoop = true
	ctx.impl = &followerRole{}
	require.NoError(t, ctx.log.AppendEntries(entryAt(1, 3)))
	ctx.currentTerm = 3

	resp := ctx.impl.HandleVote(ctx, &VoteRequest{CandidateID: "b", Term: 3, LastLogIndex: 0, LastLogTerm: 0})
	assert.False(t, resp.VoteGranted)
}
