package raft

// followerRole replicates from a leader and participates in elections. It
// is the steady-state role for every Active member that is not currently
// leading.
type followerRole struct {
	baseRole
}

func (r *followerRole) Kind() RoleKind { return RoleFollower }

func (r *followerRole) Enter(ctx *RaftContext) {
	ctx.resetElectionDeadline()
}

func (r *followerRole) tick(ctx *RaftContext) {
	if ctx.electionDeadlineExpired() {
		ctx.transitionLocked(RoleCandidate)
	}
}

// HandleAppend only resets the election deadline once the term check has
// passed: a stale leader's append (req.Term < currentTerm) must be rejected
// without suppressing this follower's own election (§4.5).
func (r *followerRole) HandleAppend(ctx *RaftContext, req *AppendRequest) *AppendResponse {
	if req.Term < ctx.currentTerm {
		return handleAppendEntries(ctx, req)
	}
	ctx.resetElectionDeadline()
	return handleAppendEntries(ctx, req)
}

// HandleInstall applies the same stale-term guard as HandleAppend before
// resetting the election deadline.
func (r *followerRole) HandleInstall(ctx *RaftContext, req *InstallRequest) *InstallResponse {
	if req.Term < ctx.currentTerm {
		return handleInstallSnapshot(ctx, req)
	}
	ctx.resetElectionDeadline()
	return handleInstallSnapshot(ctx, req)
}

// HandleVote implements the receiver side of RequestVote (§4.2): grant iff
// the requester's term is current, this server has not already voted for
// someone else this term, and the requester's log is at least as
// up-to-date as this server's.
func (r *followerRole) HandleVote(ctx *RaftContext, req *VoteRequest) *VoteResponse {
	if req.Term < ctx.currentTerm {
		return &VoteResponse{Term: ctx.currentTerm, VoteGranted: false}
	}

	upToDate := isLogUpToDate(ctx, req.LastLogIndex, req.LastLogTerm)
	if !upToDate {
		return &VoteResponse{Term: ctx.currentTerm, VoteGranted: false}
	}

	if req.PreVote {
		return &VoteResponse{Term: ctx.currentTerm, VoteGranted: true}
	}

	if ctx.votedFor != "" && ctx.votedFor != req.CandidateID {
		return &VoteResponse{Term: ctx.currentTerm, VoteGranted: false}
	}

	if err := ctx.meta.SetTermAndVote(ctx.currentTerm, req.CandidateID); err != nil {
		if ctx.logger != nil {
			ctx.logger.Errorf("%s: failed to persist vote: %s", ctx.id, err.Error())
		}
		return &VoteResponse{Term: ctx.currentTerm, VoteGranted: false}
	}
	ctx.votedFor = req.CandidateID
	ctx.resetElectionDeadline()
	return &VoteResponse{Term: ctx.currentTerm, VoteGranted: true}
}

// HandlePoll implements the pre-vote phase (§4.2.1): identical eligibility
// check as HandleVote but never persists a vote or resets the deadline,
// since granting a poll costs the responder nothing.
func (r *followerRole) HandlePoll(ctx *RaftContext, req *PollRequest) *PollResponse {
	if req.Term < ctx.currentTerm {
		return &PollResponse{Term: ctx.currentTerm, Accepted: false}
	}
	return &PollResponse{Term: ctx.currentTerm, Accepted: isLogUpToDate(ctx, req.LastLogIndex, req.LastLogTerm)}
}

func (r *followerRole) HandleConfigure(ctx *RaftContext, req *ConfigureRequest) *ConfigureResponse {
	ctx.resetElectionDeadline()
	applyConfigurationIfPresent(ctx, req)
	return &ConfigureResponse{Status: StatusOK}
}

func (r *followerRole) HandleQuery(ctx *RaftContext, req *QueryRequest) (*QueryResponse, <-chan Result[OperationResponse]) {
	if req.Consistency != Sequential {
		err := newProtocolError(ErrNoLeader, "only the leader can serve this consistency level")
		err.KnownLeader = ctx.leader
		return &QueryResponse{Status: StatusError, Error: err}, nil
	}
	entry := &LogEntry{Kind: QueryKind, Index: ctx.lastApplied}
	output := toBytes(ctx.fsm.Apply(entry))
	return &QueryResponse{Status: StatusOK, Index: ctx.lastApplied, Output: output}, nil
}

// isLogUpToDate reports whether a log ending at (lastIndex, lastTerm) is at
// least as up-to-date as this server's own log, per §4.2's comparison: the
// log with the later term is more up-to-date; if the terms are equal, the
// longer log is more up-to-date.
func isLogUpToDate(ctx *RaftContext, lastIndex, lastTerm uint64) bool {
	ownTerm := ctx.log.LastTerm()
	ownIndex := ctx.log.LastIndex()
	if lastTerm != ownTerm {
		return lastTerm > ownTerm
	}
	return lastIndex >= ownIndex
}
