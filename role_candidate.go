package raft

import "context"

// candidateRole runs an election: first a non-disruptive pre-vote round to
// gauge whether it could win without bumping its term, then, if the
// pre-vote round reaches quorum, a full election that does increment the
// term and requests binding votes. Grounded on the teacher's
// StartElection/BecomeCandidate in raft.go, split into the pre-vote phase
// the redesign adds to avoid a partitioned server's ever-incrementing term
// from disrupting a healthy leader (§4.2.1).
type candidateRole struct {
	baseRole

	preVote bool
	votes   map[string]bool
}

func (r *candidateRole) Kind() RoleKind { return RoleCandidate }

func (r *candidateRole) Enter(ctx *RaftContext) {
	ctx.resetElectionDeadline()
	r.preVote = true
	r.votes = map[string]bool{ctx.id: true}
	r.runPreVote(ctx)
}

func (r *candidateRole) tick(ctx *RaftContext) {
	if ctx.electionDeadlineExpired() {
		ctx.resetElectionDeadline()
		r.preVote = true
		r.votes = map[string]bool{ctx.id: true}
		r.runPreVote(ctx)
	}
}

func (r *candidateRole) runPreVote(ctx *RaftContext) {
	cfg := ctx.cluster.Configuration()
	req := &PollRequest{
		CandidateID:  ctx.id,
		Term:         ctx.currentTerm + 1,
		LastLogIndex: ctx.log.LastIndex(),
		LastLogTerm:  ctx.log.LastTerm(),
	}

	if cfg.HasQuorum(len(r.votes)) {
		r.runElection(ctx)
		return
	}

	for _, id := range cfg.ActiveIDs() {
		if id == ctx.id {
			continue
		}
		member := cfg.Members[id]
		go func(member Member) {
			resp, err := ctx.transport.SendPoll(context.Background(), member, req)
			ctx.submit(func() {
				if ctx.impl != r || !r.preVote {
					return
				}
				if err != nil || resp == nil {
					return
				}
				if resp.Term > ctx.currentTerm {
					ctx.updateTermAndLeader(resp.Term, "")
					return
				}
				if resp.Accepted {
					r.votes[member.ID] = true
					if cfg.HasQuorum(len(r.votes)) {
						r.runElection(ctx)
					}
				}
			})
		}(member)
	}
}

func (r *candidateRole) runElection(ctx *RaftContext) {
	if !r.preVote {
		return
	}
	r.preVote = false

	ctx.currentTerm++
	ctx.votedFor = ctx.id
	if err := ctx.meta.SetTermAndVote(ctx.currentTerm, ctx.id); err != nil && ctx.logger != nil {
		ctx.logger.Errorf("%s: failed to persist self-vote: %s", ctx.id, err.Error())
	}
	ctx.resetElectionDeadline()
	r.votes = map[string]bool{ctx.id: true}

	cfg := ctx.cluster.Configuration()
	if cfg.HasQuorum(len(r.votes)) {
		ctx.transitionLocked(RoleLeader)
		return
	}

	req := &VoteRequest{
		CandidateID:  ctx.id,
		Term:         ctx.currentTerm,
		LastLogIndex: ctx.log.LastIndex(),
		LastLogTerm:  ctx.log.LastTerm(),
	}
	for _, id := range cfg.ActiveIDs() {
		if id == ctx.id {
			continue
		}
		member := cfg.Members[id]
		go func(member Member) {
			resp, err := ctx.transport.SendVote(context.Background(), member, req)
			ctx.submit(func() {
				if ctx.impl != r || r.preVote {
					return
				}
				if err != nil || resp == nil {
					return
				}
				if resp.Term > ctx.currentTerm {
					ctx.updateTermAndLeader(resp.Term, "")
					return
				}
				if resp.Term == req.Term && resp.VoteGranted {
					r.votes[member.ID] = true
					if cfg.HasQuorum(len(r.votes)) {
						ctx.transitionLocked(RoleLeader)
					}
				}
			})
		}(member)
	}
}

func (r *candidateRole) HandleAppend(ctx *RaftContext, req *AppendRequest) *AppendResponse {
	if req.Term >= ctx.currentTerm {
		ctx.leader = req.LeaderID
		ctx.transitionLocked(RoleFollower)
		return ctx.impl.HandleAppend(ctx, req)
	}
	return &AppendResponse{Term: ctx.currentTerm, Success: false}
}

func (r *candidateRole) HandleInstall(ctx *RaftContext, req *InstallRequest) *InstallResponse {
	if req.Term >= ctx.currentTerm {
		ctx.transitionLocked(RoleFollower)
		return ctx.impl.HandleInstall(ctx, req)
	}
	return &InstallResponse{Term: ctx.currentTerm, Status: StatusError, Error: newProtocolError(ErrProtocolError, "stale term")}
}

func (r *candidateRole) HandleVote(ctx *RaftContext, req *VoteRequest) *VoteResponse {
	return (&followerRole{}).HandleVote(ctx, req)
}

func (r *candidateRole) HandlePoll(ctx *RaftContext, req *PollRequest) *PollResponse {
	return (&followerRole{}).HandlePoll(ctx, req)
}

func (r *candidateRole) HandleConfigure(ctx *RaftContext, req *ConfigureRequest) *ConfigureResponse {
	applyConfigurationIfPresent(ctx, req)
	return &ConfigureResponse{Status: StatusOK}
}
