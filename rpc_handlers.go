package raft

import "time"

// awaitChannel blocks, outside the dispatch loop, for ch to deliver a
// result or for the configured operation timeout to elapse. Every handler
// that appends an entry and must wait for it to commit uses this instead
// of blocking inside ctx.run, which would deadlock the loop that is
// supposed to eventually complete the very channel being awaited.
func (ctx *RaftContext) awaitChannel(ch <-chan Result[OperationResponse]) (OperationResponse, error) {
	select {
	case result := <-ch:
		return result.Success(), result.Error()
	case <-time.After(ctx.opts.operationTimeout):
		return OperationResponse{}, ErrTimeout
	}
}

func protocolErrorFrom(err error, fallback RaftErrorKind) *ProtocolError {
	if pe, ok := err.(*ProtocolError); ok {
		return pe
	}
	return newProtocolError(fallback, err.Error())
}

// RPCHandler is the surface a Transport delivers inbound RPCs to. RaftContext
// implements it directly: each method hops onto the dispatch loop via run
// and delegates to whatever Role is currently active.
type RPCHandler interface {
	HandleAppend(req *AppendRequest) *AppendResponse
	HandleVote(req *VoteRequest) *VoteResponse
	HandlePoll(req *PollRequest) *PollResponse
	HandleInstall(req *InstallRequest) *InstallResponse
	HandleConfigure(req *ConfigureRequest) *ConfigureResponse
	HandleCommand(req *CommandRequest) *CommandResponse
	HandleQuery(req *QueryRequest) *QueryResponse
	HandleJoin(req *JoinRequest) *JoinResponse
	HandleLeave(req *LeaveRequest) *LeaveResponse
	HandleReconfigure(req *ReconfigureRequest) *ReconfigureResponse
	HandleOpenSession(req *OpenSessionRequest) *OpenSessionResponse
	HandleCloseSession(req *CloseSessionRequest) *CloseSessionResponse
	HandleKeepAlive(req *KeepAliveRequest) *KeepAliveResponse
	HandleMetadata(req *MetadataRequest) *MetadataResponse
}

func (ctx *RaftContext) HandleAppend(req *AppendRequest) *AppendResponse {
	var resp *AppendResponse
	ctx.run(func() {
		ctx.updateTermAndLeader(req.Term, req.LeaderID)
		resp = ctx.impl.HandleAppend(ctx, req)
	})
	return resp
}

func (ctx *RaftContext) HandleVote(req *VoteRequest) *VoteResponse {
	var resp *VoteResponse
	ctx.run(func() {
		if !req.PreVote {
			ctx.updateTermAndLeader(req.Term, "")
		}
		resp = ctx.impl.HandleVote(ctx, req)
	})
	return resp
}

func (ctx *RaftContext) HandlePoll(req *PollRequest) *PollResponse {
	var resp *PollResponse
	ctx.run(func() {
		resp = ctx.impl.HandlePoll(ctx, req)
	})
	return resp
}

func (ctx *RaftContext) HandleInstall(req *InstallRequest) *InstallResponse {
	var resp *InstallResponse
	ctx.run(func() {
		ctx.updateTermAndLeader(req.Term, req.LeaderID)
		resp = ctx.impl.HandleInstall(ctx, req)
	})
	return resp
}

func (ctx *RaftContext) HandleConfigure(req *ConfigureRequest) *ConfigureResponse {
	var resp *ConfigureResponse
	ctx.run(func() {
		ctx.updateTermAndLeader(req.Term, "")
		if member, ok := req.Configuration.Members[ctx.id]; ok {
			desired := roleForMemberType(member.Type)
			if desired != ctx.role && ctx.role != RoleCandidate && ctx.role != RoleLeader {
				ctx.transitionLocked(desired)
			}
		} else if ctx.role != RoleInactive {
			ctx.transitionLocked(RoleInactive)
		}
		resp = ctx.impl.HandleConfigure(ctx, req)
	})
	return resp
}

func (ctx *RaftContext) HandleCommand(req *CommandRequest) *CommandResponse {
	var resp *CommandResponse
	var ch <-chan Result[OperationResponse]
	ctx.run(func() {
		resp, ch = ctx.impl.HandleCommand(ctx, req)
	})
	if ch == nil {
		return resp
	}
	success, err := ctx.awaitChannel(ch)
	if err != nil {
		return &CommandResponse{Status: StatusError, Error: protocolErrorFrom(err, ErrCommandFailure)}
	}
	return &CommandResponse{Status: StatusOK, Index: success.Index, Output: success.Output}
}

func (ctx *RaftContext) HandleQuery(req *QueryRequest) *QueryResponse {
	var resp *QueryResponse
	var ch <-chan Result[OperationResponse]
	ctx.run(func() {
		resp, ch = ctx.impl.HandleQuery(ctx, req)
	})
	if ch == nil {
		return resp
	}
	success, err := ctx.awaitChannel(ch)
	if err != nil {
		return &QueryResponse{Status: StatusError, Error: protocolErrorFrom(err, ErrQueryFailure)}
	}
	return &QueryResponse{Status: StatusOK, Index: success.Index, Output: success.Output}
}

// HandleJoin, HandleLeave, and HandleReconfigure are serviced identically
// regardless of role (only the Leader can actually commit a membership
// change; everyone else redirects), so they live here instead of on Role.
func (ctx *RaftContext) HandleJoin(req *JoinRequest) *JoinResponse {
	var resp *JoinResponse
	ctx.run(func() {
		resp = ctx.proposeMembershipChange(func(cfg Configuration) Configuration {
			members := cloneMembers(cfg.Members)
			members[req.MemberID] = Member{ID: req.MemberID, Address: req.Address, Type: Passive}
			return NewConfiguration(0, ctx.currentTerm, members)
		}, func(cfg Configuration) *JoinResponse {
			return &JoinResponse{Status: StatusOK, Configuration: cfg}
		})
	})
	return resp
}

func (ctx *RaftContext) HandleLeave(req *LeaveRequest) *LeaveResponse {
	var resp *LeaveResponse
	ctx.run(func() {
		jr := ctx.proposeMembershipChange(func(cfg Configuration) Configuration {
			members := cloneMembers(cfg.Members)
			delete(members, req.MemberID)
			return NewConfiguration(0, ctx.currentTerm, members)
		}, func(cfg Configuration) *JoinResponse {
			return &JoinResponse{Status: StatusOK, Configuration: cfg}
		})
		resp = &LeaveResponse{Status: jr.Status, Configuration: jr.Configuration, Error: jr.Error}
	})
	return resp
}

func (ctx *RaftContext) HandleReconfigure(req *ReconfigureRequest) *ReconfigureResponse {
	var resp *ReconfigureResponse
	ctx.run(func() {
		jr := ctx.proposeMembershipChange(func(cfg Configuration) Configuration {
			members := cloneMembers(cfg.Members)
			m, ok := members[req.MemberID]
			if !ok {
				m = Member{ID: req.MemberID}
			}
			m.Type = req.Type
			members[req.MemberID] = m
			return NewConfiguration(0, ctx.currentTerm, members)
		}, func(cfg Configuration) *JoinResponse {
			return &JoinResponse{Status: StatusOK, Configuration: cfg}
		})
		resp = &ReconfigureResponse{Status: jr.Status, Configuration: jr.Configuration, Error: jr.Error}
	})
	return resp
}

// proposeMembershipChange is only valid when invoked on the Leader;
// mutate must be pure given the effective configuration and return the
// desired next membership set (Index/Term are filled in by the caller).
func (ctx *RaftContext) proposeMembershipChange(mutate func(Configuration) Configuration, ok func(Configuration) *JoinResponse) *JoinResponse {
	ctx.checkThread()
	if ctx.role != RoleLeader {
		err := newProtocolError(ErrIllegalMemberState, "only the leader can change cluster membership")
		err.KnownLeader = ctx.leader
		return &JoinResponse{Status: StatusError, Error: err}
	}

	next := mutate(ctx.cluster.Configuration())
	entry := NewConfigurationEntry(next.Members)
	index, err := ctx.appendInternalEntry(entry)
	if err != nil {
		return &JoinResponse{Status: StatusError, Error: newProtocolError(ErrConfigurationError, err.Error())}
	}
	cfg := NewConfiguration(index, ctx.currentTerm, next.Members)
	ctx.cluster.Propose(cfg)
	return ok(cfg)
}

func cloneMembers(members map[string]Member) map[string]Member {
	out := make(map[string]Member, len(members))
	for id, m := range members {
		out[id] = m
	}
	return out
}

func (ctx *RaftContext) HandleOpenSession(req *OpenSessionRequest) *OpenSessionResponse {
	var resp *OpenSessionResponse
	var ch <-chan Result[OperationResponse]
	var sessionID uint64
	ctx.run(func() {
		if ctx.role != RoleLeader {
			err := newProtocolError(ErrIllegalMemberState, "only the leader can open a session")
			err.KnownLeader = ctx.leader
			resp = &OpenSessionResponse{Status: StatusError, Error: err}
			return
		}
		sessionID = ctx.sessions.nextSessionID()
		entry := &LogEntry{Kind: OpenSessionKind, Session: sessionID}
		index, err := ctx.appendInternalEntry(entry)
		if err != nil {
			resp = &OpenSessionResponse{Status: StatusError, Error: newProtocolError(ErrCommandFailure, err.Error())}
			return
		}
		ch = ctx.operations.awaitReplicated(index)
		if leader, ok := ctx.impl.(*leaderRole); ok {
			leader.broadcastAppend(ctx)
		}
	})
	if resp != nil {
		return resp
	}
	if _, err := ctx.awaitChannel(ch); err != nil {
		return &OpenSessionResponse{Status: StatusError, Error: protocolErrorFrom(err, ErrCommandFailure)}
	}
	return &OpenSessionResponse{Status: StatusOK, Session: sessionID}
}

func (ctx *RaftContext) HandleCloseSession(req *CloseSessionRequest) *CloseSessionResponse {
	var resp *CloseSessionResponse
	var ch <-chan Result[OperationResponse]
	ctx.run(func() {
		if ctx.role != RoleLeader {
			err := newProtocolError(ErrIllegalMemberState, "only the leader can close a session")
			err.KnownLeader = ctx.leader
			resp = &CloseSessionResponse{Status: StatusError, Error: err}
			return
		}
		entry := &LogEntry{Kind: CloseSessionKind, Session: req.Session}
		index, err := ctx.appendInternalEntry(entry)
		if err != nil {
			resp = &CloseSessionResponse{Status: StatusError, Error: newProtocolError(ErrCommandFailure, err.Error())}
			return
		}
		ch = ctx.operations.awaitReplicated(index)
		if leader, ok := ctx.impl.(*leaderRole); ok {
			leader.broadcastAppend(ctx)
		}
	})
	if resp != nil {
		return resp
	}
	if _, err := ctx.awaitChannel(ch); err != nil {
		return &CloseSessionResponse{Status: StatusError, Error: protocolErrorFrom(err, ErrCommandFailure)}
	}
	return &CloseSessionResponse{Status: StatusOK}
}

func (ctx *RaftContext) HandleKeepAlive(req *KeepAliveRequest) *KeepAliveResponse {
	var resp *KeepAliveResponse
	var ch <-chan Result[OperationResponse]
	ctx.run(func() {
		if ctx.role != RoleLeader {
			err := newProtocolError(ErrIllegalMemberState, "only the leader can service a keep-alive")
			err.KnownLeader = ctx.leader
			resp = &KeepAliveResponse{Status: StatusError, Error: err}
			return
		}
		if !ctx.sessions.isOpen(req.Session) {
			resp = &KeepAliveResponse{Status: StatusError, Error: newProtocolError(ErrUnknownSession, "no such session")}
			return
		}
		entry := &LogEntry{Kind: KeepAliveKind, Session: req.Session, Sequence: req.CommandSequence}
		index, err := ctx.appendInternalEntry(entry)
		if err != nil {
			resp = &KeepAliveResponse{Status: StatusError, Error: newProtocolError(ErrCommandFailure, err.Error())}
			return
		}
		ch = ctx.operations.awaitReplicated(index)
		if leader, ok := ctx.impl.(*leaderRole); ok {
			leader.broadcastAppend(ctx)
		}
	})
	if resp != nil {
		return resp
	}
	if _, err := ctx.awaitChannel(ch); err != nil {
		return &KeepAliveResponse{Status: StatusError, Error: protocolErrorFrom(err, ErrCommandFailure)}
	}
	return &KeepAliveResponse{Status: StatusOK}
}

func (ctx *RaftContext) HandleMetadata(req *MetadataRequest) *MetadataResponse {
	var resp *MetadataResponse
	ctx.run(func() {
		resp = &MetadataResponse{
			Status:        StatusOK,
			Leader:        ctx.leader,
			Term:          ctx.currentTerm,
			Configuration: ctx.cluster.Configuration(),
		}
	})
	return resp
}
