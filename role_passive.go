package raft

// passiveRole is held by a member that replicates the log (so it can be
// promoted to Active without a lengthy catch-up) but never votes and is
// never counted toward quorum.
type passiveRole struct {
	baseRole
}

func (r *passiveRole) Kind() RoleKind { return RolePassive }

func (r *passiveRole) HandleAppend(ctx *RaftContext, req *AppendRequest) *AppendResponse {
	return handleAppendEntries(ctx, req)
}

func (r *passiveRole) HandleInstall(ctx *RaftContext, req *InstallRequest) *InstallResponse {
	return handleInstallSnapshot(ctx, req)
}

func (r *passiveRole) HandleConfigure(ctx *RaftContext, req *ConfigureRequest) *ConfigureResponse {
	applyConfigurationIfPresent(ctx, req)
	return &ConfigureResponse{Status: StatusOK}
}

func (r *passiveRole) HandleQuery(ctx *RaftContext, req *QueryRequest) (*QueryResponse, <-chan Result[OperationResponse]) {
	if req.Consistency != Sequential {
		err := newProtocolError(ErrIllegalMemberState, "passive members only serve sequential reads")
		err.KnownLeader = ctx.leader
		return &QueryResponse{Status: StatusError, Error: err}, nil
	}
	entry := &LogEntry{Kind: QueryKind, Index: ctx.lastApplied}
	output := toBytes(ctx.fsm.Apply(entry))
	return &QueryResponse{Status: StatusOK, Index: ctx.lastApplied, Output: output}, nil
}
