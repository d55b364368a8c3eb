package raft

// RoleKind names the six roles a server can occupy. Grounded on the
// teacher's flat State enum (state.go: Leader/Follower/Candidate/Stopped),
// generalized per the tagged-variant redesign into the full membership
// lifecycle: a server admitted to the cluster starts Inactive, is promoted
// to Passive or directly to the active Follower/Candidate/Leader trio, and
// can be demoted to Reserve without leaving the configuration entirely.
type RoleKind uint32

const (
	// RoleInactive is held by a server that is not yet, or no longer,
	// part of any configuration. It replicates nothing and votes in
	// nothing; its only valid transition is via a ConfigureRequest that
	// names it as a member.
	RoleInactive RoleKind = iota

	// RoleReserve is held by a member tracked in the configuration but
	// deliberately excluded from replication and voting, e.g. a standby
	// held in reserve for a future promotion.
	RoleReserve

	// RolePassive is held by a member that receives replicated log
	// entries (so it can be promoted to Active without a lengthy catch-up)
	// but does not vote and is not counted toward quorum.
	RolePassive

	// RoleFollower is held by an Active member that replicates from a
	// leader and participates in elections.
	RoleFollower

	// RoleCandidate is held by an Active member that is running an
	// election.
	RoleCandidate

	// RoleLeader is held by the single Active member, per term, that
	// replicates commands and queries to the rest of the cluster.
	RoleLeader
)

// String returns the name of the role.
func (k RoleKind) String() string {
	switch k {
	case RoleInactive:
		return "inactive"
	case RoleReserve:
		return "reserve"
	case RolePassive:
		return "passive"
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	default:
		panic("invalid role kind")
	}
}

// Role is the behavior associated with one of the six RoleKind values. The
// dispatch loop in RaftContext holds exactly one Role at a time and routes
// every RPC and timer event to it; transitioning roles means swapping this
// value out, not branching on a flag. This is the tagged-variant stand-in
// for a conventional switch-on-enum state machine.
type Role interface {
	Kind() RoleKind

	// Enter is called once, on the dispatch loop, when this role becomes
	// active. It should arm whatever timers the role needs and perform any
	// one-time setup (a Candidate requests votes, a Leader appends its
	// initializing entry).
	Enter(ctx *RaftContext)

	// Exit is called once, on the dispatch loop, when this role is about
	// to be replaced. It should cancel timers and release anything Enter
	// acquired.
	Exit(ctx *RaftContext)

	HandleAppend(ctx *RaftContext, req *AppendRequest) *AppendResponse
	HandleVote(ctx *RaftContext, req *VoteRequest) *VoteResponse
	HandlePoll(ctx *RaftContext, req *PollRequest) *PollResponse
	HandleInstall(ctx *RaftContext, req *InstallRequest) *InstallResponse
	HandleConfigure(ctx *RaftContext, req *ConfigureRequest) *ConfigureResponse

	// HandleCommand and HandleQuery run on the dispatch loop and must never
	// block waiting for a result: if the operation cannot be answered
	// immediately (it was appended and must wait to commit, or a
	// linearizable read is waiting on a quorum-verification barrier), the
	// returned response is nil and the returned channel carries the result
	// once it is ready. The caller (RaftContext's RPC wrapper) waits on
	// that channel outside the loop.
	HandleCommand(ctx *RaftContext, req *CommandRequest) (*CommandResponse, <-chan Result[OperationResponse])
	HandleQuery(ctx *RaftContext, req *QueryRequest) (*QueryResponse, <-chan Result[OperationResponse])

	// tick is called periodically (every 25ms, per the dispatch loop's
	// ticker) on the active role, driving election timeouts, heartbeats,
	// and replication. Most roles no-op; Follower/Candidate/Leader don't.
	tick(ctx *RaftContext)
}

// baseRole implements Role with the response every RPC gets unless a
// concrete role overrides the handler: ILLEGAL_MEMBER_STATE, optionally
// pointing the caller at the known leader. Embedding baseRole lets each
// concrete role only write the handlers it actually supports.
type baseRole struct{}

func (baseRole) Enter(ctx *RaftContext) {}
func (baseRole) Exit(ctx *RaftContext)  {}
func (baseRole) tick(ctx *RaftContext)  {}

func illegalStateError(ctx *RaftContext, rpc string) *ProtocolError {
	err := newProtocolError(ErrIllegalMemberState, "server cannot service "+rpc+" in its current role")
	err.KnownLeader = ctx.leader
	return err
}

func (baseRole) HandleAppend(ctx *RaftContext, req *AppendRequest) *AppendResponse {
	return &AppendResponse{Term: ctx.currentTerm, Status: StatusError, Error: illegalStateError(ctx, "Append")}
}

func (baseRole) HandleVote(ctx *RaftContext, req *VoteRequest) *VoteResponse {
	return &VoteResponse{Term: ctx.currentTerm, Status: StatusError, Error: illegalStateError(ctx, "Vote")}
}

func (baseRole) HandlePoll(ctx *RaftContext, req *PollRequest) *PollResponse {
	return &PollResponse{Term: ctx.currentTerm, Status: StatusError, Error: illegalStateError(ctx, "Poll")}
}

func (baseRole) HandleInstall(ctx *RaftContext, req *InstallRequest) *InstallResponse {
	return &InstallResponse{Term: ctx.currentTerm, Status: StatusError, Error: illegalStateError(ctx, "Install")}
}

func (baseRole) HandleConfigure(ctx *RaftContext, req *ConfigureRequest) *ConfigureResponse {
	return &ConfigureResponse{Status: StatusError, Error: illegalStateError(ctx, "Configure")}
}

func (baseRole) HandleCommand(ctx *RaftContext, req *CommandRequest) (*CommandResponse, <-chan Result[OperationResponse]) {
	return &CommandResponse{Status: StatusError, Error: illegalStateError(ctx, "Command")}, nil
}

func (baseRole) HandleQuery(ctx *RaftContext, req *QueryRequest) (*QueryResponse, <-chan Result[OperationResponse]) {
	return &QueryResponse{Status: StatusError, Error: illegalStateError(ctx, "Query")}, nil
}

// applyConfigurationIfPresent installs and commits a configuration carried
// in req, used by the HandleConfigure of every role except Leader.
func applyConfigurationIfPresent(ctx *RaftContext, req *ConfigureRequest) {
	if req.Configuration.Index <= ctx.cluster.Committed().Index {
		return
	}
	ctx.cluster.Propose(req.Configuration)
	ctx.cluster.Commit(req.Configuration)
	ctx.meta.SetConfiguration(req.Configuration)
}

// roleForMemberType returns the role a member of the given type should be
// running under normal conditions (outside of an ongoing election).
func roleForMemberType(t MemberType) RoleKind {
	switch t {
	case Active:
		return RoleFollower
	case Passive:
		return RolePassive
	case Reserve:
		return RoleReserve
	default:
		return RoleInactive
	}
}

// newRole constructs the Role implementation for kind.
func newRole(kind RoleKind) Role {
	switch kind {
	case RoleInactive:
		return &inactiveRole{}
	case RoleReserve:
		return &reserveRole{}
	case RolePassive:
		return &passiveRole{}
	case RoleFollower:
		return &followerRole{}
	case RoleCandidate:
		return &candidateRole{}
	case RoleLeader:
		return &leaderRole{}
	default:
		panic("invalid role kind")
	}
}
