package raft

import (
	"sort"
	"time"
)

// leaderRole replicates commands and queries to the rest of the cluster. It
// is held by exactly one Active member per term. Grounded on the teacher's
// BecomeLeader/LeaderLoop in raft.go, restructured around per-member
// replicator goroutines and the three-level read consistency the expanded
// operation surface adds.
type leaderRole struct {
	baseRole

	replicators map[string]*replicator

	lastHeartbeat time.Time

	// verificationRound/acked implement the read-index barrier for
	// Linearizable queries: a round increments whenever a new linearizable
	// read needs confirming, and once a quorum of members have acked
	// AppendEntries at or after that round, every read waiting on it may
	// proceed.
	verificationRound int
	acked             map[string]int
}

func (r *leaderRole) Kind() RoleKind { return RoleLeader }

func (r *leaderRole) Enter(ctx *RaftContext) {
	ctx.leader = ctx.id
	r.replicators = make(map[string]*replicator)
	r.acked = make(map[string]int)

	cfg := ctx.cluster.Configuration()
	for id, member := range cfg.Members {
		if id == ctx.id {
			continue
		}
		if member.Type != Active && member.Type != Passive {
			continue
		}
		ctx.cluster.UpdateMemberProgress(id, func(m *Member) {
			m.NextIndex = ctx.log.LastIndex() + 1
			m.MatchIndex = 0
			m.AppendPending = false
			m.FailureCount = 0
		})
		r.replicators[id] = newReplicator(ctx, r, id)
	}

	// The initializing no-op entry lets this leader detect, via
	// advanceCommitIndex's current-term check, the first moment an entry
	// from its own term has committed -- the point after which it is safe
	// to serve Linearizable reads (§5.4.2's restriction against committing
	// entries from prior terms by count alone).
	ctx.appendInternalEntry(NewInitializeEntry())

	r.lastHeartbeat = time.Time{}
	ctx.operations.leaderLease.renew()
	r.broadcastAppend(ctx)
}

func (r *leaderRole) Exit(ctx *RaftContext) {
	r.replicators = nil
	ctx.operations.notifyLostLeadership(ctx.leader)
}

func (r *leaderRole) tick(ctx *RaftContext) {
	now := time.Now()
	if now.Sub(r.lastHeartbeat) >= ctx.opts.heartbeatInterval {
		r.lastHeartbeat = now
		ctx.operations.leaderLease.renew()
		if ctx.operations.shouldVerifyQuorum {
			r.verificationRound++
		}
		r.broadcastAppend(ctx)
	}
	// Recomputed unconditionally, not only from a replicator's callback: a
	// single-member cluster has no replicators at all, and its own match
	// index (implicitly its last log index) must still advance the commit
	// index on its own.
	r.advanceCommitIndex(ctx)
	ctx.applyCommitted()
}

func (r *leaderRole) broadcastAppend(ctx *RaftContext) {
	for _, rep := range r.replicators {
		rep.replicateOnce()
	}
}

// recordAck notes that memberID has acknowledged replication at the
// leader's current verification round, and marks every pending Linearizable
// read verified once a quorum has done so.
func (r *leaderRole) recordAck(ctx *RaftContext, memberID string) {
	r.acked[memberID] = r.verificationRound
	if !ctx.operations.shouldVerifyQuorum {
		return
	}

	cfg := ctx.cluster.Configuration()
	count := 1
	for _, id := range cfg.ActiveIDs() {
		if id == ctx.id {
			continue
		}
		if r.acked[id] >= r.verificationRound {
			count++
		}
	}
	if cfg.HasQuorum(count) {
		ctx.operations.markAsVerified()
		ctx.applyCommitted()
	}
}

// advanceCommitIndex recomputes the commit index as the highest log index
// replicated to a quorum of ACTIVE members, refusing to commit by count
// alone an entry from an earlier term than the current one (§5.4.2's
// leader completeness safety argument: only entries from the leader's own
// term may be committed directly; earlier-term entries commit as a
// side-effect once a later entry commits).
func (r *leaderRole) advanceCommitIndex(ctx *RaftContext) {
	cfg := ctx.cluster.Configuration()
	ids := cfg.ActiveIDs()
	if len(ids) == 0 {
		return
	}

	matches := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == ctx.id {
			matches = append(matches, ctx.log.LastIndex())
			continue
		}
		member, ok := ctx.cluster.MemberProgress(id)
		if !ok {
			matches = append(matches, 0)
			continue
		}
		matches = append(matches, member.MatchIndex)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })
	candidate := matches[cfg.QuorumSize()-1]
	if candidate <= ctx.commitIndex {
		return
	}

	if ctx.log.TermAt(candidate) != ctx.currentTerm {
		return
	}

	ctx.commitIndex = candidate
	ctx.applyCommitted()
}

func (r *leaderRole) HandleCommand(ctx *RaftContext, req *CommandRequest) (*CommandResponse, <-chan Result[OperationResponse]) {
	if req.Session != 0 {
		if cached, ok := ctx.sessions.cachedResponse(req.Session, req.Sequence); ok {
			return &CommandResponse{Status: StatusOK, Output: cached}, nil
		}
		if !ctx.sessions.isOpen(req.Session) {
			return &CommandResponse{Status: StatusError, Error: newProtocolError(ErrUnknownSession, "no such session")}, nil
		}
	}

	entry := NewCommandEntry(req.Session, req.Sequence, req.Operation)
	index, err := ctx.appendInternalEntry(entry)
	if err != nil {
		return &CommandResponse{Status: StatusError, Error: newProtocolError(ErrCommandFailure, err.Error())}, nil
	}
	ch := ctx.operations.awaitReplicated(index)
	r.broadcastAppend(ctx)
	return nil, ch
}

func (r *leaderRole) HandleQuery(ctx *RaftContext, req *QueryRequest) (*QueryResponse, <-chan Result[OperationResponse]) {
	switch req.Consistency {
	case Sequential:
		output := toBytes(ctx.fsm.Apply(&LogEntry{Kind: QueryKind, Index: ctx.lastApplied}))
		return &QueryResponse{Status: StatusOK, Index: ctx.lastApplied, Output: output}, nil

	case LinearizableLease:
		readIndex := ctx.commitIndex
		if ctx.operations.leaderLease.isValid() && readIndex <= ctx.lastApplied {
			output := toBytes(ctx.fsm.Apply(&LogEntry{Kind: QueryKind, Index: readIndex}))
			return &QueryResponse{Status: StatusOK, Index: readIndex, Output: output}, nil
		}
	}

	readIndex := ctx.commitIndex
	ch := ctx.operations.enqueueReadOnly(req.Consistency, readIndex)
	return nil, ch
}
