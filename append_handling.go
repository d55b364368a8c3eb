package raft

import "github.com/raftcore/raft/internal/util"

// handleAppendEntries implements the receiver side of AppendEntries
// (§4.1/§4.4: log matching plus fast conflict backup), shared by Passive
// and Follower roles since replicating the log is identical for both; only
// voting and election timeouts differ between them. Grounded on the
// teacher's AppendEntries handler in raft.go, extended with the
// ConflictIndex/ConflictTerm fast-backup fields requests.go adds.
func handleAppendEntries(ctx *RaftContext, req *AppendRequest) *AppendResponse {
	if req.Term < ctx.currentTerm {
		return &AppendResponse{Term: ctx.currentTerm, Success: false}
	}

	if req.PrevLogIndex > 0 {
		if req.PrevLogIndex > ctx.log.LastIndex() {
			return &AppendResponse{
				Term:          ctx.currentTerm,
				Success:       false,
				ConflictIndex: ctx.log.LastIndex() + 1,
			}
		}
		prevTerm := ctx.log.TermAt(req.PrevLogIndex)
		if prevTerm != req.PrevLogTerm {
			conflictTerm := prevTerm
			conflictIndex := req.PrevLogIndex
			for conflictIndex > ctx.log.FirstIndex() {
				if ctx.log.TermAt(conflictIndex-1) != conflictTerm {
					break
				}
				conflictIndex--
			}
			return &AppendResponse{
				Term:          ctx.currentTerm,
				Success:       false,
				ConflictIndex: conflictIndex,
				ConflictTerm:  conflictTerm,
			}
		}
	}

	if len(req.Entries) > 0 {
		pending := ctx.cluster.Configuration()
		hadPending := pending.Index > ctx.cluster.Committed().Index

		if err := ctx.log.AppendEntries(req.Entries...); err != nil {
			err := newProtocolError(ErrProtocolError, err.Error())
			return &AppendResponse{Term: ctx.currentTerm, Status: StatusError, Success: false, Error: err}
		}

		// AppendEntries truncates away any conflicting suffix before
		// appending the leader's entries. If the pending configuration's
		// own entry was part of that suffix, the proposal it represents
		// never committed and must be discarded rather than left dangling.
		if hadPending && ctx.log.TermAt(pending.Index) != pending.Term {
			ctx.cluster.Revert()
		}

		for _, entry := range req.Entries {
			if entry.Kind == ConfigurationKind {
				ctx.cluster.Propose(NewConfiguration(entry.Index, entry.Term, entry.Members))
			}
		}
	}

	if req.LeaderCommit > ctx.commitIndex {
		ctx.commitIndex = util.Min(req.LeaderCommit, ctx.log.LastIndex())
		ctx.applyCommitted()
	}

	return &AppendResponse{Term: ctx.currentTerm, Success: true}
}
