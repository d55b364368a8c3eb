package raft

import (
	"context"
	"time"
)

// replicator drives replication to a single follower/passive member: it
// sends AppendEntries batches (or a snapshot, if the member has fallen too
// far behind), advances Member.NextIndex/MatchIndex on success, and backs
// off on failure. One replicator runs per non-self member for as long as
// this server is Leader.
//
// Grounded on the teacher's per-peer replication goroutine (Peer in
// peer.go, driven from the leader's replication loop in raft.go), adapted
// to the Member-embedded bookkeeping (member.go's NextIndex/MatchIndex/
// AppendPending/FailureCount) instead of a dedicated Peer type, and to
// Cluster.UpdateMemberProgress since Cluster.Configuration returns copies.
type replicator struct {
	ctx      *RaftContext
	memberID string
	leader   *leaderRole
}

func newReplicator(ctx *RaftContext, leader *leaderRole, memberID string) *replicator {
	return &replicator{ctx: ctx, memberID: memberID, leader: leader}
}

// replicateOnce sends the next replication RPC to the member if one is not
// already in flight, called from the leader's heartbeat tick and whenever
// a new entry is appended.
func (rp *replicator) replicateOnce() {
	ctx := rp.ctx
	member, ok := ctx.cluster.MemberProgress(rp.memberID)
	if !ok || member.AppendPending {
		return
	}

	if member.NextIndex == 0 {
		ctx.cluster.UpdateMemberProgress(rp.memberID, func(m *Member) {
			m.NextIndex = ctx.log.LastIndex() + 1
		})
		member, _ = ctx.cluster.MemberProgress(rp.memberID)
	}

	if member.NextIndex <= ctx.log.FirstIndex() && ctx.log.FirstIndex() > 1 {
		rp.sendSnapshot(member)
		return
	}

	prevIndex := member.NextIndex - 1
	var prevTerm uint64
	if prevIndex > 0 {
		prevTerm = ctx.log.TermAt(prevIndex)
		if prevTerm == 0 {
			rp.sendSnapshot(member)
			return
		}
	}

	var entries []*LogEntry
	for idx := member.NextIndex; idx <= ctx.log.LastIndex(); idx++ {
		entry, err := ctx.log.GetEntry(idx)
		if err != nil {
			break
		}
		entries = append(entries, entry)
		if len(entries) >= 256 {
			break
		}
	}

	req := &AppendRequest{
		LeaderID:     ctx.id,
		Term:         ctx.currentTerm,
		LeaderCommit: ctx.commitIndex,
		PrevLogIndex: prevIndex,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
	}

	ctx.cluster.UpdateMemberProgress(rp.memberID, func(m *Member) { m.AppendPending = true })

	go func() {
		timeout := ctx.opts.heartbeatInterval * 4
		callCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		resp, err := ctx.transport.SendAppend(callCtx, member, req)
		ctx.submit(func() {
			rp.onAppendComplete(req, resp, err)
		})
	}()
}

func (rp *replicator) onAppendComplete(req *AppendRequest, resp *AppendResponse, err error) {
	ctx := rp.ctx
	if ctx.role != RoleLeader {
		return
	}
	if _, ok := ctx.cluster.MemberProgress(rp.memberID); !ok {
		return
	}

	if err != nil || resp == nil {
		ctx.cluster.UpdateMemberProgress(rp.memberID, func(m *Member) {
			m.AppendPending = false
			m.FailureCount++
		})
		return
	}

	if resp.Term > ctx.currentTerm {
		ctx.cluster.UpdateMemberProgress(rp.memberID, func(m *Member) { m.AppendPending = false })
		ctx.updateTermAndLeader(resp.Term, "")
		return
	}

	if resp.Success {
		ctx.cluster.UpdateMemberProgress(rp.memberID, func(m *Member) {
			m.AppendPending = false
			m.FailureCount = 0
			if len(req.Entries) > 0 {
				m.MatchIndex = req.Entries[len(req.Entries)-1].Index
				m.NextIndex = m.MatchIndex + 1
			} else {
				m.MatchIndex = req.PrevLogIndex
			}
			m.LastHeartbeatTime = time.Now()
		})
		rp.leader.advanceCommitIndex(ctx)
		rp.leader.recordAck(ctx, rp.memberID)
		rp.replicateOnce()
		return
	}

	ctx.cluster.UpdateMemberProgress(rp.memberID, func(m *Member) {
		m.AppendPending = false
		m.FailureCount++
		if resp.ConflictIndex > 0 {
			m.NextIndex = resp.ConflictIndex
		} else if m.NextIndex > 1 {
			m.NextIndex--
		}
	})
	rp.replicateOnce()
}

// sendSnapshot transfers the current snapshot to a member whose log has
// fallen behind what this leader retains, in a single chunk (the expanded
// snapshot transfer protocol supports chunking; this module's leader
// always has the whole snapshot in memory so it sends it as one).
func (rp *replicator) sendSnapshot(member Member) {
	ctx := rp.ctx
	snapshot, ok, err := ctx.snapshots.Load()
	if err != nil || !ok {
		return
	}

	ctx.cluster.UpdateMemberProgress(rp.memberID, func(m *Member) { m.AppendPending = true })

	req := &InstallRequest{
		LeaderID:          ctx.id,
		Term:              ctx.currentTerm,
		LastIncludedIndex: snapshot.LastIncludedIndex,
		LastIncludedTerm:  snapshot.LastIncludedTerm,
		Configuration:     snapshot.Configuration,
		Data:              snapshot.Data,
		Done:              true,
	}

	go func() {
		callCtx, cancel := context.WithTimeout(context.Background(), ctx.opts.heartbeatInterval*8)
		defer cancel()
		resp, err := ctx.transport.SendInstall(callCtx, member, req)
		ctx.submit(func() {
			if ctx.role != RoleLeader {
				return
			}
			if _, ok := ctx.cluster.MemberProgress(rp.memberID); !ok {
				return
			}
			ctx.cluster.UpdateMemberProgress(rp.memberID, func(m *Member) {
				m.AppendPending = false
				if err == nil && resp != nil && resp.Status == StatusOK {
					m.NextIndex = snapshot.LastIncludedIndex + 1
					m.MatchIndex = snapshot.LastIncludedIndex
				}
			})
		})
	}()
}
