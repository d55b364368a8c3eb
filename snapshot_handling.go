package raft

// handleInstallSnapshot implements the receiver side of InstallSnapshot:
// the leader streams a snapshot in chunks, and the final chunk (Done)
// triggers restoring the state machine and compacting the log through
// LastIncludedIndex. Chunks are appended in arrival order; Offset is not
// checked against the data buffered so far. Grounded on the teacher's
// InstallSnapshot RPC in raft.go/transport.go, adapted to the chunked
// Offset/Data/Done fields requests.go adds for large snapshots.
func handleInstallSnapshot(ctx *RaftContext, req *InstallRequest) *InstallResponse {
	if req.Term < ctx.currentTerm {
		return &InstallResponse{Term: ctx.currentTerm, Status: StatusError, Error: newProtocolError(ErrProtocolError, "stale term")}
	}

	ctx.pendingSnapshot = append(ctx.pendingSnapshot, req.Data...)
	if !req.Done {
		return &InstallResponse{Term: ctx.currentTerm, Status: StatusOK}
	}

	snapshot := Snapshot{
		LastIncludedIndex: req.LastIncludedIndex,
		LastIncludedTerm:  req.LastIncludedTerm,
		Configuration:     req.Configuration,
		Data:              ctx.pendingSnapshot,
	}
	ctx.pendingSnapshot = nil

	if err := ctx.snapshots.Save(snapshot); err != nil {
		return &InstallResponse{Term: ctx.currentTerm, Status: StatusError, Error: newProtocolError(ErrProtocolError, err.Error())}
	}
	if err := ctx.fsm.Restore(&snapshot); err != nil {
		return &InstallResponse{Term: ctx.currentTerm, Status: StatusError, Error: newProtocolError(ErrApplicationError, err.Error())}
	}

	ctx.cluster.Commit(snapshot.Configuration)
	if err := ctx.meta.SetConfiguration(snapshot.Configuration); err != nil && ctx.logger != nil {
		ctx.logger.Errorf("%s: failed to persist snapshot configuration: %s", ctx.id, err.Error())
	}
	// If the log already holds the boundary entry itself, just reclaim the
	// space before it and keep whatever follows. Otherwise the log doesn't
	// reach anywhere near the snapshot (a fresh or far-behind follower) and
	// has to be reset entirely, rebased at LastIncludedIndex+1 with the
	// snapshot's term recorded as the new boundary.
	if ctx.log.TermAt(snapshot.LastIncludedIndex) == snapshot.LastIncludedTerm {
		if err := ctx.log.Compact(snapshot.LastIncludedIndex); err != nil && ctx.logger != nil {
			ctx.logger.Errorf("%s: failed to compact log after snapshot install: %s", ctx.id, err.Error())
		}
	} else {
		if err := ctx.log.Restore(snapshot.LastIncludedIndex, snapshot.LastIncludedTerm); err != nil && ctx.logger != nil {
			ctx.logger.Errorf("%s: failed to restore log after snapshot install: %s", ctx.id, err.Error())
		}
	}

	ctx.lastApplied = snapshot.LastIncludedIndex
	if snapshot.LastIncludedIndex > ctx.commitIndex {
		ctx.commitIndex = snapshot.LastIncludedIndex
	}

	return &InstallResponse{Term: ctx.currentTerm, Status: StatusOK}
}
