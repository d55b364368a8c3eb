package raft

import (
	"fmt"
	"sync"
	"time"

	"github.com/raftcore/raft/internal/logger"
	"github.com/raftcore/raft/internal/util"
)

// RaftContext is the shared state every Role reads and mutates: the
// persisted term/vote, the log, the cluster membership view, the state
// machine, and the bookkeeping needed to answer client operations and RPCs.
//
// Every field on RaftContext is touched exclusively from a single dispatch
// goroutine (the "loop"). This mirrors the teacher's raftState, which
// serialized access behind one mutex (state.go's raftState.mu); here the
// mutual exclusion is cooperative rather than lock-based: external callers
// never touch these fields directly, they submit a closure through run/
// submit and the loop goroutine executes it to completion before picking up
// the next one. checkThread panics if that invariant is ever violated by a
// Role calling back into RaftContext off the loop.
type RaftContext struct {
	id      string
	address string

	log       *Log
	meta      MetaStore
	cluster   *Cluster
	fsm       StateMachine
	transport Transport
	snapshots SnapshotStore
	sessions  *SessionManager
	logger    *logger.Logger

	opts options

	role RoleKind
	impl Role

	currentTerm uint64
	votedFor    string
	leader      string

	commitIndex uint64
	lastApplied uint64

	// pendingSnapshot accumulates chunked InstallRequest.Data until a
	// request arrives with Done set.
	pendingSnapshot []byte

	operations *operationManager

	electionDeadline  time.Time
	heartbeatInterval time.Duration

	tasks  chan func()
	stopCh chan struct{}
	wg     sync.WaitGroup
	inLoop bool
}

// NewRaftContext assembles a RaftContext for the server identified by id,
// reachable at address. log, meta, cluster, fsm, and snapshots must already
// be open/initialized; opts carries the resolved timing parameters,
// transport, and logger.
func NewRaftContext(id, address string, log *Log, meta MetaStore, cluster *Cluster, fsm StateMachine, snapshots SnapshotStore, opts options) *RaftContext {
	ctx := &RaftContext{
		id:                id,
		address:           address,
		log:               log,
		meta:              meta,
		cluster:           cluster,
		fsm:               fsm,
		transport:         opts.transport,
		snapshots:         snapshots,
		sessions:          newSessionManager(),
		logger:            opts.logger,
		opts:              opts,
		role:              RoleInactive,
		operations:        newOperationManager(opts.leaseDuration),
		heartbeatInterval: opts.heartbeatInterval,
		tasks:             make(chan func()),
		stopCh:            make(chan struct{}),
	}
	ctx.currentTerm, ctx.votedFor = meta.State()
	ctx.impl = &inactiveRole{}
	cluster.AddListener(&clusterLogger{ctx: ctx})
	return ctx
}

// checkThread panics if called from outside the dispatch loop. Every Role
// method and every RaftContext method that mutates shared state should call
// this first; it is the cooperative-concurrency equivalent of asserting a
// mutex is held.
func (ctx *RaftContext) checkThread() {
	if !ctx.inLoop {
		panic("raft: RaftContext accessed from outside its dispatch loop")
	}
}

// run submits fn to the dispatch loop and blocks until it has executed,
// returning fn's result to the caller. Used by every RPC handler and public
// Raft method so that all state access happens on the loop goroutine.
func (ctx *RaftContext) run(fn func()) {
	done := make(chan struct{})
	select {
	case ctx.tasks <- func() { fn(); close(done) }:
	case <-ctx.stopCh:
		return
	}
	select {
	case <-done:
	case <-ctx.stopCh:
	}
}

// submit enqueues fn to run on the dispatch loop without waiting for it to
// complete, used for internally scheduled work like timer callbacks.
func (ctx *RaftContext) submit(fn func()) {
	select {
	case ctx.tasks <- fn:
	case <-ctx.stopCh:
	}
}

// Start launches the dispatch loop and enters the role appropriate for the
// server's current membership type.
func (ctx *RaftContext) Start() {
	ctx.wg.Add(1)
	go ctx.loop()
	ctx.run(func() {
		member, ok := ctx.cluster.SelfMember()
		kind := RoleInactive
		if ok {
			kind = roleForMemberType(member.Type)
		}
		ctx.transitionLocked(kind)
	})
}

// Stop halts the dispatch loop and waits for it to drain.
func (ctx *RaftContext) Stop() {
	close(ctx.stopCh)
	ctx.wg.Wait()
}

func (ctx *RaftContext) loop() {
	defer ctx.wg.Done()
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case fn := <-ctx.tasks:
			ctx.inLoop = true
			fn()
			ctx.inLoop = false
		case <-ticker.C:
			ctx.inLoop = true
			ctx.impl.tick(ctx)
			ctx.inLoop = false
		case <-ctx.stopCh:
			return
		}
	}
}

// transitionLocked installs the role for kind as the active role. Must be called on
// the dispatch loop.
func (ctx *RaftContext) transitionLocked(kind RoleKind) {
	ctx.checkThread()
	if ctx.impl != nil {
		ctx.impl.Exit(ctx)
	}
	ctx.role = kind
	ctx.impl = newRole(kind)
	if ctx.logger != nil {
		ctx.logger.Infof("%s: transitioning to %s (term %d)", ctx.id, kind, ctx.currentTerm)
	}
	ctx.impl.Enter(ctx)
}

// updateTermAndLeader advances currentTerm and resets votedFor whenever a
// message from a strictly newer term is observed (§4.1's "if RPC request or
// response contains term > currentTerm, set currentTerm and convert to
// follower"), persisting the change before returning. leader, if non-empty,
// is recorded as the currently known leader.
func (ctx *RaftContext) updateTermAndLeader(term uint64, leader string) {
	ctx.checkThread()
	if term > ctx.currentTerm {
		ctx.currentTerm = term
		ctx.votedFor = ""
		if err := ctx.meta.SetTermAndVote(term, ""); err != nil && ctx.logger != nil {
			ctx.logger.Errorf("%s: failed to persist term: %s", ctx.id, err.Error())
		}
		if ctx.role != RoleFollower && ctx.role != RoleInactive && ctx.role != RolePassive && ctx.role != RoleReserve {
			ctx.transitionLocked(RoleFollower)
		}
	}
	if leader != "" {
		ctx.leader = leader
	}
}

// resetElectionDeadline pushes the next election timeout out by a random
// duration in [electionTimeout, 2*electionTimeout), matching the teacher's
// randomized timeout scheme in raft.go (util.RandomTimeout) used to avoid
// split votes.
func (ctx *RaftContext) resetElectionDeadline() {
	ctx.checkThread()
	timeout := util.RandomTimeout(ctx.opts.electionTimeout, 2*ctx.opts.electionTimeout)
	ctx.electionDeadline = time.Now().Add(timeout)
}

func (ctx *RaftContext) electionDeadlineExpired() bool {
	return !ctx.electionDeadline.IsZero() && time.Now().After(ctx.electionDeadline)
}

// appendInternalEntry appends a single entry produced internally (not from a
// leader's AppendRequest), stamping it with the current term and the next
// log index, and returns the index it was appended at.
func (ctx *RaftContext) appendInternalEntry(entry *LogEntry) (uint64, error) {
	ctx.checkThread()
	entry.Term = ctx.currentTerm
	entry.Index = ctx.log.LastIndex() + 1
	entry.Timestamp = uint64(time.Now().UnixMilli())
	if err := ctx.log.AppendEntries(entry); err != nil {
		return 0, err
	}
	return entry.Index, nil
}

// applyCommitted applies every entry between lastApplied+1 and commitIndex
// to the state machine, completing any pending client operations those
// entries correspond to, and serving any read-only operations whose
// barrier has now been crossed.
func (ctx *RaftContext) applyCommitted() {
	ctx.checkThread()
	for ctx.lastApplied < ctx.commitIndex {
		index := ctx.lastApplied + 1
		entry, err := ctx.log.GetEntry(index)
		if err != nil {
			if ctx.logger != nil {
				ctx.logger.Errorf("%s: failed to read entry %d for apply: %s", ctx.id, index, err.Error())
			}
			return
		}
		ctx.applyEntry(entry)
		ctx.lastApplied = index
	}

	for _, op := range ctx.operations.appliableReadOnly(ctx.lastApplied) {
		output, err := ctx.executeReadOnly(op)
		if err != nil {
			respond(op.responseCh, OperationResponse{}, err)
			continue
		}
		respond(op.responseCh, OperationResponse{Index: op.readIndex, Output: output}, nil)
	}
}

func (ctx *RaftContext) applyEntry(entry *LogEntry) {
	switch entry.Kind {
	case ConfigurationKind:
		cfg := NewConfiguration(entry.Index, entry.Term, entry.Members)
		ctx.cluster.Commit(cfg)
		if err := ctx.meta.SetConfiguration(cfg); err != nil && ctx.logger != nil {
			ctx.logger.Errorf("%s: failed to persist configuration: %s", ctx.id, err.Error())
		}
		return
	case InitializeKind:
		return
	case OpenSessionKind:
		ctx.sessions.open(entry.Session)
		ctx.operations.completeReplicated(entry.Index, OperationResponse{Index: entry.Index}, nil)
		return
	case CloseSessionKind:
		ctx.sessions.close(entry.Session)
		ctx.operations.completeReplicated(entry.Index, OperationResponse{Index: entry.Index}, nil)
		return
	case KeepAliveKind:
		ctx.sessions.keepAlive(entry.Session)
		ctx.operations.completeReplicated(entry.Index, OperationResponse{Index: entry.Index}, nil)
		return
	case QueryKind:
		ctx.operations.completeReplicated(entry.Index, OperationResponse{Index: entry.Index}, nil)
		return
	}

	if entry.Sequence != 0 {
		if output, ok := ctx.sessions.cachedResponse(entry.Session, entry.Sequence); ok {
			ctx.operations.completeReplicated(entry.Index, OperationResponse{Index: entry.Index, Output: output}, nil)
			return
		}
	}

	raw := ctx.fsm.Apply(entry)
	output := toBytes(raw)
	if entry.Sequence != 0 {
		ctx.sessions.recordResponse(entry.Session, entry.Sequence, output)
	}
	ctx.operations.completeReplicated(entry.Index, OperationResponse{Index: entry.Index, Output: output}, nil)
}

// executeReadOnly runs a read-only operation against the state machine
// without appending anything to the log.
func (ctx *RaftContext) executeReadOnly(op *pendingOperation) ([]byte, error) {
	entry := &LogEntry{Kind: QueryKind, Index: op.readIndex}
	raw := ctx.fsm.Apply(entry)
	return toBytes(raw), nil
}

// toBytes adapts a StateMachine.Apply result, which is an opaque
// interface{} per state_machine.go, into the []byte an OperationResponse
// carries back to the client.
func toBytes(raw interface{}) []byte {
	switch v := raw.(type) {
	case nil:
		return nil
	case []byte:
		return v
	case string:
		return []byte(v)
	case error:
		return []byte(v.Error())
	default:
		return []byte(fmt.Sprintf("%v", v))
	}
}
