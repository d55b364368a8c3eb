package raft

import (
	"github.com/raftcore/raft/internal/errors"
	"github.com/raftcore/raft/internal/logger"
)

// Raft is the top-level handle to a single member of a replicated cluster:
// it owns the on-disk log, metadata, and snapshot stores, the network
// transport, and the dispatch loop (RaftContext) that runs the role state
// machine against them. Grounded on the teacher's Raft type in raft.go,
// restructured so the role-specific RPC logic lives on RaftContext/Role
// instead of directly on Raft.
type Raft struct {
	id      string
	address string

	log       *Log
	meta      MetaStore
	snapshots SnapshotStore
	transport Transport
	cluster   *Cluster

	ctx *RaftContext
}

// NewRaft assembles a Raft instance for the server identified by id,
// reachable at address, persisting its log/metadata/snapshots under
// dataDir. bootstrap seeds the initial cluster configuration if the
// metadata store has no persisted configuration of its own (i.e. this is
// the very first time this server has started). fsm is the state machine
// this instance replicates commands and queries against.
func NewRaft(id, address, dataDir string, bootstrap Configuration, fsm StateMachine, opts ...Option) (*Raft, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	if o.logger == nil {
		l, err := logger.NewLogger()
		if err != nil {
			return nil, errors.WrapError(err, "failed to create default logger: %s", err.Error())
		}
		o.logger = l
	}

	meta := o.metaStore
	if meta == nil {
		meta = NewFileMetaStore(dataDir)
	}
	if err := meta.Open(); err != nil {
		return nil, err
	}

	log := NewLog(dataDir)
	if err := log.Open(); err != nil {
		return nil, err
	}

	snapshots, err := NewFileSnapshotStore(dataDir)
	if err != nil {
		return nil, err
	}

	transport := o.transport
	if transport == nil {
		transport = NewGRPCTransport(address)
		o.transport = transport
	}

	committed, ok := meta.Configuration()
	if !ok {
		committed = bootstrap
	}
	cluster := NewCluster(id, committed)

	ctx := NewRaftContext(id, address, log, meta, cluster, fsm, snapshots, o)

	return &Raft{
		id:        id,
		address:   address,
		log:       log,
		meta:      meta,
		snapshots: snapshots,
		transport: transport,
		cluster:   cluster,
		ctx:       ctx,
	}, nil
}

// Start begins accepting inbound RPCs and launches the dispatch loop.
func (r *Raft) Start() error {
	if err := r.transport.Start(r.ctx); err != nil {
		return err
	}
	r.ctx.Start()
	return nil
}

// Stop halts the dispatch loop, stops accepting RPCs, and closes the
// underlying log and metadata stores.
func (r *Raft) Stop() error {
	r.ctx.Stop()
	if err := r.transport.Close(); err != nil {
		return err
	}
	if err := r.log.Close(); err != nil {
		return err
	}
	return r.meta.Close()
}

// ID returns this server's cluster member ID.
func (r *Raft) ID() string { return r.id }

// Address returns the network address this server listens on.
func (r *Raft) Address() string { return r.address }

// Metadata returns the currently known leader, term, and effective cluster
// configuration.
func (r *Raft) Metadata() *MetadataResponse {
	return r.ctx.HandleMetadata(&MetadataRequest{})
}

// SubmitCommand replicates operation as a state machine mutation. session
// and sequence, if non-zero, let the cluster deduplicate a retried command
// by returning the cached response from the first successful application
// instead of applying it twice. The returned future resolves once the
// command has committed and been applied, or the configured operation
// timeout elapses.
func (r *Raft) SubmitCommand(session, sequence uint64, operation []byte) Future[OperationResponse] {
	f := newFuture[OperationResponse](r.ctx.opts.operationTimeout)
	go func() {
		resp := r.ctx.HandleCommand(&CommandRequest{Session: session, Sequence: sequence, Operation: operation})
		f.responseCh <- commandResult(resp)
	}()
	return f
}

// SubmitQuery serves a read-only operation at the requested consistency
// level. The returned future resolves once the operation's consistency
// barrier has been crossed, or the configured operation timeout elapses.
func (r *Raft) SubmitQuery(session, sequence uint64, operation []byte, consistency Consistency) Future[OperationResponse] {
	f := newFuture[OperationResponse](r.ctx.opts.operationTimeout)
	go func() {
		req := &QueryRequest{Session: session, Sequence: sequence, Operation: operation, Consistency: consistency}
		resp := r.ctx.HandleQuery(req)
		f.responseCh <- queryResult(resp)
	}()
	return f
}

func commandResult(resp *CommandResponse) Result[OperationResponse] {
	if resp.Status != StatusOK {
		return newResult(OperationResponse{}, resp.Error)
	}
	return newResult(OperationResponse{Index: resp.Index, Output: resp.Output}, nil)
}

func queryResult(resp *QueryResponse) Result[OperationResponse] {
	if resp.Status != StatusOK {
		return newResult(OperationResponse{}, resp.Error)
	}
	return newResult(OperationResponse{Index: resp.Index, Output: resp.Output}, nil)
}

// Join admits a new server to the cluster as a Passive member. Only the
// leader can service this; other members respond with an
// ILLEGAL_MEMBER_STATE error naming the known leader, if any.
func (r *Raft) Join(memberID, address string) Future[Configuration] {
	f := newFuture[Configuration](r.ctx.opts.operationTimeout)
	go func() {
		resp := r.ctx.HandleJoin(&JoinRequest{MemberID: memberID, Address: address})
		f.responseCh <- configurationResult(resp.Status, resp.Configuration, resp.Error)
	}()
	return f
}

// Leave removes a server from the cluster.
func (r *Raft) Leave(memberID string) Future[Configuration] {
	f := newFuture[Configuration](r.ctx.opts.operationTimeout)
	go func() {
		resp := r.ctx.HandleLeave(&LeaveRequest{MemberID: memberID})
		f.responseCh <- configurationResult(resp.Status, resp.Configuration, resp.Error)
	}()
	return f
}

// Reconfigure changes a member's type in place, for example promoting a
// Passive member to Active once it has caught up.
func (r *Raft) Reconfigure(memberID string, memberType MemberType) Future[Configuration] {
	f := newFuture[Configuration](r.ctx.opts.operationTimeout)
	go func() {
		resp := r.ctx.HandleReconfigure(&ReconfigureRequest{MemberID: memberID, Type: memberType})
		f.responseCh <- configurationResult(resp.Status, resp.Configuration, resp.Error)
	}()
	return f
}

func configurationResult(status Status, cfg Configuration, protoErr *ProtocolError) Result[Configuration] {
	if status != StatusOK {
		return newResult(Configuration{}, protoErr)
	}
	return newResult(cfg, nil)
}

// OpenSession opens a new client session, used to deduplicate retried
// commands via SubmitCommand's session/sequence pair.
func (r *Raft) OpenSession() (uint64, error) {
	resp := r.ctx.HandleOpenSession(&OpenSessionRequest{})
	if resp.Status != StatusOK {
		return 0, resp.Error
	}
	return resp.Session, nil
}

// CloseSession closes a previously opened client session.
func (r *Raft) CloseSession(session uint64) error {
	resp := r.ctx.HandleCloseSession(&CloseSessionRequest{Session: session})
	if resp.Status != StatusOK {
		return resp.Error
	}
	return nil
}

// KeepAlive renews a client session's lifetime.
func (r *Raft) KeepAlive(session, commandSequence, eventIndex uint64) error {
	req := &KeepAliveRequest{Session: session, CommandSequence: commandSequence, EventIndex: eventIndex}
	resp := r.ctx.HandleKeepAlive(req)
	if resp.Status != StatusOK {
		return resp.Error
	}
	return nil
}
