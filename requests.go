package raft

// Status indicates whether an RPC response represents success or failure.
type Status uint32

const (
	// StatusOK indicates the request was processed successfully.
	StatusOK Status = iota

	// StatusError indicates the request failed; the response's Error field
	// describes why.
	StatusError
)

// RaftErrorKind classifies the reason an RPC failed, per the protocol's
// error handling design.
type RaftErrorKind uint32

const (
	// ErrNoLeader indicates the receiving server does not know who the
	// current leader is.
	ErrNoLeader RaftErrorKind = iota

	// ErrIllegalMemberState indicates the request cannot be serviced by a
	// member in its current role (e.g. a command sent to a Follower).
	ErrIllegalMemberState

	// ErrUnknownSession indicates the request names a session ID the
	// server has no record of.
	ErrUnknownSession

	// ErrClosedSession indicates the request names a session that was
	// explicitly closed.
	ErrClosedSession

	// ErrExpiredSession indicates the request names a session that expired
	// from lack of keep-alives.
	ErrExpiredSession

	// ErrCommandFailure indicates a replicated command could not be
	// applied (e.g. its entry could not be appended, or no result arrived
	// before the operation timeout).
	ErrCommandFailure

	// ErrQueryFailure indicates a query could not be served (e.g. the
	// leadership verification round failed).
	ErrQueryFailure

	// ErrApplicationError indicates the state machine itself returned an
	// application-level error while applying the operation.
	ErrApplicationError

	// ErrProtocolError indicates a malformed or internally inconsistent
	// request (e.g. an InstallRequest from a stale term), or a local
	// storage failure while handling it.
	ErrProtocolError

	// ErrConfigurationError indicates a requested membership change could
	// not be carried out: it is reported when the configuration entry cannot
	// be appended to the log. Membership changes are not otherwise checked;
	// a change that overlaps one already in flight is not rejected.
	ErrConfigurationError
)

// String returns the name of the error kind.
func (k RaftErrorKind) String() string {
	switch k {
	case ErrNoLeader:
		return "NO_LEADER"
	case ErrIllegalMemberState:
		return "ILLEGAL_MEMBER_STATE"
	case ErrUnknownSession:
		return "UNKNOWN_SESSION"
	case ErrClosedSession:
		return "CLOSED_SESSION"
	case ErrExpiredSession:
		return "EXPIRED_SESSION"
	case ErrCommandFailure:
		return "COMMAND_FAILURE"
	case ErrQueryFailure:
		return "QUERY_FAILURE"
	case ErrApplicationError:
		return "APPLICATION_ERROR"
	case ErrProtocolError:
		return "PROTOCOL_ERROR"
	case ErrConfigurationError:
		return "CONFIGURATION_ERROR"
	default:
		panic("invalid error kind")
	}
}

// ProtocolError is the structured error carried in a response's Error
// field. It implements the error interface so it can flow through Go's
// normal error handling alongside internal/errors.RaftError.
type ProtocolError struct {
	Kind        RaftErrorKind
	Message     string
	KnownLeader string
}

func (e *ProtocolError) Error() string {
	return e.Message
}

func newProtocolError(kind RaftErrorKind, message string) *ProtocolError {
	return &ProtocolError{Kind: kind, Message: message}
}

// AppendRequest is sent by the leader to replicate log entries and, when
// Entries is empty, to serve as a heartbeat.
type AppendRequest struct {
	LeaderID     string
	Term         uint64
	LeaderCommit uint64
	PrevLogIndex uint64
	PrevLogTerm  uint64
	Entries      []*LogEntry
}

// AppendResponse is the reply to an AppendRequest.
type AppendResponse struct {
	Term    uint64
	Status  Status
	Success bool
	// ConflictIndex is the first index of the conflicting term on the
	// follower, or one past the follower's last index when its log is shorter
	// than PrevLogIndex, used to let the leader back up nextIndex by more
	// than one entry per round trip.
	ConflictIndex uint64
	ConflictTerm  uint64
	Error         *ProtocolError
}

// VoteRequest is sent by a candidate to gather votes for a full election.
type VoteRequest struct {
	CandidateID  string
	Term         uint64
	LastLogIndex uint64
	LastLogTerm  uint64
	// PreVote marks this as a pre-vote probe: the candidate has not yet
	// incremented its term and the responder must not record a vote.
	PreVote bool
}

// VoteResponse is the reply to a VoteRequest.
type VoteResponse struct {
	Term        uint64
	VoteGranted bool
	Status      Status
	Error       *ProtocolError
}

// PollRequest is sent by a Candidate during its pre-vote phase to check
// whether it could win an election before disrupting the cluster by
// incrementing its term.
type PollRequest struct {
	CandidateID  string
	Term         uint64
	LastLogIndex uint64
	LastLogTerm  uint64
}

// PollResponse is the reply to a PollRequest.
type PollResponse struct {
	Term     uint64
	Accepted bool
	Status   Status
	Error    *ProtocolError
}

// InstallRequest is sent by the leader to transfer a state machine snapshot
// to a member whose log has fallen behind the leader's retained history.
type InstallRequest struct {
	LeaderID          string
	Term              uint64
	LastIncludedIndex uint64
	LastIncludedTerm  uint64
	Configuration     Configuration
	Offset            int64
	Data              []byte
	Done              bool
}

// InstallResponse is the reply to an InstallRequest.
type InstallResponse struct {
	Term   uint64
	Status Status
	Error  *ProtocolError
}

// ConfigureRequest is sent by the leader to a member to notify it that a
// new configuration has taken effect, including a newly-joined Inactive
// member's first notice that it has been admitted to the cluster.
type ConfigureRequest struct {
	Term          uint64
	Index         uint64
	Timestamp     uint64
	Configuration Configuration
}

// ConfigureResponse is the reply to a ConfigureRequest.
type ConfigureResponse struct {
	Status Status
	Error  *ProtocolError
}

// JoinRequest is sent by a new server to the cluster to request admission
// as a Passive member.
type JoinRequest struct {
	MemberID string
	Address  string
}

// JoinResponse is the reply to a JoinRequest.
type JoinResponse struct {
	Status        Status
	Configuration Configuration
	Error         *ProtocolError
}

// LeaveRequest is sent by a member to request its own removal from the
// cluster, or by an operator to request another member's removal.
type LeaveRequest struct {
	MemberID string
}

// LeaveResponse is the reply to a LeaveRequest.
type LeaveResponse struct {
	Status        Status
	Configuration Configuration
	Error         *ProtocolError
}

// ReconfigureRequest changes a member's type in place (for example,
// promoting a Passive member to Active, or demoting an Active member to
// Reserve).
type ReconfigureRequest struct {
	MemberID string
	Type     MemberType
}

// ReconfigureResponse is the reply to a ReconfigureRequest.
type ReconfigureResponse struct {
	Status        Status
	Configuration Configuration
	Error         *ProtocolError
}

// CommandRequest submits a replicated state machine mutation.
type CommandRequest struct {
	Session  uint64
	Sequence uint64
	Operation []byte
}

// CommandResponse is the reply to a CommandRequest.
type CommandResponse struct {
	Status Status
	Index  uint64
	Output []byte
	Error  *ProtocolError
}

// QueryRequest submits a read-only operation at the requested consistency
// level.
type QueryRequest struct {
	Session     uint64
	Sequence    uint64
	Operation   []byte
	Consistency Consistency
}

// QueryResponse is the reply to a QueryRequest.
type QueryResponse struct {
	Status Status
	Index  uint64
	Output []byte
	Error  *ProtocolError
}

// OpenSessionRequest asks the leader to open a new client session.
type OpenSessionRequest struct {
	Timeout uint64
}

// OpenSessionResponse is the reply to an OpenSessionRequest.
type OpenSessionResponse struct {
	Status  Status
	Session uint64
	Error   *ProtocolError
}

// CloseSessionRequest asks the leader to close an existing client session.
type CloseSessionRequest struct {
	Session uint64
}

// CloseSessionResponse is the reply to a CloseSessionRequest.
type CloseSessionResponse struct {
	Status Status
	Error  *ProtocolError
}

// KeepAliveRequest renews a client session and acknowledges the command
// sequence numbers and event indices the client has already observed.
type KeepAliveRequest struct {
	Session        uint64
	CommandSequence uint64
	EventIndex     uint64
}

// KeepAliveResponse is the reply to a KeepAliveRequest.
type KeepAliveResponse struct {
	Status Status
	Error  *ProtocolError
}

// MetadataRequest asks any member for the current cluster metadata: the
// known leader and the effective configuration.
type MetadataRequest struct{}

// MetadataResponse is the reply to a MetadataRequest.
type MetadataResponse struct {
	Status        Status
	Leader        string
	Term          uint64
	Configuration Configuration
	Error         *ProtocolError
}
