package raft

// EntryKind tags the payload carried by a LogEntry.
type EntryKind uint32

const (
	// CommandKind is a client state-machine mutation.
	CommandKind EntryKind = iota

	// QueryKind is recorded only for linearizable reads that require log
	// placement (a "read-index" barrier entry).
	QueryKind

	// OpenSessionKind begins a client session.
	OpenSessionKind

	// CloseSessionKind ends a client session.
	CloseSessionKind

	// KeepAliveKind renews a client session and acknowledges applied
	// command sequences.
	KeepAliveKind

	// ConfigurationKind carries a cluster membership change.
	ConfigurationKind

	// InitializeKind is the leader's no-op entry written at the start of
	// each term, used to detect whether an entry from the current term has
	// committed before serving linearizable reads.
	InitializeKind
)

// String returns the name of the entry kind.
func (k EntryKind) String() string {
	switch k {
	case CommandKind:
		return "command"
	case QueryKind:
		return "query"
	case OpenSessionKind:
		return "openSession"
	case CloseSessionKind:
		return "closeSession"
	case KeepAliveKind:
		return "keepAlive"
	case ConfigurationKind:
		return "configuration"
	case InitializeKind:
		return "initialize"
	default:
		panic("invalid entry kind")
	}
}

// Consistency is the read consistency level requested by a QueryEntry.
type Consistency uint32

const (
	// Sequential reads may be served from any up-to-date replica without
	// contacting the leader.
	Sequential Consistency = iota

	// LinearizableLease reads are served by the leader after confirming
	// leadership via its lease.
	LinearizableLease

	// Linearizable reads are served by the leader only after a read-index
	// barrier confirms leadership via a round of heartbeats.
	Linearizable
)

// String returns the name of the consistency level.
func (c Consistency) String() string {
	switch c {
	case Sequential:
		return "sequential"
	case LinearizableLease:
		return "linearizableLease"
	case Linearizable:
		return "linearizable"
	default:
		panic("invalid consistency level")
	}
}

// LogEntry is the unit of replication. The fields that apply depend on Kind:
// CommandKind/QueryKind use Session/Sequence/Operation(/Consistency);
// OpenSessionKind/CloseSessionKind/KeepAliveKind use Session (and, for
// KeepAlive, Sequence, holding the client's command sequence);
// ConfigurationKind uses Members;
// InitializeKind uses no payload fields at all.
type LogEntry struct {
	// Index is the position of the entry in the log.
	Index uint64

	// Term is the term in which the entry was appended by the leader.
	Term uint64

	// Timestamp is the time the entry was created, in unix milliseconds.
	Timestamp uint64

	// Kind tags which payload fields are meaningful.
	Kind EntryKind

	// Session is the client session ID associated with a command, query,
	// open/close/keep-alive entry.
	Session uint64

	// Sequence is the per-session sequence number of a command or query,
	// used for deduplication.
	Sequence uint64

	// Operation is the opaque, state-machine-specific operation bytes for
	// a command or query entry.
	Operation []byte

	// Consistency is the consistency level requested by a query entry.
	Consistency Consistency

	// Members is the membership set carried by a configuration entry.
	Members map[string]Member

	// offset is the byte offset of this entry within its segment file,
	// populated by the log on append and used for truncation.
	offset int64
}

// IsConflict reports whether two entries at the same index disagree on
// term, meaning one of them must be truncated away.
func (e *LogEntry) IsConflict(other *LogEntry) bool {
	return e.Index == other.Index && e.Term != other.Term
}

// NewCommandEntry creates a CommandKind entry. Index and Term are assigned
// by the log/leader on append.
func NewCommandEntry(session, sequence uint64, operation []byte) *LogEntry {
	return &LogEntry{Kind: CommandKind, Session: session, Sequence: sequence, Operation: operation}
}

// NewQueryEntry creates a QueryKind entry recording a linearizable read's
// position in the log.
func NewQueryEntry(session, sequence uint64, operation []byte, consistency Consistency) *LogEntry {
	return &LogEntry{Kind: QueryKind, Session: session, Sequence: sequence, Operation: operation, Consistency: consistency}
}

// NewConfigurationEntry creates a ConfigurationKind entry.
func NewConfigurationEntry(members map[string]Member) *LogEntry {
	copied := make(map[string]Member, len(members))
	for id, m := range members {
		copied[id] = m
	}
	return &LogEntry{Kind: ConfigurationKind, Members: copied}
}

// NewInitializeEntry creates the leader's per-term no-op entry.
func NewInitializeEntry() *LogEntry {
	return &LogEntry{Kind: InitializeKind}
}
