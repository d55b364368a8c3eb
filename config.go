package raft

import "time"

// Default and bounding values for the timing parameters that govern
// elections, replication, and leader leases. Bounds keep a misconfigured
// cluster from picking timeouts so extreme they defeat the algorithm (a
// heartbeat interval close to the election timeout, for instance, leaves no
// margin for a lost packet before a spurious election).
const (
	defaultElectionTimeout = 300 * time.Millisecond
	minElectionTimeout     = 150 * time.Millisecond
	maxElectionTimeout     = 1000 * time.Millisecond

	defaultHeartbeat = 50 * time.Millisecond
	minHeartbeat     = 25 * time.Millisecond
	maxHeartbeat     = 500 * time.Millisecond

	defaultLeaseDuration = 100 * time.Millisecond
	minLeaseDuration     = 10 * time.Millisecond
	maxLeaseDuration     = 500 * time.Millisecond

	// defaultOperationTimeout bounds how long SubmitCommand/SubmitQuery
	// wait for a result before giving up.
	defaultOperationTimeout = 2 * time.Second
)

// Config is the user-facing, serializable summary of the timing parameters
// a Raft instance is running with, useful for logging and the Metadata RPC.
type Config struct {
	ElectionTimeout   time.Duration
	HeartbeatInterval time.Duration
	LeaseDuration     time.Duration
}

// defaultOptions returns the options every Raft instance starts from before
// the caller's Option funcs are applied.
func defaultOptions() options {
	return options{
		electionTimeout:   defaultElectionTimeout,
		heartbeatInterval: defaultHeartbeat,
		leaseDuration:     defaultLeaseDuration,
		operationTimeout:  defaultOperationTimeout,
	}
}
