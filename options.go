package raft

import (
	"time"

	"github.com/raftcore/raft/internal/errors"
	"github.com/raftcore/raft/internal/logger"
)

// options holds the configurable parameters of a Raft instance, assembled
// by applying a sequence of Option functions over a set of defaults.
type options struct {
	electionTimeout   time.Duration
	heartbeatInterval time.Duration
	leaseDuration     time.Duration
	operationTimeout  time.Duration

	logger *logger.Logger

	metaStore MetaStore
	transport Transport
}

// Option configures a Raft instance.
type Option func(*options) error

// WithElectionTimeout sets the minimum election timeout. A random duration
// between electionTimeout and 2*electionTimeout is chosen each time a
// Follower or Candidate schedules its next election.
func WithElectionTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout < minElectionTimeout || timeout > maxElectionTimeout {
			return errors.New("election timeout is outside of allowed range")
		}
		o.electionTimeout = timeout
		return nil
	}
}

// WithHeartbeatInterval sets the interval between AppendRequest heartbeats
// sent by the leader.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(o *options) error {
		if interval < minHeartbeat || interval > maxHeartbeat {
			return errors.New("heartbeat interval is outside of allowed range")
		}
		o.heartbeatInterval = interval
		return nil
	}
}

// WithLeaseDuration sets how long a leader's lease remains valid after
// renewal. Should generally be much shorter than the election timeout.
func WithLeaseDuration(leaseDuration time.Duration) Option {
	return func(o *options) error {
		if leaseDuration < minLeaseDuration || leaseDuration > maxLeaseDuration {
			return errors.New("lease duration is outside of allowed range")
		}
		o.leaseDuration = leaseDuration
		return nil
	}
}

// WithOperationTimeout sets how long SubmitCommand/SubmitQuery wait for a
// result before their future times out.
func WithOperationTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		o.operationTimeout = timeout
		return nil
	}
}

// WithLogger sets the logger used by the Raft instance.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) error {
		if l == nil {
			return errors.New("logger must not be nil")
		}
		o.logger = l
		return nil
	}
}

// WithMetaStore sets the MetaStore used to persist term, vote, and
// configuration. Useful for substituting a custom or in-memory store.
func WithMetaStore(store MetaStore) Option {
	return func(o *options) error {
		if store == nil {
			return errors.New("meta store must not be nil")
		}
		o.metaStore = store
		return nil
	}
}

// WithTransport sets the network transport used to send and receive RPCs.
func WithTransport(transport Transport) Option {
	return func(o *options) error {
		if transport == nil {
			return errors.New("transport must not be nil")
		}
		o.transport = transport
		return nil
	}
}
