package raft

import (
	"sync"
)

// ClusterListener is notified when the cluster's configuration changes.
type ClusterListener interface {
	// MembershipChanged is called after a new configuration has been
	// installed, with the previous and new configuration.
	MembershipChanged(previous, next Configuration)
}

// Cluster owns the live membership view of the server: the most recently
// installed Configuration, plus any configuration that has been appended to
// the log but not yet committed. It is the in-memory counterpart of
// MetaStore, which holds only the last *committed* configuration.
//
// Grounded on the teacher's peers map in raft.go (pkg/raft.go's
// map[string]Peer plus Configuration.IsVoter), generalized to the four
// MemberType values and split out as its own component per §4.3.
type Cluster struct {
	mu        sync.RWMutex
	self      string
	committed Configuration
	pending   *Configuration
	listeners []ClusterListener
}

// NewCluster creates a Cluster for the server identified by self, seeded
// with the bootstrap configuration.
func NewCluster(self string, bootstrap Configuration) *Cluster {
	return &Cluster{self: self, committed: bootstrap.Clone()}
}

// Self returns the local member's ID.
func (c *Cluster) Self() string {
	return c.self
}

// AddListener registers a listener for future configuration changes.
func (c *Cluster) AddListener(l ClusterListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Configuration returns the effective configuration: the pending one, if a
// configuration change is in flight, otherwise the last committed one.
func (c *Cluster) Configuration() Configuration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pending != nil {
		return c.pending.Clone()
	}
	return c.committed.Clone()
}

// Committed returns the last committed configuration.
func (c *Cluster) Committed() Configuration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.committed.Clone()
}

// SelfMember returns the local member's entry in the effective
// configuration, and whether it is present at all.
func (c *Cluster) SelfMember() (Member, bool) {
	cfg := c.Configuration()
	m, ok := cfg.Members[c.self]
	return m, ok
}

// MemberProgress returns the live entry for id from the effective
// configuration, without cloning, for callers (the replicator) that only
// need to read the leader-only NextIndex/MatchIndex bookkeeping.
func (c *Cluster) MemberProgress(id string) (Member, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	view := c.committed
	if c.pending != nil {
		view = *c.pending
	}
	m, ok := view.Members[id]
	return m, ok
}

// UpdateMemberProgress mutates the leader-only replication bookkeeping
// (NextIndex, MatchIndex, AppendPending, FailureCount, LastHeartbeatTime)
// of member id in place, in whichever of committed/pending is currently
// effective. It never fires a MembershipChanged notification: unlike
// Propose/Revert, this does not represent a membership change, only a
// leader's private tracking of replication progress.
func (c *Cluster) UpdateMemberProgress(id string, fn func(*Member)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := &c.committed
	if c.pending != nil {
		target = c.pending
	}
	m, ok := target.Members[id]
	if !ok {
		return
	}
	fn(&m)
	target.Members[id] = m
}

// Propose installs cfg as the pending configuration: it has been appended
// to the log (possibly not yet committed) and should immediately take
// effect for voting and replication purposes, per Raft's single-step
// reconfiguration rule (a new configuration applies as soon as it is
// appended, not once it commits).
func (c *Cluster) Propose(cfg Configuration) {
	c.mu.Lock()
	var previous Configuration
	if c.pending != nil {
		previous = c.pending.Clone()
	} else {
		previous = c.committed.Clone()
	}
	clone := cfg.Clone()
	c.pending = &clone
	c.mu.Unlock()

	c.notify(previous, clone)
}

// Commit marks the most recently proposed configuration as committed. If
// the pending configuration's index is at or below cfg's index, the pending
// slot is cleared; a stale or out-of-order commit (cfg older than what's already
// committed) is ignored.
func (c *Cluster) Commit(cfg Configuration) {
	c.mu.Lock()
	if cfg.Index < c.committed.Index {
		c.mu.Unlock()
		return
	}

	c.committed = cfg.Clone()
	if c.pending != nil && c.pending.Index <= cfg.Index {
		c.pending = nil
	}
	c.mu.Unlock()
}

// Revert discards a pending configuration whose entry was truncated away
// (the leader that proposed it lost an election before it committed),
// reverting to the last committed configuration.
func (c *Cluster) Revert() {
	c.mu.Lock()
	var previous Configuration
	if c.pending != nil {
		previous = c.pending.Clone()
	} else {
		previous = c.committed.Clone()
	}
	c.pending = nil
	reverted := c.committed.Clone()
	c.mu.Unlock()

	c.notify(previous, reverted)
}

// clusterLogger is the production ClusterListener: it logs every member
// add/remove implied by a configuration change, the way the rest of the
// codebase surfaces state transitions (see RaftContext.transitionLocked).
type clusterLogger struct {
	ctx *RaftContext
}

func (l *clusterLogger) MembershipChanged(previous, next Configuration) {
	if l.ctx.logger == nil {
		return
	}
	for id, m := range next.Members {
		if _, ok := previous.Members[id]; !ok {
			l.ctx.logger.Infof("%s: member %s (%s) added at configuration index %d", l.ctx.id, id, m.Type, next.Index)
		}
	}
	for id := range previous.Members {
		if _, ok := next.Members[id]; !ok {
			l.ctx.logger.Infof("%s: member %s removed at configuration index %d", l.ctx.id, id, next.Index)
		}
	}
}

func (c *Cluster) notify(previous, next Configuration) {
	c.mu.RLock()
	listeners := make([]ClusterListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()

	for _, l := range listeners {
		l.MembershipChanged(previous, next)
	}
}

// QuorumSize returns the number of ACTIVE members needed for a majority
// under the effective configuration.
func (c *Cluster) QuorumSize() int {
	return c.Configuration().QuorumSize()
}

// ActiveIDs returns the IDs of all ACTIVE members under the effective
// configuration.
func (c *Cluster) ActiveIDs() []string {
	return c.Configuration().ActiveIDs()
}
