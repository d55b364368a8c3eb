/*
Package raft provides a replicated state machine built on the Raft
consensus protocol. Raft manages a replicated log across a cluster of
servers, giving every server the same sequence of committed operations
and therefore, once each applies them in order, the same state.

To use this library, first implement the StateMachine interface for
whatever is being replicated. A StateMachine must apply operations
deterministically and be safe to call from the dispatch loop.

	type Op int

	const (
	    Increment Op = iota
	    Decrement
	)

	type counter struct {
	    count int
	}

	func (c *counter) Apply(entry *raft.LogEntry) interface{} {
	    var op Op
	    buf := bytes.NewBuffer(entry.Operation)
	    if err := gob.NewDecoder(buf).Decode(&op); err != nil {
	        return err
	    }
	    switch op {
	    case Increment:
	        c.count++
	    case Decrement:
	        c.count--
	    }
	    return c.count
	}

	func (c *counter) Snapshot() (raft.Snapshot, error) {
	    var buf bytes.Buffer
	    if err := gob.NewEncoder(&buf).Encode(c.count); err != nil {
	        return raft.Snapshot{}, err
	    }
	    return raft.Snapshot{Data: buf.Bytes()}, nil
	}

	func (c *counter) Restore(snapshot *raft.Snapshot) error {
	    buf := bytes.NewBuffer(snapshot.Data)
	    return gob.NewDecoder(buf).Decode(&c.count)
	}

Next, describe the starting membership of the cluster as a
Configuration and construct a Raft instance for each server, pointing
every instance at the same bootstrap Configuration and a data
directory of its own.

	members := map[string]raft.Member{
	    "node-1": {ID: "node-1", Address: "127.0.0.1:8080", Type: raft.Active},
	    "node-2": {ID: "node-2", Address: "127.0.0.1:8081", Type: raft.Active},
	    "node-3": {ID: "node-3", Address: "127.0.0.1:8082", Type: raft.Active},
	}
	bootstrap := raft.NewConfiguration(0, 0, members)

	fsm := &counter{}
	node, err := raft.NewRaft("node-1", "127.0.0.1:8080", "/var/lib/node-1", bootstrap, fsm)
	if err != nil {
	    panic(err)
	}

Options may be passed to NewRaft to override timing parameters, the
logger, the metadata store, or the transport; sensible defaults are used
for anything left unspecified.

	node, err := raft.NewRaft("node-1", "127.0.0.1:8080", "/var/lib/node-1", bootstrap, fsm,
	    raft.WithElectionTimeout(500*time.Millisecond))

Once every instance in the cluster has been constructed, call Start on
each to begin accepting RPCs and participating in elections.

	if err := node.Start(); err != nil {
	    panic(err)
	}
	defer node.Stop()

Submit a command to the cluster with SubmitCommand; the call may be
issued against any member, and will be redirected by convention to
whichever member is leader (the response's error, if any, names the
known leader). The returned future can be awaited for the result.

	var buf bytes.Buffer
	gob.NewEncoder(&buf).Encode(Increment)

	future := node.SubmitCommand(0, 0, buf.Bytes())
	result := future.Await()
	if result.Error() != nil {
	    panic(result.Error())
	}
	count := result.Success().Output

Read-only operations are submitted with SubmitQuery, at one of three
consistency levels: Sequential (served from this replica's own applied
state, no leader round-trip needed), LinearizableLease (served by the
leader so long as its lease has not expired), or Linearizable (served by
the leader only after confirming, via a round of heartbeats, that it is
still recognized as leader by a quorum).

	future := node.SubmitQuery(0, 0, nil, raft.Linearizable)
	result := future.Await()

A client that wants exactly-once semantics for retried commands opens a
session first, and supplies its ID and an increasing sequence number on
every SubmitCommand call; a command that is retried with a
sequence number the cluster has already recorded returns the cached
first response instead of applying it twice.

	session, err := node.OpenSession()
	if err != nil {
	    panic(err)
	}
	defer node.CloseSession(session)

	future := node.SubmitCommand(session, 1, buf.Bytes())

Cluster membership changes through Join, Leave, and Reconfigure, all of
which return a Future[Configuration] resolving to the new configuration
once it has been appended. A new server joins as a Passive member (it
receives entries but does not vote) and is promoted to Active with
Reconfigure once it has caught up.

	future := node.Join("node-4", "127.0.0.1:8083")
	cfg := future.Await().Success()

	node.Reconfigure("node-4", raft.Active)
*/
package raft
