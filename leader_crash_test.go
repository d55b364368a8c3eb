package raft

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
)

// TestClusterReElectsAfterLeaderCrash stops the elected leader of a
// three-node cluster and checks that one of the two survivors wins a new,
// strictly higher term -- election safety (§5.3) holding across a crash.
func TestClusterReElectsAfterLeaderCrash(t *testing.T) {
	defer leaktest.CheckTimeout(t, 1*time.Second)

	cfg := threeMemberConfig()
	transport := newFakeTransport()

	a := newTestContext(t, "a", transport, cfg)
	b := newTestContext(t, "b", transport, cfg)
	c := newTestContext(t, "c", transport, cfg)
	transport.register("a", a)
	transport.register("b", b)
	transport.register("c", c)

	contexts := []*RaftContext{a, b, c}
	for _, ctx := range contexts {
		ctx.Start()
	}

	leader := waitForLeader(t, contexts...)
	var firstTerm uint64
	leader.run(func() { firstTerm = leader.currentTerm })

	leader.Stop()
	// Drop the crashed leader from the transport so the survivors' RPCs to
	// it fail cleanly instead of reaching a stopped dispatch loop.
	delete(transport.peers, leader.id)

	survivors := make([]*RaftContext, 0, 2)
	for _, ctx := range contexts {
		if ctx != leader {
			survivors = append(survivors, ctx)
		}
	}
	defer func() {
		for _, ctx := range survivors {
			ctx.Stop()
		}
	}()

	newLeader := waitForLeader(t, survivors...)

	var newTerm uint64
	newLeader.run(func() { newTerm = newLeader.currentTerm })
	if newTerm <= firstTerm {
		t.Fatalf("expected new leader's term %d to exceed old leader's term %d", newTerm, firstTerm)
	}
	if newLeader == leader {
		t.Fatal("crashed leader should not be the one reported as the new leader")
	}
}
