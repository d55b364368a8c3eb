package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testConfiguration(index uint64, members ...Member) Configuration {
	m := make(map[string]Member, len(members))
	for _, mem := range members {
		m[mem.ID] = mem
	}
	return NewConfiguration(index, 1, m)
}

func TestClusterConfigurationDefaultsToCommitted(t *testing.T) {
	cfg := testConfiguration(1, Member{ID: "a", Type: Active}, Member{ID: "b", Type: Active})
	c := NewCluster("a", cfg)

	assert.Equal(t, uint64(1), c.Configuration().Index)
	assert.Equal(t, 2, c.QuorumSize())
}

func TestClusterProposeTakesEffectImmediately(t *testing.T) {
	cfg := testConfiguration(1, Member{ID: "a", Type: Active})
	c := NewCluster("a", cfg)

	next := testConfiguration(2, Member{ID: "a", Type: Active}, Member{ID: "b", Type: Active})
	c.Propose(next)

	assert.Equal(t, uint64(2), c.Configuration().Index)
	assert.Equal(t, uint64(1), c.Committed().Index)
}

func TestClusterCommitClearsPending(t *testing.T) {
	cfg := testConfiguration(1, Member{ID: "a", Type: Active})
	c := NewCluster("a", cfg)

	next := testConfiguration(2, Member{ID: "a", Type: Active}, Member{ID: "b", Type: Active})
	c.Propose(next)
	c.Commit(next)

	assert.Equal(t, uint64(2), c.Committed().Index)
	assert.Equal(t, uint64(2), c.Configuration().Index)
}

func TestClusterRevertRestoresCommitted(t *testing.T) {
	cfg := testConfiguration(1, Member{ID: "a", Type: Active})
	c := NewCluster("a", cfg)

	next := testConfiguration(2, Member{ID: "a", Type: Active}, Member{ID: "b", Type: Active})
	c.Propose(next)
	c.Revert()

	assert.Equal(t, uint64(1), c.Configuration().Index)
}

type recordingListener struct {
	calls int
}

func (l *recordingListener) MembershipChanged(previous, next Configuration) {
	l.calls++
}

func TestClusterNotifiesListeners(t *testing.T) {
	cfg := testConfiguration(1, Member{ID: "a", Type: Active})
	c := NewCluster("a", cfg)
	l := &recordingListener{}
	c.AddListener(l)

	next := testConfiguration(2, Member{ID: "a", Type: Active}, Member{ID: "b", Type: Active})
	c.Propose(next)

	assert.Equal(t, 1, l.calls)
}
