package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionManagerDeduplicatesRetriedCommand(t *testing.T) {
	m := newSessionManager()
	m.open(1)

	m.recordResponse(1, 1, []byte("first"))

	cached, ok := m.cachedResponse(1, 1)
	assert.True(t, ok)
	assert.Equal(t, []byte("first"), cached)

	_, ok = m.cachedResponse(1, 2)
	assert.False(t, ok)
}

func TestSessionManagerRejectsUnknownOrClosedSession(t *testing.T) {
	m := newSessionManager()
	assert.False(t, m.isOpen(99))

	m.open(1)
	assert.True(t, m.isOpen(1))

	m.close(1)
	assert.False(t, m.isOpen(1))
}

func TestSessionManagerKeepAliveKeepsCachedResponses(t *testing.T) {
	m := newSessionManager()
	m.open(1)
	m.recordResponse(1, 1, []byte("a"))

	m.keepAlive(1)

	cached, ok := m.cachedResponse(1, 1)
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), cached)
}

func TestSessionManagerNextSessionIDMonotonic(t *testing.T) {
	m := newSessionManager()
	first := m.nextSessionID()
	second := m.nextSessionID()
	assert.Less(t, first, second)
}
