package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryAt(index, term uint64) *LogEntry {
	e := NewCommandEntry(1, index, []byte("op"))
	e.Index = index
	e.Term = term
	return e
}

func TestLogOpenEmptyCreatesTailSegment(t *testing.T) {
	path := t.TempDir()
	log := NewLog(path)
	require.NoError(t, log.Open())
	t.Cleanup(func() { log.Close() })

	assert.True(t, log.IsOpen())
	assert.Equal(t, uint64(0), log.LastIndex())
	assert.Equal(t, uint64(0), log.FirstIndex())
}

func TestLogAppendAndGet(t *testing.T) {
	path := t.TempDir()
	log := NewLog(path)
	require.NoError(t, log.Open())
	t.Cleanup(func() { log.Close() })

	require.NoError(t, log.AppendEntries(entryAt(1, 1), entryAt(2, 1), entryAt(3, 1)))

	assert.Equal(t, uint64(3), log.LastIndex())
	assert.Equal(t, uint64(1), log.FirstIndex())
	assert.Equal(t, uint64(1), log.LastTerm())

	entry, err := log.GetEntry(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), entry.Index)
	assert.Equal(t, uint64(1), entry.Term)
}

func TestLogAppendConflictTruncatesSuffix(t *testing.T) {
	path := t.TempDir()
	log := NewLog(path)
	require.NoError(t, log.Open())
	t.Cleanup(func() { log.Close() })

	require.NoError(t, log.AppendEntries(entryAt(1, 1), entryAt(2, 1), entryAt(3, 1)))
	require.NoError(t, log.AppendEntries(entryAt(2, 2), entryAt(3, 2)))

	assert.Equal(t, uint64(3), log.LastIndex())

	entry, err := log.GetEntry(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), entry.Term)

	entry, err = log.GetEntry(3)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), entry.Term)
}

func TestLogTruncate(t *testing.T) {
	path := t.TempDir()
	log := NewLog(path)
	require.NoError(t, log.Open())
	t.Cleanup(func() { log.Close() })

	require.NoError(t, log.AppendEntries(entryAt(1, 1), entryAt(2, 1), entryAt(3, 1)))
	require.NoError(t, log.Truncate(2))

	assert.Equal(t, uint64(1), log.LastIndex())
	assert.False(t, log.Contains(2))
	assert.False(t, log.Contains(3))
}

func TestLogReopenReplaysEntries(t *testing.T) {
	path := t.TempDir()
	log := NewLog(path)
	require.NoError(t, log.Open())

	require.NoError(t, log.AppendEntries(entryAt(1, 1), entryAt(2, 1)))
	require.NoError(t, log.Close())

	reopened := NewLog(path)
	require.NoError(t, reopened.Open())
	t.Cleanup(func() { reopened.Close() })

	assert.Equal(t, uint64(2), reopened.LastIndex())
	entry, err := reopened.GetEntry(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), entry.Term)
}

func TestLogRollsSegmentsAndCompacts(t *testing.T) {
	path := t.TempDir()
	log := NewLog(path)
	log.maxSegmentEntries = 2
	require.NoError(t, log.Open())
	t.Cleanup(func() { log.Close() })

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, log.AppendEntries(entryAt(i, 1)))
	}

	assert.True(t, len(log.segments) >= 2, "expected log to have rolled over into multiple segments")
	assert.Equal(t, uint64(5), log.LastIndex())

	require.NoError(t, log.Compact(3))
	assert.False(t, log.Contains(1))
	assert.False(t, log.Contains(2))

	entry, err := log.GetEntry(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), entry.Index)
}
