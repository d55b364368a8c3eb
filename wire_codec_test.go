package raft

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireLogEncodeDecodeRoundTrip(t *testing.T) {
	entry := NewCommandEntry(1, 2, []byte("set x 1"))
	entry.Index = 5
	entry.Term = 3

	var buf bytes.Buffer
	require.NoError(t, (WireLogEncoder{}).Encode(&buf, entry))

	decoded, err := (WireLogDecoder{}).Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, entry.Index, decoded.Index)
	assert.Equal(t, entry.Term, decoded.Term)
	assert.Equal(t, entry.Kind, decoded.Kind)
	assert.Equal(t, entry.Session, decoded.Session)
	assert.Equal(t, entry.Sequence, decoded.Sequence)
	assert.Equal(t, entry.Operation, decoded.Operation)
}

func TestWireLogEncodeDecodeConfigurationEntry(t *testing.T) {
	members := map[string]Member{
		"a": {ID: "a", Address: "127.0.0.1:9001", Type: Active},
		"b": {ID: "b", Address: "127.0.0.1:9002", Type: Passive},
	}
	entry := NewConfigurationEntry(members)
	entry.Index = 1
	entry.Term = 1

	var buf bytes.Buffer
	require.NoError(t, (WireLogEncoder{}).Encode(&buf, entry))

	decoded, err := (WireLogDecoder{}).Decode(&buf)
	require.NoError(t, err)
	require.Len(t, decoded.Members, 2)
	assert.Equal(t, Active, decoded.Members["a"].Type)
	assert.Equal(t, "127.0.0.1:9002", decoded.Members["b"].Address)
}

func TestWireStorageEncodeDecodeRoundTrip(t *testing.T) {
	cfg := testConfiguration(4, Member{ID: "a", Type: Active})
	meta := &persistentMeta{currentTerm: 7, votedFor: "a", configurationIndex: 4, configuration: &cfg}

	var buf bytes.Buffer
	require.NoError(t, (WireStorageEncoder{}).Encode(&buf, meta))

	decoded, err := (WireStorageDecoder{}).Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, meta.currentTerm, decoded.currentTerm)
	assert.Equal(t, meta.votedFor, decoded.votedFor)
	assert.Equal(t, meta.configurationIndex, decoded.configurationIndex)
	require.NotNil(t, decoded.configuration)
	assert.Len(t, decoded.configuration.Members, 1)
}
