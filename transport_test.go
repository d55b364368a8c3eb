package raft

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRPCHandler is a minimal RPCHandler used only to exercise the wire
// path (gob codec + hand-built grpc.ServiceDesc), not any Raft semantics.
type fakeRPCHandler struct{}

func (fakeRPCHandler) HandleAppend(req *AppendRequest) *AppendResponse {
	return &AppendResponse{Term: req.Term + 1, Success: true}
}
func (fakeRPCHandler) HandleVote(req *VoteRequest) *VoteResponse { return &VoteResponse{} }
func (fakeRPCHandler) HandlePoll(req *PollRequest) *PollResponse { return &PollResponse{} }
func (fakeRPCHandler) HandleInstall(req *InstallRequest) *InstallResponse {
	return &InstallResponse{}
}
func (fakeRPCHandler) HandleConfigure(req *ConfigureRequest) *ConfigureResponse {
	return &ConfigureResponse{}
}
func (fakeRPCHandler) HandleCommand(req *CommandRequest) *CommandResponse { return &CommandResponse{} }
func (fakeRPCHandler) HandleQuery(req *QueryRequest) *QueryResponse      { return &QueryResponse{} }
func (fakeRPCHandler) HandleJoin(req *JoinRequest) *JoinResponse        { return &JoinResponse{} }
func (fakeRPCHandler) HandleLeave(req *LeaveRequest) *LeaveResponse    { return &LeaveResponse{} }
func (fakeRPCHandler) HandleReconfigure(req *ReconfigureRequest) *ReconfigureResponse {
	return &ReconfigureResponse{}
}
func (fakeRPCHandler) HandleOpenSession(req *OpenSessionRequest) *OpenSessionResponse {
	return &OpenSessionResponse{}
}
func (fakeRPCHandler) HandleCloseSession(req *CloseSessionRequest) *CloseSessionResponse {
	return &CloseSessionResponse{}
}
func (fakeRPCHandler) HandleKeepAlive(req *KeepAliveRequest) *KeepAliveResponse {
	return &KeepAliveResponse{}
}
func (fakeRPCHandler) HandleMetadata(req *MetadataRequest) *MetadataResponse {
	return &MetadataResponse{}
}

// TestGRPCTransportRoundTrip dials a real loopback gRPC connection through
// GRPCTransport end to end: the hand-built ServiceDesc and gob codec stand
// in for the protoc-generated stubs the teacher's transport relies on.
func TestGRPCTransportRoundTrip(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	transport := NewGRPCTransport(addr)
	require.NoError(t, transport.Start(fakeRPCHandler{}))
	t.Cleanup(func() { transport.Close() })

	target := Member{ID: "self", Address: addr}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := transport.SendAppend(ctx, target, &AppendRequest{Term: 4})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), resp.Term)
	assert.True(t, resp.Success)
}

func TestGobCodecRoundTrip(t *testing.T) {
	codec := gobCodec{}
	req := &VoteRequest{CandidateID: "a", Term: 3, LastLogIndex: 7}

	data, err := codec.Marshal(req)
	require.NoError(t, err)

	var decoded VoteRequest
	require.NoError(t, codec.Unmarshal(data, &decoded))
	assert.Equal(t, *req, decoded)
	assert.Equal(t, "raft-gob", codec.Name())
}
