package raft

import (
	"bytes"
	"context"
	"encoding/gob"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/raftcore/raft/internal/errors"
)

// Transport represents the underlying mechanism used to send and receive
// RPCs between members of a cluster. Grounded on the teacher's Transport
// interface (transport.go), narrowed to the calls the replication and
// election path actually drive; the client-facing operations (Command,
// Query, membership changes, sessions) travel over the same wire protocol
// but are reached through RaftContext's RPCHandler rather than Transport,
// since only peer-to-peer traffic needs a per-member send method.
type Transport interface {
	// Start begins accepting inbound RPCs at this transport's address,
	// dispatching each to handler.
	Start(handler RPCHandler) error

	// Close stops accepting inbound RPCs and closes any outbound
	// connections.
	Close() error

	// Address returns the address this transport listens on.
	Address() string

	SendAppend(ctx context.Context, target Member, req *AppendRequest) (*AppendResponse, error)
	SendVote(ctx context.Context, target Member, req *VoteRequest) (*VoteResponse, error)
	SendPoll(ctx context.Context, target Member, req *PollRequest) (*PollResponse, error)
	SendInstall(ctx context.Context, target Member, req *InstallRequest) (*InstallResponse, error)
	SendConfigure(ctx context.Context, target Member, req *ConfigureRequest) (*ConfigureResponse, error)
}

// envelope is the single wire message every RPC is carried in. This stands
// in for the protoc-generated service stubs the teacher's transport.go
// relies on (its pb.RaftClient): this retrieval pack carries no .proto or
// .pb.go files, so rather than fabricate generated code, the service is
// described by one hand-built grpc.ServiceDesc plus a gob-based
// grpc/encoding.Codec, keeping the real google.golang.org/grpc dependency
// without inventing a code generator's output by hand.
type envelope struct {
	Method  string
	Payload []byte
}

const gobCodecName = "raft-gob"

type gobCodec struct{}

func (gobCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return gobCodecName }

func init() {
	encoding.RegisterCodec(gobCodec{})
}

func encodePayload(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodePayload(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// rpcServer adapts an RPCHandler to the hand-built grpc.ServiceDesc below.
type rpcServer struct {
	handler RPCHandler
}

var raftServiceDesc = grpc.ServiceDesc{
	ServiceName: "raft.Raft",
	HandlerType: (*rpcServerIface)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: callHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raft.proto",
}

// rpcServerIface is the type grpc's generated code would normally use as
// HandlerType; it only needs to match what callHandler asserts srv to.
type rpcServerIface interface {
	call(ctx context.Context, in *envelope) (*envelope, error)
}

func callHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(envelope)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(rpcServerIface).call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raft.Raft/Call"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(rpcServerIface).call(ctx, req.(*envelope))
	}
	return interceptor(ctx, in, info, handler)
}

// callMethod decodes in.Payload as Req, invokes handle, and re-encodes the
// result as the reply envelope. Generic over the request/response pair so
// every RPC case in (*rpcServer).call is a one-liner instead of its own
// decode/encode block.
func callMethod[Req any, Resp any](in *envelope, handle func(*Req) *Resp) (*envelope, error) {
	var req Req
	if err := decodePayload(in.Payload, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp := handle(&req)
	payload, err := encodePayload(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &envelope{Method: in.Method, Payload: payload}, nil
}

func (s *rpcServer) call(ctx context.Context, in *envelope) (*envelope, error) {
	switch in.Method {
	case "Append":
		return callMethod(in, s.handler.HandleAppend)
	case "Vote":
		return callMethod(in, s.handler.HandleVote)
	case "Poll":
		return callMethod(in, s.handler.HandlePoll)
	case "Install":
		return callMethod(in, s.handler.HandleInstall)
	case "Configure":
		return callMethod(in, s.handler.HandleConfigure)
	case "Command":
		return callMethod(in, s.handler.HandleCommand)
	case "Query":
		return callMethod(in, s.handler.HandleQuery)
	case "Join":
		return callMethod(in, s.handler.HandleJoin)
	case "Leave":
		return callMethod(in, s.handler.HandleLeave)
	case "Reconfigure":
		return callMethod(in, s.handler.HandleReconfigure)
	case "OpenSession":
		return callMethod(in, s.handler.HandleOpenSession)
	case "CloseSession":
		return callMethod(in, s.handler.HandleCloseSession)
	case "KeepAlive":
		return callMethod(in, s.handler.HandleKeepAlive)
	case "Metadata":
		return callMethod(in, s.handler.HandleMetadata)
	default:
		return nil, status.Errorf(codes.Unimplemented, "unknown raft RPC method %q", in.Method)
	}
}

// connectionManager caches outbound client connections by address,
// grounded on the teacher's connectionManager in transport.go.
type connectionManager struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func newConnectionManager() *connectionManager {
	return &connectionManager{conns: make(map[string]*grpc.ClientConn)}
}

func (c *connectionManager) getConn(address string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if conn, ok := c.conns[address]; ok {
		return conn, nil
	}
	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.WrapError(err, "failed to dial %s: %s", address, err.Error())
	}
	c.conns[address] = conn
	return conn, nil
}

func (c *connectionManager) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil {
			return err
		}
	}
	c.conns = make(map[string]*grpc.ClientConn)
	return nil
}

// GRPCTransport implements Transport over gRPC using the gob codec and
// hand-built ServiceDesc above. Grounded on the teacher's transport struct
// in transport.go.
type GRPCTransport struct {
	address  string
	listener net.Listener
	server   *grpc.Server
	conns    *connectionManager
}

// NewGRPCTransport creates a transport that will listen on address once
// Start is called.
func NewGRPCTransport(address string) *GRPCTransport {
	return &GRPCTransport{address: address, conns: newConnectionManager()}
}

func (t *GRPCTransport) Address() string { return t.address }

func (t *GRPCTransport) Start(handler RPCHandler) error {
	listener, err := net.Listen("tcp", t.address)
	if err != nil {
		return errors.WrapError(err, "failed to listen on %s: %s", t.address, err.Error())
	}
	t.listener = listener
	t.server = grpc.NewServer()
	t.server.RegisterService(&raftServiceDesc, &rpcServer{handler: handler})
	go t.server.Serve(listener)
	return nil
}

func (t *GRPCTransport) Close() error {
	if t.server != nil {
		t.server.GracefulStop()
	}
	return t.conns.close()
}

func (t *GRPCTransport) call(ctx context.Context, target Member, method string, req interface{}) (*envelope, error) {
	conn, err := t.conns.getConn(target.Address)
	if err != nil {
		return nil, err
	}
	payload, err := encodePayload(req)
	if err != nil {
		return nil, err
	}
	in := &envelope{Method: method, Payload: payload}
	out := new(envelope)
	if err := conn.Invoke(ctx, "/raft.Raft/Call", in, out, grpc.CallContentSubtype(gobCodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *GRPCTransport) SendAppend(ctx context.Context, target Member, req *AppendRequest) (*AppendResponse, error) {
	out, err := t.call(ctx, target, "Append", req)
	if err != nil {
		return nil, err
	}
	resp := new(AppendResponse)
	return resp, decodePayload(out.Payload, resp)
}

func (t *GRPCTransport) SendVote(ctx context.Context, target Member, req *VoteRequest) (*VoteResponse, error) {
	out, err := t.call(ctx, target, "Vote", req)
	if err != nil {
		return nil, err
	}
	resp := new(VoteResponse)
	return resp, decodePayload(out.Payload, resp)
}

func (t *GRPCTransport) SendPoll(ctx context.Context, target Member, req *PollRequest) (*PollResponse, error) {
	out, err := t.call(ctx, target, "Poll", req)
	if err != nil {
		return nil, err
	}
	resp := new(PollResponse)
	return resp, decodePayload(out.Payload, resp)
}

func (t *GRPCTransport) SendInstall(ctx context.Context, target Member, req *InstallRequest) (*InstallResponse, error) {
	out, err := t.call(ctx, target, "Install", req)
	if err != nil {
		return nil, err
	}
	resp := new(InstallResponse)
	return resp, decodePayload(out.Payload, resp)
}

func (t *GRPCTransport) SendConfigure(ctx context.Context, target Member, req *ConfigureRequest) (*ConfigureResponse, error) {
	out, err := t.call(ctx, target, "Configure", req)
	if err != nil {
		return nil, err
	}
	resp := new(ConfigureResponse)
	return resp, decodePayload(out.Payload, resp)
}
