// Package brokertest runs an in-process options order flow data broker for tests.
package brokertest

import (
	"context"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"OptionsFlow/internal/service/broker/flowrpc"
)

// HandlerFunc answers one broker method.
type HandlerFunc func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// Server is a fake broker. Unset handlers answer Unimplemented.
type Server struct {
	Snapshot  HandlerFunc
	Configure HandlerFunc
	Status    HandlerFunc

	// NoHealth leaves the health service unregistered.
	NoHealth bool

	mu       sync.Mutex
	calls    map[string]int
	requests map[string][]*structpb.Struct
	srv      *grpc.Server
	health   *health.Server
	addr     string
}

type flowService interface {
	handle(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error)
}

func unary(method string) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
			req := &structpb.Struct{}
			if err := dec(req); err != nil {
				return nil, err
			}
			return srv.(flowService).handle(ctx, method, req)
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: flowrpc.ServiceName,
	HandlerType: (*flowService)(nil),
	Methods: []grpc.MethodDesc{
		unary(flowrpc.MethodSnapshot),
		unary(flowrpc.MethodConfigure),
		unary(flowrpc.MethodStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "optionsflow/v1/flow.proto",
}

func (s *Server) handle(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
		s.requests = make(map[string][]*structpb.Struct)
	}
	s.calls[method]++
	s.requests[method] = append(s.requests[method], req)
	s.mu.Unlock()

	var h HandlerFunc
	switch method {
	case flowrpc.MethodSnapshot:
		h = s.Snapshot
	case flowrpc.MethodConfigure:
		h = s.Configure
	case flowrpc.MethodStatus:
		h = s.Status
	}
	if h == nil {
		return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", method)
	}
	return h(ctx, req)
}

// Start listens on a free loopback port and returns its address.
// The server stops when the test ends.
func (s *Server) Start(t testing.TB) string {
	t.Helper()
	return s.StartAt(t, "127.0.0.1:0")
}

// StartAt listens on addr.
func (s *Server) StartAt(t testing.TB, addr string) string {
	t.Helper()
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("brokertest: listen %s: %v", addr, err)
	}

	s.srv = grpc.NewServer()
	s.srv.RegisterService(&serviceDesc, s)
	if !s.NoHealth {
		s.health = health.NewServer()
		s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(flowrpc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
		grpc_health_v1.RegisterHealthServer(s.srv, s.health)
	}

	go func() { _ = s.srv.Serve(lis) }()
	s.addr = lis.Addr().String()
	t.Cleanup(s.Stop)
	return s.addr
}

// SetServing changes the health status reported for the flow service.
func (s *Server) SetServing(st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	if s.health != nil {
		s.health.SetServingStatus(flowrpc.ServiceName, st)
	}
}

// Stop shuts the server down immediately.
func (s *Server) Stop() {
	if s.srv != nil {
		s.srv.Stop()
	}
}

// Calls returns how many times method was invoked.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Requests returns the payloads received for method.
func (s *Server) Requests(method string) []*structpb.Struct {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*structpb.Struct(nil), s.requests[method]...)
}

// Reply builds a Struct reply, failing the test on unsupported values.
func Reply(t testing.TB, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("brokertest: build reply: %v", err)
	}
	return s
}

// ClosedAddr returns a loopback address nothing listens on.
func ClosedAddr(t testing.TB) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("brokertest: listen: %v", err)
	}
	addr := lis.Addr().String()
	_ = lis.Close()
	return addr
}
