package grpc

import (
	"context"
	"net"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
)

func TestGetConnectionReusesTarget(t *testing.T) {
	p := NewPool()
	defer p.Close()

	a, err := p.GetConnection("localhost:50051")
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	b, err := p.GetConnection("localhost:50051")
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if a != b {
		t.Fatalf("expected the same connection for the same target")
	}

	c, err := p.GetConnection("localhost:50052")
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if c == a {
		t.Fatalf("expected a different connection for a different target")
	}
}

func TestGetConnectionReplacesClosed(t *testing.T) {
	p := NewPool()
	defer p.Close()

	a, _ := p.GetConnection("localhost:50051")
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := p.GetConnection("localhost:50051")
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}
	if a == b {
		t.Fatalf("expected a fresh connection after shutdown")
	}
}

func TestLoggingInterceptorOverBufconn(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "test.Echo",
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Fail",
			Handler: func(_ any, _ context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
				in := new(emptypb.Empty)
				if err := dec(in); err != nil {
					return nil, err
				}
				return nil, status.Error(codes.PermissionDenied, "nope")
			},
		}},
	}, struct{}{})
	go func() { _ = s.Serve(lis) }()
	defer s.Stop()

	core, logs := observer.New(zap.DebugLevel)
	p := NewPool(WithInterceptor(LoggingInterceptor(zap.New(core))))
	defer p.Close()

	conn, err := p.GetConnection("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("get connection: %v", err)
	}

	err = conn.Invoke(context.Background(), "/test.Echo/Fail", &emptypb.Empty{}, &emptypb.Empty{})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied got %v", err)
	}
	entries := logs.FilterMessage("rpc failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one failure log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["method"]; got != "/test.Echo/Fail" {
		t.Fatalf("unexpected method field %v", got)
	}
}
