// Package grpcserver exposes the command dispatcher over gRPC.
package grpcserver

import (
	"context"
	"strings"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName    = "keygate.v1.Keygate"
	DispatchMethod = "/" + ServiceName + "/Dispatch"

	maxCommandLen = 4096
)

// Handler executes one command for an authenticated caller.
type Handler interface {
	Handle(ctx context.Context, userID int64, text string) string
}

// KeygateServer is the server API for keygate.v1.Keygate.
type KeygateServer interface {
	Dispatch(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// ServiceDesc describes keygate.v1.Keygate. Command text travels as
// google.protobuf.StringValue in both directions.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*KeygateServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: dispatchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "keygate/v1/keygate.proto",
}

func dispatchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(KeygateServer).Dispatch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DispatchMethod}
	h := func(ctx context.Context, req any) (any, error) {
		return srv.(KeygateServer).Dispatch(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, h)
}

// Register attaches srv to gs.
func Register(gs grpc.ServiceRegistrar, srv KeygateServer) {
	gs.RegisterService(&ServiceDesc, srv)
}

// Server wires the dispatcher into the gRPC handler.
type Server struct {
	handler Handler
}

var _ KeygateServer = (*Server)(nil)

// New constructs a gRPC server around h.
func New(h Handler) *Server {
	return &Server{handler: h}
}

// Dispatch runs one command line. Requires AuthUnary in the interceptor chain.
func (s *Server) Dispatch(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	userID, ok := UserIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	text := strings.TrimSpace(in.GetValue())
	if text == "" {
		return nil, status.Error(codes.InvalidArgument, "empty command")
	}
	if len(text) > maxCommandLen || !utf8.ValidString(text) {
		return nil, status.Error(codes.InvalidArgument, "bad command")
	}
	return wrapperspb.String(s.handler.Handle(ctx, userID, text)), nil
}
