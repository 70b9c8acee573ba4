// Package api declares the formkeeper.v1.FormKeeper gRPC service.
//
// Requests and responses are protobuf well-known types (Struct, StringValue, Empty); the field layout of each
// Struct is owned by package convert.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "formkeeper.v1.FormKeeper"

// Full method names.
const (
	FormKeeper_SignIn_FullMethodName            = "/formkeeper.v1.FormKeeper/SignIn"
	FormKeeper_GetSession_FullMethodName        = "/formkeeper.v1.FormKeeper/GetSession"
	FormKeeper_GetAccessToken_FullMethodName    = "/formkeeper.v1.FormKeeper/GetAccessToken"
	FormKeeper_SignOut_FullMethodName           = "/formkeeper.v1.FormKeeper/SignOut"
	FormKeeper_ValidateDocument_FullMethodName  = "/formkeeper.v1.FormKeeper/ValidateDocument"
	FormKeeper_PrepareSubmission_FullMethodName = "/formkeeper.v1.FormKeeper/PrepareSubmission"
)

// SignInKeyHeader carries the shared key of the trusted sign-in collaborator.
const SignInKeyHeader = "x-signin-key"

// FormKeeperClient is the client API for the FormKeeper service.
type FormKeeperClient interface {
	SignIn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetSession(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetAccessToken(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	SignOut(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	ValidateDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	PrepareSubmission(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type formKeeperClient struct {
	cc grpc.ClientConnInterface
}

// NewFormKeeperClient wraps a connection.
func NewFormKeeperClient(cc grpc.ClientConnInterface) FormKeeperClient {
	return &formKeeperClient{cc}
}

func (c *formKeeperClient) SignIn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FormKeeper_SignIn_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *formKeeperClient) GetSession(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FormKeeper_GetSession_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *formKeeperClient) GetAccessToken(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, FormKeeper_GetAccessToken_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *formKeeperClient) SignOut(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, FormKeeper_SignOut_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *formKeeperClient) ValidateDocument(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FormKeeper_ValidateDocument_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *formKeeperClient) PrepareSubmission(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FormKeeper_PrepareSubmission_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// FormKeeperServer is the server API for the FormKeeper service.
// Implementations should embed UnimplementedFormKeeperServer.
type FormKeeperServer interface {
	SignIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSession(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetAccessToken(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	SignOut(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ValidateDocument(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PrepareSubmission(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedFormKeeperServer answers every method with codes.Unimplemented.
type UnimplementedFormKeeperServer struct{}

func (UnimplementedFormKeeperServer) SignIn(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SignIn not implemented")
}
func (UnimplementedFormKeeperServer) GetSession(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetSession not implemented")
}
func (UnimplementedFormKeeperServer) GetAccessToken(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetAccessToken not implemented")
}
func (UnimplementedFormKeeperServer) SignOut(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SignOut not implemented")
}
func (UnimplementedFormKeeperServer) ValidateDocument(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ValidateDocument not implemented")
}
func (UnimplementedFormKeeperServer) PrepareSubmission(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PrepareSubmission not implemented")
}

// RegisterFormKeeperServer registers srv on s.
func RegisterFormKeeperServer(s grpc.ServiceRegistrar, srv FormKeeperServer) {
	s.RegisterService(&FormKeeper_ServiceDesc, srv)
}

// unary adapts a typed server method to grpc.MethodHandler.
func unary[Req any, Resp any](fullMethod string, call func(FormKeeperServer, context.Context, *Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FormKeeperServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FormKeeperServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// FormKeeper_ServiceDesc is the grpc.ServiceDesc for the FormKeeper service.
var FormKeeper_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FormKeeperServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SignIn", Handler: unary(FormKeeper_SignIn_FullMethodName, FormKeeperServer.SignIn)},
		{MethodName: "GetSession", Handler: unary(FormKeeper_GetSession_FullMethodName, FormKeeperServer.GetSession)},
		{MethodName: "GetAccessToken", Handler: unary(FormKeeper_GetAccessToken_FullMethodName, FormKeeperServer.GetAccessToken)},
		{MethodName: "SignOut", Handler: unary(FormKeeper_SignOut_FullMethodName, FormKeeperServer.SignOut)},
		{MethodName: "ValidateDocument", Handler: unary(FormKeeper_ValidateDocument_FullMethodName, FormKeeperServer.ValidateDocument)},
		{MethodName: "PrepareSubmission", Handler: unary(FormKeeper_PrepareSubmission_FullMethodName, FormKeeperServer.PrepareSubmission)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "formkeeper/v1/formkeeper.proto",
}
