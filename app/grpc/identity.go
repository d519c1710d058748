package grpc

import (
	"context"

	"github.com/vibast-solutions/ms-go-phonebook/app/types"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	IdentityServiceName   = "phonebook.v1.Identity"
	resolveUserFullMethod = "/" + IdentityServiceName + "/ResolveUser"
)

// IdentityServer is implemented by the phonebook. Sibling services use it to
// turn an access token into a user. Messages travel as protobuf and are
// converted to the types package at the edge.
type IdentityServer interface {
	ResolveUser(ctx context.Context, req *types.ResolveUserRequest) (*types.ResolveUserResponse, error)
}

var IdentityServiceDesc = gogrpc.ServiceDesc{
	ServiceName: IdentityServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{
			MethodName: "ResolveUser",
			Handler:    resolveUserHandler,
		},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: identityProtoFile,
}

func RegisterIdentityServer(s gogrpc.ServiceRegistrar, srv IdentityServer) {
	s.RegisterService(&IdentityServiceDesc, srv)
}

func resolveUserHandler(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
	in := dynamicpb.NewMessage(resolveUserRequestDesc)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		res, err := srv.(IdentityServer).ResolveUser(ctx, resolveUserRequestFromProto(req.(proto.Message).ProtoReflect()))
		if err != nil {
			return nil, err
		}
		return resolveUserResponseToProto(res), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: resolveUserFullMethod,
	}
	return interceptor(ctx, in, info, handler)
}

type IdentityClient interface {
	ResolveUser(ctx context.Context, in *types.ResolveUserRequest, opts ...gogrpc.CallOption) (*types.ResolveUserResponse, error)
}

type identityClient struct {
	cc gogrpc.ClientConnInterface
}

func NewIdentityClient(cc gogrpc.ClientConnInterface) IdentityClient {
	return &identityClient{cc: cc}
}

func (c *identityClient) ResolveUser(ctx context.Context, in *types.ResolveUserRequest, opts ...gogrpc.CallOption) (*types.ResolveUserResponse, error) {
	out := dynamicpb.NewMessage(resolveUserResponseDesc)
	if err := c.cc.Invoke(ctx, resolveUserFullMethod, resolveUserRequestToProto(in), out, opts...); err != nil {
		return nil, err
	}
	return resolveUserResponseFromProto(out), nil
}
