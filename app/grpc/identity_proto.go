package grpc

import (
	"fmt"

	"github.com/vibast-solutions/ms-go-phonebook/app/types"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

const identityProtoFile = "phonebook/v1/identity.proto"

// Message descriptors of phonebook/v1/identity.proto:
//
//	message ResolveUserRequest { string access_token = 1; }
//	message ResolveUserResponse {
//	  uint64 user_id = 1; string email = 2; string username = 3;
//	  bool confirmed = 4; string avatar = 5;
//	}
var (
	resolveUserRequestDesc  protoreflect.MessageDescriptor
	resolveUserResponseDesc protoreflect.MessageDescriptor
)

func init() {
	file, err := protodesc.NewFile(identityFileDescriptor(), new(protoregistry.Files))
	if err != nil {
		panic(fmt.Sprintf("build %s: %v", identityProtoFile, err))
	}
	resolveUserRequestDesc = file.Messages().ByName("ResolveUserRequest")
	resolveUserResponseDesc = file.Messages().ByName("ResolveUserResponse")
}

func identityFileDescriptor() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(identityProtoFile),
		Package: proto.String("phonebook.v1"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("ResolveUserRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("access_token", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
			{
				Name: proto.String("ResolveUserResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("user_id", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
					scalarField("email", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalarField("username", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalarField("confirmed", 4, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					scalarField("avatar", 5, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{
			{
				Name: proto.String("Identity"),
				Method: []*descriptorpb.MethodDescriptorProto{
					{
						Name:       proto.String("ResolveUser"),
						InputType:  proto.String(".phonebook.v1.ResolveUserRequest"),
						OutputType: proto.String(".phonebook.v1.ResolveUserResponse"),
					},
				},
			},
		},
	}
}

func scalarField(name string, number int32, kind descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   kind.Enum(),
	}
}

func fieldOf(desc protoreflect.MessageDescriptor, name protoreflect.Name) protoreflect.FieldDescriptor {
	return desc.Fields().ByName(name)
}

func resolveUserRequestToProto(req *types.ResolveUserRequest) *dynamicpb.Message {
	msg := dynamicpb.NewMessage(resolveUserRequestDesc)
	msg.Set(fieldOf(resolveUserRequestDesc, "access_token"), protoreflect.ValueOfString(req.GetAccessToken()))
	return msg
}

func resolveUserRequestFromProto(msg protoreflect.Message) *types.ResolveUserRequest {
	return &types.ResolveUserRequest{
		AccessToken: msg.Get(fieldOf(resolveUserRequestDesc, "access_token")).String(),
	}
}

func resolveUserResponseToProto(res *types.ResolveUserResponse) *dynamicpb.Message {
	msg := dynamicpb.NewMessage(resolveUserResponseDesc)
	msg.Set(fieldOf(resolveUserResponseDesc, "user_id"), protoreflect.ValueOfUint64(res.UserID))
	msg.Set(fieldOf(resolveUserResponseDesc, "email"), protoreflect.ValueOfString(res.Email))
	msg.Set(fieldOf(resolveUserResponseDesc, "username"), protoreflect.ValueOfString(res.Username))
	msg.Set(fieldOf(resolveUserResponseDesc, "confirmed"), protoreflect.ValueOfBool(res.Confirmed))
	msg.Set(fieldOf(resolveUserResponseDesc, "avatar"), protoreflect.ValueOfString(res.Avatar))
	return msg
}

func resolveUserResponseFromProto(msg protoreflect.Message) *types.ResolveUserResponse {
	return &types.ResolveUserResponse{
		UserID:    msg.Get(fieldOf(resolveUserResponseDesc, "user_id")).Uint(),
		Email:     msg.Get(fieldOf(resolveUserResponseDesc, "email")).String(),
		Username:  msg.Get(fieldOf(resolveUserResponseDesc, "username")).String(),
		Confirmed: msg.Get(fieldOf(resolveUserResponseDesc, "confirmed")).Bool(),
		Avatar:    msg.Get(fieldOf(resolveUserResponseDesc, "avatar")).String(),
	}
}
