package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-phonebook/app/service"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const metadataAPIKey = "x-api-key"

type callerServiceKey struct{}

type serviceKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (string, error)
}

func APIKeyUnaryInterceptor(keys serviceKeyValidator) gogrpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *gogrpc.UnaryServerInfo, handler gogrpc.UnaryHandler) (any, error) {
		serviceName, err := validateIncomingAPIKey(ctx, keys)
		if err != nil {
			return nil, err
		}

		return handler(context.WithValue(ctx, callerServiceKey{}, serviceName), req)
	}
}

func APIKeyStreamInterceptor(keys serviceKeyValidator) gogrpc.StreamServerInterceptor {
	return func(srv any, ss gogrpc.ServerStream, _ *gogrpc.StreamServerInfo, handler gogrpc.StreamHandler) error {
		serviceName, err := validateIncomingAPIKey(ss.Context(), keys)
		if err != nil {
			return err
		}

		ctx := context.WithValue(ss.Context(), callerServiceKey{}, serviceName)
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// CallerService returns the service name bound to the caller's key, or an
// empty string outside an intercepted call.
func CallerService(ctx context.Context) string {
	name, _ := ctx.Value(callerServiceKey{}).(string)
	return name
}

func validateIncomingAPIKey(ctx context.Context, keys serviceKeyValidator) (string, error) {
	apiKey := incomingAPIKeyFromMetadata(ctx)
	if apiKey == "" {
		return "", status.Error(codes.Unauthenticated, "unauthorized")
	}

	serviceName, err := keys.Validate(ctx, apiKey)
	if err != nil {
		if errors.Is(err, service.ErrInvalidServiceKey) {
			return "", status.Error(codes.Unauthenticated, "unauthorized")
		}
		logrus.WithError(err).Error("Service key validation failed (grpc)")
		return "", status.Error(codes.Internal, "internal server error")
	}

	return serviceName, nil
}

func incomingAPIKeyFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(metadataAPIKey)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

type wrappedServerStream struct {
	gogrpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
