package grpc

import (
	"context"
	"errors"

	"github.com/vibast-solutions/ms-go-phonebook/app/service"
	"github.com/vibast-solutions/ms-go-phonebook/app/types"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type IdentityService struct {
	userAuthService service.UserAuthService
}

func NewIdentityService(userAuthService service.UserAuthService) *IdentityService {
	return &IdentityService{userAuthService: userAuthService}
}

func (s *IdentityService) ResolveUser(ctx context.Context, req *types.ResolveUserRequest) (*types.ResolveUserResponse, error) {
	if err := req.Validate(); err != nil {
		logrus.Debug("Resolve user validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	caller := CallerService(ctx)
	user, err := s.userAuthService.ResolveCurrentUser(ctx, req.GetAccessToken())
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			logrus.WithField("caller", caller).Debug("Resolve user failed: invalid token (grpc)")
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		logrus.WithError(err).WithField("caller", caller).Error("Resolve user failed (grpc)")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	logrus.WithFields(logrus.Fields{
		"caller":  caller,
		"user_id": user.ID,
	}).Debug("User resolved (grpc)")
	return types.NewResolveUserResponse(user), nil
}
