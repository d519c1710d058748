package controller

import (
	"errors"
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-phonebook/app/dto/http"
	"github.com/vibast-solutions/ms-go-phonebook/app/middleware"
	"github.com/vibast-solutions/ms-go-phonebook/app/service"
	"github.com/vibast-solutions/ms-go-phonebook/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// IdentityController lets sibling services holding a service key resolve an
// access token to the user it was issued for.
type IdentityController struct {
	userAuthService service.UserAuthService
}

func NewIdentityController(userAuthService service.UserAuthService) *IdentityController {
	return &IdentityController{userAuthService: userAuthService}
}

func (c *IdentityController) ResolveUser(ctx echo.Context) error {
	req := new(types.ResolveUserRequest)
	if err := ctx.Bind(req); err != nil {
		logrus.WithError(err).Debug("Failed to bind resolve user request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	caller, _ := ctx.Get(middleware.ContextKeyCallerService).(string)
	user, err := c.userAuthService.ResolveCurrentUser(ctx.Request().Context(), req.GetAccessToken())
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			logrus.WithField("caller", caller).Debug("Resolve user failed: invalid token")
			return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid token"})
		}
		logrus.WithError(err).WithField("caller", caller).Error("Resolve user failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, types.NewResolveUserResponse(user))
}
