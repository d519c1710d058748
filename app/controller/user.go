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

type UserController struct {
	userAuthService service.UserAuthService
}

func NewUserController(userAuthService service.UserAuthService) *UserController {
	return &UserController{userAuthService: userAuthService}
}

func (c *UserController) Me(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if user == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "not authenticated"})
	}
	return ctx.JSON(http.StatusOK, types.NewUserResponse(user))
}

func (c *UserController) UpdateAvatar(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if user == nil {
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "not authenticated"})
	}

	upload, err := types.NewAvatarUploadFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to read avatar upload")
		if errors.Is(err, types.ErrAvatarMissing) {
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = upload.Validate(); err != nil {
		logrus.WithField("user_id", user.ID).Debug("Avatar validation failed")
		if errors.Is(err, types.ErrAvatarTooLarge) {
			return ctx.JSON(http.StatusRequestEntityTooLarge, httpdto.ErrorResponse{Error: err.Error()})
		}
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	updated, err := c.userAuthService.UploadAvatar(ctx.Request().Context(), user, upload)
	if err != nil {
		if errors.Is(err, service.ErrAvatarUploadDisabled) {
			logrus.Warn("Avatar upload rejected: storage not configured")
			return ctx.JSON(http.StatusServiceUnavailable, httpdto.ErrorResponse{Error: "avatar upload is not available"})
		}
		logrus.WithError(err).WithField("user_id", user.ID).Error("Avatar upload failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("user_id", user.ID).Info("Avatar updated")
	return ctx.JSON(http.StatusOK, types.NewUserResponse(updated))
}
