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

const (
	signupDetail        = "User successfully created. Check your email for confirmation."
	requestEmailMessage = "Check your email for confirmation."
)

type UserAuthController struct {
	userAuthService service.UserAuthService
}

func NewUserAuthController(userAuthService service.UserAuthService) *UserAuthController {
	return &UserAuthController{userAuthService: userAuthService}
}

func (c *UserAuthController) Signup(ctx echo.Context) error {
	req, err := types.NewSignupRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind signup request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Signup validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	logrus.WithField("email", req.Email).Info("Signup request received")
	user, err := c.userAuthService.Signup(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrUserExists) {
			logrus.WithField("email", req.Email).Warn("Signup failed: account already exists")
			return ctx.JSON(http.StatusConflict, httpdto.ErrorResponse{Error: "account already exists"})
		}
		if errors.Is(err, service.ErrWeakPassword) || errors.Is(err, service.ErrInvalidUsername) {
			logrus.WithField("email", req.Email).Warn("Signup failed: policy violation")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Signup failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("User signed up")

	return ctx.JSON(http.StatusCreated, &types.SignupResponse{
		User:   types.NewUserResponse(user),
		Detail: signupDetail,
	})
}

func (c *UserAuthController) Login(ctx echo.Context) error {
	req, err := types.NewLoginRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.WithField("email", req.Email).Debug("Login validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	result, err := c.userAuthService.Login(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			logrus.WithField("email", req.Email).Warn("Login failed: invalid credentials")
			return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid credentials"})
		}
		if errors.Is(err, service.ErrAccountNotConfirmed) {
			logrus.WithField("email", req.Email).Warn("Login failed: email not confirmed")
			return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "email not confirmed"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Login failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("email", req.Email).Info("Login successful")
	return ctx.JSON(http.StatusOK, result)
}

// RefreshToken exchanges the refresh token sent as a bearer credential for a
// new token pair.
func (c *UserAuthController) RefreshToken(ctx echo.Context) error {
	refreshToken := types.BearerToken(ctx)
	if refreshToken == "" {
		logrus.Debug("Refresh token missing from authorization header")
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid refresh token"})
	}

	result, err := c.userAuthService.Refresh(ctx.Request().Context(), refreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) {
			logrus.Warn("Refresh failed: invalid refresh token")
			return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "invalid refresh token"})
		}
		logrus.WithError(err).Error("Refresh failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, result)
}

func (c *UserAuthController) ConfirmedEmail(ctx echo.Context) error {
	result, err := c.userAuthService.ConfirmEmail(ctx.Request().Context(), ctx.Param("token"))
	if err != nil {
		if errors.Is(err, service.ErrVerification) {
			logrus.Warn("Email confirmation failed: verification error")
			return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "verification error"})
		}
		logrus.WithError(err).Error("Email confirmation failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	if result.AlreadyConfirmed {
		return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Your email is already confirmed"})
	}

	logrus.WithField("email", result.Email).Info("Email confirmed")
	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "Email confirmed"})
}

// RequestEmail answers the same way whether or not the account exists.
func (c *UserAuthController) RequestEmail(ctx echo.Context) error {
	req, err := types.NewRequestEmailRequestFromContext(ctx)
	if err != nil {
		logrus.WithError(err).Debug("Failed to bind request email request")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: "invalid request body"})
	}

	if err = req.Validate(); err != nil {
		logrus.Debug("Request email validation failed")
		return ctx.JSON(http.StatusBadRequest, httpdto.ErrorResponse{Error: err.Error()})
	}

	if err = c.userAuthService.RequestEmail(ctx.Request().Context(), req); err != nil {
		logrus.WithError(err).WithField("email", req.Email).Error("Request email failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: requestEmailMessage})
}

func (c *UserAuthController) Logout(ctx echo.Context) error {
	user := middleware.CurrentUser(ctx)
	if user == nil {
		logrus.Warn("Logout failed: missing user in context")
		return ctx.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "not authenticated"})
	}

	if err := c.userAuthService.Logout(ctx.Request().Context(), user); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Logout failed")
		return ctx.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("user_id", user.ID).Info("Logout successful")
	return ctx.JSON(http.StatusOK, &types.MessageResponse{Message: "logged out successfully"})
}
