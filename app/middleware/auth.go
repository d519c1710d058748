package middleware

import (
	"context"
	"errors"
	"net/http"

	httpdto "github.com/vibast-solutions/ms-go-phonebook/app/dto/http"
	"github.com/vibast-solutions/ms-go-phonebook/app/entity"
	"github.com/vibast-solutions/ms-go-phonebook/app/service"
	"github.com/vibast-solutions/ms-go-phonebook/app/types"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const ContextKeyUser = "user"

type currentUserResolver interface {
	ResolveCurrentUser(ctx context.Context, accessToken string) (*entity.User, error)
}

type AuthMiddleware struct {
	authService currentUserResolver
}

func NewAuthMiddleware(authService currentUserResolver) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// RequireAuth resolves the bearer access token to a user and stores it in
// the echo context under ContextKeyUser.
func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		accessToken := types.BearerToken(c)
		if accessToken == "" {
			logrus.Debug("Missing or malformed authorization header")
			return unauthorized(c, "not authenticated")
		}

		user, err := m.authService.ResolveCurrentUser(c.Request().Context(), accessToken)
		if err != nil {
			if errors.Is(err, service.ErrInvalidToken) {
				logrus.Debug("Invalid or expired access token")
				return unauthorized(c, "could not validate credentials")
			}
			logrus.WithError(err).Error("Failed to resolve current user")
			return c.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
		}

		c.Set(ContextKeyUser, user)
		return next(c)
	}
}

// CurrentUser returns the user stored by RequireAuth, or nil.
func CurrentUser(c echo.Context) *entity.User {
	user, _ := c.Get(ContextKeyUser).(*entity.User)
	return user
}

func unauthorized(c echo.Context, message string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: message})
}
