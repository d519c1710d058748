package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	httpdto "github.com/vibast-solutions/ms-go-phonebook/app/dto/http"
	"github.com/vibast-solutions/ms-go-phonebook/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	HeaderAPIKey            = "X-API-Key"
	ContextKeyCallerService = "caller_service"
)

type serviceKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (string, error)
}

type APIKeyMiddleware struct {
	keyService serviceKeyValidator
}

func NewAPIKeyMiddleware(keyService serviceKeyValidator) *APIKeyMiddleware {
	return &APIKeyMiddleware{keyService: keyService}
}

func (m *APIKeyMiddleware) RequireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Let CORS preflight pass.
		if c.Request().Method == http.MethodOptions {
			return next(c)
		}

		apiKey := strings.TrimSpace(c.Request().Header.Get(HeaderAPIKey))
		if apiKey == "" {
			logrus.Debug("Missing x-api-key header")
			return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
		}

		serviceName, err := m.keyService.Validate(c.Request().Context(), apiKey)
		if err != nil {
			if errors.Is(err, service.ErrInvalidServiceKey) {
				logrus.Debug("Invalid x-api-key header")
				return c.JSON(http.StatusUnauthorized, httpdto.ErrorResponse{Error: "unauthorized"})
			}
			logrus.WithError(err).Error("API key validation failed")
			return c.JSON(http.StatusInternalServerError, httpdto.ErrorResponse{Error: "internal server error"})
		}

		c.Set(ContextKeyCallerService, serviceName)
		return next(c)
	}
}
