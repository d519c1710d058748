package middleware

import (
	"net/http"
	"strconv"
	"time"

	httpdto "github.com/vibast-solutions/ms-go-phonebook/app/dto/http"
	"github.com/vibast-solutions/ms-go-phonebook/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// NewRateLimiter limits requests per caller: the authenticated user when
// RequireAuth ran first, the client IP otherwise. Limiters are kept in
// memory and expire after ten idle minutes.
func NewRateLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = perMinute
	}

	retryAfter := strconv.Itoa((60 + perMinute - 1) / perMinute)

	store := echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(perMinute) / 60),
		Burst:     burst,
		ExpiresIn: 10 * time.Minute,
	})

	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store:               store,
		IdentifierExtractor: callerIdentifier,
		ErrorHandler: func(c echo.Context, err error) error {
			logrus.WithError(err).Warn("Rate limiter could not identify caller")
			return c.JSON(http.StatusForbidden, httpdto.ErrorResponse{Error: "forbidden"})
		},
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			logrus.WithField("caller", identifier).Debug("Rate limit exceeded")
			c.Response().Header().Set("Retry-After", retryAfter)
			return c.JSON(http.StatusTooManyRequests, httpdto.ErrorResponse{Error: "too many requests"})
		},
	})
}

func callerIdentifier(c echo.Context) (string, error) {
	if user := CurrentUser(c); user != nil {
		return "user:" + strconv.FormatUint(user.ID, 10), nil
	}
	return "ip:" + c.RealIP(), nil
}
