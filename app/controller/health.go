package controller

import (
	"context"
	"net/http"
	"time"

	httpdto "github.com/vibast-solutions/ms-go-phonebook/app/dto/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type HealthController struct {
	db pinger
}

func NewHealthController(db pinger) *HealthController {
	return &HealthController{db: db}
}

// Healthz reports whether the database answers within two seconds.
func (c *HealthController) Healthz(ctx echo.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), 2*time.Second)
	defer cancel()

	if err := c.db.PingContext(pingCtx); err != nil {
		logrus.WithError(err).Warn("Health check failed: database unreachable")
		return ctx.JSON(http.StatusServiceUnavailable, httpdto.ErrorResponse{Error: "database unavailable"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
