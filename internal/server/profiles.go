package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthtwin-labs/healthtwin/internal/agent/telemetry"
	"github.com/healthtwin-labs/healthtwin/internal/profile"
)

type ProfileHandler struct {
	Profiles profile.Store
}

func (h *ProfileHandler) Register(g *echo.Group, secret []byte) {
	g.Use(AuthMiddleware(secret))
	g.GET("", h.get)
}

func (h *ProfileHandler) get(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	p, err := h.Profiles.Load(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			return c.JSON(http.StatusOK, profile.New(userID))
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

// CostReporter is the telemetry slice the admin endpoint reads.
type CostReporter interface {
	CostSummary() telemetry.CostTracker
}

type AdminHandler struct {
	Costs CostReporter
}

func (h *AdminHandler) Register(g *echo.Group, secret []byte) {
	g.Use(AuthMiddleware(secret))
	g.GET("/costs", h.costs)
}

func (h *AdminHandler) costs(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Costs.CostSummary())
}
