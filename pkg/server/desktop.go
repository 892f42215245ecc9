package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docker/deskpilot/pkg/action"
	"github.com/docker/deskpilot/pkg/desktop"
	"github.com/docker/deskpilot/pkg/runtime"
	"github.com/docker/deskpilot/pkg/version"
)

type actionResponse struct {
	Action action.Descriptor `json:"action"`
	Result action.Result     `json:"result"`
}

func (s *Server) screenshot(c echo.Context) error {
	img, err := s.desktop.Screenshot(c.Request().Context())
	if err != nil {
		slog.Error("Screenshot failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "screenshot failed: "+err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"image": img})
}

func (s *Server) resetDesktop(c echo.Context) error {
	ctx := c.Request().Context()
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.desktop.Reset(ctx); err != nil {
		if errors.Is(err, desktop.ErrNotRestartable) {
			return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
		}
		slog.Error("Desktop reset failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "reset failed: "+err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "restarted"})
}

// runAction executes one loosely typed action outside any session, with the
// same normalization the loop applies to model output.
func (s *Server) runAction(c echo.Context) error {
	var raw map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid action")
	}
	d := action.Normalize(raw)
	if d.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "action is required")
	}

	ctx := c.Request().Context()
	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	res := s.executor.Execute(ctx, d)
	return c.JSON(http.StatusOK, actionResponse{Action: d, Result: res})
}

// acquire takes the desktop lock when the desktop has one, so direct use
// does not interleave with a running invocation.
func (s *Server) acquire(ctx context.Context) (func(), error) {
	locker, ok := s.desktop.(runtime.Locker)
	if !ok || s.settings.Load().ShareDesktop {
		return func() {}, nil
	}
	release, err := locker.Acquire(ctx)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "desktop is busy")
	}
	return release, nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  version.String(),
		"sessions": s.registry.Len(),
	})
}
