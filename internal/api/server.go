// Package api exposes the module control plane over HTTP for management
// and introspection.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/audiosvc/audiod/internal/errors"
	"github.com/audiosvc/audiod/internal/logging"
	"github.com/audiosvc/audiod/internal/service"
)

// Server wraps the echo instance serving the control API.
type Server struct {
	echo   *echo.Echo
	module *service.Module
	logger *slog.Logger
}

// New builds the server and registers all routes.
func New(module *service.Module) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:   e,
		module: module,
		logger: logging.ForService("api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/ports", s.listPorts)
	v1.GET("/ports/:id", s.getPort)
	v1.GET("/ports/:id/routes", s.getPortRoutes)
	v1.POST("/ports/connect", s.connectDevice)
	v1.DELETE("/ports/:id", s.disconnectDevice)

	v1.GET("/portconfigs", s.listPortConfigs)
	v1.POST("/portconfigs", s.applyPortConfig)
	v1.DELETE("/portconfigs/:id", s.resetPortConfig)

	v1.GET("/patches", s.listPatches)
	v1.POST("/patches", s.setPatch)
	v1.DELETE("/patches/:id", s.resetPatch)

	v1.GET("/routes", s.listRoutes)
	v1.GET("/microphones", s.listMicrophones)

	v1.GET("/streams", s.listStreams)
	v1.POST("/streams", s.openStream)
	v1.DELETE("/streams/:portConfigId", s.closeStream)
	v1.GET("/streams/:portConfigId/microphones", s.activeMicrophones)

	v1.GET("/debug", s.getDebug)
	v1.PUT("/debug", s.setDebug)

	v1.GET("/controls", s.getControls)
	v1.PUT("/controls", s.setControls)
}

// Start serves requests until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("api listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps error categories onto HTTP status codes.
func (s *Server) fail(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.IsConflict(err), errors.IsState(err):
		status = http.StatusConflict
	case errors.IsCategory(err, errors.CategoryLimit):
		status = http.StatusConflict
	case errors.IsCategory(err, errors.CategoryRouting):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Request().Method, "path", c.Path(), "error", err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
