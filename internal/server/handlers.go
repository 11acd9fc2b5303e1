package server

import (
	"github.com/labstack/echo/v4"
)

func (s *Server) healthHandler(ctx echo.Context) error {
	health := s.server.Health()
	if health["status"] != "up" {
		return ctx.JSON(503, health)
	}
	return ctx.JSON(200, health)
}
