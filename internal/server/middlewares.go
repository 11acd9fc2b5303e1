package server

import (
	"context"

	"github.com/arvault/arvault/internal/config"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// CompanyMiddleware requires the tenant header set by the auth gateway and
// carries the company id in the request context.
func (s *Server) CompanyMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := c.Request().Header.Get(config.HEADER_KEY_X_COMPANY_ID)
		if raw == "" {
			return c.JSON(401, Res{Error: "missing_company", Message: config.HEADER_KEY_X_COMPANY_ID + " header is required"})
		}
		companyID, err := uuid.Parse(raw)
		if err != nil {
			return c.JSON(401, Res{Error: "invalid_company", Message: "invalid " + config.HEADER_KEY_X_COMPANY_ID + " header"})
		}

		ctx := context.WithValue(c.Request().Context(), config.CTX_KEY_COMPANY_ID, companyID)
		c.SetRequest(c.Request().WithContext(ctx))

		return next(c)
	}
}

func companyFromContext(c echo.Context) uuid.UUID {
	id, _ := c.Request().Context().Value(config.CTX_KEY_COMPANY_ID).(uuid.UUID)
	return id
}
