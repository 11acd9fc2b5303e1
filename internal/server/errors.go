package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/arvault/arvault/internal/usecase"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// errorResponse maps usecase errors to HTTP. A FAILED snapshot returned with
// ErrProcessingFailed is sent as data so clients see the recorded reason.
func (s *Server) errorResponse(ctx echo.Context, err error, snapshot ...usecase.Asset) error {
	var (
		nf    usecase.ErrNotFound
		val   usecase.ErrValidation
		cf    usecase.ErrConflict
		it    usecase.ErrInvalidTransition
		pf    usecase.ErrProcessingFailed
		infra usecase.ErrInfrastructure
	)

	switch {
	case errors.As(err, &val):
		return ctx.JSON(422, Res{Error: "validation_failed", Message: val.Error()})
	case errors.As(err, &nf):
		return ctx.JSON(404, Res{Error: nf.Code, Message: nf.Message})
	case errors.As(err, &cf):
		return ctx.JSON(409, Res{Error: cf.Code, Message: cf.Message})
	case errors.As(err, &it):
		return ctx.JSON(409, Res{
			Error:   "invalid_transition",
			Message: fmt.Sprintf("asset is %s and cannot move to %s", it.From, it.To),
		})
	case errors.As(err, &pf):
		res := Res{Error: "processing_failed", Message: pf.Message}
		if len(snapshot) > 0 && snapshot[0].ID != uuid.Nil {
			res.Data = toAsset(snapshot[0])
		}
		return ctx.JSON(422, res)
	case errors.As(err, &infra):
		s.logger.WarnContext(ctx.Request().Context(), "dependency unavailable",
			slog.String("op", infra.Op), slog.String("err", infra.Err.Error()))
		ctx.Response().Header().Set("Retry-After", "5")
		return ctx.JSON(503, Res{Error: "service_unavailable", Message: "a dependency is temporarily unavailable, retry later"})
	}

	s.logger.ErrorContext(ctx.Request().Context(), "unhandled error", slog.String("err", err.Error()))
	return ctx.JSON(500, Res{Error: "internal_error", Message: http.StatusText(500)})
}

func (s *Server) httpErrorHandler(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		_ = ctx.JSON(he.Code, Res{Error: http.StatusText(he.Code), Message: msg})
		return
	}
	_ = s.errorResponse(ctx, err)
}
