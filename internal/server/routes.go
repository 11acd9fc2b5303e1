package server

import (
	"net/http"

	"github.com/arvault/arvault/internal/config"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/time/rate"
)

// per client IP, across all asset routes
const assetRateLimit = rate.Limit(20)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.RequestID())
	e.Use(otelecho.Middleware("arvault-api", otelecho.WithSkipper(skipper)))
	e.Use(NewEchoLogger(s.logger))
	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"https://*", "http://*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", config.HEADER_KEY_X_COMPANY_ID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	e.GET("/api/health", s.healthHandler)

	var assetGroup = e.Group("/api/v1/assets",
		middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(assetRateLimit)),
		s.CompanyMiddleware,
	)
	assetGroup.POST("/upload-url", s.RequestUploadSlot)
	assetGroup.POST("/:id/complete", s.CompleteUpload)
	assetGroup.POST("/:id/retry", s.RetryUpload)
	assetGroup.GET("/:id", s.GetAsset)
	assetGroup.GET("", s.ListAssets)
	assetGroup.DELETE("/:id", s.DeleteAsset)

	return e
}
