package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/99minutos/job-tracking/internal/api/docs"
	"github.com/99minutos/job-tracking/internal/api/handler"
	"github.com/99minutos/job-tracking/internal/api/middleware"
	"github.com/99minutos/job-tracking/internal/core/domain"
	"github.com/99minutos/job-tracking/internal/core/ports"
)

// Deps are the collaborators the business router needs.
type Deps struct {
	Dispatcher handler.PositionDispatcher
	Tracking   ports.TrackingService
	JWTSecret  string
	Log        zerolog.Logger
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(echomiddleware.BodyLimit("1M"))

	positionHandler := handler.NewPositionHandler(deps.Dispatcher)
	trackingHandler := handler.NewTrackingHandler(deps.Tracking)

	// --- API docs (no auth required) ---
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := e.Group("/v1", middleware.Auth(deps.JWTSecret))

	positions := v1.Group("/positions", middleware.RBAC(domain.RoleAgent, domain.RoleAdmin))
	positions.POST("", positionHandler.Receive)
	positions.POST("/batch", positionHandler.ReceiveBatch)

	jobs := v1.Group("/jobs/:id")
	manage := middleware.RBAC(domain.RoleDispatcher, domain.RoleAdmin)
	jobs.POST("/tracking", trackingHandler.Attach, manage)
	jobs.DELETE("/tracking", trackingHandler.Detach, manage)
	jobs.PUT("/route", trackingHandler.ApplyRoute, manage)

	view := middleware.RBAC(domain.RoleAgent, domain.RoleDispatcher, domain.RoleAdmin)
	jobs.POST("/refresh", trackingHandler.Refresh, view)
	jobs.GET("/progress", trackingHandler.Progress, view)

	return e
}

// requestLogger writes one zerolog line per request.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil || v.Status >= 500 {
				evt = log.Warn().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}
