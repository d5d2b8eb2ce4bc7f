package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/handlers"
	"github.com/onurcolak/broadcast-dispatch-service/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	broadcastHandler *handlers.BroadcastHandler,
	schedulerHandler *handlers.SchedulerHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// API v1 base group
	v1 := e.Group("/api/v1")

	// Broadcast routes with their own API key
	broadcasts := v1.Group("/broadcasts", middlewares.APIKeyAuth(cfg.Auth.BroadcastsAPIKey))

	broadcasts.GET("", broadcastHandler.ListBroadcasts)
	broadcasts.POST("", broadcastHandler.CreateBroadcast)

	// static paths before /:id
	broadcasts.POST("/preview", broadcastHandler.PreviewSegment)
	broadcasts.POST("/bulk", broadcastHandler.BulkAction)
	broadcasts.GET("/logs", broadcastHandler.GetLogs)

	broadcasts.GET("/:id", broadcastHandler.GetBroadcast)
	broadcasts.PUT("/:id", broadcastHandler.ApplyAction)
	broadcasts.GET("/:id/progress", broadcastHandler.StreamProgress)
	broadcasts.GET("/:id/errors", broadcastHandler.GetFailedRecipients)
	broadcasts.GET("/:id/recipients", broadcastHandler.GetRecipients)

	// Scheduler routes with their own API key
	schedulerGroup := v1.Group("/scheduler", middlewares.APIKeyAuth(cfg.Auth.SchedulerAPIKey))

	schedulerGroup.POST("/start", schedulerHandler.StartScheduler)
	schedulerGroup.POST("/stop", schedulerHandler.StopScheduler)
	schedulerGroup.GET("/status", schedulerHandler.GetSchedulerStatus)
}
