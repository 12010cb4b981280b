package routes

import (
	"github.com/gin-gonic/gin"

	"commission_backend/internal/handlers"
	"commission_backend/internal/logger"
	"commission_backend/internal/middleware"
)

// RegisterRoutes mounts the liveness check and the JWT protected /api/v1 API.
func RegisterRoutes(
	ginRouter *gin.Engine,
	appHandlers *handlers.AppHandlers,
	jwtSecret string,
) {
	appHandlers.HealthHandler.RegisterRoutes(ginRouter)

	api := ginRouter.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtSecret))
	{
		appHandlers.OrderHandler.RegisterRoutes(api)
		appHandlers.LedgerHandler.RegisterRoutes(api)
		appHandlers.PlanHandler.RegisterRoutes(api)
		appHandlers.NotificationHandler.RegisterRoutes(api)
		appHandlers.AdminHandler.RegisterRoutes(api)
	}
	logger.Info("HTTP routes registered", "count", len(ginRouter.Routes()))
}
