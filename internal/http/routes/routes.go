package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/config"
	"github.com/icoforge/icoforge/internal/http/handlers"
	"github.com/icoforge/icoforge/internal/http/middleware"
	"github.com/icoforge/icoforge/internal/services/ratelimit"
)

type Router struct {
	convertHandler *handlers.ConvertHandler
	healthHandler  *handlers.HealthHandler
	adminHandler   *handlers.AdminHandler
	limiter        *ratelimit.Limiter
	config         *config.Config
	logger         *zap.Logger
}

func NewRouter(
	convertHandler *handlers.ConvertHandler,
	healthHandler *handlers.HealthHandler,
	adminHandler *handlers.AdminHandler,
	limiter *ratelimit.Limiter,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		convertHandler: convertHandler,
		healthHandler:  healthHandler,
		adminHandler:   adminHandler,
		limiter:        limiter,
		config:         cfg,
		logger:         logger,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	router := gin.New()

	router.Use(middleware.Logger(r.logger))
	router.Use(middleware.ErrorHandler(r.logger))
	router.Use(middleware.CORS(r.config.Server.CORSOrigin))
	router.Use(middleware.SecurityHeaders())

	// API version 1
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", r.healthHandler.HealthCheck)
		v1.POST("/convert", middleware.RateLimit(r.limiter, r.logger), r.convertHandler.Convert)

		admin := v1.Group("/admin", middleware.AdminAuth(r.config.Admin.Password))
		{
			admin.GET("/stats/summary", r.adminHandler.GetSummary)
			admin.GET("/stats/failures", r.adminHandler.GetFailures)
			admin.DELETE("/stats/failures", r.adminHandler.DeleteFailures)
		}
	}

	router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"message": "Icon conversion service is running",
		})
	})

	return router
}
