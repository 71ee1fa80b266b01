// internal/routes/routes.go
package routes

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"siggen-service/internal/config"
	"siggen-service/internal/handler"
	"siggen-service/internal/middleware"
	"siggen-service/internal/service"
	"siggen-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config   *config.Config
	logger   *zap.Logger
	session  *service.Session
	eventBus *handler.EventBus
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	session *service.Session,
	eventBus *handler.EventBus,
) *Router {
	return &Router{
		config:   config,
		logger:   logger,
		session:  session,
		eventBus: eventBus,
	}
}

// SetupRouter creates and configures the Gin router. The WebSocket event
// fan-out runs until ctx is cancelled.
func (r *Router) SetupRouter(ctx context.Context) *gin.Engine {
	if r.config.IsDebugEnabled() && !r.config.IsProduction() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(ctx, router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(ctx context.Context, router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.session, r.config, r.logger)
	deviceHandler := handler.NewDeviceHandler(r.session, r.config.Device.OperationTimeout, r.logger)
	wsHandler := handler.NewWebSocketHandler(r.session, r.eventBus, r.config.Security.AllowedOrigins, r.logger)

	// Health check routes
	healthHandler.RegisterRoutes(router)

	// API v1 routes
	deviceHandler.RegisterRoutes(router.Group("/api/v1"))

	// WebSocket routes
	wsHandler.RegisterRoutes(router.Group("/ws"))
	go wsHandler.Run(ctx)

	// Documentation routes
	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
