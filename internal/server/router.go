package server

import (
	"portal/internal/auth"
	"portal/internal/handlers"
	"portal/internal/metrics"
	"portal/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies are the collaborators the router wires together
type Dependencies struct {
	Auth     *auth.Manager
	Handlers *handlers.Handlers
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// NewRouter builds the gin engine with middleware and routes
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.RequestLogger(deps.Logger))
	router.Use(deps.Metrics.Middleware())

	// Configure trusted proxies
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", deps.Handlers.HealthHandler)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Everything below knows who the visitor is
	site := router.Group("")
	site.Use(deps.Auth.Attach())
	{
		site.GET("/login", deps.Auth.Login)
		site.GET("/callback", deps.Auth.Callback)
		site.GET("/logout", deps.Auth.Logout)

		pages := site.Group("")
		pages.Use(deps.Handlers.ProvisionUser())
		{
			// Anyone can view this page
			pages.GET("/", deps.Handlers.HomeHandler)
			// Only authenticated users can view this page
			pages.GET("/profile", auth.RequireAuth(), deps.Handlers.ProfileHandler)
		}
	}

	router.NoRoute(deps.Handlers.NotFoundHandler)
	return router
}
