package handlers

import (
	"net/http"

	"portal/internal/auth"
	"portal/internal/database"
	"portal/internal/services"
	"portal/internal/utils"
	"portal/internal/views"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handlers serves the site's pages
type Handlers struct {
	db          *gorm.DB
	provisioner *services.Provisioner
	views       *views.Renderer
	log         *zap.Logger
}

func New(db *gorm.DB, provisioner *services.Provisioner, renderer *views.Renderer, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{db: db, provisioner: provisioner, views: renderer, log: log}
}

// handleError provides a consistent way to handle and log errors
func (h *Handlers) handleError(c *gin.Context, status int, message string, err error) {
	_ = c.Error(err)
	utils.RequestLog(c, h.log).Error(message, zap.Int("status", status), zap.Error(err))
	h.views.Error(c, status, message)
}

// HomeHandler renders the public landing page
func (h *Handlers) HomeHandler(c *gin.Context) {
	h.views.Render(c, http.StatusOK, views.IndexPage, gin.H{
		"title":           "Public Page",
		"isAuthenticated": auth.IsAuthenticated(c),
	})
}

// ProfileHandler renders the identity supplied by the provider. The route
// sits behind auth.RequireAuth.
func (h *Handlers) ProfileHandler(c *gin.Context) {
	user := auth.CurrentIdentity(c)
	h.views.Render(c, http.StatusOK, views.ProfilePage, gin.H{
		"title":           "Your Profile",
		"user":            user,
		"isAuthenticated": user != nil,
	})
}

// HealthHandler is a simple health check endpoint
func (h *Handlers) HealthHandler(c *gin.Context) {
	if err := database.Ping(h.db); err != nil {
		utils.RequestLog(c, h.log).Warn("health check failed", zap.Error(err))
		c.String(http.StatusServiceUnavailable, "database unavailable")
		return
	}
	c.String(http.StatusOK, "OK")
}

// NotFoundHandler renders the error page for unknown routes
func (h *Handlers) NotFoundHandler(c *gin.Context) {
	h.views.Error(c, http.StatusNotFound, "This page does not exist.")
}
