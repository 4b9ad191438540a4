package handlers

import (
	"net/http"

	"portal/internal/auth"
	"portal/internal/services"

	"github.com/gin-gonic/gin"
)

// ProvisionUser makes sure an authenticated visitor has a local user row
// before the page renders. Anonymous requests pass straight through.
func (h *Handlers) ProvisionUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var profile *services.Profile
		if identity := auth.CurrentIdentity(c); identity != nil {
			profile = &services.Profile{
				Subject:    identity.Subject,
				GivenName:  identity.GivenName,
				FamilyName: identity.FamilyName,
				Email:      identity.Email,
				Picture:    identity.Picture,
			}
		}

		if _, err := h.provisioner.EnsureUser(c.Request.Context(), profile); err != nil {
			h.handleError(c, http.StatusInternalServerError, "We could not load your account.", err)
			return
		}
		c.Next()
	}
}
