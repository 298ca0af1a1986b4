package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/course-tracker-backend/services"
)

// ====== HANDLERS ======

// Register creates (or refreshes) the local account for the bearer token's
// identity.
func (h *Handler) Register(c *gin.Context) {
	id, ok := currentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated", "code": "unauthorized"})
		return
	}
	var input services.RegisterInput
	if c.Request.ContentLength > 0 && !bindJSON(c, &input) {
		return
	}

	user, err := h.svc.Users.Register(c.Request.Context(), id, input, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) Me(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
