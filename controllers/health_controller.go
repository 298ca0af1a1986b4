package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/course-tracker-backend/utils"
)

func (h *Handler) HealthCheck(c *gin.Context) {
	// Mặc định trạng thái OK
	response := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"db":        "ok",
	}
	if h.hub != nil {
		response["websocket"] = gin.H{"enabled": true, "stats": h.hub.Stats()}
	}

	if err := utils.PingDB(c.Request.Context(), h.db); err != nil {
		h.log.Error().Err(err).Msg("health check: database ping failed")
		response["db"] = "error: cannot connect to DB"
		response["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}
