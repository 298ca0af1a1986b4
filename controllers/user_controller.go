package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type updateBatchInput struct {
	Batch string `json:"batch"`
}

// UpdateBatch also re-runs auto-assignment for the student's new batch.
func (h *Handler) UpdateBatch(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var input updateBatchInput
	if !bindJSON(c, &input) {
		return
	}

	updated, err := h.svc.Users.UpdateBatch(c.Request.Context(), user, id, input.Batch, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": updated})
}

func (h *Handler) DeactivateUser(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Users.Deactivate(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deactivated"})
}

func (h *Handler) ListStudents(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	list, err := h.svc.Users.ListStudents(c.Request.Context(), user, c.Query("batch"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": list, "total": len(list)})
}
