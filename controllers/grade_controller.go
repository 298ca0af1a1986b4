package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/course-tracker-backend/services"
)

func (h *Handler) GradeSubmission(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "submissionId")
	if !ok {
		return
	}
	var input services.GradeInput
	if !bindJSON(c, &input) {
		return
	}
	sub, err := h.svc.Submissions.Grade(c.Request.Context(), user, id, input, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": viewOf(sub)})
}

type latePenaltyInput struct {
	LatePenalty *float64 `json:"late_penalty" binding:"required"`
}

// AdjustLatePenalty overrides the stored penalty; final_points follows.
func (h *Handler) AdjustLatePenalty(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "submissionId")
	if !ok {
		return
	}
	var input latePenaltyInput
	if !bindJSON(c, &input) {
		return
	}
	sub, err := h.svc.Submissions.AdjustLatePenalty(c.Request.Context(), user, id, *input.LatePenalty)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": viewOf(sub)})
}

func (h *Handler) ReturnSubmission(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "submissionId")
	if !ok {
		return
	}
	sub, err := h.svc.Submissions.Return(c.Request.Context(), user, id, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": viewOf(sub)})
}
