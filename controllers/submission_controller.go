package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vnkhanh/course-tracker-backend/models"
	"github.com/vnkhanh/course-tracker-backend/services"
)

// SubmissionView adds the derived final grade to a stored submission. The
// grade block keeps the raw, unpenalised values.
type SubmissionView struct {
	models.AssignmentSubmission
	FinalPoints     float64 `json:"final_points"`
	FinalPercentage float64 `json:"final_percentage"`
	LetterGrade     string  `json:"letter_grade,omitempty"`
}

func viewOf(s models.AssignmentSubmission) SubmissionView {
	return SubmissionView{
		AssignmentSubmission: s,
		FinalPoints:          s.FinalPoints(),
		FinalPercentage:      s.FinalPercentage(),
		LetterGrade:          s.FinalLetterGrade(),
	}
}

func viewsOf(list []models.AssignmentSubmission) []SubmissionView {
	out := make([]SubmissionView, 0, len(list))
	for _, s := range list {
		out = append(out, viewOf(s))
	}
	return out
}

// SaveSubmission creates the draft or updates it while still a draft.
func (h *Handler) SaveSubmission(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var input services.SaveInput
	if !bindJSON(c, &input) {
		return
	}
	sub, err := h.svc.Submissions.SaveDraft(c.Request.Context(), user, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": viewOf(sub)})
}

func (h *Handler) GetMySubmissions(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	list, err := h.svc.Submissions.ListMine(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": viewsOf(list), "total": len(list)})
}

func (h *Handler) GetSubmissionDetail(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	sub, err := h.svc.Submissions.Get(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": viewOf(sub)})
}

func (h *Handler) SubmitSubmission(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	sub, err := h.svc.Submissions.Submit(c.Request.Context(), user, id, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submission": viewOf(sub)})
}

// ===================== Quiz =====================

// SubmitQuiz grades immediately; a resubmission replaces the earlier result.
func (h *Handler) SubmitQuiz(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var input services.QuizInput
	if !bindJSON(c, &input) {
		return
	}
	sub, result, err := h.svc.Quizzes.Submit(c.Request.Context(), user, input, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"submission": sub,
		"correct":    result.Correct,
		"total":      result.Total,
		"score":      result.Score,
	})
}

func (h *Handler) GetMyQuizSubmissions(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var courseID *uuid.UUID
	if raw := c.Query("course_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course_id", "code": "validation_failed"})
			return
		}
		courseID = &id
	}
	list, err := h.svc.Quizzes.ListMine(c.Request.Context(), user, courseID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": list, "total": len(list)})
}
