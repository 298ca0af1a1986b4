package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/course-tracker-backend/services"
)

// ===================== Distribution =====================

// GetAssignments lists what the caller can see: an instructor's own
// assignments, or a student's batch, batch-less and rostered assignments.
func (h *Handler) GetAssignments(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	list, err := h.svc.Distribution.ListVisible(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": list, "total": len(list)})
}

func (h *Handler) GetAssignmentDetail(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	a, err := h.svc.Distribution.Get(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment": a, "is_open": a.IsOpen(requestNow(c))})
}

func (h *Handler) GetAssignmentStudents(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	students, err := h.svc.Distribution.ListRoster(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students, "total": len(students)})
}

func (h *Handler) AssignStudent(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	studentID, ok := parseUUIDParam(c, "studentId")
	if !ok {
		return
	}
	res, err := h.svc.Distribution.AssignStudent(c.Request.Context(), user, id, studentID, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        "student assigned",
		"assignment":     res.Assignment,
		"auto_published": res.AutoPublished,
	})
}

func (h *Handler) UnassignStudent(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	studentID, ok := parseUUIDParam(c, "studentId")
	if !ok {
		return
	}
	if err := h.svc.Distribution.UnassignStudent(c.Request.Context(), user, id, studentID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "student unassigned"})
}

func (h *Handler) AutoAssign(c *gin.Context) {
	studentID, ok := parseUUIDParam(c, "studentId")
	if !ok {
		return
	}
	res, err := h.svc.Distribution.AutoAssign(c.Request.Context(), studentID, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ===================== CRUD =====================

func (h *Handler) CreateAssignment(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var input services.AssignmentInput
	if !bindJSON(c, &input) {
		return
	}
	a, err := h.svc.Assignments.Create(c.Request.Context(), user, input, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"assignment": a})
}

func (h *Handler) UpdateAssignment(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var input services.AssignmentInput
	if !bindJSON(c, &input) {
		return
	}
	a, err := h.svc.Assignments.Update(c.Request.Context(), user, id, input, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment": a})
}

func (h *Handler) DeleteAssignment(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Assignments.Deactivate(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "assignment deactivated"})
}

func (h *Handler) PublishAssignment(c *gin.Context) {
	h.setPublished(c, true)
}

func (h *Handler) UnpublishAssignment(c *gin.Context) {
	h.setPublished(c, false)
}

func (h *Handler) setPublished(c *gin.Context, published bool) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	a, err := h.svc.Distribution.SetPublished(c.Request.Context(), user, id, published, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignment": a})
}

// GetAssignmentSubmissions lists submissions for an owned assignment,
// optionally filtered by ?status=.
func (h *Handler) GetAssignmentSubmissions(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.Submissions.ListForAssignment(c.Request.Context(), user, id, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": viewsOf(list), "total": len(list)})
}
