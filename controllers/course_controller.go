package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/course-tracker-backend/models"
	"github.com/vnkhanh/course-tracker-backend/services"
)

func (h *Handler) CreateCourse(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	var input services.CourseInput
	if !bindJSON(c, &input) {
		return
	}
	course, err := h.svc.Courses.Create(c.Request.Context(), user, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"course": course})
}

func (h *Handler) GetCourses(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	list, err := h.svc.Courses.List(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": list, "total": len(list)})
}

func (h *Handler) GetCourseDetail(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	course, err := h.svc.Courses.Get(c.Request.Context(), user, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course})
}

func (h *Handler) UpdateCourse(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var input services.CourseInput
	if !bindJSON(c, &input) {
		return
	}
	course, err := h.svc.Courses.Update(c.Request.Context(), user, id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course})
}

func (h *Handler) DeleteCourse(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Courses.Deactivate(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "course deactivated"})
}

func (h *Handler) EnrollCourse(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	enrollment, err := h.svc.Courses.Enroll(c.Request.Context(), user, id, requestNow(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrollment": enrollment})
}

func (h *Handler) DropCourse(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Courses.Drop(c.Request.Context(), user, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "course dropped"})
}

func (h *Handler) CompleteCourse(c *gin.Context) {
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
	if err := h.svc.Courses.Complete(c.Request.Context(), user, id, studentID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "enrollment completed"})
}

type setQuizzesInput struct {
	Quizzes []models.QuizDefinition `json:"quizzes"`
}

func (h *Handler) SetCourseQuizzes(c *gin.Context) {
	user, ok := mustUser(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var input setQuizzesInput
	if !bindJSON(c, &input) {
		return
	}
	course, err := h.svc.Courses.SetQuizzes(c.Request.Context(), user, id, input.Quizzes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course})
}
