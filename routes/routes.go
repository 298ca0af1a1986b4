package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/course-tracker-backend/auth"
	"github.com/vnkhanh/course-tracker-backend/controllers"
	"github.com/vnkhanh/course-tracker-backend/middleware"
	"github.com/vnkhanh/course-tracker-backend/models"
	"github.com/vnkhanh/course-tracker-backend/ws"
)

type Deps struct {
	Handler  *controllers.Handler
	Verifier auth.Verifier
	Users    middleware.UserLookup
	Hub      *ws.Hub
	// Clock defaults to time.Now.
	Clock         func() time.Time
	AllowedOrigin func(origin string) bool
}

func SetupRouter(r *gin.Engine, d Deps) *gin.Engine {
	h := d.Handler
	instructor := middleware.RequireRoles(models.RoleInstructor)
	student := middleware.RequireRoles(models.RoleStudent)

	r.Use(middleware.RequestClock(d.Clock))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/health", h.HealthCheck)
	if d.Hub != nil {
		r.GET("/ws/notifications", ws.NotificationsHandler(d.Hub, wsResolver(d), d.AllowedOrigin))
	}

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(d.Verifier))

	api.POST("/auth/register", h.Register)

	// everything below needs a registered, active user
	authed := api.Group("")
	authed.Use(middleware.LoadUser(d.Users))

	authed.GET("/me", h.Me)

	users := authed.Group("/users")
	{
		users.GET("/students", instructor, h.ListStudents)
		users.PATCH("/:id/batch", h.UpdateBatch)
		users.DELETE("/:id", instructor, h.DeactivateUser)
	}

	courses := authed.Group("/courses")
	{
		courses.GET("", h.GetCourses)
		courses.GET("/:id", h.GetCourseDetail)
		courses.POST("", instructor, h.CreateCourse)
		courses.PUT("/:id", instructor, h.UpdateCourse)
		courses.DELETE("/:id", instructor, h.DeleteCourse)
		courses.PUT("/:id/quizzes", instructor, h.SetCourseQuizzes)
		courses.POST("/:id/students/:studentId/complete", instructor, h.CompleteCourse)
		courses.POST("/:id/enroll", student, h.EnrollCourse)
		courses.POST("/:id/drop", student, h.DropCourse)
	}

	assignments := authed.Group("/assignments")
	{
		assignments.GET("", h.GetAssignments)
		assignments.GET("/:id", h.GetAssignmentDetail)
		assignments.POST("", instructor, h.CreateAssignment)
		assignments.PUT("/:id", instructor, h.UpdateAssignment)
		assignments.DELETE("/:id", instructor, h.DeleteAssignment)
		assignments.POST("/:id/publish", instructor, h.PublishAssignment)
		assignments.POST("/:id/unpublish", instructor, h.UnpublishAssignment)
		assignments.GET("/:id/students", instructor, h.GetAssignmentStudents)
		assignments.POST("/:id/assign-student/:studentId", instructor, h.AssignStudent)
		assignments.POST("/:id/unassign-student/:studentId", instructor, h.UnassignStudent)
		assignments.POST("/auto-assign/:studentId", instructor, h.AutoAssign)
		assignments.GET("/:id/submissions", instructor, h.GetAssignmentSubmissions)
	}

	submissions := authed.Group("/submissions")
	{
		submissions.POST("", student, h.SaveSubmission)
		submissions.GET("", student, h.GetMySubmissions)
		submissions.POST("/quiz", student, h.SubmitQuiz)
		submissions.GET("/quiz", student, h.GetMyQuizSubmissions)
		submissions.GET("/:id", h.GetSubmissionDetail)
		submissions.POST("/:id/submit", student, h.SubmitSubmission)
	}

	grades := authed.Group("/grades", instructor)
	{
		grades.PUT("/:submissionId", h.GradeSubmission)
		grades.PATCH("/:submissionId/late-penalty", h.AdjustLatePenalty)
		grades.POST("/:submissionId/return", h.ReturnSubmission)
	}

	analytics := authed.Group("/analytics", instructor)
	{
		analytics.GET("/batch/:batch", h.GetBatchReport)
		analytics.GET("/courses/:id", h.GetCourseStats)
		analytics.GET("/courses/:id/export", h.ExportCourse)
	}

	authed.POST("/uploads", h.UploadAttachment)

	notifications := authed.Group("/notifications")
	{
		notifications.GET("", h.GetNotifications)
		notifications.GET("/unread-count", h.GetUnreadCount)
		notifications.PATCH("/:id/read", h.MarkNotificationAsRead)
	}

	return r
}

// wsResolver authenticates the socket's ?token= the same way the API does.
func wsResolver(d Deps) ws.ResolveFunc {
	return func(ctx context.Context, token string) (string, error) {
		id, err := d.Verifier.Verify(ctx, token)
		if err != nil {
			return "", err
		}
		u, err := d.Users.FindByExternalID(ctx, id.Subject)
		if err != nil {
			return "", err
		}
		if !u.Active {
			return "", auth.ErrInvalidToken
		}
		return u.ID.String(), nil
	}
}
