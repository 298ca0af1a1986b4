package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/logger"
	"github.com/vnkhanh/course-tracker-backend/models"
)

// Notifier delivers best-effort notifications. Failures never fail the
// operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification, now time.Time)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, models.Notification, time.Time) {}

// Services bundles every domain service, built once at startup.
type Services struct {
	Users         *UserService
	Courses       *CourseService
	Assignments   *AssignmentService
	Distribution  *DistributionService
	Submissions   *SubmissionService
	Quizzes       *QuizService
	Analytics     *AnalyticsService
	Notifications *NotificationService
	Attachments   *AttachmentService
}

type Deps struct {
	DB            *gorm.DB
	Notifications *NotificationService
	Files         FileStore
}

func New(d Deps) *Services {
	var notifier Notifier = noopNotifier{}
	if d.Notifications != nil {
		notifier = d.Notifications
	}
	dist := NewDistributionService(d.DB, notifier)
	return &Services{
		Users:         NewUserService(d.DB, dist),
		Courses:       NewCourseService(d.DB),
		Assignments:   NewAssignmentService(d.DB),
		Distribution:  dist,
		Submissions:   NewSubmissionService(d.DB, notifier),
		Quizzes:       NewQuizService(d.DB),
		Analytics:     NewAnalyticsService(d.DB),
		Notifications: d.Notifications,
		Attachments:   NewAttachmentService(d.Files),
	}
}

func componentLogger(name string) zerolog.Logger {
	return logger.Component(name)
}

func requireInstructor(u models.User) error {
	if !u.IsInstructor() {
		return errs.Forbidden("instructor role required")
	}
	return nil
}

func requireStudent(u models.User) error {
	if !u.IsStudent() {
		return errs.Forbidden("student role required")
	}
	return nil
}
