package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/config"
	"github.com/vnkhanh/course-tracker-backend/models"
	"github.com/vnkhanh/course-tracker-backend/ws"
)

var (
	ctx  = context.Background()
	day0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	due  = time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), config.GormConfig("silent"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is its own database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func createUser(t *testing.T, db *gorm.DB, role models.UserRole, name, batch string) models.User {
	t.Helper()
	u := models.User{
		ExternalID: "ext-" + uuid.NewString(),
		FullName:   name,
		Email:      name + "@example.com",
		Role:       role,
		Batch:      batch,
		Active:     true,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func createAssignment(t *testing.T, db *gorm.DB, instructor models.User, mutate func(a *models.Assignment)) models.Assignment {
	t.Helper()
	start := day0
	a := models.Assignment{
		Title:        "Assignment " + uuid.NewString()[:6],
		InstructorID: instructor.ID,
		StartDate:    &start,
		DueDate:      due,
		MaxPoints:    100,
		Type:         models.TypeHomework,
		Published:    true,
		PublishedAt:  &start,
		Active:       true,
	}
	if mutate != nil {
		mutate(&a)
	}
	require.NoError(t, db.Create(&a).Error)
	return a
}

func createCourse(t *testing.T, db *gorm.DB, instructor models.User, code string, quizzes ...models.QuizDefinition) models.Course {
	t.Helper()
	c := models.Course{
		Title:        "Course " + code,
		Code:         code,
		InstructorID: instructor.ID,
		Settings:     datatypes.NewJSONType(models.CourseSettings{}),
		Quizzes:      quizzes,
		Active:       true,
	}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func submitted(t *testing.T, db *gorm.DB, a models.Assignment, student models.User, at time.Time) models.AssignmentSubmission {
	t.Helper()
	s := models.AssignmentSubmission{
		AssignmentID:  &a.ID,
		StudentID:     student.ID,
		CourseID:      a.CourseID,
		AttemptNumber: 1,
		Status:        models.StatusSubmitted,
		SubmittedAt:   &at,
	}
	require.NoError(t, db.Create(&s).Error)
	return s
}

func intp(v int) *int { return &v }

// recordingNotifier keeps every notification in memory.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification, now time.Time) {
	n.CreatedAt = now
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}

// recordingPusher stands in for the websocket hub.
type recordingPusher struct {
	mu     sync.Mutex
	events map[string][]ws.Event
}

func (p *recordingPusher) SendToUser(userID string, e ws.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = map[string][]ws.Event{}
	}
	p.events[userID] = append(p.events[userID], e)
}

func (p *recordingPusher) count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events[userID])
}
