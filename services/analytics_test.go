package services

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

type batchFixture struct {
	db                *gorm.DB
	teacher           models.User
	alice, bob, carol models.User
	course            models.Course
	hw1, hw2          models.Assignment
}

// newBatchFixture: alice submits both homeworks and scores 80 on the quiz,
// bob submits one and scores 100, carol does nothing.
func newBatchFixture(t *testing.T) batchFixture {
	db := newTestDB(t)
	f := batchFixture{db: db}
	f.teacher = createUser(t, db, models.RoleInstructor, "teacher", "")
	f.alice = createUser(t, db, models.RoleStudent, "alice", "B1")
	f.bob = createUser(t, db, models.RoleStudent, "bob", "B1")
	f.carol = createUser(t, db, models.RoleStudent, "carol", "B1")
	createUser(t, db, models.RoleStudent, "dave", "B2")
	f.course = createCourse(t, db, f.teacher, "GO101", goBasics)

	f.hw1 = createAssignment(t, db, f.teacher, func(a *models.Assignment) { a.Batch = "B1"; a.CourseID = &f.course.ID })
	f.hw2 = createAssignment(t, db, f.teacher, func(a *models.Assignment) { a.Batch = "B1"; a.CourseID = &f.course.ID })
	createAssignment(t, db, f.teacher, func(a *models.Assignment) { a.Batch = "B2" })
	createAssignment(t, db, f.teacher, func(a *models.Assignment) { a.Batch = "B1"; a.Published = false })

	at := day0.Add(time.Hour)
	submitted(t, db, f.hw1, f.alice, at)
	submitted(t, db, f.hw2, f.alice, at)
	submitted(t, db, f.hw1, f.bob, at)

	for _, q := range []models.QuizSubmission{
		{StudentID: f.alice.ID, CourseID: f.course.ID, QuizTitle: "Go basics", Score: 80, Status: models.StatusGraded, SubmittedAt: at},
		{StudentID: f.bob.ID, CourseID: f.course.ID, QuizTitle: "Go basics", Score: 100, Status: models.StatusGraded, SubmittedAt: at},
	} {
		q := q
		require.NoError(t, db.Create(&q).Error)
	}
	return f
}

func metricsByName(list []StudentMetrics) map[string]StudentMetrics {
	out := map[string]StudentMetrics{}
	for _, m := range list {
		out[m.FullName] = m
	}
	return out
}

func TestAnalytics_BatchReport(t *testing.T) {
	f := newBatchFixture(t)
	svc := NewAnalyticsService(f.db)
	now := day0.Add(48 * time.Hour)

	report, err := svc.BatchReport(ctx, f.teacher, "B1", now)
	require.NoError(t, err)
	assert.Equal(t, "B1", report.Batch)
	assert.Equal(t, 3, report.StudentCount)
	assert.Equal(t, 2, report.AssignmentCount)
	assert.True(t, now.Equal(report.GeneratedAt))

	m := metricsByName(report.Students)
	assert.InDelta(t, 80, m["alice"].QuizAverage, 1e-9)
	assert.InDelta(t, 100, m["alice"].SubmissionRate, 1e-9)
	assert.InDelta(t, 92, m["alice"].PerformanceScore, 1e-9)
	assert.Equal(t, 2, m["alice"].SubmittedCount)
	assert.Equal(t, 2, m["alice"].TotalAssignments)

	assert.InDelta(t, 100, m["bob"].QuizAverage, 1e-9)
	assert.InDelta(t, 50, m["bob"].SubmissionRate, 1e-9)
	assert.InDelta(t, 70, m["bob"].PerformanceScore, 1e-9)

	assert.Zero(t, m["carol"].PerformanceScore)
	assert.Zero(t, m["carol"].QuizzesTaken)

	require.Len(t, report.Students, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"}, []string{
		report.Students[0].FullName, report.Students[1].FullName, report.Students[2].FullName,
	})
	assert.Equal(t, 1, report.Students[0].Rank)
	assert.Equal(t, 3, report.Students[2].Rank)
	assert.InDelta(t, (92.0+70.0)/3, report.AverageScore, 1e-9)
	assert.Len(t, report.TopPerformers, 3)
	assert.Equal(t, "carol", report.BottomPerformers[len(report.BottomPerformers)-1].FullName)
}

func TestAnalytics_BatchReportSkipsOrphanedSubmissions(t *testing.T) {
	f := newBatchFixture(t)
	svc := NewAnalyticsService(f.db)

	before, err := svc.BatchReport(ctx, f.teacher, "B1", day0)
	require.NoError(t, err)

	ghost := uuid.New()
	at := day0.Add(time.Hour)
	orphan := models.AssignmentSubmission{
		AssignmentID:  &ghost,
		StudentID:     f.carol.ID,
		AttemptNumber: 1,
		Status:        models.StatusSubmitted,
		SubmittedAt:   &at,
	}
	require.NoError(t, f.db.Create(&orphan).Error)

	after, err := svc.BatchReport(ctx, f.teacher, "B1", day0)
	require.NoError(t, err)
	assert.Equal(t, before.Students, after.Students)
	assert.Zero(t, metricsByName(after.Students)["carol"].SubmittedCount)
}

func TestAnalytics_BatchReportEmptyAndForbidden(t *testing.T) {
	f := newBatchFixture(t)
	svc := NewAnalyticsService(f.db)

	report, err := svc.BatchReport(ctx, f.teacher, "nobody", day0)
	require.NoError(t, err)
	assert.Zero(t, report.StudentCount)
	assert.Empty(t, report.Students)
	assert.Zero(t, report.AverageScore)

	_, err = svc.BatchReport(ctx, f.alice, "B1", day0)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestRankStudents_TiesByName(t *testing.T) {
	list := []StudentMetrics{
		{FullName: "zed", PerformanceScore: 50},
		{FullName: "amy", PerformanceScore: 50},
		{FullName: "kim", PerformanceScore: 90},
	}
	rankStudents(list)
	assert.Equal(t, "kim", list[0].FullName)
	assert.Equal(t, "amy", list[1].FullName)
	assert.Equal(t, "zed", list[2].FullName)
	assert.Equal(t, 3, list[2].Rank)
}

func TestAnalytics_CourseStats(t *testing.T) {
	f := newBatchFixture(t)
	svc := NewAnalyticsService(f.db)

	// grade alice's hw1 at 40/100 with a 50% late penalty: 20%
	gradedAt := day0.Add(2 * time.Hour)
	require.NoError(t, f.db.Model(&models.AssignmentSubmission{}).
		Where("assignment_id = ? AND student_id = ?", f.hw1.ID, f.alice.ID).
		Updates(map[string]interface{}{
			"status":          models.StatusGraded,
			"grade_points":    40,
			"grade_graded_at": gradedAt,
			"late_penalty":    50,
			"is_late":         true,
		}).Error)

	stats, err := svc.CourseStats(ctx, f.teacher, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Submissions)
	assert.Equal(t, 1, stats.GradedSubmissions)
	assert.Equal(t, 2, stats.QuizSubmissions)
	assert.InDelta(t, 20, stats.AssignmentAverage, 1e-9)
	assert.InDelta(t, 90, stats.QuizAverage, 1e-9)
	assert.InDelta(t, (20.0+2*90.0)/3, stats.OverallAverage, 1e-9)

	require.Len(t, stats.Assignments, 2)
	var hw1 AssignmentStats
	for _, a := range stats.Assignments {
		if a.AssignmentID == f.hw1.ID {
			hw1 = a
		}
	}
	assert.Equal(t, 2, hw1.Submissions)
	assert.Equal(t, 1, hw1.Graded)
	assert.Equal(t, 1, hw1.Late)

	rival := createUser(t, f.db, models.RoleInstructor, "rival", "")
	_, err = svc.CourseStats(ctx, rival, f.course.ID)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestCombinedAverage(t *testing.T) {
	assert.Zero(t, combinedAverage(0, 0, 0, 0))
	assert.InDelta(t, 80, combinedAverage(80, 3, 0, 0), 1e-9)
	assert.InDelta(t, 85, combinedAverage(80, 1, 90, 1), 1e-9)
}

func TestAnalytics_ExportCourse(t *testing.T) {
	f := newBatchFixture(t)
	svc := NewAnalyticsService(f.db)

	course, rows, err := svc.ExportCourse(ctx, f.teacher, f.course.ID)
	require.NoError(t, err)
	assert.Equal(t, f.course.ID, course.ID)
	require.Len(t, rows, 5)

	var kinds []string
	for _, r := range rows {
		kinds = append(kinds, r.Kind)
		assert.NotEmpty(t, r.StudentName)
		assert.Equal(t, "B1", r.Batch)
	}
	assert.ElementsMatch(t, []string{RowKindAssignment, RowKindAssignment, RowKindAssignment, RowKindQuiz, RowKindQuiz}, kinds)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)
	assert.Equal(t, exportHeader, records[0])
	var names []string
	for _, rec := range records[1:] {
		names = append(names, rec[1])
	}
	assert.Contains(t, names, "alice")
	assert.Contains(t, names, "bob")

	buf.Reset()
	require.NoError(t, WriteXLSX(&buf, "go101", rows))
	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()
	sheetRows, err := book.GetRows("go101")
	require.NoError(t, err)
	require.Len(t, sheetRows, 6)
	assert.Equal(t, "student_name", sheetRows[0][1])
}

func TestExportFilename(t *testing.T) {
	at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, "cs101-intro-to-go-20250310.csv", ExportFilename("CS101", "Intro to Go", at, ExportCSV))
	assert.True(t, ValidExportFormat("xlsx"))
	assert.False(t, ValidExportFormat("pdf"))
}
