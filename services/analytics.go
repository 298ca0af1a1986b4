package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

const (
	quizWeight       = 0.4
	submissionWeight = 0.6
	reportEdgeSize   = 5
)

// AnalyticsService computes read-only rollups. A row whose related record is
// missing contributes nothing and is logged; it never fails the report.
type AnalyticsService struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewAnalyticsService(db *gorm.DB) *AnalyticsService {
	return &AnalyticsService{db: db, log: componentLogger("analytics")}
}

type StudentMetrics struct {
	StudentID        uuid.UUID `json:"student_id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	Rank             int       `json:"rank"`
	QuizEarned       float64   `json:"quiz_earned"`
	QuizPossible     float64   `json:"quiz_possible"`
	QuizAverage      float64   `json:"quiz_average"`
	QuizzesTaken     int       `json:"quizzes_taken"`
	SubmittedCount   int       `json:"submitted_count"`
	TotalAssignments int       `json:"total_assignments"`
	SubmissionRate   float64   `json:"submission_rate"`
	PerformanceScore float64   `json:"performance_score"`
}

type BatchReport struct {
	Batch            string           `json:"batch"`
	StudentCount     int              `json:"student_count"`
	AssignmentCount  int              `json:"assignment_count"`
	AverageScore     float64          `json:"average_score"`
	Students         []StudentMetrics `json:"students"`
	TopPerformers    []StudentMetrics `json:"top_performers"`
	BottomPerformers []StudentMetrics `json:"bottom_performers"`
	GeneratedAt      time.Time        `json:"generated_at"`
}

// studentTally accumulates one student's contributions before the ratios are
// taken.
type studentTally struct {
	quiz      []models.Gradable
	submitted map[uuid.UUID]bool
}

// BatchReport scores every active student of batch against the instructor's
// active, published assignments and course quizzes.
func (s *AnalyticsService) BatchReport(ctx context.Context, instructor models.User, batch string, now time.Time) (BatchReport, error) {
	if err := requireInstructor(instructor); err != nil {
		return BatchReport{}, err
	}
	db := s.db.WithContext(ctx)

	var students []models.User
	if err := db.Where("role = ? AND batch = ? AND active = ?", models.RoleStudent, batch, true).
		Order("full_name ASC").
		Find(&students).Error; err != nil {
		return BatchReport{}, storeErr(err, "load batch students", "student")
	}
	report := BatchReport{
		Batch:            batch,
		StudentCount:     len(students),
		Students:         []StudentMetrics{},
		TopPerformers:    []StudentMetrics{},
		BottomPerformers: []StudentMetrics{},
		GeneratedAt:      now,
	}
	if len(students) == 0 {
		return report, nil
	}
	studentIDs := make([]uuid.UUID, 0, len(students))
	for _, st := range students {
		studentIDs = append(studentIDs, st.ID)
	}

	var assignments []models.Assignment
	if err := db.Preload("AssignedStudents", "student_id IN ?", studentIDs).
		Where("instructor_id = ? AND active = ? AND published = ?", instructor.ID, true, true).
		Find(&assignments).Error; err != nil {
		return BatchReport{}, storeErr(err, "load instructor assignments", "assignment")
	}

	var subs []models.AssignmentSubmission
	if err := db.Where("student_id IN ? AND status <> ?", studentIDs, models.StatusDraft).
		Find(&subs).Error; err != nil {
		return BatchReport{}, storeErr(err, "load submissions", "submission")
	}
	parents, err := s.assignmentsFor(ctx, subs)
	if err != nil {
		return BatchReport{}, err
	}

	var courseIDs []uuid.UUID
	if err := db.Model(&models.Course{}).Where("instructor_id = ?", instructor.ID).Pluck("id", &courseIDs).Error; err != nil {
		return BatchReport{}, storeErr(err, "load instructor courses", "course")
	}
	var quizSubs []models.QuizSubmission
	if len(courseIDs) > 0 {
		if err := db.Where("student_id IN ? AND course_id IN ?", studentIDs, courseIDs).
			Find(&quizSubs).Error; err != nil {
			return BatchReport{}, storeErr(err, "load quiz submissions", "quiz submission")
		}
	}

	tallies := make(map[uuid.UUID]*studentTally, len(students))
	for _, st := range students {
		tallies[st.ID] = &studentTally{submitted: map[uuid.UUID]bool{}}
	}
	for _, sub := range subs {
		a, ok := s.resolveParent(parents, sub)
		if !ok || a.InstructorID != instructor.ID || !a.Active || !a.Published {
			continue
		}
		t := tallies[sub.StudentID]
		if a.Type == models.TypeQuiz {
			t.quiz = append(t.quiz, models.ScoredSubmission{Submission: sub, Assignment: a})
			continue
		}
		t.submitted[a.ID] = true
	}
	for _, q := range quizSubs {
		t := tallies[q.StudentID]
		t.quiz = append(t.quiz, q)
	}

	nonQuiz := make(map[uuid.UUID]bool)
	for _, st := range students {
		t := tallies[st.ID]
		m := StudentMetrics{StudentID: st.ID, FullName: st.FullName, Email: st.Email}
		for _, a := range assignments {
			if a.Type == models.TypeQuiz || !a.IsVisibleTo(st) {
				continue
			}
			nonQuiz[a.ID] = true
			m.TotalAssignments++
			if t.submitted[a.ID] {
				m.SubmittedCount++
			}
		}
		m.QuizEarned, m.QuizPossible = sumGradable(t.quiz)
		m.QuizzesTaken = len(t.quiz)
		m.QuizAverage = percent(m.QuizEarned, m.QuizPossible)
		m.SubmissionRate = percent(float64(m.SubmittedCount), float64(m.TotalAssignments))
		m.PerformanceScore = quizWeight*m.QuizAverage + submissionWeight*m.SubmissionRate
		report.Students = append(report.Students, m)
	}
	report.AssignmentCount = len(nonQuiz)

	rankStudents(report.Students)
	var total float64
	for _, m := range report.Students {
		total += m.PerformanceScore
	}
	report.AverageScore = total / float64(len(report.Students))

	n := reportEdgeSize
	if n > len(report.Students) {
		n = len(report.Students)
	}
	report.TopPerformers = append(report.TopPerformers, report.Students[:n]...)
	report.BottomPerformers = append(report.BottomPerformers, report.Students[len(report.Students)-n:]...)
	return report, nil
}

// rankStudents orders by performance descending, ties by name, and stamps a
// 1-based rank.
func rankStudents(list []StudentMetrics) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].PerformanceScore != list[j].PerformanceScore {
			return list[i].PerformanceScore > list[j].PerformanceScore
		}
		return list[i].FullName < list[j].FullName
	})
	for i := range list {
		list[i].Rank = i + 1
	}
}

type AssignmentStats struct {
	AssignmentID   uuid.UUID `json:"assignment_id"`
	Title          string    `json:"title"`
	Type           string    `json:"type"`
	MaxPoints      float64   `json:"max_points"`
	Submissions    int       `json:"submissions"`
	Graded         int       `json:"graded"`
	Late           int       `json:"late"`
	AveragePercent float64   `json:"average_percent"`
}

type CourseStats struct {
	CourseID          uuid.UUID         `json:"course_id"`
	Title             string            `json:"title"`
	Code              string            `json:"code"`
	ActiveEnrollments int64             `json:"active_enrollments"`
	Submissions       int               `json:"submissions"`
	GradedSubmissions int               `json:"graded_submissions"`
	QuizSubmissions   int               `json:"quiz_submissions"`
	AssignmentAverage float64           `json:"assignment_average"`
	QuizAverage       float64           `json:"quiz_average"`
	OverallAverage    float64           `json:"overall_average"`
	Assignments       []AssignmentStats `json:"assignments"`
}

// CourseStats rolls up every non-draft submission and quiz submission of a
// course the instructor owns.
func (s *AnalyticsService) CourseStats(ctx context.Context, instructor models.User, courseID uuid.UUID) (CourseStats, error) {
	course, err := s.ownedCourse(ctx, instructor, courseID)
	if err != nil {
		return CourseStats{}, err
	}
	db := s.db.WithContext(ctx)
	stats := CourseStats{CourseID: course.ID, Title: course.Title, Code: course.Code, Assignments: []AssignmentStats{}}

	if err := db.Model(&models.CourseEnrollment{}).
		Where("course_id = ? AND status = ?", course.ID, models.EnrollmentActive).
		Count(&stats.ActiveEnrollments).Error; err != nil {
		return CourseStats{}, storeErr(err, "count enrollments", "enrollment")
	}

	var assignments []models.Assignment
	if err := db.Where("course_id = ?", course.ID).Order("due_date ASC").Find(&assignments).Error; err != nil {
		return CourseStats{}, storeErr(err, "load course assignments", "assignment")
	}
	perAssignment := make(map[uuid.UUID]*AssignmentStats, len(assignments))
	pctSums := make(map[uuid.UUID]float64, len(assignments))
	for _, a := range assignments {
		perAssignment[a.ID] = &AssignmentStats{
			AssignmentID: a.ID,
			Title:        a.Title,
			Type:         string(a.Type),
			MaxPoints:    a.PossiblePoints(),
		}
	}

	var subs []models.AssignmentSubmission
	if err := db.Where("course_id = ? AND status <> ?", course.ID, models.StatusDraft).Find(&subs).Error; err != nil {
		return CourseStats{}, storeErr(err, "load course submissions", "submission")
	}
	parents, err := s.assignmentsFor(ctx, subs)
	if err != nil {
		return CourseStats{}, err
	}

	var assignmentPctSum float64
	for _, sub := range subs {
		stats.Submissions++
		a, ok := s.resolveParent(parents, sub)
		if !ok {
			continue
		}
		row := perAssignment[a.ID]
		if row != nil {
			row.Submissions++
			if sub.IsLate {
				row.Late++
			}
		}
		if !sub.Grade.IsGraded() {
			continue
		}
		scored := models.ScoredSubmission{Submission: sub, Assignment: a}
		pct := percent(scored.EarnedPoints(), scored.PossiblePoints())
		stats.GradedSubmissions++
		assignmentPctSum += pct
		if row != nil {
			row.Graded++
			pctSums[a.ID] += pct
		}
	}
	for _, a := range assignments {
		row := perAssignment[a.ID]
		if row.Graded > 0 {
			row.AveragePercent = pctSums[a.ID] / float64(row.Graded)
		}
		stats.Assignments = append(stats.Assignments, *row)
	}

	var quizSubs []models.QuizSubmission
	if err := db.Where("course_id = ?", course.ID).Find(&quizSubs).Error; err != nil {
		return CourseStats{}, storeErr(err, "load quiz submissions", "quiz submission")
	}
	var quizPctSum float64
	for _, q := range quizSubs {
		quizPctSum += percent(q.EarnedPoints(), q.PossiblePoints())
	}
	stats.QuizSubmissions = len(quizSubs)

	if stats.GradedSubmissions > 0 {
		stats.AssignmentAverage = assignmentPctSum / float64(stats.GradedSubmissions)
	}
	if stats.QuizSubmissions > 0 {
		stats.QuizAverage = quizPctSum / float64(stats.QuizSubmissions)
	}
	stats.OverallAverage = combinedAverage(stats.AssignmentAverage, stats.GradedSubmissions, stats.QuizAverage, stats.QuizSubmissions)
	return stats, nil
}

// combinedAverage weights each population's average by its size; 0 when both
// are empty.
func combinedAverage(assignmentAvg float64, assignmentCount int, quizAvg float64, quizCount int) float64 {
	n := assignmentCount + quizCount
	if n == 0 {
		return 0
	}
	return (assignmentAvg*float64(assignmentCount) + quizAvg*float64(quizCount)) / float64(n)
}

type ExportRow struct {
	StudentID    uuid.UUID  `json:"student_id"`
	StudentName  string     `json:"student_name"`
	StudentEmail string     `json:"student_email"`
	Batch        string     `json:"batch"`
	Kind         string     `json:"kind"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	Points       float64    `json:"points"`
	MaxPoints    float64    `json:"max_points"`
	Percentage   float64    `json:"percentage"`
	IsLate       bool       `json:"is_late"`
	LatePenalty  float64    `json:"late_penalty"`
	SubmittedAt  *time.Time `json:"submitted_at"`
	GradedAt     *time.Time `json:"graded_at"`
}

const (
	RowKindAssignment = "assignment"
	RowKindQuiz       = "quiz"
)

// ExportCourse projects the course's assignment and quiz submissions into
// flat rows. Rows whose student or assignment is missing keep default values.
func (s *AnalyticsService) ExportCourse(ctx context.Context, instructor models.User, courseID uuid.UUID) (models.Course, []ExportRow, error) {
	course, err := s.ownedCourse(ctx, instructor, courseID)
	if err != nil {
		return models.Course{}, nil, err
	}
	db := s.db.WithContext(ctx)

	var subs []models.AssignmentSubmission
	if err := db.Where("course_id = ? AND status <> ?", course.ID, models.StatusDraft).
		Order("submitted_at ASC").
		Find(&subs).Error; err != nil {
		return models.Course{}, nil, storeErr(err, "load course submissions", "submission")
	}
	var quizSubs []models.QuizSubmission
	if err := db.Where("course_id = ?", course.ID).Order("submitted_at ASC").Find(&quizSubs).Error; err != nil {
		return models.Course{}, nil, storeErr(err, "load quiz submissions", "quiz submission")
	}
	parents, err := s.assignmentsFor(ctx, subs)
	if err != nil {
		return models.Course{}, nil, err
	}

	seen := map[uuid.UUID]bool{}
	var studentIDs []uuid.UUID
	for _, sub := range subs {
		if !seen[sub.StudentID] {
			seen[sub.StudentID] = true
			studentIDs = append(studentIDs, sub.StudentID)
		}
	}
	for _, q := range quizSubs {
		if !seen[q.StudentID] {
			seen[q.StudentID] = true
			studentIDs = append(studentIDs, q.StudentID)
		}
	}
	people := map[uuid.UUID]models.User{}
	if len(studentIDs) > 0 {
		var users []models.User
		if err := db.Where("id IN ?", studentIDs).Find(&users).Error; err != nil {
			return models.Course{}, nil, storeErr(err, "load students", "student")
		}
		for _, u := range users {
			people[u.ID] = u
		}
	}

	rows := make([]ExportRow, 0, len(subs)+len(quizSubs))
	for _, sub := range subs {
		row := ExportRow{
			StudentID:   sub.StudentID,
			Kind:        RowKindAssignment,
			Status:      string(sub.Status),
			IsLate:      sub.IsLate,
			LatePenalty: sub.LatePenalty,
			SubmittedAt: sub.SubmittedAt,
			GradedAt:    sub.Grade.GradedAt,
		}
		if a, ok := s.resolveParent(parents, sub); ok {
			scored := models.ScoredSubmission{Submission: sub, Assignment: a}
			row.Title = a.Title
			row.MaxPoints = scored.PossiblePoints()
			row.Points = scored.EarnedPoints()
			row.Percentage = percent(row.Points, row.MaxPoints)
		}
		fillStudent(&row, people)
		rows = append(rows, row)
	}
	for _, q := range quizSubs {
		row := ExportRow{
			StudentID:   q.StudentID,
			Kind:        RowKindQuiz,
			Title:       q.QuizTitle,
			Status:      string(q.Status),
			Points:      q.EarnedPoints(),
			MaxPoints:   q.PossiblePoints(),
			Percentage:  q.Score,
			SubmittedAt: q.SubmittedOn(),
			GradedAt:    q.Grade.GradedAt,
		}
		fillStudent(&row, people)
		rows = append(rows, row)
	}
	return course, rows, nil
}

func fillStudent(row *ExportRow, people map[uuid.UUID]models.User) {
	if u, ok := people[row.StudentID]; ok {
		row.StudentName = u.FullName
		row.StudentEmail = u.Email
		row.Batch = u.Batch
	}
}

func (s *AnalyticsService) ownedCourse(ctx context.Context, instructor models.User, courseID uuid.UUID) (models.Course, error) {
	if err := requireInstructor(instructor); err != nil {
		return models.Course{}, err
	}
	var course models.Course
	if err := s.db.WithContext(ctx).First(&course, "id = ?", courseID).Error; err != nil {
		return models.Course{}, storeErr(err, "load course", "course")
	}
	if course.InstructorID != instructor.ID {
		return models.Course{}, errs.Forbidden("course belongs to another instructor")
	}
	return course, nil
}

// assignmentsFor fetches the parent assignments of subs in one query.
func (s *AnalyticsService) assignmentsFor(ctx context.Context, subs []models.AssignmentSubmission) (map[uuid.UUID]models.Assignment, error) {
	out := make(map[uuid.UUID]models.Assignment)
	seen := map[uuid.UUID]bool{}
	var ids []uuid.UUID
	for _, sub := range subs {
		if sub.AssignmentID != nil && !seen[*sub.AssignmentID] {
			seen[*sub.AssignmentID] = true
			ids = append(ids, *sub.AssignmentID)
		}
	}
	if len(ids) == 0 {
		return out, nil
	}
	var list []models.Assignment
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, storeErr(err, "load parent assignments", "assignment")
	}
	for _, a := range list {
		out[a.ID] = a
	}
	return out, nil
}

func (s *AnalyticsService) resolveParent(parents map[uuid.UUID]models.Assignment, sub models.AssignmentSubmission) (models.Assignment, bool) {
	if sub.AssignmentID == nil {
		return models.Assignment{}, false
	}
	a, ok := parents[*sub.AssignmentID]
	if !ok {
		s.log.Warn().
			Str("submission_id", sub.ID.String()).
			Str("assignment_id", sub.AssignmentID.String()).
			Msg("submission references a missing assignment, skipping")
	}
	return a, ok
}

func sumGradable(items []models.Gradable) (earned, possible float64) {
	for _, g := range items {
		earned += g.EarnedPoints()
		possible += g.PossiblePoints()
	}
	return earned, possible
}

func percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}
