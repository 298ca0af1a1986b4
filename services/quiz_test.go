package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

var goBasics = models.QuizDefinition{
	Title: "Go basics",
	Questions: []models.QuizQuestion{
		{Question: "Zero value of int?", Options: []string{"0", "nil", "undefined"}, CorrectOption: 0},
		{Question: "Keyword for goroutines?", Options: []string{"async", "go", "spawn"}, CorrectOption: 1},
		{Question: "Map lookup with presence?", Options: []string{"m[k]", "m.get(k)", "v, ok := m[k]"}, CorrectOption: 2},
	},
}

func TestGradeQuiz(t *testing.T) {
	tests := []struct {
		name        string
		answers     []*int
		wantCorrect int
		wantScore   float64
	}{
		{name: "all correct", answers: []*int{intp(0), intp(1), intp(2)}, wantCorrect: 3, wantScore: 100},
		{name: "two of three", answers: []*int{intp(0), nil, intp(2)}, wantCorrect: 2, wantScore: 200.0 / 3},
		{name: "all unanswered", answers: []*int{nil, nil, nil}, wantCorrect: 0, wantScore: 0},
		{name: "short answer list", answers: []*int{intp(0)}, wantCorrect: 1, wantScore: 100.0 / 3},
		{name: "out of range option", answers: []*int{intp(7), intp(1), intp(-1)}, wantCorrect: 1, wantScore: 100.0 / 3},
		{name: "no answers", answers: nil, wantCorrect: 0, wantScore: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := GradeQuiz(goBasics, tt.answers)
			assert.Equal(t, 3, res.Total)
			assert.Equal(t, tt.wantCorrect, res.Correct)
			assert.InDelta(t, tt.wantScore, res.Score, 1e-9)
			assert.Len(t, res.Results, 3)
		})
	}

	empty := GradeQuiz(models.QuizDefinition{Title: "empty"}, []*int{intp(0)})
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.Score)
}

func TestQuiz_SubmitAndResubmit(t *testing.T) {
	db := newTestDB(t)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	alice := createUser(t, db, models.RoleStudent, "alice", "")
	course := createCourse(t, db, teacher, "GO101", goBasics)
	_, err := NewCourseService(db).Enroll(ctx, alice, course.ID, day0)
	require.NoError(t, err)

	svc := NewQuizService(db)
	first, res, err := svc.Submit(ctx, alice, QuizInput{CourseID: course.ID, Answers: []*int{intp(0), nil, intp(2)}}, day0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Correct)
	assert.Equal(t, 2, first.RawScore)
	assert.Equal(t, 3, first.MaxScore)
	assert.InDelta(t, 200.0/3, first.Score, 1e-9)
	assert.Equal(t, models.StatusGraded, first.Status)
	assert.Equal(t, "Go basics", first.QuizTitle)
	assert.Equal(t, "D", first.Grade.LetterGrade)

	later := day0.Add(time.Hour)
	second, res, err := svc.Submit(ctx, alice, QuizInput{CourseID: course.ID, Answers: []*int{intp(0), intp(1), intp(2)}}, later)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Correct)
	assert.InDelta(t, 100, second.Score, 1e-9)
	assert.Equal(t, first.ID, second.ID, "resubmission overwrites in place")
	assert.True(t, later.Equal(second.SubmittedAt))

	var n int64
	require.NoError(t, db.Model(&models.QuizSubmission{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	mine, err := svc.ListMine(ctx, alice, &course.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.InDelta(t, 100, mine[0].Score, 1e-9)
}

func TestQuiz_SubmitRejects(t *testing.T) {
	db := newTestDB(t)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	alice := createUser(t, db, models.RoleStudent, "alice", "")
	bob := createUser(t, db, models.RoleStudent, "bob", "")
	course := createCourse(t, db, teacher, "GO101", goBasics)
	_, err := NewCourseService(db).Enroll(ctx, alice, course.ID, day0)
	require.NoError(t, err)
	svc := NewQuizService(db)

	_, _, err = svc.Submit(ctx, bob, QuizInput{CourseID: course.ID}, day0)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err), "not enrolled")

	_, _, err = svc.Submit(ctx, teacher, QuizInput{CourseID: course.ID}, day0)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, _, err = svc.Submit(ctx, alice, QuizInput{CourseID: course.ID, QuizIndex: 1}, day0)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	_, _, err = svc.Submit(ctx, alice, QuizInput{CourseID: uuid.New()}, day0)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	_, _, err = svc.Submit(ctx, alice, QuizInput{CourseID: course.ID, Answers: []*int{nil, nil, nil, nil}}, day0)
	assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err))
}
