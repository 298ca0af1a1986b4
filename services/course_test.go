package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

func TestCourse_CreateAndCodeReuse(t *testing.T) {
	db := newTestDB(t)
	svc := NewCourseService(db)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")

	c, err := svc.Create(ctx, teacher, CourseInput{Title: " Intro to Go ", Code: "go101"})
	require.NoError(t, err)
	assert.Equal(t, "GO101", c.Code)
	assert.Equal(t, "Intro to Go", c.Title)

	_, err = svc.Create(ctx, teacher, CourseInput{Title: "Again", Code: "GO101"})
	assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err))

	require.NoError(t, svc.Deactivate(ctx, teacher, c.ID))
	_, err = svc.Create(ctx, teacher, CourseInput{Title: "Again", Code: "GO101"})
	assert.NoError(t, err, "deactivated courses release their code")

	_, err = svc.Create(ctx, teacher, CourseInput{Title: "Bad", Code: "BAD1", Settings: models.CourseSettings{LatePenaltyRate: 120}})
	assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err))

	student := createUser(t, db, models.RoleStudent, "alice", "")
	_, err = svc.Create(ctx, student, CourseInput{Title: "Nope", Code: "NOPE"})
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
}

func TestCourse_ListForStudent(t *testing.T) {
	db := newTestDB(t)
	svc := NewCourseService(db)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	alice := createUser(t, db, models.RoleStudent, "alice", "2024-A")

	mk := func(code, batch string) models.Course {
		c, err := svc.Create(ctx, teacher, CourseInput{Title: code, Code: code, Batch: batch})
		require.NoError(t, err)
		return c
	}
	mk("OPEN", "")
	mk("MINE", "2024-A")
	other := mk("OTHER", "2024-B")
	mk("ELSE", "2024-C")
	_, err := svc.Enroll(ctx, alice, other.ID, day0)
	require.NoError(t, err)

	list, err := svc.List(ctx, alice)
	require.NoError(t, err)
	var codes []string
	for _, c := range list {
		codes = append(codes, c.Code)
	}
	assert.ElementsMatch(t, []string{"OPEN", "MINE", "OTHER"}, codes)

	require.NoError(t, svc.Drop(ctx, alice, other.ID))
	list, err = svc.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestCourse_GetHidesAnswersFromStudents(t *testing.T) {
	db := newTestDB(t)
	svc := NewCourseService(db)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	alice := createUser(t, db, models.RoleStudent, "alice", "")
	c := createCourse(t, db, teacher, "GO101", goBasics)

	asTeacher, err := svc.Get(ctx, teacher, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, asTeacher.Quizzes[0].Questions[1].CorrectOption)

	asStudent, err := svc.Get(ctx, alice, c.ID)
	require.NoError(t, err)
	for _, q := range asStudent.Quizzes[0].Questions {
		assert.Equal(t, -1, q.CorrectOption)
	}
	assert.Len(t, asStudent.Quizzes[0].Questions[0].Options, 3)
}

func TestCourse_SetQuizzesValidates(t *testing.T) {
	db := newTestDB(t)
	svc := NewCourseService(db)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	c := createCourse(t, db, teacher, "GO101")

	bad := []models.QuizDefinition{
		{Title: "", Questions: goBasics.Questions},
		{Title: "empty"},
		{Title: "one option", Questions: []models.QuizQuestion{{Question: "?", Options: []string{"a"}}}},
		{Title: "bad key", Questions: []models.QuizQuestion{{Question: "?", Options: []string{"a", "b"}, CorrectOption: 2}}},
	}
	for _, q := range bad {
		_, err := svc.SetQuizzes(ctx, teacher, c.ID, []models.QuizDefinition{q})
		assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err), q.Title)
	}

	got, err := svc.SetQuizzes(ctx, teacher, c.ID, []models.QuizDefinition{goBasics})
	require.NoError(t, err)
	assert.Len(t, got.Quizzes, 1)

	var stored models.Course
	require.NoError(t, db.First(&stored, "id = ?", c.ID).Error)
	require.Len(t, stored.Quizzes, 1)
	assert.Equal(t, "Go basics", stored.Quizzes[0].Title)
}

func TestCourse_EnrollmentLifecycle(t *testing.T) {
	db := newTestDB(t)
	svc := NewCourseService(db)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	alice := createUser(t, db, models.RoleStudent, "alice", "")
	bob := createUser(t, db, models.RoleStudent, "bob", "")

	c, err := svc.Create(ctx, teacher, CourseInput{Title: "Small", Code: "SMALL", Settings: models.CourseSettings{MaxEnrollment: 1}})
	require.NoError(t, err)

	first, err := svc.Enroll(ctx, alice, c.ID, day0)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentActive, first.Status)

	again, err := svc.Enroll(ctx, alice, c.ID, day0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "enrolling twice is a no-op")

	_, err = svc.Enroll(ctx, bob, c.ID, day0)
	assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err), "course is full")

	require.NoError(t, svc.Drop(ctx, alice, c.ID))
	assert.Equal(t, errs.KindNotFound, errs.KindOf(svc.Drop(ctx, alice, c.ID)))

	_, err = svc.Enroll(ctx, bob, c.ID, day0)
	require.NoError(t, err)

	_, err = svc.Enroll(ctx, alice, c.ID, day0)
	assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err), "full again")

	require.NoError(t, svc.Complete(ctx, teacher, c.ID, bob.ID))
	_, err = svc.Enroll(ctx, bob, c.ID, day0)
	assert.Equal(t, errs.KindValidationFailed, errs.KindOf(err), "completed enrollments stay completed")

	back, err := svc.Enroll(ctx, alice, c.ID, day0)
	require.NoError(t, err)
	assert.Equal(t, first.ID, back.ID, "dropped enrollment is reactivated")

	var n int64
	require.NoError(t, db.Model(&models.CourseEnrollment{}).Where("course_id = ?", c.ID).Count(&n).Error)
	assert.EqualValues(t, 2, n)
}
