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

func titles(list []models.Assignment) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Title)
	}
	return out
}

func TestDistribution_ListVisible(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributionService(db, nil)

	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	rival := createUser(t, db, models.RoleInstructor, "rival", "")
	alice := createUser(t, db, models.RoleStudent, "alice", "2024-A")

	createAssignment(t, db, teacher, func(a *models.Assignment) { a.Title = "batch-a"; a.Batch = "2024-A" })
	createAssignment(t, db, teacher, func(a *models.Assignment) { a.Title = "everyone" })
	createAssignment(t, db, teacher, func(a *models.Assignment) { a.Title = "batch-b"; a.Batch = "2024-B" })
	createAssignment(t, db, teacher, func(a *models.Assignment) { a.Title = "lowercase"; a.Batch = "2024-a" })
	createAssignment(t, db, teacher, func(a *models.Assignment) { a.Title = "draft"; a.Batch = "2024-A"; a.Published = false })
	retired := createAssignment(t, db, teacher, func(a *models.Assignment) { a.Title = "retired"; a.Batch = "2024-A" })
	require.NoError(t, db.Model(&retired).Update("active", false).Error)
	rostered := createAssignment(t, db, rival, func(a *models.Assignment) { a.Title = "rostered"; a.Batch = "2024-C" })
	require.NoError(t, db.Create(&models.AssignmentStudent{AssignmentID: rostered.ID, StudentID: alice.ID, AssignedAt: day0}).Error)

	got, err := svc.ListVisible(ctx, alice)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"batch-a", "everyone", "rostered"}, titles(got))

	got, err = svc.ListVisible(ctx, teacher)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"batch-a", "everyone", "batch-b", "lowercase", "draft", "retired"}, titles(got))

	got, err = svc.ListVisible(ctx, rival)
	require.NoError(t, err)
	assert.Equal(t, []string{"rostered"}, titles(got))
}

func TestDistribution_Get(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributionService(db, nil)

	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	rival := createUser(t, db, models.RoleInstructor, "rival", "")
	alice := createUser(t, db, models.RoleStudent, "alice", "2024-A")
	bob := createUser(t, db, models.RoleStudent, "bob", "2024-B")
	a := createAssignment(t, db, teacher, func(a *models.Assignment) { a.Batch = "2024-A" })

	got, err := svc.Get(ctx, alice, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = svc.Get(ctx, bob, a.ID)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	_, err = svc.Get(ctx, rival, a.ID)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = svc.Get(ctx, teacher, uuid.New())
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestDistribution_AssignStudent(t *testing.T) {
	db := newTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewDistributionService(db, notifier)

	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	bob := createUser(t, db, models.RoleStudent, "bob", "2024-B")
	a := createAssignment(t, db, teacher, func(a *models.Assignment) {
		a.Batch = "2024-A"
		a.Published = false
		a.PublishedAt = nil
	})

	now := day0.Add(2 * time.Hour)
	res, err := svc.AssignStudent(ctx, teacher, a.ID, bob.ID, now)
	require.NoError(t, err)
	assert.True(t, res.AutoPublished)
	assert.True(t, res.Assignment.Published)
	require.NotNil(t, res.Assignment.PublishedAt)
	assert.True(t, now.Equal(*res.Assignment.PublishedAt))

	var stored models.Assignment
	require.NoError(t, db.First(&stored, "id = ?", a.ID).Error)
	assert.True(t, stored.Published)

	visible, err := svc.ListVisible(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
	assert.Equal(t, []string{models.NotifyAssigned}, notifier.types())

	_, err = svc.AssignStudent(ctx, teacher, a.ID, bob.ID, now)
	assert.Equal(t, errs.KindDuplicateAssignment, errs.KindOf(err))

	var n int64
	require.NoError(t, db.Model(&models.AssignmentStudent{}).Where("assignment_id = ?", a.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestDistribution_AssignStudent_AlreadyPublished(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributionService(db, nil)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	bob := createUser(t, db, models.RoleStudent, "bob", "")
	a := createAssignment(t, db, teacher, nil)

	res, err := svc.AssignStudent(ctx, teacher, a.ID, bob.ID, day0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, res.AutoPublished)
	assert.True(t, day0.Equal(*res.Assignment.PublishedAt), "publish time is kept")
}

func TestDistribution_AssignStudent_Rejects(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributionService(db, nil)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	rival := createUser(t, db, models.RoleInstructor, "rival", "")
	bob := createUser(t, db, models.RoleStudent, "bob", "")
	a := createAssignment(t, db, teacher, nil)

	_, err := svc.AssignStudent(ctx, rival, a.ID, bob.ID, day0)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = svc.AssignStudent(ctx, bob, a.ID, bob.ID, day0)
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))

	_, err = svc.AssignStudent(ctx, teacher, a.ID, rival.ID, day0)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err), "instructors cannot be rostered")

	_, err = svc.AssignStudent(ctx, teacher, a.ID, uuid.New(), day0)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestDistribution_UnassignStudent(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributionService(db, nil)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	bob := createUser(t, db, models.RoleStudent, "bob", "2024-B")
	a := createAssignment(t, db, teacher, func(a *models.Assignment) { a.Batch = "2024-A" })

	err := svc.UnassignStudent(ctx, teacher, a.ID, bob.ID)
	assert.Equal(t, errs.KindNotAssigned, errs.KindOf(err))

	_, err = svc.AssignStudent(ctx, teacher, a.ID, bob.ID, day0)
	require.NoError(t, err)
	require.NoError(t, svc.UnassignStudent(ctx, teacher, a.ID, bob.ID))

	visible, err := svc.ListVisible(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestDistribution_AutoAssign(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributionService(db, nil)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	alice := createUser(t, db, models.RoleStudent, "alice", "2024-A")

	fresh := createAssignment(t, db, teacher, func(a *models.Assignment) { a.Batch = "2024-A" })
	held := createAssignment(t, db, teacher, func(a *models.Assignment) { a.Batch = "2024-A" })
	createAssignment(t, db, teacher, func(a *models.Assignment) { a.Batch = "2024-A"; a.Published = false })
	createAssignment(t, db, teacher, func(a *models.Assignment) { a.Batch = "2024-B" })
	createAssignment(t, db, teacher, nil)
	require.NoError(t, db.Create(&models.AssignmentStudent{AssignmentID: held.ID, StudentID: alice.ID, AssignedAt: day0}).Error)

	res, err := svc.AutoAssign(ctx, alice.ID, day0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.AlreadyAssigned)
	assert.Equal(t, []uuid.UUID{fresh.ID}, res.AssignmentIDs)

	var added, kept models.AssignmentStudent
	require.NoError(t, db.Where("assignment_id = ? AND student_id = ?", fresh.ID, alice.ID).First(&added).Error)
	assert.Equal(t, models.RosterAuto, added.Source)
	require.NoError(t, db.Where("assignment_id = ? AND student_id = ?", held.ID, alice.ID).First(&kept).Error)
	assert.Equal(t, models.RosterManual, kept.Source, "rows without a source default to manual")

	res, err = svc.AutoAssign(ctx, alice.ID, day0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 2, res.AlreadyAssigned)

	loner := createUser(t, db, models.RoleStudent, "loner", "")
	res, err = svc.AutoAssign(ctx, loner.ID, day0)
	require.NoError(t, err)
	assert.Zero(t, res.Added)
	assert.Zero(t, res.AlreadyAssigned)
}

func TestDistribution_SetPublished(t *testing.T) {
	db := newTestDB(t)
	svc := NewDistributionService(db, nil)
	teacher := createUser(t, db, models.RoleInstructor, "teacher", "")
	alice := createUser(t, db, models.RoleStudent, "alice", "")
	a := createAssignment(t, db, teacher, func(a *models.Assignment) { a.Published = false; a.PublishedAt = nil })

	now := day0.Add(time.Hour)
	got, err := svc.SetPublished(ctx, teacher, a.ID, true, now)
	require.NoError(t, err)
	assert.True(t, got.Published)
	assert.True(t, now.Equal(*got.PublishedAt))

	visible, err := svc.ListVisible(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	_, err = svc.SetPublished(ctx, teacher, a.ID, false, now)
	require.NoError(t, err)
	visible, err = svc.ListVisible(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, visible)
}
