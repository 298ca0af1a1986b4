package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

// DistributionService decides which assignments a user can see and owns the
// explicit per-student roster.
type DistributionService struct {
	db       *gorm.DB
	notifier Notifier
	log      zerolog.Logger
}

func NewDistributionService(db *gorm.DB, notifier Notifier) *DistributionService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &DistributionService{db: db, notifier: notifier, log: componentLogger("distribution")}
}

type AssignResult struct {
	Assignment    models.Assignment `json:"assignment"`
	AutoPublished bool              `json:"auto_published"`
}

type AutoAssignResult struct {
	StudentID       uuid.UUID   `json:"student_id"`
	Batch           string      `json:"batch"`
	Added           int         `json:"added"`
	AlreadyAssigned int         `json:"already_assigned"`
	AssignmentIDs   []uuid.UUID `json:"assignment_ids"`
}

func storeErr(err error, op, entity string) error {
	return errs.FromStore(errors.Wrap(err, op), entity)
}

// ListVisible returns the instructor's own assignments, or for a student every
// active, published assignment whose batch equals the student's batch, is
// empty, or whose roster contains the student.
func (s *DistributionService) ListVisible(ctx context.Context, u models.User) ([]models.Assignment, error) {
	db := s.db.WithContext(ctx)
	var list []models.Assignment

	if u.IsInstructor() {
		if err := db.Where("instructor_id = ?", u.ID).
			Order("due_date ASC").
			Find(&list).Error; err != nil {
			return nil, storeErr(err, "list instructor assignments", "assignment")
		}
		return list, nil
	}

	rostered := db.Model(&models.AssignmentStudent{}).Select("assignment_id").Where("student_id = ?", u.ID)
	err := db.Preload("AssignedStudents", "student_id = ?", u.ID).
		Where("active = ? AND published = ?", true, true).
		Where(db.Where("batch = ?", u.Batch).Or("batch = ?", "").Or("id IN (?)", rostered)).
		Order("due_date ASC").
		Find(&list).Error
	if err != nil {
		return nil, storeErr(err, "list visible assignments", "assignment")
	}

	visible := list[:0]
	for _, a := range list {
		if a.IsVisibleTo(u) {
			visible = append(visible, a)
		}
	}
	return visible, nil
}

// Get loads one assignment for u. Students get NotFound for assignments they
// cannot see; instructors get Forbidden for assignments they do not own.
func (s *DistributionService) Get(ctx context.Context, u models.User, id uuid.UUID) (models.Assignment, error) {
	a, err := s.load(ctx, id, u)
	if err != nil {
		return models.Assignment{}, err
	}
	if !a.IsVisibleTo(u) {
		if u.IsInstructor() {
			return models.Assignment{}, errs.Forbidden("assignment belongs to another instructor")
		}
		return models.Assignment{}, errs.NotFound("assignment")
	}
	return a, nil
}

func (s *DistributionService) load(ctx context.Context, id uuid.UUID, viewer models.User) (models.Assignment, error) {
	var a models.Assignment
	q := s.db.WithContext(ctx)
	if viewer.IsStudent() {
		q = q.Preload("AssignedStudents", "student_id = ?", viewer.ID)
	} else {
		q = q.Preload("AssignedStudents")
	}
	if err := q.First(&a, "id = ?", id).Error; err != nil {
		return models.Assignment{}, storeErr(err, "load assignment", "assignment")
	}
	return a, nil
}

func (s *DistributionService) loadOwned(ctx context.Context, actor models.User, id uuid.UUID) (models.Assignment, error) {
	if err := requireInstructor(actor); err != nil {
		return models.Assignment{}, err
	}
	a, err := s.load(ctx, id, actor)
	if err != nil {
		return models.Assignment{}, err
	}
	if a.InstructorID != actor.ID {
		return models.Assignment{}, errs.Forbidden("assignment belongs to another instructor")
	}
	return a, nil
}

func (s *DistributionService) loadStudent(ctx context.Context, id uuid.UUID) (models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return models.User{}, storeErr(err, "load student", "student")
	}
	if !u.IsStudent() || !u.Active {
		return models.User{}, errs.NotFound("student")
	}
	return u, nil
}

// AssignStudent adds studentID to the roster. As a post-condition, an
// unpublished assignment becomes published with PublishedAt = now.
func (s *DistributionService) AssignStudent(ctx context.Context, actor models.User, assignmentID, studentID uuid.UUID, now time.Time) (AssignResult, error) {
	a, err := s.loadOwned(ctx, actor, assignmentID)
	if err != nil {
		return AssignResult{}, err
	}
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return AssignResult{}, err
	}
	if a.HasStudent(studentID) {
		return AssignResult{}, duplicateAssignment(a.ID, studentID)
	}

	entry := models.AssignmentStudent{AssignmentID: a.ID, StudentID: studentID, Source: models.RosterManual, AssignedAt: now}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if errs.IsUniqueViolation(err) {
			return AssignResult{}, duplicateAssignment(a.ID, studentID)
		}
		return AssignResult{}, storeErr(err, "insert roster entry", "assignment")
	}
	a.AssignedStudents = append(a.AssignedStudents, entry)

	published, err := s.publishOnAssign(ctx, &a, now)
	if err != nil {
		return AssignResult{}, err
	}

	s.notifier.Notify(ctx, models.Notification{
		UserID:       student.ID,
		Title:        "New assignment",
		Message:      fmt.Sprintf("You have been assigned %q", a.Title),
		Type:         models.NotifyAssigned,
		AssignmentID: &a.ID,
	}, now)
	return AssignResult{Assignment: a, AutoPublished: published}, nil
}

// publishOnAssign publishes a if it is not yet published. Explicitly
// assigning a student implies the assignment should be visible.
func (s *DistributionService) publishOnAssign(ctx context.Context, a *models.Assignment, now time.Time) (bool, error) {
	if a.Published {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("id = ? AND published = ?", a.ID, false).
		Updates(map[string]interface{}{"published": true, "published_at": now})
	if res.Error != nil {
		return false, storeErr(res.Error, "auto-publish assignment", "assignment")
	}
	a.Published = true
	a.PublishedAt = &now
	return res.RowsAffected > 0, nil
}

func (s *DistributionService) UnassignStudent(ctx context.Context, actor models.User, assignmentID, studentID uuid.UUID) error {
	a, err := s.loadOwned(ctx, actor, assignmentID)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).
		Where("assignment_id = ? AND student_id = ?", a.ID, studentID).
		Delete(&models.AssignmentStudent{})
	if res.Error != nil {
		return storeErr(res.Error, "delete roster entry", "assignment")
	}
	if res.RowsAffected == 0 {
		return errs.New(errs.KindNotAssigned, "student is not assigned to this assignment").
			With("assignment_id", a.ID).
			With("student_id", studentID)
	}
	return nil
}

// AutoAssign rosters the student onto every active, published assignment whose
// batch exactly equals the student's batch. Students without a batch are left
// alone since empty-batch assignments are already visible to everyone.
func (s *DistributionService) AutoAssign(ctx context.Context, studentID uuid.UUID, now time.Time) (AutoAssignResult, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return AutoAssignResult{}, err
	}
	res := AutoAssignResult{StudentID: student.ID, Batch: student.Batch, AssignmentIDs: []uuid.UUID{}}
	if student.Batch == "" {
		return res, nil
	}

	var list []models.Assignment
	if err := s.db.WithContext(ctx).
		Preload("AssignedStudents", "student_id = ?", student.ID).
		Where("active = ? AND published = ? AND batch = ?", true, true, student.Batch).
		Find(&list).Error; err != nil {
		return AutoAssignResult{}, storeErr(err, "list batch assignments", "assignment")
	}

	for _, a := range list {
		if a.HasStudent(student.ID) {
			res.AlreadyAssigned++
			continue
		}
		entry := models.AssignmentStudent{AssignmentID: a.ID, StudentID: student.ID, Source: models.RosterAuto, AssignedAt: now}
		if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
			if errs.IsUniqueViolation(err) {
				// another request rostered the student first
				res.AlreadyAssigned++
				continue
			}
			return res, storeErr(err, "insert roster entry", "assignment")
		}
		res.Added++
		res.AssignmentIDs = append(res.AssignmentIDs, a.ID)
	}

	s.log.Info().
		Str("student_id", student.ID.String()).
		Str("batch", student.Batch).
		Int("added", res.Added).
		Int("already_assigned", res.AlreadyAssigned).
		Msg("auto-assign completed")
	return res, nil
}

// ReleaseBatch drops the roster entries AutoAssign added for a batch the
// student has left. Manual entries stay, and so do entries for assignments the
// student already has a submission on.
func (s *DistributionService) ReleaseBatch(ctx context.Context, studentID uuid.UUID, oldBatch string) (int64, error) {
	if oldBatch == "" {
		return 0, nil
	}
	db := s.db.WithContext(ctx)
	batchAssignments := db.Model(&models.Assignment{}).Select("id").Where("batch = ?", oldBatch)
	started := db.Model(&models.AssignmentSubmission{}).Select("assignment_id").
		Where("student_id = ? AND assignment_id IS NOT NULL", studentID)

	res := db.Where("student_id = ? AND source = ?", studentID, models.RosterAuto).
		Where("assignment_id IN (?)", batchAssignments).
		Where("assignment_id NOT IN (?)", started).
		Delete(&models.AssignmentStudent{})
	if res.Error != nil {
		return 0, storeErr(res.Error, "release batch roster entries", "assignment")
	}
	s.log.Info().
		Str("student_id", studentID.String()).
		Str("batch", oldBatch).
		Int64("released", res.RowsAffected).
		Msg("released previous batch")
	return res.RowsAffected, nil
}

// ListRoster returns the students explicitly assigned to an assignment.
func (s *DistributionService) ListRoster(ctx context.Context, actor models.User, assignmentID uuid.UUID) ([]models.User, error) {
	a, err := s.loadOwned(ctx, actor, assignmentID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(a.AssignedStudents))
	for _, e := range a.AssignedStudents {
		ids = append(ids, e.StudentID)
	}
	users := []models.User{}
	if len(ids) == 0 {
		return users, nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("full_name ASC").Find(&users).Error; err != nil {
		return nil, storeErr(err, "load roster students", "student")
	}
	return users, nil
}

func (s *DistributionService) SetPublished(ctx context.Context, actor models.User, assignmentID uuid.UUID, published bool, now time.Time) (models.Assignment, error) {
	a, err := s.loadOwned(ctx, actor, assignmentID)
	if err != nil {
		return models.Assignment{}, err
	}
	updates := map[string]interface{}{"published": published}
	if published && !a.Published {
		updates["published_at"] = now
		a.PublishedAt = &now
	}
	if err := s.db.WithContext(ctx).Model(&models.Assignment{}).Where("id = ?", a.ID).Updates(updates).Error; err != nil {
		return models.Assignment{}, storeErr(err, "update publish state", "assignment")
	}
	a.Published = published
	return a, nil
}

func duplicateAssignment(assignmentID, studentID uuid.UUID) error {
	return errs.New(errs.KindDuplicateAssignment, "student is already assigned to this assignment").
		With("assignment_id", assignmentID).
		With("student_id", studentID)
}
