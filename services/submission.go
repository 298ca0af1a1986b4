package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

// SubmissionService drives an assignment submission through
// draft -> submitted -> graded -> returned.
type SubmissionService struct {
	db       *gorm.DB
	notifier Notifier
}

func NewSubmissionService(db *gorm.DB, notifier Notifier) *SubmissionService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &SubmissionService{db: db, notifier: notifier}
}

type SaveInput struct {
	AssignmentID uuid.UUID           `json:"assignment_id" binding:"required"`
	Content      string              `json:"content"`
	Attachments  []models.Attachment `json:"attachments"`
}

type GradeInput struct {
	Points   float64             `json:"points" binding:"gte=0"`
	Feedback string              `json:"feedback"`
	Rubric   []models.RubricItem `json:"rubric"`
}

// SaveDraft creates the student's draft for an assignment, or overwrites the
// existing draft and bumps its attempt number. Once submitted the record can
// no longer be written by the student.
func (s *SubmissionService) SaveDraft(ctx context.Context, student models.User, in SaveInput) (models.AssignmentSubmission, error) {
	if err := requireStudent(student); err != nil {
		return models.AssignmentSubmission{}, err
	}
	for _, att := range in.Attachments {
		if att.URL == "" || att.Filename == "" {
			return models.AssignmentSubmission{}, errs.Validation("attachments", "attachments need a filename and a url")
		}
	}

	a, err := s.visibleAssignment(ctx, student, in.AssignmentID)
	if err != nil {
		return models.AssignmentSubmission{}, err
	}

	existing, err := s.findOwn(ctx, a.ID, student.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sub, inserted, insertErr := s.insertDraft(ctx, a, student, in)
		if insertErr != nil || inserted {
			return sub, insertErr
		}
		// a concurrent save created the row first; update that one
		existing, err = s.findOwn(ctx, a.ID, student.ID)
	}
	if err != nil {
		return models.AssignmentSubmission{}, storeErr(err, "load submission", "submission")
	}

	if existing.Status != models.StatusDraft {
		return models.AssignmentSubmission{}, alreadySubmitted(existing)
	}
	res := s.db.WithContext(ctx).Model(&models.AssignmentSubmission{}).
		Where("id = ? AND status = ?", existing.ID, models.StatusDraft).
		Updates(map[string]interface{}{
			"content":        in.Content,
			"attachments":    datatypes.JSONSlice[models.Attachment](in.Attachments),
			"attempt_number": gorm.Expr("attempt_number + 1"),
		})
	if res.Error != nil {
		return models.AssignmentSubmission{}, storeErr(res.Error, "update draft", "submission")
	}
	if res.RowsAffected == 0 {
		// submitted between our read and write
		return models.AssignmentSubmission{}, errs.New(errs.KindAlreadySubmitted, "submission has already been submitted")
	}
	return s.reload(ctx, existing.ID)
}

func (s *SubmissionService) findOwn(ctx context.Context, assignmentID, studentID uuid.UUID) (models.AssignmentSubmission, error) {
	var sub models.AssignmentSubmission
	err := s.db.WithContext(ctx).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		First(&sub).Error
	return sub, err
}

// insertDraft relies on the (assignment, student) unique index to reject a
// concurrent second insert. A rejected insert reports inserted == false.
func (s *SubmissionService) insertDraft(ctx context.Context, a models.Assignment, student models.User, in SaveInput) (models.AssignmentSubmission, bool, error) {
	sub := models.AssignmentSubmission{
		AssignmentID:  &a.ID,
		StudentID:     student.ID,
		CourseID:      a.CourseID,
		Content:       in.Content,
		Attachments:   in.Attachments,
		AttemptNumber: 1,
		Status:        models.StatusDraft,
	}
	if err := s.db.WithContext(ctx).Create(&sub).Error; err != nil {
		if errs.IsUniqueViolation(err) {
			return models.AssignmentSubmission{}, false, nil
		}
		return models.AssignmentSubmission{}, false, storeErr(err, "create draft", "submission")
	}
	return sub, true, nil
}

// Submit moves a draft to submitted. The assignment must be open at now and
// the attempt count within the limit; lateness and the late penalty are
// stamped with the same instant.
func (s *SubmissionService) Submit(ctx context.Context, student models.User, submissionID uuid.UUID, now time.Time) (models.AssignmentSubmission, error) {
	sub, err := s.load(ctx, submissionID)
	if err != nil {
		return models.AssignmentSubmission{}, err
	}
	if sub.StudentID != student.ID {
		return models.AssignmentSubmission{}, errs.Forbidden("submission belongs to another student")
	}
	if sub.Status != models.StatusDraft {
		return models.AssignmentSubmission{}, alreadySubmitted(sub)
	}
	a, err := s.parent(ctx, sub)
	if err != nil {
		return models.AssignmentSubmission{}, err
	}

	if !a.IsOpen(now) {
		e := errs.New(errs.KindAssignmentClosed, "assignment is not open for submission").
			With("due_date", a.DueDate).
			With("allow_late_submission", a.AllowLateSubmission).
			With("published", a.Published).
			With("active", a.Active).
			With("now", now)
		if a.StartDate != nil {
			e = e.With("start_date", *a.StartDate)
		}
		return models.AssignmentSubmission{}, e
	}
	if a.MaxAttempts > 0 && sub.AttemptNumber > a.MaxAttempts {
		return models.AssignmentSubmission{}, errs.Newf(errs.KindAttemptLimitExceeded,
			"attempt %d exceeds the limit of %d", sub.AttemptNumber, a.MaxAttempts).
			With("attempt_number", sub.AttemptNumber).
			With("max_attempts", a.MaxAttempts)
	}

	late, penalty := a.LatePenaltyFor(now)
	res := s.db.WithContext(ctx).Model(&models.AssignmentSubmission{}).
		Where("id = ? AND status = ?", sub.ID, models.StatusDraft).
		Updates(map[string]interface{}{
			"status":       models.StatusSubmitted,
			"submitted_at": now,
			"is_late":      late,
			"late_penalty": penalty,
		})
	if res.Error != nil {
		return models.AssignmentSubmission{}, storeErr(res.Error, "submit", "submission")
	}
	if res.RowsAffected == 0 {
		return models.AssignmentSubmission{}, errs.New(errs.KindAlreadySubmitted, "submission has already been submitted")
	}
	return s.reload(ctx, sub.ID)
}

// Grade records the instructor's grade on a submitted submission.
func (s *SubmissionService) Grade(ctx context.Context, instructor models.User, submissionID uuid.UUID, in GradeInput, now time.Time) (models.AssignmentSubmission, error) {
	sub, a, err := s.ownedByInstructor(ctx, instructor, submissionID)
	if err != nil {
		return models.AssignmentSubmission{}, err
	}
	if sub.Status != models.StatusSubmitted {
		return models.AssignmentSubmission{}, errs.New(errs.KindNotSubmitted, "only submitted work can be graded").
			With("status", sub.Status)
	}
	maxPoints := a.PossiblePoints()
	if in.Points < 0 || in.Points > maxPoints {
		return models.AssignmentSubmission{}, errs.Validation("points", fmt.Sprintf("points must be between 0 and %g", maxPoints)).
			With("max_points", maxPoints)
	}

	pct := in.Points / maxPoints * 100
	res := s.db.WithContext(ctx).Model(&models.AssignmentSubmission{}).
		Where("id = ? AND status = ?", sub.ID, models.StatusSubmitted).
		Updates(map[string]interface{}{
			"status":             models.StatusGraded,
			"grade_points":       in.Points,
			"grade_percentage":   pct,
			"grade_letter_grade": models.LetterGrade(pct),
			"grade_graded_by":    instructor.ID,
			"grade_graded_at":    now,
			"grade_feedback":     in.Feedback,
			"grade_rubric":       datatypes.JSONSlice[models.RubricItem](in.Rubric),
		})
	if res.Error != nil {
		return models.AssignmentSubmission{}, storeErr(res.Error, "grade", "submission")
	}
	if res.RowsAffected == 0 {
		return models.AssignmentSubmission{}, errs.New(errs.KindNotSubmitted, "submission changed state while grading")
	}

	out, err := s.reload(ctx, sub.ID)
	if err != nil {
		return models.AssignmentSubmission{}, err
	}
	s.notifier.Notify(ctx, models.Notification{
		UserID:       sub.StudentID,
		Title:        "Submission graded",
		Message:      fmt.Sprintf("%q was graded: %g/%g", a.Title, out.FinalPoints(), maxPoints),
		Type:         models.NotifyGraded,
		AssignmentID: &a.ID,
		SubmissionID: &out.ID,
	}, now)
	return out, nil
}

// AdjustLatePenalty overrides the stored penalty percentage. The effective
// grade follows on the next read since it is never stored.
func (s *SubmissionService) AdjustLatePenalty(ctx context.Context, instructor models.User, submissionID uuid.UUID, penalty float64) (models.AssignmentSubmission, error) {
	if penalty < 0 || penalty > 100 {
		return models.AssignmentSubmission{}, errs.Validation("late_penalty", "late penalty must be between 0 and 100")
	}
	sub, _, err := s.ownedByInstructor(ctx, instructor, submissionID)
	if err != nil {
		return models.AssignmentSubmission{}, err
	}
	if sub.Status == models.StatusDraft {
		return models.AssignmentSubmission{}, errs.New(errs.KindNotSubmitted, "draft submissions carry no penalty").
			With("status", sub.Status)
	}
	if err := s.db.WithContext(ctx).Model(&models.AssignmentSubmission{}).
		Where("id = ?", sub.ID).
		Update("late_penalty", penalty).Error; err != nil {
		return models.AssignmentSubmission{}, storeErr(err, "adjust late penalty", "submission")
	}
	return s.reload(ctx, sub.ID)
}

// Return hands graded work back to the student. Returned submissions are
// final.
func (s *SubmissionService) Return(ctx context.Context, instructor models.User, submissionID uuid.UUID, now time.Time) (models.AssignmentSubmission, error) {
	sub, a, err := s.ownedByInstructor(ctx, instructor, submissionID)
	if err != nil {
		return models.AssignmentSubmission{}, err
	}
	if sub.Status != models.StatusGraded {
		return models.AssignmentSubmission{}, errs.New(errs.KindNotGraded, "only graded work can be returned").
			With("status", sub.Status)
	}
	res := s.db.WithContext(ctx).Model(&models.AssignmentSubmission{}).
		Where("id = ? AND status = ?", sub.ID, models.StatusGraded).
		Update("status", models.StatusReturned)
	if res.Error != nil {
		return models.AssignmentSubmission{}, storeErr(res.Error, "return", "submission")
	}
	if res.RowsAffected == 0 {
		return models.AssignmentSubmission{}, errs.New(errs.KindNotGraded, "submission changed state while returning")
	}
	s.notifier.Notify(ctx, models.Notification{
		UserID:       sub.StudentID,
		Title:        "Submission returned",
		Message:      fmt.Sprintf("%q has been returned to you", a.Title),
		Type:         models.NotifyReturned,
		AssignmentID: &a.ID,
		SubmissionID: &sub.ID,
	}, now)
	return s.reload(ctx, sub.ID)
}

// Get returns a submission to its student or to the owning instructor.
func (s *SubmissionService) Get(ctx context.Context, viewer models.User, submissionID uuid.UUID) (models.AssignmentSubmission, error) {
	if viewer.IsInstructor() {
		sub, _, err := s.ownedByInstructor(ctx, viewer, submissionID)
		return sub, err
	}
	sub, err := s.load(ctx, submissionID)
	if err != nil {
		return models.AssignmentSubmission{}, err
	}
	if sub.StudentID != viewer.ID {
		return models.AssignmentSubmission{}, errs.Forbidden("submission belongs to another student")
	}
	return sub, nil
}

func (s *SubmissionService) ListMine(ctx context.Context, student models.User) ([]models.AssignmentSubmission, error) {
	var list []models.AssignmentSubmission
	if err := s.db.WithContext(ctx).
		Where("student_id = ?", student.ID).
		Order("updated_at DESC").
		Find(&list).Error; err != nil {
		return nil, storeErr(err, "list submissions", "submission")
	}
	return list, nil
}

func (s *SubmissionService) ListForAssignment(ctx context.Context, instructor models.User, assignmentID uuid.UUID, status string) ([]models.AssignmentSubmission, error) {
	if err := requireInstructor(instructor); err != nil {
		return nil, err
	}
	var a models.Assignment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", assignmentID).Error; err != nil {
		return nil, storeErr(err, "load assignment", "assignment")
	}
	if a.InstructorID != instructor.ID {
		return nil, errs.Forbidden("assignment belongs to another instructor")
	}
	q := s.db.WithContext(ctx).Where("assignment_id = ?", a.ID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []models.AssignmentSubmission
	if err := q.Order("submitted_at DESC").Find(&list).Error; err != nil {
		return nil, storeErr(err, "list submissions", "submission")
	}
	return list, nil
}

func (s *SubmissionService) visibleAssignment(ctx context.Context, student models.User, id uuid.UUID) (models.Assignment, error) {
	var a models.Assignment
	if err := s.db.WithContext(ctx).
		Preload("AssignedStudents", "student_id = ?", student.ID).
		First(&a, "id = ?", id).Error; err != nil {
		return models.Assignment{}, storeErr(err, "load assignment", "assignment")
	}
	if !a.IsVisibleTo(student) {
		return models.Assignment{}, errs.NotFound("assignment")
	}
	return a, nil
}

func (s *SubmissionService) load(ctx context.Context, id uuid.UUID) (models.AssignmentSubmission, error) {
	var sub models.AssignmentSubmission
	if err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		return models.AssignmentSubmission{}, storeErr(err, "load submission", "submission")
	}
	return sub, nil
}

func (s *SubmissionService) reload(ctx context.Context, id uuid.UUID) (models.AssignmentSubmission, error) {
	return s.load(ctx, id)
}

func (s *SubmissionService) parent(ctx context.Context, sub models.AssignmentSubmission) (models.Assignment, error) {
	if sub.AssignmentID == nil {
		return models.Assignment{}, errs.NotFound("assignment")
	}
	var a models.Assignment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", *sub.AssignmentID).Error; err != nil {
		return models.Assignment{}, storeErr(err, "load assignment", "assignment")
	}
	return a, nil
}

func (s *SubmissionService) ownedByInstructor(ctx context.Context, instructor models.User, submissionID uuid.UUID) (models.AssignmentSubmission, models.Assignment, error) {
	if err := requireInstructor(instructor); err != nil {
		return models.AssignmentSubmission{}, models.Assignment{}, err
	}
	sub, err := s.load(ctx, submissionID)
	if err != nil {
		return models.AssignmentSubmission{}, models.Assignment{}, err
	}
	a, err := s.parent(ctx, sub)
	if err != nil {
		return models.AssignmentSubmission{}, models.Assignment{}, err
	}
	if a.InstructorID != instructor.ID {
		return models.AssignmentSubmission{}, models.Assignment{}, errs.Forbidden("submission belongs to another instructor's assignment")
	}
	return sub, a, nil
}

func alreadySubmitted(sub models.AssignmentSubmission) error {
	e := errs.New(errs.KindAlreadySubmitted, "submission has already been submitted").
		With("status", sub.Status)
	if sub.SubmittedAt != nil {
		e = e.With("submitted_at", *sub.SubmittedAt)
	}
	return e
}
