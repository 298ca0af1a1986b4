package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

type AssignmentService struct {
	db *gorm.DB
}

func NewAssignmentService(db *gorm.DB) *AssignmentService {
	return &AssignmentService{db: db}
}

// AssignmentInput is the writable part of an assignment. Nil late-policy
// fields fall back to the parent course's settings, or to "no late
// submissions" when there is no course.
type AssignmentInput struct {
	Title               string                   `json:"title" binding:"required"`
	Description         string                   `json:"description"`
	CourseID            *uuid.UUID               `json:"course_id"`
	Batch               string                   `json:"batch"`
	StartDate           *time.Time               `json:"start_date"`
	DueDate             time.Time                `json:"due_date" binding:"required"`
	MaxPoints           float64                  `json:"max_points" binding:"required,gt=0"`
	Type                models.AssignmentType    `json:"type"`
	CodingChallenges    []models.CodingChallenge `json:"coding_challenges"`
	MaxAttempts         int                      `json:"max_attempts" binding:"gte=0"`
	AllowLateSubmission *bool                    `json:"allow_late_submission"`
	LatePenaltyRate     *float64                 `json:"late_penalty_rate"`
	Publish             bool                     `json:"publish"`
}

func (in AssignmentInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errs.Validation("title", "title is required")
	}
	if in.DueDate.IsZero() {
		return errs.Validation("due_date", "due date is required")
	}
	if in.StartDate != nil && in.StartDate.After(in.DueDate) {
		return errs.Validation("start_date", "start date must not be after the due date")
	}
	if in.MaxPoints <= 0 {
		return errs.Validation("max_points", "max points must be positive")
	}
	if in.Type != "" && !in.Type.Valid() {
		return errs.Validation("type", "unknown assignment type")
	}
	if in.MaxAttempts < 0 {
		return errs.Validation("max_attempts", "max attempts must not be negative")
	}
	if in.LatePenaltyRate != nil && (*in.LatePenaltyRate < 0 || *in.LatePenaltyRate > 100) {
		return errs.Validation("late_penalty_rate", "late penalty rate must be between 0 and 100")
	}
	for _, ch := range in.CodingChallenges {
		if strings.TrimSpace(ch.URL) == "" || strings.TrimSpace(ch.Platform) == "" {
			return errs.Validation("coding_challenges", "coding challenges need a platform and a url")
		}
	}
	return nil
}

func (s *AssignmentService) Create(ctx context.Context, actor models.User, in AssignmentInput, now time.Time) (models.Assignment, error) {
	if err := requireInstructor(actor); err != nil {
		return models.Assignment{}, err
	}
	if err := in.validate(); err != nil {
		return models.Assignment{}, err
	}

	a := models.Assignment{InstructorID: actor.ID, Active: true}
	if err := s.apply(ctx, actor, &a, in); err != nil {
		return models.Assignment{}, err
	}
	if in.Publish {
		a.Published = true
		a.PublishedAt = &now
	}
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		return models.Assignment{}, storeErr(err, "create assignment", "assignment")
	}
	return a, nil
}

// Update rewrites the editable fields. Existing submissions are not
// re-validated against the new dates or limits.
func (s *AssignmentService) Update(ctx context.Context, actor models.User, id uuid.UUID, in AssignmentInput, now time.Time) (models.Assignment, error) {
	a, err := s.owned(ctx, actor, id)
	if err != nil {
		return models.Assignment{}, err
	}
	if err := in.validate(); err != nil {
		return models.Assignment{}, err
	}
	if err := s.apply(ctx, actor, &a, in); err != nil {
		return models.Assignment{}, err
	}
	if in.Publish && !a.Published {
		a.Published = true
		a.PublishedAt = &now
	}
	if err := s.db.WithContext(ctx).Omit("AssignedStudents").Save(&a).Error; err != nil {
		return models.Assignment{}, storeErr(err, "update assignment", "assignment")
	}
	return a, nil
}

// Deactivate soft-deletes the assignment; submissions stay readable.
func (s *AssignmentService) Deactivate(ctx context.Context, actor models.User, id uuid.UUID) error {
	a, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&models.Assignment{}).Where("id = ?", a.ID).Update("active", false).Error; err != nil {
		return storeErr(err, "deactivate assignment", "assignment")
	}
	return nil
}

func (s *AssignmentService) owned(ctx context.Context, actor models.User, id uuid.UUID) (models.Assignment, error) {
	if err := requireInstructor(actor); err != nil {
		return models.Assignment{}, err
	}
	var a models.Assignment
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return models.Assignment{}, storeErr(err, "load assignment", "assignment")
	}
	if a.InstructorID != actor.ID {
		return models.Assignment{}, errs.Forbidden("assignment belongs to another instructor")
	}
	return a, nil
}

func (s *AssignmentService) apply(ctx context.Context, actor models.User, a *models.Assignment, in AssignmentInput) error {
	settings := models.CourseSettings{}
	if in.CourseID != nil {
		var course models.Course
		if err := s.db.WithContext(ctx).First(&course, "id = ?", *in.CourseID).Error; err != nil {
			return storeErr(err, "load course", "course")
		}
		if course.InstructorID != actor.ID {
			return errs.Forbidden("course belongs to another instructor")
		}
		settings = course.Settings.Data()
	}

	a.Title = strings.TrimSpace(in.Title)
	a.Description = in.Description
	a.CourseID = in.CourseID
	a.Batch = in.Batch
	a.StartDate = in.StartDate
	a.DueDate = in.DueDate
	a.MaxPoints = in.MaxPoints
	a.Type = in.Type
	if a.Type == "" {
		a.Type = models.TypeHomework
	}
	a.CodingChallenges = in.CodingChallenges
	a.MaxAttempts = in.MaxAttempts

	a.AllowLateSubmission = settings.AllowLateSubmission
	if in.AllowLateSubmission != nil {
		a.AllowLateSubmission = *in.AllowLateSubmission
	}
	a.LatePenaltyRate = settings.LatePenaltyRate
	if in.LatePenaltyRate != nil {
		a.LatePenaltyRate = *in.LatePenaltyRate
	}
	return nil
}
