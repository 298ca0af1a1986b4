package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/auth"
	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

type UserService struct {
	db   *gorm.DB
	dist *DistributionService
	log  zerolog.Logger
}

func NewUserService(db *gorm.DB, dist *DistributionService) *UserService {
	return &UserService{db: db, dist: dist, log: componentLogger("users")}
}

type RegisterInput struct {
	FullName string `json:"full_name"`
	Batch    string `json:"batch"`
}

// Register creates or refreshes the local user for an identity assertion. The
// role always comes from the assertion, never from the request body.
func (s *UserService) Register(ctx context.Context, id auth.Identity, in RegisterInput, now time.Time) (models.User, error) {
	role := models.UserRole(id.Role)
	if !role.Valid() {
		return models.User{}, errs.Validation("role", "identity carries no usable role").With("role", id.Role)
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		name = id.Name
	}

	db := s.db.WithContext(ctx)
	var u models.User
	err := db.Where("external_id = ?", id.Subject).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		u = models.User{
			ExternalID: id.Subject,
			FullName:   name,
			Email:      id.Email,
			Role:       role,
			Batch:      strings.TrimSpace(in.Batch),
			Active:     true,
		}
		if role != models.RoleStudent {
			u.Batch = ""
		}
		if err := db.Create(&u).Error; err != nil {
			if errs.IsUniqueViolation(err) {
				return s.FindByExternalID(ctx, id.Subject)
			}
			return models.User{}, storeErr(err, "create user", "user")
		}
		if u.IsStudent() && u.Batch != "" {
			s.autoAssign(ctx, u.ID, now)
		}
		return u, nil
	case err != nil:
		return models.User{}, storeErr(err, "load user", "user")
	}

	updates := map[string]interface{}{"email": id.Email, "role": role}
	if name != "" {
		updates["full_name"] = name
	}
	if err := db.Model(&models.User{}).Where("id = ?", u.ID).Updates(updates).Error; err != nil {
		return models.User{}, storeErr(err, "refresh user", "user")
	}
	return s.Get(ctx, u.ID)
}

func (s *UserService) FindByExternalID(ctx context.Context, externalID string) (models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&u).Error; err != nil {
		return models.User{}, storeErr(err, "load user", "user")
	}
	return u, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return models.User{}, storeErr(err, "load user", "user")
	}
	return u, nil
}

// UpdateBatch moves a student to another batch. Auto-assigned entries of the
// old batch are released and the new batch's assignments are rostered.
// Students may only move themselves.
func (s *UserService) UpdateBatch(ctx context.Context, actor models.User, studentID uuid.UUID, batch string, now time.Time) (models.User, error) {
	if actor.IsStudent() && actor.ID != studentID {
		return models.User{}, errs.Forbidden("students can only change their own batch")
	}
	u, err := s.Get(ctx, studentID)
	if err != nil {
		return models.User{}, err
	}
	if !u.IsStudent() {
		return models.User{}, errs.Validation("batch", "only students belong to a batch")
	}
	batch = strings.TrimSpace(batch)
	if batch == u.Batch {
		return u, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", u.ID).Update("batch", batch).Error; err != nil {
		return models.User{}, storeErr(err, "update batch", "user")
	}
	oldBatch := u.Batch
	u.Batch = batch
	s.releaseBatch(ctx, u.ID, oldBatch)
	s.autoAssign(ctx, u.ID, now)
	return u, nil
}

func (s *UserService) releaseBatch(ctx context.Context, studentID uuid.UUID, oldBatch string) {
	if s.dist == nil {
		return
	}
	if _, err := s.dist.ReleaseBatch(ctx, studentID, oldBatch); err != nil {
		s.log.Warn().Err(err).Str("student_id", studentID.String()).Msg("releasing previous batch failed")
	}
}

// autoAssign runs after a batch change. Failures are logged; the batch change
// itself already succeeded.
func (s *UserService) autoAssign(ctx context.Context, studentID uuid.UUID, now time.Time) {
	if s.dist == nil {
		return
	}
	if _, err := s.dist.AutoAssign(ctx, studentID, now); err != nil {
		s.log.Warn().Err(err).Str("student_id", studentID.String()).Msg("auto-assign after batch change failed")
	}
}

func (s *UserService) Deactivate(ctx context.Context, actor models.User, id uuid.UUID) error {
	if err := requireInstructor(actor); err != nil {
		return err
	}
	if actor.ID == id {
		return errs.Validation("id", "cannot deactivate yourself")
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		return storeErr(res.Error, "deactivate user", "user")
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("user")
	}
	return nil
}

func (s *UserService) ListStudents(ctx context.Context, actor models.User, batch string) ([]models.User, error) {
	if err := requireInstructor(actor); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("role = ? AND active = ?", models.RoleStudent, true)
	if batch != "" {
		q = q.Where("batch = ?", batch)
	}
	list := []models.User{}
	if err := q.Order("full_name ASC").Find(&list).Error; err != nil {
		return nil, storeErr(err, "list students", "user")
	}
	return list, nil
}
