package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

type CourseService struct {
	db *gorm.DB
}

func NewCourseService(db *gorm.DB) *CourseService {
	return &CourseService{db: db}
}

type CourseInput struct {
	Title       string                `json:"title" binding:"required"`
	Code        string                `json:"code" binding:"required"`
	Description string                `json:"description"`
	Batch       string                `json:"batch"`
	Settings    models.CourseSettings `json:"settings"`
}

func (in CourseInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return errs.Validation("title", "title is required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return errs.Validation("code", "code is required")
	}
	if in.Settings.LatePenaltyRate < 0 || in.Settings.LatePenaltyRate > 100 {
		return errs.Validation("settings.late_penalty_rate", "late penalty rate must be between 0 and 100")
	}
	if in.Settings.MaxEnrollment < 0 {
		return errs.Validation("settings.max_enrollment", "max enrollment must not be negative")
	}
	return nil
}

func (s *CourseService) Create(ctx context.Context, actor models.User, in CourseInput) (models.Course, error) {
	if err := requireInstructor(actor); err != nil {
		return models.Course{}, err
	}
	if err := in.validate(); err != nil {
		return models.Course{}, err
	}
	c := models.Course{
		Title:        strings.TrimSpace(in.Title),
		Code:         strings.ToUpper(strings.TrimSpace(in.Code)),
		Description:  in.Description,
		InstructorID: actor.ID,
		Batch:        in.Batch,
		Settings:     datatypes.NewJSONType(in.Settings),
		Quizzes:      datatypes.JSONSlice[models.QuizDefinition]{},
		Active:       true,
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		if errs.IsUniqueViolation(err) {
			return models.Course{}, duplicateCode(c.Code)
		}
		return models.Course{}, storeErr(err, "create course", "course")
	}
	return c, nil
}

// List returns the instructor's own courses. Students get active courses they
// are enrolled in or that target their batch (or no batch).
func (s *CourseService) List(ctx context.Context, u models.User) ([]models.Course, error) {
	db := s.db.WithContext(ctx)
	list := []models.Course{}
	var err error
	if u.IsInstructor() {
		err = db.Where("instructor_id = ?", u.ID).Order("created_at DESC").Find(&list).Error
	} else {
		enrolled := db.Model(&models.CourseEnrollment{}).Select("course_id").
			Where("student_id = ? AND status <> ?", u.ID, models.EnrollmentDropped)
		err = db.Where("active = ? AND (id IN (?) OR batch = ? OR batch = ?)", true, enrolled, u.Batch, "").
			Order("created_at DESC").
			Find(&list).Error
	}
	if err != nil {
		return nil, storeErr(err, "list courses", "course")
	}
	return list, nil
}

// Get loads a course. Students never see the answer key of embedded quizzes.
func (s *CourseService) Get(ctx context.Context, u models.User, id uuid.UUID) (models.Course, error) {
	var c models.Course
	q := s.db.WithContext(ctx)
	if u.IsInstructor() {
		q = q.Preload("Enrollments")
	}
	if err := q.First(&c, "id = ?", id).Error; err != nil {
		return models.Course{}, storeErr(err, "load course", "course")
	}
	if u.IsInstructor() && c.InstructorID != u.ID {
		return models.Course{}, errs.Forbidden("course belongs to another instructor")
	}
	if u.IsStudent() {
		if !c.Active {
			return models.Course{}, errs.NotFound("course")
		}
		c.Quizzes = hideAnswers(c.Quizzes)
	}
	return c, nil
}

func (s *CourseService) Update(ctx context.Context, actor models.User, id uuid.UUID, in CourseInput) (models.Course, error) {
	c, err := s.owned(ctx, actor, id)
	if err != nil {
		return models.Course{}, err
	}
	if err := in.validate(); err != nil {
		return models.Course{}, err
	}
	c.Title = strings.TrimSpace(in.Title)
	c.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	c.Description = in.Description
	c.Batch = in.Batch
	c.Settings = datatypes.NewJSONType(in.Settings)
	if err := s.db.WithContext(ctx).Omit("Enrollments").Save(&c).Error; err != nil {
		if errs.IsUniqueViolation(err) {
			return models.Course{}, duplicateCode(c.Code)
		}
		return models.Course{}, storeErr(err, "update course", "course")
	}
	return c, nil
}

// Deactivate hides the course. Its code becomes free for reuse.
func (s *CourseService) Deactivate(ctx context.Context, actor models.User, id uuid.UUID) error {
	c, err := s.owned(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(&models.Course{}).Where("id = ?", c.ID).Update("active", false).Error; err != nil {
		return storeErr(err, "deactivate course", "course")
	}
	return nil
}

// SetQuizzes replaces the course's embedded quiz definitions. Existing quiz
// submissions keep their stored scores.
func (s *CourseService) SetQuizzes(ctx context.Context, actor models.User, id uuid.UUID, quizzes []models.QuizDefinition) (models.Course, error) {
	c, err := s.owned(ctx, actor, id)
	if err != nil {
		return models.Course{}, err
	}
	for _, q := range quizzes {
		if err := validateQuiz(q); err != nil {
			return models.Course{}, err
		}
	}
	c.Quizzes = quizzes
	if err := s.db.WithContext(ctx).Model(&models.Course{}).Where("id = ?", c.ID).
		Update("quizzes", datatypes.JSONSlice[models.QuizDefinition](quizzes)).Error; err != nil {
		return models.Course{}, storeErr(err, "update quizzes", "course")
	}
	return c, nil
}

func validateQuiz(q models.QuizDefinition) error {
	if strings.TrimSpace(q.Title) == "" {
		return errs.Validation("quizzes.title", "quiz title is required")
	}
	if len(q.Questions) == 0 {
		return errs.Validation("quizzes.questions", "a quiz needs at least one question").With("quiz", q.Title)
	}
	for i, qq := range q.Questions {
		if len(qq.Options) < 2 {
			return errs.Validation("quizzes.questions.options", "a question needs at least two options").
				With("quiz", q.Title).With("question", i)
		}
		if qq.CorrectOption < 0 || qq.CorrectOption >= len(qq.Options) {
			return errs.Validation("quizzes.questions.correct_option", "correct option is out of range").
				With("quiz", q.Title).With("question", i)
		}
	}
	return nil
}

// Enroll adds the student to the course roster. A dropped enrollment is
// reactivated in place.
func (s *CourseService) Enroll(ctx context.Context, student models.User, courseID uuid.UUID, now time.Time) (models.CourseEnrollment, error) {
	if err := requireStudent(student); err != nil {
		return models.CourseEnrollment{}, err
	}
	db := s.db.WithContext(ctx)
	var c models.Course
	if err := db.First(&c, "id = ? AND active = ?", courseID, true).Error; err != nil {
		return models.CourseEnrollment{}, storeErr(err, "load course", "course")
	}

	var existing models.CourseEnrollment
	err := db.Where("course_id = ? AND student_id = ?", c.ID, student.ID).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CourseEnrollment{}, storeErr(err, "load enrollment", "enrollment")
	}
	found := err == nil
	if found && existing.Status == models.EnrollmentActive {
		return existing, nil
	}
	if found && existing.Status == models.EnrollmentCompleted {
		return models.CourseEnrollment{}, errs.Validation("course_id", "course already completed")
	}

	if limit := c.Settings.Data().MaxEnrollment; limit > 0 {
		var n int64
		if err := db.Model(&models.CourseEnrollment{}).
			Where("course_id = ? AND status = ?", c.ID, models.EnrollmentActive).
			Count(&n).Error; err != nil {
			return models.CourseEnrollment{}, storeErr(err, "count enrollments", "enrollment")
		}
		if n >= int64(limit) {
			return models.CourseEnrollment{}, errs.Validation("course_id", "course is full").
				With("max_enrollment", limit).With("enrolled", n)
		}
	}

	if found {
		if err := db.Model(&models.CourseEnrollment{}).Where("id = ?", existing.ID).
			Updates(map[string]interface{}{"status": models.EnrollmentActive, "enrolled_at": now}).Error; err != nil {
			return models.CourseEnrollment{}, storeErr(err, "reactivate enrollment", "enrollment")
		}
		existing.Status = models.EnrollmentActive
		existing.EnrolledAt = now
		return existing, nil
	}

	e := models.CourseEnrollment{CourseID: c.ID, StudentID: student.ID, EnrolledAt: now, Status: models.EnrollmentActive}
	if err := db.Create(&e).Error; err != nil {
		if errs.IsUniqueViolation(err) {
			// a parallel request enrolled the student
			var again models.CourseEnrollment
			if err := db.Where("course_id = ? AND student_id = ?", c.ID, student.ID).First(&again).Error; err != nil {
				return models.CourseEnrollment{}, storeErr(err, "load enrollment", "enrollment")
			}
			return again, nil
		}
		return models.CourseEnrollment{}, storeErr(err, "create enrollment", "enrollment")
	}
	return e, nil
}

func (s *CourseService) Drop(ctx context.Context, student models.User, courseID uuid.UUID) error {
	if err := requireStudent(student); err != nil {
		return err
	}
	return s.setEnrollmentStatus(ctx, courseID, student.ID, models.EnrollmentActive, models.EnrollmentDropped)
}

func (s *CourseService) Complete(ctx context.Context, instructor models.User, courseID, studentID uuid.UUID) error {
	c, err := s.owned(ctx, instructor, courseID)
	if err != nil {
		return err
	}
	return s.setEnrollmentStatus(ctx, c.ID, studentID, models.EnrollmentActive, models.EnrollmentCompleted)
}

func (s *CourseService) setEnrollmentStatus(ctx context.Context, courseID, studentID uuid.UUID, from, to models.EnrollmentStatus) error {
	res := s.db.WithContext(ctx).Model(&models.CourseEnrollment{}).
		Where("course_id = ? AND student_id = ? AND status = ?", courseID, studentID, from).
		Update("status", to)
	if res.Error != nil {
		return storeErr(res.Error, "update enrollment", "enrollment")
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("active enrollment")
	}
	return nil
}

func (s *CourseService) owned(ctx context.Context, actor models.User, id uuid.UUID) (models.Course, error) {
	if err := requireInstructor(actor); err != nil {
		return models.Course{}, err
	}
	var c models.Course
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return models.Course{}, storeErr(err, "load course", "course")
	}
	if c.InstructorID != actor.ID {
		return models.Course{}, errs.Forbidden("course belongs to another instructor")
	}
	return c, nil
}

func hideAnswers(quizzes []models.QuizDefinition) datatypes.JSONSlice[models.QuizDefinition] {
	out := make([]models.QuizDefinition, len(quizzes))
	for i, q := range quizzes {
		questions := make([]models.QuizQuestion, len(q.Questions))
		for j, qq := range q.Questions {
			questions[j] = models.QuizQuestion{Question: qq.Question, Options: qq.Options, CorrectOption: -1}
		}
		out[i] = models.QuizDefinition{Title: q.Title, Questions: questions}
	}
	return out
}

func duplicateCode(code string) error {
	return errs.Validation("code", "an active course already uses this code").With("code", code)
}
