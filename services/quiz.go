package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vnkhanh/course-tracker-backend/errs"
	"github.com/vnkhanh/course-tracker-backend/models"
)

type QuizResult struct {
	Correct int                     `json:"correct"`
	Total   int                     `json:"total"`
	Score   float64                 `json:"score"`
	Results []models.QuestionResult `json:"results"`
}

// GradeQuiz scores answers against the quiz's answer key. answers[i] is the
// selected option for question i; nil, a missing position, or an out-of-range
// index all count as incorrect. Score is correct/total*100, unrounded.
func GradeQuiz(quiz models.QuizDefinition, answers []*int) QuizResult {
	res := QuizResult{Total: len(quiz.Questions), Results: make([]models.QuestionResult, 0, len(quiz.Questions))}
	for i, q := range quiz.Questions {
		var selected *int
		if i < len(answers) {
			selected = answers[i]
		}
		right := selected != nil && *selected == q.CorrectOption
		if right {
			res.Correct++
		}
		res.Results = append(res.Results, models.QuestionResult{
			Index:    i,
			Selected: selected,
			Correct:  q.CorrectOption,
			IsRight:  right,
		})
	}
	if res.Total > 0 {
		res.Score = float64(res.Correct) / float64(res.Total) * 100
	}
	return res
}

type QuizService struct {
	db *gorm.DB
}

func NewQuizService(db *gorm.DB) *QuizService {
	return &QuizService{db: db}
}

type QuizInput struct {
	CourseID  uuid.UUID `json:"course_id" binding:"required"`
	QuizIndex int       `json:"quiz_index" binding:"gte=0"`
	Answers   []*int    `json:"answers"`
}

// Submit grades the answers and stores the graded submission directly,
// replacing any earlier submission for the same student, course and quiz.
func (s *QuizService) Submit(ctx context.Context, student models.User, in QuizInput, now time.Time) (models.QuizSubmission, QuizResult, error) {
	if err := requireStudent(student); err != nil {
		return models.QuizSubmission{}, QuizResult{}, err
	}

	var course models.Course
	if err := s.db.WithContext(ctx).First(&course, "id = ? AND active = ?", in.CourseID, true).Error; err != nil {
		return models.QuizSubmission{}, QuizResult{}, storeErr(err, "load course", "course")
	}
	var enrollment models.CourseEnrollment
	err := s.db.WithContext(ctx).
		Where("course_id = ? AND student_id = ? AND status = ?", course.ID, student.ID, models.EnrollmentActive).
		First(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.QuizSubmission{}, QuizResult{}, errs.Forbidden("not enrolled in this course")
	}
	if err != nil {
		return models.QuizSubmission{}, QuizResult{}, storeErr(err, "load enrollment", "enrollment")
	}

	quiz, ok := course.Quiz(in.QuizIndex)
	if !ok {
		return models.QuizSubmission{}, QuizResult{}, errs.NotFound("quiz").With("quiz_count", len(course.Quizzes))
	}
	if len(in.Answers) > len(quiz.Questions) {
		return models.QuizSubmission{}, QuizResult{}, errs.Validation("answers", "more answers than questions").
			With("question_count", len(quiz.Questions))
	}

	result := GradeQuiz(quiz, in.Answers)
	sub := models.QuizSubmission{
		StudentID:   student.ID,
		CourseID:    course.ID,
		QuizIndex:   in.QuizIndex,
		QuizTitle:   quiz.Title,
		Answers:     datatypes.JSONSlice[*int](in.Answers),
		Results:     datatypes.JSONSlice[models.QuestionResult](result.Results),
		RawScore:    result.Correct,
		MaxScore:    result.Total,
		Score:       result.Score,
		Status:      models.StatusGraded,
		SubmittedAt: now,
		Grade: models.GradeInfo{
			Points:      float64(result.Correct),
			Percentage:  result.Score,
			LetterGrade: models.LetterGrade(result.Score),
			GradedAt:    &now,
		},
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id"}, {Name: "course_id"}, {Name: "quiz_index"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"quiz_title", "answers", "results", "raw_score", "max_score", "score", "status",
			"submitted_at", "grade_points", "grade_percentage", "grade_letter_grade", "grade_graded_at",
			"updated_at",
		}),
	}).Create(&sub).Error
	if err != nil {
		return models.QuizSubmission{}, QuizResult{}, storeErr(err, "upsert quiz submission", "quiz submission")
	}

	var stored models.QuizSubmission
	if err := s.db.WithContext(ctx).
		Where("student_id = ? AND course_id = ? AND quiz_index = ?", student.ID, course.ID, in.QuizIndex).
		First(&stored).Error; err != nil {
		return models.QuizSubmission{}, QuizResult{}, storeErr(err, "reload quiz submission", "quiz submission")
	}
	return stored, result, nil
}

func (s *QuizService) ListMine(ctx context.Context, student models.User, courseID *uuid.UUID) ([]models.QuizSubmission, error) {
	q := s.db.WithContext(ctx).Where("student_id = ?", student.ID)
	if courseID != nil {
		q = q.Where("course_id = ?", *courseID)
	}
	var list []models.QuizSubmission
	if err := q.Order("submitted_at DESC").Find(&list).Error; err != nil {
		return nil, storeErr(err, "list quiz submissions", "quiz submission")
	}
	return list, nil
}
