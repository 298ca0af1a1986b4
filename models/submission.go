package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SubmissionStatus string

const (
	StatusDraft     SubmissionStatus = "draft"
	StatusSubmitted SubmissionStatus = "submitted"
	StatusGraded    SubmissionStatus = "graded"
	StatusReturned  SubmissionStatus = "returned"
)

type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
}

type RubricItem struct {
	Criterion string  `json:"criterion"`
	Points    float64 `json:"points"`
	MaxPoints float64 `json:"max_points"`
	Comment   string  `json:"comment,omitempty"`
}

// GradeInfo is the grade block shared by both submission variants. Its
// fields are written only by the grading instructor (or the quiz grader).
type GradeInfo struct {
	Points      float64                         `json:"points"`
	Percentage  float64                         `json:"raw_percentage"`
	LetterGrade string                          `gorm:"size:2" json:"raw_letter_grade"`
	GradedBy    *uuid.UUID                      `gorm:"type:uuid" json:"graded_by,omitempty"`
	GradedAt    *time.Time                      `json:"graded_at,omitempty"`
	Feedback    string                          `gorm:"type:text" json:"feedback"`
	Rubric      datatypes.JSONSlice[RubricItem] `json:"rubric"`
}

func (g GradeInfo) IsGraded() bool { return g.GradedAt != nil }

// Gradable is the view of a submission the analytics layer works with.
type Gradable interface {
	StudentRef() uuid.UUID
	EarnedPoints() float64
	PossiblePoints() float64
	SubmittedOn() *time.Time
}

type AssignmentSubmission struct {
	ID            uuid.UUID                       `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID  *uuid.UUID                      `gorm:"type:uuid;uniqueIndex:idx_submission_assignment_student,where:assignment_id IS NOT NULL" json:"assignment_id,omitempty"`
	StudentID     uuid.UUID                       `gorm:"type:uuid;not null;uniqueIndex:idx_submission_assignment_student,where:assignment_id IS NOT NULL;index" json:"student_id"`
	CourseID      *uuid.UUID                      `gorm:"type:uuid;index" json:"course_id,omitempty"`
	Content       string                          `gorm:"type:text" json:"content"`
	Attachments   datatypes.JSONSlice[Attachment] `json:"attachments"`
	AttemptNumber int                             `gorm:"not null" json:"attempt_number"`
	IsLate        bool                            `gorm:"not null" json:"is_late"`
	LatePenalty   float64                         `gorm:"not null" json:"late_penalty"` // percent, 0-100
	Status        SubmissionStatus                `gorm:"type:varchar(20);not null;index" json:"status"`
	SubmittedAt   *time.Time                      `json:"submitted_at,omitempty"`
	Grade         GradeInfo                       `gorm:"embedded;embeddedPrefix:grade_" json:"grade"`
	CreatedAt     time.Time                       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time                       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *AssignmentSubmission) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// FinalPoints applies the late penalty to the raw grade. It is derived on
// every read and never stored.
func (s AssignmentSubmission) FinalPoints() float64 {
	return FinalPoints(s.Grade.Points, s.LatePenalty)
}

// FinalPercentage is the penalised score as a percentage of the maximum.
func (s AssignmentSubmission) FinalPercentage() float64 {
	return FinalPoints(s.Grade.Percentage, s.LatePenalty)
}

// FinalLetterGrade is the letter the student is shown. It follows the late
// penalty, including any later adjustment; the stored letter is the raw one.
func (s AssignmentSubmission) FinalLetterGrade() string {
	if !s.Grade.IsGraded() {
		return ""
	}
	return LetterGrade(s.FinalPercentage())
}

func (s AssignmentSubmission) IsCounted() bool {
	return s.Status != StatusDraft
}

func FinalPoints(points, latePenalty float64) float64 {
	return math.Max(0, points-points*latePenalty/100)
}

// LetterGrade maps a percentage onto the A-F scale.
func LetterGrade(pct float64) string {
	switch {
	case pct >= 90:
		return "A"
	case pct >= 80:
		return "B"
	case pct >= 70:
		return "C"
	case pct >= 60:
		return "D"
	default:
		return "F"
	}
}

// ScoredSubmission pairs an assignment submission with its parent assignment
// so that it can be treated as Gradable.
type ScoredSubmission struct {
	Submission AssignmentSubmission
	Assignment Assignment
}

func (s ScoredSubmission) StudentRef() uuid.UUID { return s.Submission.StudentID }

func (s ScoredSubmission) EarnedPoints() float64 {
	if !s.Submission.Grade.IsGraded() {
		return 0
	}
	return s.Submission.FinalPoints()
}

func (s ScoredSubmission) PossiblePoints() float64 { return s.Assignment.PossiblePoints() }

func (s ScoredSubmission) SubmittedOn() *time.Time { return s.Submission.SubmittedAt }

// QuestionResult is the per-question outcome of quiz grading.
type QuestionResult struct {
	Index    int  `json:"index"`
	Selected *int `json:"selected"`
	Correct  int  `json:"correct"`
	IsRight  bool `json:"is_correct"`
}

type QuizSubmission struct {
	ID           uuid.UUID                           `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID    uuid.UUID                           `gorm:"type:uuid;not null;uniqueIndex:idx_quiz_submission_key;index" json:"student_id"`
	CourseID     uuid.UUID                           `gorm:"type:uuid;not null;uniqueIndex:idx_quiz_submission_key;index" json:"course_id"`
	QuizIndex    int                                 `gorm:"not null;uniqueIndex:idx_quiz_submission_key" json:"quiz_index"`
	AssignmentID *uuid.UUID                          `gorm:"type:uuid" json:"assignment_id,omitempty"`
	QuizTitle    string                              `gorm:"size:255" json:"quiz_title"`
	Answers      datatypes.JSONSlice[*int]           `json:"answers"`
	Results      datatypes.JSONSlice[QuestionResult] `json:"results"`
	RawScore     int                                 `gorm:"not null" json:"raw_score"`
	MaxScore     int                                 `gorm:"not null" json:"max_score"`
	Score        float64                             `gorm:"not null" json:"score"` // 0-100
	Status       SubmissionStatus                    `gorm:"type:varchar(20);not null" json:"status"`
	SubmittedAt  time.Time                           `json:"submitted_at"`
	Grade        GradeInfo                           `gorm:"embedded;embeddedPrefix:grade_" json:"grade"`
	CreatedAt    time.Time                           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (q *QuizSubmission) BeforeCreate(tx *gorm.DB) error {
	ensureID(&q.ID)
	return nil
}

func (q QuizSubmission) StudentRef() uuid.UUID   { return q.StudentID }
func (q QuizSubmission) EarnedPoints() float64   { return q.Score }
func (q QuizSubmission) PossiblePoints() float64 { return DefaultQuizMaxPoints }
func (q QuizSubmission) SubmittedOn() *time.Time { return &q.SubmittedAt }
