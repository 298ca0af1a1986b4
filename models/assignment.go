package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AssignmentType string

const (
	TypeHomework   AssignmentType = "homework"
	TypeQuiz       AssignmentType = "quiz"
	TypeExam       AssignmentType = "exam"
	TypeProject    AssignmentType = "project"
	TypeLab        AssignmentType = "lab"
	TypeDiscussion AssignmentType = "discussion"
	TypeCoding     AssignmentType = "coding"
	TypeOther      AssignmentType = "other"
)

func (t AssignmentType) Valid() bool {
	switch t {
	case TypeHomework, TypeQuiz, TypeExam, TypeProject, TypeLab, TypeDiscussion, TypeCoding, TypeOther:
		return true
	}
	return false
}

// DefaultQuizMaxPoints is used when a quiz does not declare its maximum.
const DefaultQuizMaxPoints = 100.0

type CodingChallenge struct {
	Platform   string `json:"platform"`
	URL        string `json:"url"`
	Difficulty string `json:"difficulty"`
}

type Assignment struct {
	ID                  uuid.UUID                            `gorm:"type:uuid;primaryKey" json:"id"`
	Title               string                               `gorm:"size:255;not null" json:"title"`
	Description         string                               `gorm:"type:text" json:"description"`
	InstructorID        uuid.UUID                            `gorm:"type:uuid;not null;index" json:"instructor_id"`
	CourseID            *uuid.UUID                           `gorm:"type:uuid;index" json:"course_id,omitempty"`
	Batch               string                               `gorm:"size:100;index" json:"batch"` // "" = all batches
	StartDate           *time.Time                           `json:"start_date,omitempty"`
	DueDate             time.Time                            `gorm:"not null" json:"due_date"`
	MaxPoints           float64                              `gorm:"not null" json:"max_points"`
	Type                AssignmentType                       `gorm:"type:varchar(20);not null" json:"type"`
	CodingChallenges    datatypes.JSONSlice[CodingChallenge] `json:"coding_challenges"`
	MaxAttempts         int                                  `gorm:"not null" json:"max_attempts"` // 0 = unlimited
	AllowLateSubmission bool                                 `gorm:"not null" json:"allow_late_submission"`
	LatePenaltyRate     float64                              `gorm:"not null" json:"late_penalty_rate"` // percent per started day
	Published           bool                                 `gorm:"not null;index" json:"published"`
	PublishedAt         *time.Time                           `json:"published_at,omitempty"`
	Active              bool                                 `gorm:"not null;index" json:"active"`
	CreatedAt           time.Time                            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time                            `gorm:"autoUpdateTime" json:"updated_at"`
	AssignedStudents    []AssignmentStudent                  `gorm:"foreignKey:AssignmentID" json:"assigned_students,omitempty"`
}

func (a *Assignment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// RosterSource records how a student got onto a roster.
type RosterSource string

const (
	RosterManual RosterSource = "manual"
	RosterAuto   RosterSource = "auto"
)

// AssignmentStudent is one entry of an assignment's explicit roster.
type AssignmentStudent struct {
	ID           uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	AssignmentID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_assignment_student" json:"assignment_id"`
	StudentID    uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_assignment_student;index" json:"student_id"`
	Source       RosterSource `gorm:"type:varchar(10);not null;default:manual" json:"source"`
	AssignedAt   time.Time    `json:"assigned_at"`
}

func (s *AssignmentStudent) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// IsOpen reports whether a submission may be made at now: the assignment must
// be active and published, now must not precede the start date, and now must
// not pass the due date unless late submissions are allowed.
func (a Assignment) IsOpen(now time.Time) bool {
	if !a.Active || !a.Published {
		return false
	}
	if a.StartDate != nil && now.Before(*a.StartDate) {
		return false
	}
	if now.After(a.DueDate) && !a.AllowLateSubmission {
		return false
	}
	return true
}

// HasStudent reports whether studentID is on the explicit roster. The roster
// must have been loaded.
func (a Assignment) HasStudent(studentID uuid.UUID) bool {
	for _, s := range a.AssignedStudents {
		if s.StudentID == studentID {
			return true
		}
	}
	return false
}

// IsVisibleTo is the visibility rule shared by listings and single reads.
// Batch labels are compared with exact string equality.
func (a Assignment) IsVisibleTo(u User) bool {
	if u.IsInstructor() {
		return a.InstructorID == u.ID
	}
	if !a.Active || !a.Published {
		return false
	}
	return a.Batch == "" || a.Batch == u.Batch || a.HasStudent(u.ID)
}

// PossiblePoints is MaxPoints, falling back to DefaultQuizMaxPoints for
// quizzes that do not declare one.
func (a Assignment) PossiblePoints() float64 {
	if a.MaxPoints <= 0 {
		return DefaultQuizMaxPoints
	}
	return a.MaxPoints
}

// LatePenaltyFor computes lateness for a submission made at submittedAt. Each
// started day past the due date is charged LatePenaltyRate, capped at 100.
func (a Assignment) LatePenaltyFor(submittedAt time.Time) (late bool, penalty float64) {
	if !submittedAt.After(a.DueDate) {
		return false, 0
	}
	if !a.AllowLateSubmission || a.LatePenaltyRate <= 0 {
		return true, 0
	}
	hoursLate := submittedAt.Sub(a.DueDate).Hours()
	days := math.Ceil(hoursLate / 24)
	return true, math.Min(a.LatePenaltyRate*days, 100)
}
