package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentDropped   EnrollmentStatus = "dropped"
	EnrollmentCompleted EnrollmentStatus = "completed"
)

// CourseSettings holds the course-wide late policy; assignments created inside
// the course inherit it unless they set their own.
type CourseSettings struct {
	LatePenaltyRate     float64 `json:"late_penalty_rate"` // percent per started day
	AllowLateSubmission bool    `json:"allow_late_submission"`
	MaxEnrollment       int     `json:"max_enrollment"` // 0 = unlimited
}

type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"` // zero-based
}

type QuizDefinition struct {
	Title     string         `json:"title"`
	Questions []QuizQuestion `json:"questions"`
}

type Course struct {
	ID           uuid.UUID                           `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string                              `gorm:"size:255;not null" json:"title"`
	Code         string                              `gorm:"size:50;not null;uniqueIndex:idx_courses_active_code,where:active = true" json:"code"`
	Description  string                              `gorm:"type:text" json:"description"`
	InstructorID uuid.UUID                           `gorm:"type:uuid;not null;index" json:"instructor_id"`
	Batch        string                              `gorm:"size:100" json:"batch"`
	Settings     datatypes.JSONType[CourseSettings]  `json:"settings"`
	Quizzes      datatypes.JSONSlice[QuizDefinition] `json:"quizzes"`
	Active       bool                                `gorm:"not null" json:"active"`
	CreatedAt    time.Time                           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                           `gorm:"autoUpdateTime" json:"updated_at"`
	Enrollments  []CourseEnrollment                  `gorm:"foreignKey:CourseID" json:"enrollments,omitempty"`
}

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// Quiz returns the quiz definition at idx.
func (c Course) Quiz(idx int) (QuizDefinition, bool) {
	if idx < 0 || idx >= len(c.Quizzes) {
		return QuizDefinition{}, false
	}
	return c.Quizzes[idx], true
}

// CourseEnrollment is a roster entry. Entries are never removed; dropping a
// student only changes Status.
type CourseEnrollment struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID   uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_course_student" json:"course_id"`
	StudentID  uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_course_student;index" json:"student_id"`
	EnrolledAt time.Time        `json:"enrolled_at"`
	Status     EnrollmentStatus `gorm:"type:varchar(20);not null" json:"status"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *CourseEnrollment) BeforeCreate(tx *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
