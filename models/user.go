package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	RoleInstructor UserRole = "instructor"
	RoleStudent    UserRole = "student"
)

func (r UserRole) Valid() bool {
	return r == RoleInstructor || r == RoleStudent
}

type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID string    `gorm:"size:128;uniqueIndex;not null" json:"external_id"` // subject id at the identity provider
	FullName   string    `gorm:"size:150" json:"full_name"`
	Email      string    `gorm:"size:150;index" json:"email"`
	Role       UserRole  `gorm:"type:varchar(20);not null" json:"role"`
	Batch      string    `gorm:"size:100;index" json:"batch"`
	Active     bool      `gorm:"not null;index" json:"active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

func (u User) IsInstructor() bool { return u.Role == RoleInstructor }
func (u User) IsStudent() bool    { return u.Role == RoleStudent }

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&User{},
		&Course{},
		&CourseEnrollment{},
		&Assignment{},
		&AssignmentStudent{},
		&AssignmentSubmission{},
		&QuizSubmission{},
		&Notification{},
	}
}
