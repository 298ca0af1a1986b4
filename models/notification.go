package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	NotifyAssigned = "assignment_assigned"
	NotifyGraded   = "submission_graded"
	NotifyReturned = "submission_returned"
)

type Notification struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"` // recipient
	Title   string    `gorm:"size:255;not null" json:"title"`
	Message string    `gorm:"type:text;not null" json:"message"`
	Type    string    `gorm:"size:50" json:"type"`
	IsRead  bool      `gorm:"not null" json:"is_read"`

	AssignmentID *uuid.UUID `gorm:"type:uuid" json:"assignment_id,omitempty"`
	SubmissionID *uuid.UUID `gorm:"type:uuid" json:"submission_id,omitempty"`

	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	ensureID(&n.ID)
	return nil
}
