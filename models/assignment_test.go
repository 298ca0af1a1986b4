package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

var due = time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)

func TestAssignment_IsOpen(t *testing.T) {
	start := due.Add(-7 * 24 * time.Hour)
	base := Assignment{Active: true, Published: true, StartDate: &start, DueDate: due}

	tests := []struct {
		name   string
		mutate func(a *Assignment)
		now    time.Time
		want   bool
	}{
		{name: "inside window", now: due.Add(-time.Hour), want: true},
		{name: "exactly at due date", now: due, want: true},
		{name: "exactly at start date", now: start, want: true},
		{name: "before start", now: start.Add(-time.Second), want: false},
		{name: "after due, late not allowed", now: due.Add(time.Second), want: false},
		{name: "after due, late allowed", now: due.Add(48 * time.Hour), want: true,
			mutate: func(a *Assignment) { a.AllowLateSubmission = true }},
		{name: "no start date", now: due.Add(-30 * 24 * time.Hour), want: true,
			mutate: func(a *Assignment) { a.StartDate = nil }},
		{name: "unpublished", now: due.Add(-time.Hour), want: false,
			mutate: func(a *Assignment) { a.Published = false }},
		{name: "inactive", now: due.Add(-time.Hour), want: false,
			mutate: func(a *Assignment) { a.Active = false }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base
			if tt.mutate != nil {
				tt.mutate(&a)
			}
			assert.Equal(t, tt.want, a.IsOpen(tt.now))
		})
	}
}

func TestAssignment_IsVisibleTo(t *testing.T) {
	owner := User{ID: uuid.New(), Role: RoleInstructor}
	other := User{ID: uuid.New(), Role: RoleInstructor}
	alice := User{ID: uuid.New(), Role: RoleStudent, Batch: "2024-A"}
	bob := User{ID: uuid.New(), Role: RoleStudent, Batch: "2024-B"}

	a := Assignment{ID: uuid.New(), InstructorID: owner.ID, Batch: "2024-A", Active: true, Published: true}

	assert.True(t, a.IsVisibleTo(owner))
	assert.False(t, a.IsVisibleTo(other))
	assert.True(t, a.IsVisibleTo(alice))
	assert.False(t, a.IsVisibleTo(bob))

	// batch labels are matched exactly
	a.Batch = "2024-a"
	assert.False(t, a.IsVisibleTo(alice))

	// rostered students see it regardless of batch
	a.AssignedStudents = []AssignmentStudent{{AssignmentID: a.ID, StudentID: bob.ID}}
	assert.True(t, a.IsVisibleTo(bob))

	a.Batch = ""
	assert.True(t, a.IsVisibleTo(alice))

	a.Published = false
	assert.False(t, a.IsVisibleTo(alice))
	assert.False(t, a.IsVisibleTo(bob))
	assert.True(t, a.IsVisibleTo(owner), "owner sees unpublished work")
}

func TestAssignment_LatePenaltyFor(t *testing.T) {
	a := Assignment{DueDate: due, AllowLateSubmission: true, LatePenaltyRate: 10}

	tests := []struct {
		name        string
		at          time.Time
		wantLate    bool
		wantPenalty float64
	}{
		{name: "on time", at: due, wantLate: false, wantPenalty: 0},
		{name: "early", at: due.Add(-time.Hour), wantLate: false, wantPenalty: 0},
		{name: "a moment late", at: due.Add(36 * time.Second), wantLate: true, wantPenalty: 10},
		{name: "exactly one day", at: due.Add(24 * time.Hour), wantLate: true, wantPenalty: 10},
		{name: "thirty hours", at: due.Add(30 * time.Hour), wantLate: true, wantPenalty: 20},
		{name: "capped", at: due.Add(20 * 24 * time.Hour), wantLate: true, wantPenalty: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			late, penalty := a.LatePenaltyFor(tt.at)
			assert.Equal(t, tt.wantLate, late)
			assert.InDelta(t, tt.wantPenalty, penalty, 1e-9)
		})
	}

	t.Run("zero rate", func(t *testing.T) {
		free := a
		free.LatePenaltyRate = 0
		late, penalty := free.LatePenaltyFor(due.Add(72 * time.Hour))
		assert.True(t, late)
		assert.Zero(t, penalty)
	})
}

func TestAssignment_PossiblePoints(t *testing.T) {
	assert.Equal(t, 40.0, Assignment{MaxPoints: 40}.PossiblePoints())
	assert.Equal(t, DefaultQuizMaxPoints, Assignment{Type: TypeQuiz}.PossiblePoints())
}
