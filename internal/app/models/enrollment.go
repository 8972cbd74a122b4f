package models

import (
	"fmt"
	"strings"
	"time"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentStatusWaitlisted EnrollmentStatus = "waitlisted"
	EnrollmentStatusDropped    EnrollmentStatus = "dropped"
)

// CanTransitionTo reports whether the status machine allows moving to next.
// waitlisted -> enrolled happens through promotion only; dropped is terminal.
func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	switch s {
	case EnrollmentStatusWaitlisted:
		return next == EnrollmentStatusEnrolled || next == EnrollmentStatusDropped
	case EnrollmentStatusEnrolled:
		return next == EnrollmentStatusDropped
	default:
		return false
	}
}

// Enrollment links a student to a course section.
// Waitlist order is CreatedAt, then ID.
type Enrollment struct {
	ID        int64            `json:"id" db:"id"`
	StudentID int64            `json:"studentId" db:"student_id"`
	SectionID int64            `json:"sectionId" db:"section_id"`
	Status    EnrollmentStatus `json:"status" db:"status"`
	Grade     *string          `json:"grade,omitempty" db:"grade"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time        `json:"updatedAt" db:"updated_at"`
}

// GradeEquals reports whether the current grade is already grade.
func (e *Enrollment) GradeEquals(grade string) bool {
	return e.Grade != nil && *e.Grade == grade
}

// WaitlistedBefore orders two waitlisted enrollments.
func (e *Enrollment) WaitlistedBefore(other *Enrollment) bool {
	if !e.CreatedAt.Equal(other.CreatedAt) {
		return e.CreatedAt.Before(other.CreatedAt)
	}
	return e.ID < other.ID
}

// LetterGrades is the allowed grade set, in display order.
var LetterGrades = []string{"A", "A-", "B+", "B", "B-", "C+", "C", "C-", "D+", "D", "D-", "F"}

var letterGradeSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(LetterGrades))
	for _, g := range LetterGrades {
		m[g] = struct{}{}
	}
	return m
}()

// IsLetterGrade reports membership in LetterGrades.
func IsLetterGrade(grade string) bool {
	_, ok := letterGradeSet[grade]
	return ok
}

// LetterGradeList renders the allowed set for error messages.
func LetterGradeList() string {
	return strings.Join(LetterGrades, ", ")
}

func (e *Enrollment) String() string {
	return fmt.Sprintf("enrollment %d (student %d, section %d, %s)", e.ID, e.StudentID, e.SectionID, e.Status)
}
