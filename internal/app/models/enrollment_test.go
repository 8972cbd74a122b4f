package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnrollmentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to EnrollmentStatus
		want     bool
	}{
		{EnrollmentStatusWaitlisted, EnrollmentStatusEnrolled, true},
		{EnrollmentStatusWaitlisted, EnrollmentStatusDropped, true},
		{EnrollmentStatusEnrolled, EnrollmentStatusDropped, true},
		{EnrollmentStatusEnrolled, EnrollmentStatusWaitlisted, false},
		{EnrollmentStatusDropped, EnrollmentStatusEnrolled, false},
		{EnrollmentStatusDropped, EnrollmentStatusWaitlisted, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestEnrollment_WaitlistedBefore(t *testing.T) {
	now := time.Now()
	early := &Enrollment{ID: 9, CreatedAt: now}
	late := &Enrollment{ID: 1, CreatedAt: now.Add(time.Second)}
	tie := &Enrollment{ID: 10, CreatedAt: now}

	assert.True(t, early.WaitlistedBefore(late))
	assert.False(t, late.WaitlistedBefore(early))
	assert.True(t, early.WaitlistedBefore(tie), "lower id wins a created_at tie")
	assert.False(t, tie.WaitlistedBefore(early))
}

func TestIsLetterGrade(t *testing.T) {
	for _, g := range LetterGrades {
		assert.True(t, IsLetterGrade(g), g)
	}
	for _, g := range []string{"", "a", "A+", "E", "F-", "B +"} {
		assert.False(t, IsLetterGrade(g), g)
	}
	assert.Equal(t, "A, A-, B+, B, B-, C+, C, C-, D+, D, D-, F", LetterGradeList())
}

func TestErrorLogPath(t *testing.T) {
	assert.Equal(t, "imports/logs/abc_errors.log", ImportRun{ID: "abc"}.ErrorLogPath())
}
