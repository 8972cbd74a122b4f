package dto

import "github.com/yigit/registrar/internal/app/models"

// EnrollRequest asks for a seat in a section
type EnrollRequest struct {
	StudentID int64 `json:"studentId" validate:"required,gt=0"`
}

// EnrollmentResponse reports an enrollment and, when waitlisted, its position
type EnrollmentResponse struct {
	*models.Enrollment
	WaitlistPosition int `json:"waitlistPosition,omitempty"`
}

// PromotionResponse reports the result of a promotion attempt
type PromotionResponse struct {
	Promoted   bool               `json:"promoted"`
	Enrollment *models.Enrollment `json:"enrollment,omitempty"`
}

// DropResponse reports a drop and the enrollment promoted into the freed seat
type DropResponse struct {
	Dropped  *models.Enrollment `json:"dropped"`
	Promoted *models.Enrollment `json:"promoted,omitempty"`
}
