package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/registrar/internal/app/models/dto"
	"github.com/yigit/registrar/internal/app/services"
	"github.com/yigit/registrar/internal/middleware"
)

// EnrollmentController exposes seat allocation and the waitlist
type EnrollmentController struct {
	enrollmentService services.EnrollmentService
}

// NewEnrollmentController creates a new EnrollmentController
func NewEnrollmentController(enrollmentService services.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{enrollmentService: enrollmentService}
}

// Enroll handles POST /sections/:id/enrollments.
// A full section answers 201 with status "waitlisted" and the waitlist position.
func (c *EnrollmentController) Enroll(ctx *gin.Context) {
	sectionID, ok := middleware.ParseIDParam(ctx, "id")
	if !ok {
		return
	}
	var req dto.EnrollRequest
	if !middleware.BindAndValidate(ctx, &req) {
		return
	}

	enrollment, err := c.enrollmentService.Enroll(ctx.Request.Context(), req.StudentID, sectionID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	position, err := c.enrollmentService.WaitlistPosition(ctx.Request.Context(), enrollment)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.EnrollmentResponse{
		Enrollment:       enrollment,
		WaitlistPosition: position,
	}))
}

// Drop handles DELETE /enrollments/:id
func (c *EnrollmentController) Drop(ctx *gin.Context) {
	enrollmentID, ok := middleware.ParseIDParam(ctx, "id")
	if !ok {
		return
	}

	dropped, promoted, err := c.enrollmentService.Drop(ctx.Request.Context(), enrollmentID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.DropResponse{Dropped: dropped, Promoted: promoted}))
}

// Promote handles POST /sections/:id/promotions
func (c *EnrollmentController) Promote(ctx *gin.Context) {
	sectionID, ok := middleware.ParseIDParam(ctx, "id")
	if !ok {
		return
	}

	promoted, err := c.enrollmentService.PromoteFromWaitlist(ctx.Request.Context(), sectionID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.PromotionResponse{
		Promoted:   promoted != nil,
		Enrollment: promoted,
	}))
}

// Waitlist handles GET /sections/:id/waitlist
func (c *EnrollmentController) Waitlist(ctx *gin.Context) {
	sectionID, ok := middleware.ParseIDParam(ctx, "id")
	if !ok {
		return
	}

	waitlist, err := c.enrollmentService.Waitlist(ctx.Request.Context(), sectionID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}

	items := make([]dto.EnrollmentResponse, len(waitlist))
	for i, e := range waitlist {
		items[i] = dto.EnrollmentResponse{Enrollment: e, WaitlistPosition: i + 1}
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(items))
}
