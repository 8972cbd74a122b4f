package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yigit/registrar/internal/app/models/dto"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/logger"
)

// HandleAPIError maps service errors to status codes and the error envelope
func HandleAPIError(c *gin.Context, err error) {
	status, detail := classify(err)

	var custom *apperrors.CustomError
	if errors.As(err, &custom) && custom.Message != "" {
		detail.Message = custom.Message
		if custom.Details != nil {
			detail.Details = custom.Details
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(status, dto.NewErrorResponse(detail))
}

func classify(err error) (int, *dto.ErrorDetail) {
	switch {
	case apperrors.Is(err, apperrors.ErrSectionNotFound):
		return http.StatusNotFound, dto.NewErrorDetail(dto.ErrorCodeResourceNotFound, "Course section not found")
	case apperrors.Is(err, apperrors.ErrEnrollmentNotFound):
		return http.StatusNotFound, dto.NewErrorDetail(dto.ErrorCodeResourceNotFound, "Enrollment not found")
	case apperrors.Is(err, apperrors.ErrImportLogNotFound):
		return http.StatusNotFound, dto.NewErrorDetail(dto.ErrorCodeResourceNotFound, "No error log for this import")
	case apperrors.Is(err, apperrors.ErrResourceNotFound, apperrors.ErrCourseNotFound, apperrors.ErrDepartmentNotFound):
		return http.StatusNotFound, dto.NewErrorDetail(dto.ErrorCodeResourceNotFound, "Resource not found")
	case apperrors.Is(err, apperrors.ErrAlreadyEnrolled):
		return http.StatusConflict, dto.NewErrorDetail(dto.ErrorCodeResourceAlreadyExists, "Student already holds an enrollment in this section")
	case apperrors.Is(err, apperrors.ErrInvalidTransition):
		return http.StatusConflict, dto.NewErrorDetail(dto.ErrorCodeInvalidTransition, "Enrollment cannot change to the requested status")
	case apperrors.Is(err, apperrors.ErrResourceAlreadyExists):
		return http.StatusConflict, dto.NewErrorDetail(dto.ErrorCodeResourceAlreadyExists, "Resource already exists")
	case apperrors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict, dto.NewErrorDetail(dto.ErrorCodeConflict, "Conflict")
	case apperrors.Is(err, apperrors.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType, dto.NewErrorDetail(dto.ErrorCodeResourceInvalid, "Only CSV files are accepted")
	case apperrors.Is(err, apperrors.ErrValidationFailed, apperrors.ErrBadRequest):
		return http.StatusBadRequest, dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Validation failed")
	default:
		return http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrorCodeInternalServer, "Internal server error")
	}
}
