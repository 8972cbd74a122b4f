package controllers

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yigit/registrar/internal/app/imports"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/app/models/dto"
	"github.com/yigit/registrar/internal/middleware"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/filestorage"
	"github.com/yigit/registrar/internal/pkg/logger"
)

// ImportDispatcher enqueues import runs
type ImportDispatcher interface {
	DispatchCourseImport(ctx context.Context, filePath string, requestingUserID int64, importID, originalFilename string) (string, error)
	DispatchGradeImport(ctx context.Context, filePath string, requestingUserID int64, importID, originalFilename string, sectionID int64) (string, error)
}

// ImportController accepts CSV uploads and serves import error logs
type ImportController struct {
	dispatcher ImportDispatcher
	storage    filestorage.FileStorage
	uploadDir  string
	newID      func() string
}

// NewImportController creates a new ImportController
func NewImportController(dispatcher ImportDispatcher, storage filestorage.FileStorage, uploadDir string) *ImportController {
	return &ImportController{
		dispatcher: dispatcher,
		storage:    storage,
		uploadDir:  uploadDir,
		newID:      uuid.NewString,
	}
}

// saveUpload stores the "file" form field and returns its storage path
func (c *ImportController) saveUpload(ctx *gin.Context) (*filestorage.FileInfo, bool) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		detail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "A CSV file is required").WithField("file")
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(detail))
		return nil, false
	}
	if !strings.EqualFold(filepath.Ext(fileHeader.Filename), ".csv") {
		middleware.HandleAPIError(ctx, apperrors.ErrUnsupportedFile)
		return nil, false
	}

	info, err := c.storage.SaveUpload(fileHeader, c.uploadDir)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return nil, false
	}
	return info, true
}

func (c *ImportController) accepted(ctx *gin.Context, info *filestorage.FileInfo, importID, jobID string, err error) {
	if err != nil {
		if delErr := c.storage.Delete(info.Path); delErr != nil {
			logger.Warn().Err(delErr).Str("file", info.Path).Msg("Failed to remove upload after dispatch error")
		}
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, dto.NewSuccessResponse(dto.ImportAcceptedResponse{
		ImportID:     importID,
		JobID:        jobID,
		ErrorLogPath: models.ErrorLogPath(importID),
	}))
}

// ImportCourses handles POST /imports/courses
func (c *ImportController) ImportCourses(ctx *gin.Context) {
	info, ok := c.saveUpload(ctx)
	if !ok {
		return
	}

	importID := c.newID()
	jobID, err := c.dispatcher.DispatchCourseImport(ctx.Request.Context(), info.Path,
		middleware.RequestingUserID(ctx), importID, info.Filename)
	c.accepted(ctx, info, importID, jobID, err)
}

// ImportGrades handles POST /sections/:id/imports/grades
func (c *ImportController) ImportGrades(ctx *gin.Context) {
	sectionID, ok := middleware.ParseIDParam(ctx, "id")
	if !ok {
		return
	}
	info, ok := c.saveUpload(ctx)
	if !ok {
		return
	}

	importID := c.newID()
	jobID, err := c.dispatcher.DispatchGradeImport(ctx.Request.Context(), info.Path,
		middleware.RequestingUserID(ctx), importID, info.Filename, sectionID)
	c.accepted(ctx, info, importID, jobID, err)
}

// ErrorLog handles GET /imports/:importId/errors
func (c *ImportController) ErrorLog(ctx *gin.Context) {
	importID := ctx.Param("importId")
	if _, err := uuid.Parse(importID); err != nil {
		detail := dto.NewErrorDetail(dto.ErrorCodeValidationFailed, "Invalid import id").WithField("importId")
		ctx.JSON(http.StatusBadRequest, dto.NewErrorResponse(detail))
		return
	}

	lines, err := imports.ReadErrorLog(ctx.Request.Context(), c.storage, importID)
	if err != nil {
		middleware.HandleAPIError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ImportErrorLogResponse{ImportID: importID, Lines: lines}))
}
