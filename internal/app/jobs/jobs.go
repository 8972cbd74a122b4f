// Package jobs defines the background job types of the registrar and binds
// their handlers to the worker pool.
package jobs

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/yigit/registrar/internal/app/imports"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/app/notifications"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/queue"
)

// Job types
const (
	TypeCourseImport = "import:courses"
	TypeGradeImport  = "import:grades"
	TypeNotification = notifications.JobType
)

// CourseImportPayload is the input of a catalog import run
type CourseImportPayload struct {
	FilePath         string `json:"filePath" validate:"required"`
	RequestingUserID int64  `json:"requestingUserId" validate:"required,gt=0"`
	ImportID         string `json:"importId" validate:"required,uuid"`
	OriginalFilename string `json:"originalFilename"`
}

// GradeImportPayload is the input of a grade roster import run
type GradeImportPayload struct {
	CourseImportPayload
	SectionID int64 `json:"sectionId" validate:"required,gt=0"`
}

// Run describes the import invocation carried by the payload
func (p CourseImportPayload) Run() models.ImportRun {
	return models.ImportRun{
		ID:               p.ImportID,
		Kind:             models.ImportKindCourses,
		SourceFile:       p.FilePath,
		OriginalFilename: p.OriginalFilename,
		RequestedBy:      p.RequestingUserID,
	}
}

// Run describes the import invocation carried by the payload
func (p GradeImportPayload) Run() models.ImportRun {
	run := p.CourseImportPayload.Run()
	run.Kind = models.ImportKindGrades
	run.SectionID = p.SectionID
	return run
}

var validate = validator.New()

// Dispatcher enqueues import runs and returns without waiting for them
type Dispatcher struct {
	enqueuer queue.Enqueuer
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher on top of enqueuer
func NewDispatcher(enqueuer queue.Enqueuer, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{enqueuer: enqueuer, logger: logger}
}

// NewImportID returns a fresh opaque import identifier
func NewImportID() string {
	return uuid.NewString()
}

func (d *Dispatcher) dispatch(ctx context.Context, jobType string, payload any, importID string) (string, error) {
	if err := validate.Struct(payload); err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrValidationFailed, err)
	}
	jobID, err := d.enqueuer.Enqueue(ctx, jobType, payload)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", jobType, err)
	}
	d.logger.Info().Str("jobId", jobID).Str("jobType", jobType).Str("importId", importID).Msg("Import dispatched")
	return jobID, nil
}

// DispatchCourseImport enqueues a catalog import and returns the job id
func (d *Dispatcher) DispatchCourseImport(ctx context.Context, filePath string, requestingUserID int64, importID, originalFilename string) (string, error) {
	return d.dispatch(ctx, TypeCourseImport, CourseImportPayload{
		FilePath:         filePath,
		RequestingUserID: requestingUserID,
		ImportID:         importID,
		OriginalFilename: originalFilename,
	}, importID)
}

// DispatchGradeImport enqueues a grade roster import for sectionID and returns the job id
func (d *Dispatcher) DispatchGradeImport(ctx context.Context, filePath string, requestingUserID int64, importID, originalFilename string, sectionID int64) (string, error) {
	return d.dispatch(ctx, TypeGradeImport, GradeImportPayload{
		CourseImportPayload: CourseImportPayload{
			FilePath:         filePath,
			RequestingUserID: requestingUserID,
			ImportID:         importID,
			OriginalFilename: originalFilename,
		},
		SectionID: sectionID,
	}, importID)
}

// Handlers are the job processors bound to the pool
type Handlers struct {
	Courses  *imports.CourseImporter
	Grades   *imports.GradeImporter
	Notifier *notifications.Notifier
	Logger   zerolog.Logger
}

// Register binds every job type to its handler
func (h Handlers) Register(pool *queue.Pool) {
	pool.Register(TypeCourseImport, h.handleCourseImport)
	pool.Register(TypeGradeImport, h.handleGradeImport)
	pool.Register(TypeNotification, h.Notifier.Handle)
}

func (h Handlers) handleCourseImport(ctx context.Context, job queue.Job) error {
	var p CourseImportPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	run := p.Run()
	logRun(h.Logger, job.ID, run)
	_, err := h.Courses.Run(ctx, run.SourceFile, run.ID)
	return err
}

func (h Handlers) handleGradeImport(ctx context.Context, job queue.Job) error {
	var p GradeImportPayload
	if err := job.Decode(&p); err != nil {
		return err
	}
	run := p.Run()
	logRun(h.Logger, job.ID, run)
	_, err := h.Grades.Run(ctx, run.SourceFile, run.ID, run.SectionID)
	return err
}

func logRun(lgr zerolog.Logger, jobID string, run models.ImportRun) {
	event := lgr.Info().
		Str("jobId", jobID).
		Str("importId", run.ID).
		Str("kind", string(run.Kind)).
		Int64("requestedBy", run.RequestedBy).
		Str("originalFilename", run.OriginalFilename)
	if run.SectionID != 0 {
		event = event.Int64("sectionId", run.SectionID)
	}
	event.Msg("Running import")
}
