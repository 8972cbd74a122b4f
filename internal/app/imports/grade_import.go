package imports

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/app/notifications"
	"github.com/yigit/registrar/internal/app/repositories"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/filestorage"
	"github.com/yigit/registrar/internal/pkg/queue"
)

// Grade roster columns
const (
	colStudentID = "student_id"
	colGrade     = "grade"
)

var gradeRequiredHeaders = []string{colStudentID, colGrade}

// GradeImporter writes grades of one section from a CSV roster
type GradeImporter struct {
	sections    repositories.SectionRepository
	enrollments repositories.EnrollmentRepository
	storage     filestorage.FileStorage
	enqueuer    queue.Enqueuer
	logger      zerolog.Logger
}

// NewGradeImporter creates a grade roster import pipeline
func NewGradeImporter(
	sections repositories.SectionRepository,
	enrollments repositories.EnrollmentRepository,
	storage filestorage.FileStorage,
	enqueuer queue.Enqueuer,
	logger zerolog.Logger,
) *GradeImporter {
	return &GradeImporter{
		sections:    sections,
		enrollments: enrollments,
		storage:     storage,
		enqueuer:    enqueuer,
		logger:      logger,
	}
}

// Run imports the roster at filePath into sectionID. Rows whose grade is already
// current are no-ops, so re-running an import changes nothing.
func (imp *GradeImporter) Run(ctx context.Context, filePath, importID string, sectionID int64) (models.ImportOutcome, error) {
	log := imp.logger.With().
		Str("importId", importID).
		Str("kind", string(models.ImportKindGrades)).
		Int64("sectionId", sectionID).
		Logger()
	log.Info().Str("file", filePath).Msg("Grade import started")

	report := NewReport(importID)

	f, err := imp.storage.Open(filePath)
	if err != nil {
		_ = imp.storage.Delete(filePath)
		return report.Outcome(), fmt.Errorf("failed to open import file %s: %w", filePath, err)
	}
	defer f.Close()

	t, err := openTable(f, gradeRequiredHeaders)
	if err != nil {
		var structural *StructuralError
		if !errors.As(err, &structural) {
			structural = &StructuralError{Message: err.Error()}
		}
		report.Abort(structural)
		return finish(imp.storage, log, filePath, report)
	}

	if _, err := imp.sections.GetByID(ctx, sectionID); err != nil {
		if !errors.Is(err, apperrors.ErrSectionNotFound) {
			_ = imp.storage.Delete(filePath)
			return report.Outcome(), fmt.Errorf("failed to load section %d: %w", sectionID, err)
		}
		report.Abort(&StructuralError{Message: fmt.Sprintf("Course section %d not found", sectionID)})
		return finish(imp.storage, log, filePath, report)
	}

	t.each(func(rec record, parseErr error) {
		if parseErr != nil {
			report.Add(failed(rec.row, "Malformed CSV row: "+parseErr.Error()))
			return
		}
		report.Add(imp.importRow(ctx, rec, sectionID))
	})

	return finish(imp.storage, log, filePath, report)
}

func (imp *GradeImporter) importRow(ctx context.Context, rec record, sectionID int64) RowOutcome {
	studentID, err := strconv.ParseInt(rec.get(colStudentID), 10, 64)
	if err != nil {
		return failed(rec.row, "Student ID must be a number")
	}

	enrollment, err := imp.enrollments.FindEnrolledInSection(ctx, sectionID, studentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrEnrollmentNotFound) {
			return failed(rec.row, fmt.Sprintf("Student ID %d is not enrolled", studentID))
		}
		imp.logger.Error().Err(err).Int("row", rec.row).Msg("Enrollment lookup failed")
		return failed(rec.row, fmt.Sprintf("Unable to load enrollment of student ID %d", studentID))
	}

	grade := strings.ToUpper(rec.get(colGrade))
	if !models.IsLetterGrade(grade) {
		return failed(rec.row, "Grade must be one of "+models.LetterGradeList())
	}

	if enrollment.GradeEquals(grade) {
		return unchanged(rec.row)
	}

	if err := imp.enrollments.UpdateGrade(ctx, enrollment.ID, grade); err != nil {
		if errors.Is(err, apperrors.ErrGradeNotAssignable) {
			return failed(rec.row, fmt.Sprintf("Student ID %d is not enrolled", studentID))
		}
		imp.logger.Error().Err(err).Int("row", rec.row).Int64("enrollmentId", enrollment.ID).Msg("Grade update failed")
		return failed(rec.row, fmt.Sprintf("Unable to save grade of student ID %d", studentID))
	}

	enrollment.Grade = &grade
	notifications.Enqueue(ctx, imp.enqueuer, imp.logger, models.EnrollmentNotification(enrollment, models.NotifyContextGraded))
	return ok(rec.row)
}
