package imports

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/app/repositories"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/filestorage"
)

// Course catalog columns
const (
	colCourseCode     = "course_code"
	colTitle          = "title"
	colDescription    = "description"
	colCredits        = "credits"
	colDepartmentCode = "department_code"
	colPrerequisites  = "prerequisite_course_codes"
)

var courseRequiredHeaders = []string{colCourseCode, colTitle, colCredits, colDepartmentCode}

// CourseImporter upserts catalog courses from a CSV file
type CourseImporter struct {
	departments repositories.DepartmentRepository
	courses     repositories.CourseRepository
	storage     filestorage.FileStorage
	logger      zerolog.Logger
}

// NewCourseImporter creates a catalog import pipeline
func NewCourseImporter(
	departments repositories.DepartmentRepository,
	courses repositories.CourseRepository,
	storage filestorage.FileStorage,
	logger zerolog.Logger,
) *CourseImporter {
	return &CourseImporter{
		departments: departments,
		courses:     courses,
		storage:     storage,
		logger:      logger,
	}
}

// Run imports filePath. Each row commits on its own, course and prerequisites
// together; the source file is deleted on every exit path. The returned error is
// non-nil only when the source could not be read.
func (imp *CourseImporter) Run(ctx context.Context, filePath, importID string) (models.ImportOutcome, error) {
	log := imp.logger.With().Str("importId", importID).Str("kind", string(models.ImportKindCourses)).Logger()
	log.Info().Str("file", filePath).Msg("Course import started")

	report := NewReport(importID)

	f, err := imp.storage.Open(filePath)
	if err != nil {
		_ = imp.storage.Delete(filePath)
		return report.Outcome(), fmt.Errorf("failed to open import file %s: %w", filePath, err)
	}
	defer f.Close()

	t, err := openTable(f, courseRequiredHeaders)
	if err != nil {
		var structural *StructuralError
		if !errors.As(err, &structural) {
			structural = &StructuralError{Message: err.Error()}
		}
		report.Abort(structural)
		return finish(imp.storage, log, filePath, report)
	}

	departmentIDs := make(map[string]int64)
	t.each(func(rec record, parseErr error) {
		if parseErr != nil {
			report.Add(failed(rec.row, "Malformed CSV row: "+parseErr.Error()))
			return
		}
		report.Add(imp.importRow(ctx, rec, departmentIDs))
	})

	return finish(imp.storage, log, filePath, report)
}

func (imp *CourseImporter) importRow(ctx context.Context, rec record, departmentIDs map[string]int64) RowOutcome {
	code := rec.get(colCourseCode)
	if code == "" {
		return failed(rec.row, "Course code is required")
	}
	title := rec.get(colTitle)
	if title == "" {
		return failed(rec.row, "Title is required")
	}

	credits, err := strconv.Atoi(rec.get(colCredits))
	if err != nil || credits <= 0 {
		return failed(rec.row, "Credits must be a positive integer")
	}

	deptCode := rec.get(colDepartmentCode)
	deptID, known := departmentIDs[deptCode]
	if !known {
		dept, err := imp.departments.GetByCode(ctx, deptCode)
		if err != nil {
			if errors.Is(err, apperrors.ErrDepartmentNotFound) {
				return failed(rec.row, fmt.Sprintf("Department code '%s' not found", deptCode))
			}
			imp.logger.Error().Err(err).Int("row", rec.row).Msg("Department lookup failed")
			return failed(rec.row, "Unable to resolve department")
		}
		deptID = dept.ID
		departmentIDs[deptCode] = deptID
	}

	course := &models.Course{
		DepartmentID: deptID,
		Code:         code,
		Title:        title,
		Credits:      credits,
	}
	if d := rec.get(colDescription); d != "" {
		course.Description = &d
	}

	var warnings []ReferentialWarning
	err = imp.courses.WithTx(ctx, func(ctx context.Context, courses repositories.CourseRepository) error {
		if _, err := courses.Upsert(ctx, course); err != nil {
			return &rowError{reason: fmt.Sprintf("Unable to save course %s", code), err: err}
		}
		if !rec.has(colPrerequisites) {
			return nil
		}
		w, err := linkPrerequisites(ctx, courses, rec.row, course, parseCodeList(rec.get(colPrerequisites)))
		if err != nil {
			return &rowError{reason: fmt.Sprintf("Unable to link prerequisites of %s", code), err: err}
		}
		warnings = w
		return nil
	})
	if err != nil {
		reason := fmt.Sprintf("Unable to save course %s", code)
		var re *rowError
		if errors.As(err, &re) {
			reason = re.reason
		}
		imp.logger.Error().Err(err).Int("row", rec.row).Str("courseCode", code).Msg("Course row rolled back")
		return failed(rec.row, reason)
	}
	return ok(rec.row, warnings...)
}

// rowError carries the log reason of a failed write out of the row transaction
type rowError struct {
	reason string
	err    error
}

func (e *rowError) Error() string { return e.reason + ": " + e.err.Error() }
func (e *rowError) Unwrap() error { return e.err }

// linkPrerequisites replaces the course's prerequisite set with the codes that
// resolve to committed courses; the rest become warnings
func linkPrerequisites(ctx context.Context, courses repositories.CourseRepository, row int, course *models.Course, codes []string) ([]ReferentialWarning, error) {
	resolved, err := courses.ResolveCodes(ctx, codes)
	if err != nil {
		return nil, err
	}

	var (
		ids      []int64
		warnings []ReferentialWarning
	)
	for _, code := range codes {
		id, found := resolved[code]
		switch {
		case !found:
			warnings = append(warnings, ReferentialWarning{Row: row, Reason: fmt.Sprintf("Prerequisite course '%s' not found", code)})
		case id == course.ID:
			warnings = append(warnings, ReferentialWarning{Row: row, Reason: fmt.Sprintf("Course '%s' cannot require itself", code)})
		default:
			ids = append(ids, id)
		}
	}

	if err := courses.SetPrerequisites(ctx, course.ID, ids); err != nil {
		return nil, err
	}
	return warnings, nil
}

// parseCodeList splits "CS101, CS102" into distinct codes in input order
func parseCodeList(raw string) []string {
	var codes []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		code := strings.TrimSpace(part)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
