package imports

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/rs/zerolog"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/filestorage"
)

// RowStatus is the result class of one row
type RowStatus int

const (
	RowSucceeded RowStatus = iota
	RowUnchanged
	RowFailed
)

// RowOutcome is what processing one row produced
type RowOutcome struct {
	Row      int
	Status   RowStatus
	Err      *ValidationError
	Warnings []ReferentialWarning
}

func ok(row int, warnings ...ReferentialWarning) RowOutcome {
	return RowOutcome{Row: row, Status: RowSucceeded, Warnings: warnings}
}

func unchanged(row int) RowOutcome {
	return RowOutcome{Row: row, Status: RowUnchanged}
}

func failed(row int, reason string) RowOutcome {
	return RowOutcome{Row: row, Status: RowFailed, Err: &ValidationError{Row: row, Reason: reason}}
}

// Report folds row outcomes into the run's outcome and error log
type Report struct {
	outcome  models.ImportOutcome
	lines    []string
	warnings []string
}

// NewReport starts an empty report for importID
func NewReport(importID string) *Report {
	return &Report{outcome: models.ImportOutcome{ImportID: importID}}
}

// Add folds one row outcome into the report
func (r *Report) Add(o RowOutcome) {
	r.outcome.Processed++
	switch o.Status {
	case RowSucceeded:
		r.outcome.Succeeded++
	case RowUnchanged:
		r.outcome.Unchanged++
	case RowFailed:
		r.outcome.Failed++
		r.lines = append(r.lines, o.Err.Error())
	}
	for _, w := range o.Warnings {
		r.outcome.Warnings++
		r.warnings = append(r.warnings, w.String())
	}
}

// Abort records a structural error. Rows already folded are discarded.
func (r *Report) Abort(err *StructuralError) {
	r.outcome.Aborted = true
	r.outcome.Processed, r.outcome.Succeeded, r.outcome.Unchanged, r.outcome.Failed = 0, 0, 0, 0
	r.lines = []string{err.Message}
}

// Lines is the error log content, one entry per failure
func (r *Report) Lines() []string {
	return r.lines
}

// Warnings lists the referential warnings of the run
func (r *Report) Warnings() []string {
	return r.warnings
}

// Outcome returns the summary of the run
func (r *Report) Outcome() models.ImportOutcome {
	return r.outcome
}

// Flush writes the error log once. Nothing is written for a clean run.
func (r *Report) Flush(storage filestorage.FileStorage) error {
	if len(r.lines) == 0 {
		return nil
	}
	path := models.ErrorLogPath(r.outcome.ImportID)
	if err := storage.Write(path, []byte(strings.Join(r.lines, "\n")+"\n")); err != nil {
		return err
	}
	r.outcome.ErrorLogPath = path
	return nil
}

// finish flushes the report, removes the source file and logs the completion
// record. The source is gone afterwards, so a failed flush is not returned as a
// job error; the failure lines go to the application log instead.
func finish(storage filestorage.FileStorage, log zerolog.Logger, sourceFile string, report *Report) (models.ImportOutcome, error) {
	if err := report.Flush(storage); err != nil {
		log.Error().Err(err).Msg("Failed to write import error log")
		for _, line := range report.Lines() {
			log.Error().Str("entry", line).Msg("Unsaved import error")
		}
	}
	deleteErr := storage.Delete(sourceFile)
	if deleteErr != nil {
		log.Error().Err(deleteErr).Str("file", sourceFile).Msg("Failed to delete import source file")
	}

	for _, w := range report.Warnings() {
		log.Warn().Msg(w)
	}

	outcome := report.Outcome()
	log.Info().
		Int("processed", outcome.Processed).
		Int("succeeded", outcome.Succeeded).
		Int("unchanged", outcome.Unchanged).
		Int("failed", outcome.Failed).
		Int("warnings", outcome.Warnings).
		Bool("aborted", outcome.Aborted).
		Str("errorLog", outcome.ErrorLogPath).
		Msg("Import finished")

	return outcome, nil
}

// ReadErrorLog returns the lines of an import's error log
func ReadErrorLog(_ context.Context, storage filestorage.FileStorage, importID string) ([]string, error) {
	data, err := storage.Read(models.ErrorLogPath(importID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.ErrImportLogNotFound
		}
		return nil, err
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, "\n"), nil
}
