package models

import "fmt"

// ImportKind identifies the pipeline that handles an import run.
type ImportKind string

const (
	ImportKindCourses ImportKind = "courses"
	ImportKindGrades  ImportKind = "grades"
)

// ErrorLogDir is where per-run error logs live inside file storage.
const ErrorLogDir = "imports/logs"

// ImportRun is one bulk-import invocation. It exists for the duration of the job;
// its only persisted trace is the error log.
type ImportRun struct {
	ID               string     `json:"id"`
	Kind             ImportKind `json:"kind"`
	SourceFile       string     `json:"sourceFile"`
	OriginalFilename string     `json:"originalFilename"`
	RequestedBy      int64      `json:"requestedBy"`
	SectionID        int64      `json:"sectionId,omitempty"`
}

// ErrorLogPath returns imports/logs/{importId}_errors.log.
func (r ImportRun) ErrorLogPath() string {
	return ErrorLogPath(r.ID)
}

// ErrorLogPath builds the error log location for an import id.
func ErrorLogPath(importID string) string {
	return fmt.Sprintf("%s/%s_errors.log", ErrorLogDir, importID)
}

// ImportOutcome summarises a finished run.
type ImportOutcome struct {
	ImportID     string `json:"importId"`
	Processed    int    `json:"processed"`
	Succeeded    int    `json:"succeeded"`
	Unchanged    int    `json:"unchanged"`
	Failed       int    `json:"failed"`
	Warnings     int    `json:"warnings"`
	Aborted      bool   `json:"aborted"`
	ErrorLogPath string `json:"errorLogPath,omitempty"`
}
