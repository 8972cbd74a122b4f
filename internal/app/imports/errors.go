package imports

import (
	"fmt"
	"strings"
)

// StructuralError invalidates the whole file. The run is aborted with zero rows processed.
type StructuralError struct {
	Message string
}

func (e *StructuralError) Error() string {
	return e.Message
}

var errEmptyFile = &StructuralError{Message: "CSV file is empty"}

func missingHeaders(names []string) *StructuralError {
	return &StructuralError{Message: "Missing required headers: " + strings.Join(names, ", ")}
}

// ValidationError rejects one row. The row is skipped and the run continues.
type ValidationError struct {
	Row    int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Reason)
}

// ReferentialWarning is informational; the row still succeeds.
type ReferentialWarning struct {
	Row    int
	Reason string
}

func (w ReferentialWarning) String() string {
	return fmt.Sprintf("Row %d: %s", w.Row, w.Reason)
}
