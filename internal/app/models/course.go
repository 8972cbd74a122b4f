package models

import "time"

// Course represents a catalog course offered by a department.
type Course struct {
	ID           int64     `json:"id" db:"id"`
	DepartmentID int64     `json:"departmentId" db:"department_id"`
	Code         string    `json:"code" db:"code"`
	Title        string    `json:"title" db:"title"`
	Description  *string   `json:"description,omitempty" db:"description"` // Nullable
	Credits      int       `json:"credits" db:"credits"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`

	// Codes of the courses this course requires
	Prerequisites []string `json:"prerequisites,omitempty"`
}
