package models

// CourseSection is a scheduled offering of a course with a seat capacity.
// EnrolledCount never exceeds Capacity.
type CourseSection struct {
	ID            int64  `json:"id" db:"id"`
	CourseID      int64  `json:"courseId" db:"course_id"`
	SectionCode   string `json:"sectionCode" db:"section_code"`
	Year          int    `json:"year" db:"year"`
	Term          Term   `json:"term" db:"term"`
	Capacity      int    `json:"capacity" db:"capacity"`
	EnrolledCount int    `json:"enrolledCount" db:"enrolled_count"`
}

// HasSeat reports whether another student can be enrolled.
func (s *CourseSection) HasSeat() bool {
	return s.EnrolledCount < s.Capacity
}
