package repositories

import (
	"context"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/pkg/queue"
)

// psql builds statements with $n placeholders
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// DepartmentRepository resolves departments referenced by catalog rows.
type DepartmentRepository interface {
	Create(ctx context.Context, department *models.Department) error
	GetByCode(ctx context.Context, code string) (*models.Department, error)
	GetAll(ctx context.Context) ([]*models.Department, error)
}

// CourseRepository stores catalog courses and their prerequisite edges.
type CourseRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Course, error)
	// Upsert matches on Code; an existing row gets Title, Description and Credits overwritten.
	Upsert(ctx context.Context, course *models.Course) (created bool, err error)
	// ResolveCodes maps the codes that exist to their ids; unknown codes are absent.
	ResolveCodes(ctx context.Context, codes []string) (map[string]int64, error)
	// SetPrerequisites replaces the prerequisite set of a course.
	SetPrerequisites(ctx context.Context, courseID int64, prerequisiteIDs []int64) error
	// WithTx runs fn in one transaction; every write through the repository
	// passed to fn commits or rolls back together.
	WithTx(ctx context.Context, fn func(ctx context.Context, courses CourseRepository) error) error
}

// SectionRepository reads course sections.
type SectionRepository interface {
	GetByID(ctx context.Context, id int64) (*models.CourseSection, error)
}

// EnrollmentRepository stores enrollments. Every write that touches a section's
// seats goes through WithSectionLock.
type EnrollmentRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Enrollment, error)
	// FindEnrolledInSection returns the student's enrolled enrollment in the section.
	FindEnrolledInSection(ctx context.Context, sectionID, studentID int64) (*models.Enrollment, error)
	ListWaitlist(ctx context.Context, sectionID int64) ([]*models.Enrollment, error)
	// UpdateGrade sets the grade of an enrolled enrollment.
	UpdateGrade(ctx context.Context, id int64, grade string) error
	// WithSectionLock runs fn in one transaction holding an exclusive lock on the section.
	WithSectionLock(ctx context.Context, sectionID int64, fn func(ctx context.Context, tx SectionTx) error) error
}

// SectionTx is the view of one locked section inside WithSectionLock.
type SectionTx interface {
	// Section is the locked row as read at lock time, updated by SetEnrolledCount.
	Section() *models.CourseSection
	GetEnrollment(ctx context.Context, id int64) (*models.Enrollment, error)
	// FindOpenEnrollment returns the student's enrolled or waitlisted enrollment, or nil.
	FindOpenEnrollment(ctx context.Context, studentID int64) (*models.Enrollment, error)
	InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id int64, status models.EnrollmentStatus) error
	// NextWaitlisted returns the earliest waitlisted enrollment (created_at, then id), or nil.
	NextWaitlisted(ctx context.Context) (*models.Enrollment, error)
	SetEnrolledCount(ctx context.Context, count int) error
}

// Repositories holds all the repository instances
type Repositories struct {
	Departments DepartmentRepository
	Courses     CourseRepository
	Sections    SectionRepository
	Enrollments EnrollmentRepository
	FailedJobs  queue.FailedJobStore
}

// NewRepositories initializes the Postgres repositories
func NewRepositories(db *pgxpool.Pool) *Repositories {
	return &Repositories{
		Departments: NewDepartmentRepository(db),
		Courses:     NewCourseRepository(db),
		Sections:    NewSectionRepository(db),
		Enrollments: NewEnrollmentRepository(db),
		FailedJobs:  NewFailedJobRepository(db),
	}
}
