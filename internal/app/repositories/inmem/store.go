// Package inmem implements the repository interfaces in process memory. It backs
// the "memory" database driver and the service tests.
package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/app/repositories"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/queue"
)

// Store holds every table. mu guards the maps; sectionLocks serialize
// WithSectionLock per section the way a row lock would.
type Store struct {
	mu            sync.RWMutex
	lastTimestamp time.Time

	departments   map[int64]*models.Department
	courses       map[int64]*models.Course
	prerequisites map[int64][]int64
	sections      map[int64]*models.CourseSection
	enrollments   map[int64]*models.Enrollment
	nextID        map[string]int64

	locksMu      sync.Mutex
	sectionLocks map[int64]*sync.Mutex

	// catalogTx serializes course transactions
	catalogTx sync.Mutex
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		departments:   make(map[int64]*models.Department),
		courses:       make(map[int64]*models.Course),
		prerequisites: make(map[int64][]int64),
		sections:      make(map[int64]*models.CourseSection),
		enrollments:   make(map[int64]*models.Enrollment),
		nextID:        make(map[string]int64),
		sectionLocks:  make(map[int64]*sync.Mutex),
	}
}

// Repositories exposes the store through the repository interfaces
func (s *Store) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Departments: departmentRepo{s},
		Courses:     courseRepo{s},
		Sections:    sectionRepo{s},
		Enrollments: enrollmentRepo{s},
		FailedJobs:  queue.NewMemoryFailedJobStore(),
	}
}

// id must be called with mu held
func (s *Store) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// now returns strictly increasing timestamps; must be called with mu held
func (s *Store) now() time.Time {
	t := time.Now().UTC()
	if !t.After(s.lastTimestamp) {
		t = s.lastTimestamp.Add(time.Microsecond)
	}
	s.lastTimestamp = t
	return t
}

func (s *Store) sectionLock(sectionID int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.sectionLocks[sectionID]
	if !ok {
		l = &sync.Mutex{}
		s.sectionLocks[sectionID] = l
	}
	return l
}

// AddSection inserts a course section and returns it with its id set
func (s *Store) AddSection(section models.CourseSection) *models.CourseSection {
	s.mu.Lock()
	defer s.mu.Unlock()
	section.ID = s.id("sections")
	s.sections[section.ID] = &section
	out := section
	return &out
}

// AddEnrollment inserts an enrollment as is, bumping the section count for enrolled rows
func (s *Store) AddEnrollment(e models.Enrollment) *models.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = s.id("enrollments")
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.UpdatedAt = e.CreatedAt
	s.enrollments[e.ID] = &e
	if sec, ok := s.sections[e.SectionID]; ok && e.Status == models.EnrollmentStatusEnrolled {
		sec.EnrolledCount++
	}
	out := e
	return &out
}

// Enrollments returns copies of all enrollments of a section ordered by id
func (s *Store) Enrollments(sectionID int64) []*models.Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Enrollment
	for _, e := range s.enrollments {
		if e.SectionID == sectionID {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PrerequisiteCodes returns the sorted prerequisite codes of a course
func (s *Store) PrerequisiteCodes(courseID int64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prerequisiteCodes(courseID)
}

func (s *Store) prerequisiteCodes(courseID int64) []string {
	var codes []string
	for _, id := range s.prerequisites[courseID] {
		if c, ok := s.courses[id]; ok {
			codes = append(codes, c.Code)
		}
	}
	sort.Strings(codes)
	return codes
}

// CourseCount returns the number of catalog courses
func (s *Store) CourseCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.courses)
}

type departmentRepo struct{ s *Store }

func (r departmentRepo) Create(_ context.Context, department *models.Department) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.departments {
		if d.Code == department.Code {
			return apperrors.ErrResourceAlreadyExists
		}
	}
	department.ID = r.s.id("departments")
	c := *department
	r.s.departments[c.ID] = &c
	return nil
}

func (r departmentRepo) GetByCode(_ context.Context, code string) (*models.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	code = strings.TrimSpace(code)
	for _, d := range r.s.departments {
		if d.Code == code {
			c := *d
			return &c, nil
		}
	}
	return nil, apperrors.ErrDepartmentNotFound
}

func (r departmentRepo) GetAll(_ context.Context) ([]*models.Department, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.Department, 0, len(r.s.departments))
	for _, d := range r.s.departments {
		c := *d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type courseRepo struct{ s *Store }

func (r courseRepo) GetByCode(_ context.Context, code string) (*models.Course, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.courses {
		if c.Code == code {
			out := *c
			out.Prerequisites = r.s.prerequisiteCodes(c.ID)
			return &out, nil
		}
	}
	return nil, apperrors.ErrCourseNotFound
}

func (r courseRepo) Upsert(_ context.Context, course *models.Course) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	for _, c := range r.s.courses {
		if c.Code == course.Code {
			c.Title = course.Title
			c.Description = course.Description
			c.Credits = course.Credits
			c.UpdatedAt = now
			course.ID = c.ID
			return false, nil
		}
	}
	course.ID = r.s.id("courses")
	course.CreatedAt, course.UpdatedAt = now, now
	c := *course
	c.Prerequisites = nil
	r.s.courses[c.ID] = &c
	return true, nil
}

func (r courseRepo) ResolveCodes(_ context.Context, codes []string) (map[string]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	wanted := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		wanted[code] = struct{}{}
	}
	resolved := make(map[string]int64, len(codes))
	for _, c := range r.s.courses {
		if _, ok := wanted[c.Code]; ok {
			resolved[c.Code] = c.ID
		}
	}
	return resolved, nil
}

func (r courseRepo) SetPrerequisites(_ context.Context, courseID int64, prerequisiteIDs []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.courses[courseID]; !ok {
		return apperrors.ErrCourseNotFound
	}
	seen := make(map[int64]struct{}, len(prerequisiteIDs))
	ids := make([]int64, 0, len(prerequisiteIDs))
	for _, id := range prerequisiteIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	r.s.prerequisites[courseID] = ids
	return nil
}

// WithTx runs fn and restores the catalog tables when it fails
func (r courseRepo) WithTx(ctx context.Context, fn func(ctx context.Context, courses repositories.CourseRepository) error) error {
	r.s.catalogTx.Lock()
	defer r.s.catalogTx.Unlock()

	snapshot := r.s.snapshotCatalog()
	if err := fn(ctx, r); err != nil {
		r.s.restoreCatalog(snapshot)
		return err
	}
	return nil
}

type catalogSnapshot struct {
	courses       map[int64]models.Course
	prerequisites map[int64][]int64
	nextCourseID  int64
}

func (s *Store) snapshotCatalog() catalogSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := catalogSnapshot{
		courses:       make(map[int64]models.Course, len(s.courses)),
		prerequisites: make(map[int64][]int64, len(s.prerequisites)),
		nextCourseID:  s.nextID["courses"],
	}
	for id, c := range s.courses {
		snap.courses[id] = *c
	}
	for id, ids := range s.prerequisites {
		snap.prerequisites[id] = append([]int64(nil), ids...)
	}
	return snap
}

func (s *Store) restoreCatalog(snap catalogSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses = make(map[int64]*models.Course, len(snap.courses))
	for id, c := range snap.courses {
		c := c
		s.courses[id] = &c
	}
	s.prerequisites = snap.prerequisites
	s.nextID["courses"] = snap.nextCourseID
}

type sectionRepo struct{ s *Store }

func (r sectionRepo) GetByID(_ context.Context, id int64) (*models.CourseSection, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sec, ok := r.s.sections[id]
	if !ok {
		return nil, apperrors.ErrSectionNotFound
	}
	c := *sec
	return &c, nil
}
