package inmem

import (
	"context"
	"sort"

	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/app/repositories"
	"github.com/yigit/registrar/internal/pkg/apperrors"
)

type enrollmentRepo struct{ s *Store }

func (r enrollmentRepo) GetByID(_ context.Context, id int64) (*models.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.enrollments[id]
	if !ok {
		return nil, apperrors.ErrEnrollmentNotFound
	}
	c := *e
	return &c, nil
}

func (r enrollmentRepo) FindEnrolledInSection(_ context.Context, sectionID, studentID int64) (*models.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.enrollments {
		if e.SectionID == sectionID && e.StudentID == studentID && e.Status == models.EnrollmentStatusEnrolled {
			c := *e
			return &c, nil
		}
	}
	return nil, apperrors.ErrEnrollmentNotFound
}

func (r enrollmentRepo) ListWaitlist(_ context.Context, sectionID int64) ([]*models.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.waitlist(sectionID), nil
}

// waitlist must be called with mu held
func (s *Store) waitlist(sectionID int64) []*models.Enrollment {
	var out []*models.Enrollment
	for _, e := range s.enrollments {
		if e.SectionID == sectionID && e.Status == models.EnrollmentStatusWaitlisted {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WaitlistedBefore(out[j]) })
	return out
}

func (r enrollmentRepo) UpdateGrade(_ context.Context, id int64, grade string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusEnrolled {
		return apperrors.ErrGradeNotAssignable
	}
	g := grade
	e.Grade = &g
	e.UpdatedAt = r.s.now()
	return nil
}

// WithSectionLock holds the section's mutex for the duration of fn. Writes are
// applied immediately and undone in reverse order if fn fails.
func (r enrollmentRepo) WithSectionLock(ctx context.Context, sectionID int64, fn func(ctx context.Context, tx repositories.SectionTx) error) error {
	lock := r.s.sectionLock(sectionID)
	lock.Lock()
	defer lock.Unlock()

	r.s.mu.RLock()
	sec, ok := r.s.sections[sectionID]
	var snapshot models.CourseSection
	if ok {
		snapshot = *sec
	}
	r.s.mu.RUnlock()
	if !ok {
		return apperrors.ErrSectionNotFound
	}

	tx := &sectionTx{s: r.s, section: &snapshot}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type sectionTx struct {
	s       *Store
	section *models.CourseSection
	undo    []func()
}

func (t *sectionTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

func (t *sectionTx) Section() *models.CourseSection {
	return t.section
}

func (t *sectionTx) GetEnrollment(_ context.Context, id int64) (*models.Enrollment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	e, ok := t.s.enrollments[id]
	if !ok || e.SectionID != t.section.ID {
		return nil, apperrors.ErrEnrollmentNotFound
	}
	c := *e
	return &c, nil
}

func (t *sectionTx) FindOpenEnrollment(_ context.Context, studentID int64) (*models.Enrollment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, e := range t.s.enrollments {
		if e.SectionID != t.section.ID || e.StudentID != studentID {
			continue
		}
		if e.Status == models.EnrollmentStatusEnrolled || e.Status == models.EnrollmentStatusWaitlisted {
			c := *e
			return &c, nil
		}
	}
	return nil, nil
}

func (t *sectionTx) InsertEnrollment(_ context.Context, enrollment *models.Enrollment) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	enrollment.SectionID = t.section.ID
	for _, e := range t.s.enrollments {
		if e.SectionID == enrollment.SectionID && e.StudentID == enrollment.StudentID &&
			e.Status != models.EnrollmentStatusDropped {
			return apperrors.ErrAlreadyEnrolled
		}
	}
	enrollment.ID = t.s.id("enrollments")
	enrollment.CreatedAt = t.s.now()
	enrollment.UpdatedAt = enrollment.CreatedAt
	c := *enrollment
	t.s.enrollments[c.ID] = &c

	id := c.ID
	t.undo = append(t.undo, func() { delete(t.s.enrollments, id) })
	return nil
}

func (t *sectionTx) UpdateStatus(_ context.Context, id int64, status models.EnrollmentStatus) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	e, ok := t.s.enrollments[id]
	if !ok || e.SectionID != t.section.ID {
		return apperrors.ErrEnrollmentNotFound
	}
	prevStatus, prevUpdated := e.Status, e.UpdatedAt
	e.Status = status
	e.UpdatedAt = t.s.now()
	t.undo = append(t.undo, func() {
		e.Status = prevStatus
		e.UpdatedAt = prevUpdated
	})
	return nil
}

func (t *sectionTx) NextWaitlisted(_ context.Context) (*models.Enrollment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	wl := t.s.waitlist(t.section.ID)
	if len(wl) == 0 {
		return nil, nil
	}
	return wl[0], nil
}

func (t *sectionTx) SetEnrolledCount(_ context.Context, count int) error {
	if count < 0 || count > t.section.Capacity {
		return apperrors.ErrCapacityInvariant
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	sec := t.s.sections[t.section.ID]
	prev := sec.EnrolledCount
	sec.EnrolledCount = count
	t.section.EnrolledCount = count
	t.undo = append(t.undo, func() { sec.EnrolledCount = prev })
	return nil
}

var _ repositories.EnrollmentRepository = enrollmentRepo{}
