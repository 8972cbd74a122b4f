package imports

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/app/repositories"
	"github.com/yigit/registrar/internal/app/repositories/inmem"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/filestorage"
)

type countingEnqueuer struct {
	mu    sync.Mutex
	count int
}

func (c *countingEnqueuer) Enqueue(context.Context, string, any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return "job", nil
}

type fixture struct {
	store    *inmem.Store
	repos    *repositories.Repositories
	storage  *filestorage.LocalStorage
	enqueuer *countingEnqueuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	storage, err := filestorage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := inmem.NewStore()
	return &fixture{
		store:    store,
		repos:    store.Repositories(),
		storage:  storage,
		enqueuer: &countingEnqueuer{},
	}
}

func (f *fixture) upload(t *testing.T, name, content string) string {
	t.Helper()
	path := "imports/uploads/" + name
	require.NoError(t, f.storage.Write(path, []byte(content)))
	return path
}

func (f *fixture) errorLog(t *testing.T, importID string) []string {
	t.Helper()
	lines, err := ReadErrorLog(context.Background(), f.storage, importID)
	if apperrors.Is(err, apperrors.ErrImportLogNotFound) {
		return nil
	}
	require.NoError(t, err)
	return lines
}

func (f *fixture) assertSourceDeleted(t *testing.T, path string) {
	t.Helper()
	exists, err := f.storage.Exists(path)
	require.NoError(t, err)
	assert.False(t, exists, "source file %s should be deleted", path)
}

func (f *fixture) courseImporter() *CourseImporter {
	return NewCourseImporter(f.repos.Departments, f.repos.Courses, f.storage, zerolog.Nop())
}

func (f *fixture) gradeImporter() *GradeImporter {
	return NewGradeImporter(f.repos.Sections, f.repos.Enrollments, f.storage, f.enqueuer, zerolog.Nop())
}

func (f *fixture) department(t *testing.T, code string) {
	t.Helper()
	require.NoError(t, f.repos.Departments.Create(context.Background(), &models.Department{Name: code + " Department", Code: code}))
}

func TestCourseImportLinksOnlyKnownPrerequisites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.department(t, "CS")

	path := f.upload(t, "catalog.csv", "course_code,title,description,credits,department_code,prerequisite_course_codes\n"+
		"CS101,Intro to Programming,Basics,4,CS,\n"+
		"CS301,Algorithms,\"Sorting, graphs\",3,CS,\"CS101,CS999\"\n")

	outcome, err := f.courseImporter().Run(ctx, path, "imp-1")
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Processed)
	assert.Equal(t, 2, outcome.Succeeded)
	assert.Equal(t, 0, outcome.Failed)
	assert.Equal(t, 1, outcome.Warnings)
	assert.Empty(t, outcome.ErrorLogPath)
	assert.Empty(t, f.errorLog(t, "imp-1"), "warnings are not failures")

	cs301, err := f.repos.Courses.GetByCode(ctx, "CS301")
	require.NoError(t, err)
	assert.Equal(t, []string{"CS101"}, cs301.Prerequisites)
	require.NotNil(t, cs301.Description)
	assert.Equal(t, "Sorting, graphs", *cs301.Description)
	assert.Equal(t, 3, cs301.Credits)

	f.assertSourceDeleted(t, path)
}

func TestCourseImportUnknownDepartmentFailsRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.department(t, "CS")

	path := f.upload(t, "catalog.csv", "course_code,title,description,credits,department_code\n"+
		"CS101,Intro,,4,CS\n"+
		"PHY101,Mechanics,,4,PHY\n")

	outcome, err := f.courseImporter().Run(ctx, path, "imp-2")
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Succeeded)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, models.ErrorLogPath("imp-2"), outcome.ErrorLogPath)
	assert.Equal(t, []string{"Row 3: Department code 'PHY' not found"}, f.errorLog(t, "imp-2"))

	_, err = f.repos.Courses.GetByCode(ctx, "PHY101")
	assert.ErrorIs(t, err, apperrors.ErrCourseNotFound)
	assert.Equal(t, 1, f.store.CourseCount())
}

func TestCourseImportRowValidation(t *testing.T) {
	f := newFixture(t)
	f.department(t, "CS")

	path := f.upload(t, "catalog.csv", "course_code,title,credits,department_code\n"+
		",No code,3,CS\n"+
		"CS102,Zero credits,0,CS\n"+
		"CS103,Not a number,three,CS\n"+
		"CS104,Fine,3,CS\n")

	outcome, err := f.courseImporter().Run(context.Background(), path, "imp-3")
	require.NoError(t, err)

	assert.Equal(t, 4, outcome.Processed)
	assert.Equal(t, 1, outcome.Succeeded)
	assert.Equal(t, []string{
		"Row 2: Course code is required",
		"Row 3: Credits must be a positive integer",
		"Row 4: Credits must be a positive integer",
	}, f.errorLog(t, "imp-3"))
}

func TestCourseImportUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.department(t, "CS")
	csv := "course_code,title,description,credits,department_code\nCS101,Intro,Old,4,CS\n"

	_, err := f.courseImporter().Run(ctx, f.upload(t, "a.csv", csv), "imp-4a")
	require.NoError(t, err)
	_, err = f.courseImporter().Run(ctx, f.upload(t, "b.csv", csv), "imp-4b")
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.CourseCount())

	_, err = f.courseImporter().Run(ctx, f.upload(t, "c.csv",
		"course_code,title,description,credits,department_code\nCS101,Intro Revised,New,5,CS\n"), "imp-4c")
	require.NoError(t, err)

	course, err := f.repos.Courses.GetByCode(ctx, "CS101")
	require.NoError(t, err)
	assert.Equal(t, "Intro Revised", course.Title)
	assert.Equal(t, 5, course.Credits)
	require.NotNil(t, course.Description)
	assert.Equal(t, "New", *course.Description)
	assert.Equal(t, 1, f.store.CourseCount())
}

func TestCourseImportStructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty file", "", "CSV file is empty"},
		{"missing headers", "course_code,title\nCS101,Intro\n", "Missing required headers: credits, department_code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			path := f.upload(t, "catalog.csv", tt.content)

			outcome, err := f.courseImporter().Run(context.Background(), path, "imp-s")
			require.NoError(t, err)
			assert.True(t, outcome.Aborted)
			assert.Equal(t, 0, outcome.Processed)
			assert.Equal(t, []string{tt.want}, f.errorLog(t, "imp-s"))
			f.assertSourceDeleted(t, path)
		})
	}
}

func TestCourseImportMissingSourceFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.courseImporter().Run(context.Background(), "imports/uploads/missing.csv", "imp-m")
	assert.Error(t, err)
}

func gradeFixture(t *testing.T) (*fixture, int64, map[int64]*models.Enrollment) {
	t.Helper()
	f := newFixture(t)
	section := f.store.AddSection(models.CourseSection{CourseID: 1, SectionCode: "01", Year: 2026, Term: models.TermSpring, Capacity: 10})
	enrolled := map[int64]*models.Enrollment{}
	for _, student := range []int64{1, 2} {
		enrolled[student] = f.store.AddEnrollment(models.Enrollment{SectionID: section.ID, StudentID: student, Status: models.EnrollmentStatusEnrolled})
	}
	return f, section.ID, enrolled
}

func (f *fixture) grade(t *testing.T, id int64) *string {
	t.Helper()
	e, err := f.repos.Enrollments.GetByID(context.Background(), id)
	require.NoError(t, err)
	return e.Grade
}

func TestGradeImportScenario(t *testing.T) {
	f, sectionID, enrolled := gradeFixture(t)
	path := f.upload(t, "grades.csv", "student_id,grade\n1,A\n999,B+\n2,C\ninvalid,D")

	outcome, err := f.gradeImporter().Run(context.Background(), path, "g-1", sectionID)
	require.NoError(t, err)

	require.NotNil(t, f.grade(t, enrolled[1].ID))
	assert.Equal(t, "A", *f.grade(t, enrolled[1].ID))
	require.NotNil(t, f.grade(t, enrolled[2].ID))
	assert.Equal(t, "C", *f.grade(t, enrolled[2].ID))

	assert.Equal(t, []string{
		"Row 3: Student ID 999 is not enrolled",
		"Row 5: Student ID must be a number",
	}, f.errorLog(t, "g-1"))
	assert.Equal(t, 4, outcome.Processed)
	assert.Equal(t, 2, outcome.Succeeded)
	assert.Equal(t, 2, outcome.Failed)
	assert.Equal(t, 2, f.enqueuer.count, "one graded notification per changed grade")
	f.assertSourceDeleted(t, path)
}

func TestGradeImportRerunIsNoop(t *testing.T) {
	f, sectionID, enrolled := gradeFixture(t)
	csv := "student_id,grade\n1,B+\n2,A-\n"

	_, err := f.gradeImporter().Run(context.Background(), f.upload(t, "a.csv", csv), "g-2a", sectionID)
	require.NoError(t, err)
	before, err := f.repos.Enrollments.GetByID(context.Background(), enrolled[1].ID)
	require.NoError(t, err)

	outcome, err := f.gradeImporter().Run(context.Background(), f.upload(t, "b.csv", csv), "g-2b", sectionID)
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Unchanged)
	assert.Equal(t, 0, outcome.Succeeded)
	assert.Empty(t, f.errorLog(t, "g-2b"))
	assert.Equal(t, 2, f.enqueuer.count)

	after, err := f.repos.Enrollments.GetByID(context.Background(), enrolled[1].ID)
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestGradeImportRejectsUnknownGradeAndOtherSections(t *testing.T) {
	f, sectionID, _ := gradeFixture(t)
	other := f.store.AddSection(models.CourseSection{CourseID: 2, SectionCode: "02", Year: 2026, Term: models.TermSpring, Capacity: 5})
	f.store.AddEnrollment(models.Enrollment{SectionID: other.ID, StudentID: 3, Status: models.EnrollmentStatusEnrolled})
	f.store.AddEnrollment(models.Enrollment{SectionID: sectionID, StudentID: 4, Status: models.EnrollmentStatusWaitlisted})

	path := f.upload(t, "grades.csv", "student_id,grade\n1,E\n3,A\n4,B\n2,b+\n")
	outcome, err := f.gradeImporter().Run(context.Background(), path, "g-3", sectionID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Row 2: Grade must be one of A, A-, B+, B, B-, C+, C, C-, D+, D, D-, F",
		"Row 3: Student ID 3 is not enrolled",
		"Row 4: Student ID 4 is not enrolled",
	}, f.errorLog(t, "g-3"))
	assert.Equal(t, 1, outcome.Succeeded)
}

func TestGradeImportStructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"empty file", "", "CSV file is empty"},
		{"missing grade header", "student_id\n1\n2\n", "Missing required headers: grade"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, sectionID, enrolled := gradeFixture(t)
			path := f.upload(t, "grades.csv", tt.content)

			outcome, err := f.gradeImporter().Run(context.Background(), path, "g-s", sectionID)
			require.NoError(t, err)

			assert.True(t, outcome.Aborted)
			assert.Equal(t, 0, outcome.Processed)
			assert.Equal(t, []string{tt.want}, f.errorLog(t, "g-s"))
			assert.Nil(t, f.grade(t, enrolled[1].ID))
			f.assertSourceDeleted(t, path)
		})
	}
}

func TestGradeImportUnknownSection(t *testing.T) {
	f, _, _ := gradeFixture(t)
	path := f.upload(t, "grades.csv", "student_id,grade\n1,A\n")

	outcome, err := f.gradeImporter().Run(context.Background(), path, "g-u", 404)
	require.NoError(t, err)
	assert.True(t, outcome.Aborted)
	assert.Equal(t, []string{"Course section 404 not found"}, f.errorLog(t, "g-u"))
	f.assertSourceDeleted(t, path)
}

func TestParseCodeList(t *testing.T) {
	assert.Equal(t, []string{"CS101", "CS102"}, parseCodeList(" CS101, CS102 ,CS101,"))
	assert.Nil(t, parseCodeList(""))
}

func TestGradeImportNumbersRowsByFileLine(t *testing.T) {
	f, sectionID, enrolled := gradeFixture(t)
	path := f.upload(t, "grades.csv", "\ufeffstudent_id,grade\n\n\n999,A\n1,B\n\n2,Z\n")

	outcome, err := f.gradeImporter().Run(context.Background(), path, "g-l", sectionID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Row 4: Student ID 999 is not enrolled",
		"Row 7: Grade must be one of A, A-, B+, B, B-, C+, C, C-, D+, D, D-, F",
	}, f.errorLog(t, "g-l"))
	assert.Equal(t, 3, outcome.Processed)
	require.NotNil(t, f.grade(t, enrolled[1].ID))
	assert.Equal(t, "B", *f.grade(t, enrolled[1].ID))
}

func TestCourseImportRowNumbersSpanQuotedNewlines(t *testing.T) {
	f := newFixture(t)
	f.department(t, "CS")

	path := f.upload(t, "catalog.csv", "course_code,title,description,credits,department_code\n"+
		"CS101,Intro,\"two\nlines\",4,CS\n"+
		"\n"+
		"CS102,Broken,,x,CS\n")

	_, err := f.courseImporter().Run(context.Background(), path, "imp-q")
	require.NoError(t, err)
	assert.Equal(t, []string{"Row 5: Credits must be a positive integer"}, f.errorLog(t, "imp-q"))
}

// unwritableLogs fails every write below the error log directory
type unwritableLogs struct {
	*filestorage.LocalStorage
}

func (s unwritableLogs) Write(path string, data []byte) error {
	if strings.HasPrefix(path, models.ErrorLogDir+"/") {
		return errors.New("disk full")
	}
	return s.LocalStorage.Write(path, data)
}

func TestImportWithUnwritableErrorLogStillCompletes(t *testing.T) {
	f, sectionID, _ := gradeFixture(t)
	path := f.upload(t, "grades.csv", "student_id,grade\n999,A\n")

	imp := NewGradeImporter(f.repos.Sections, f.repos.Enrollments, unwritableLogs{f.storage}, f.enqueuer, zerolog.Nop())
	outcome, err := imp.Run(context.Background(), path, "g-w", sectionID)

	require.NoError(t, err, "a retry could not reread the deleted source")
	assert.Equal(t, 1, outcome.Failed)
	assert.Empty(t, outcome.ErrorLogPath)
	f.assertSourceDeleted(t, path)
}

// unlinkableCourses saves courses but cannot write prerequisite edges
type unlinkableCourses struct {
	repositories.CourseRepository
}

func (r unlinkableCourses) SetPrerequisites(context.Context, int64, []int64) error {
	return errors.New("connection reset")
}

func (r unlinkableCourses) WithTx(ctx context.Context, fn func(ctx context.Context, courses repositories.CourseRepository) error) error {
	return r.CourseRepository.WithTx(ctx, func(ctx context.Context, courses repositories.CourseRepository) error {
		return fn(ctx, unlinkableCourses{courses})
	})
}

func TestCourseImportRollsBackCourseWhenLinkingFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.department(t, "CS")

	_, err := f.courseImporter().Run(ctx, f.upload(t, "a.csv",
		"course_code,title,description,credits,department_code\nCS101,Intro,Old,4,CS\n"), "imp-t1")
	require.NoError(t, err)

	imp := NewCourseImporter(f.repos.Departments, unlinkableCourses{f.repos.Courses}, f.storage, zerolog.Nop())
	outcome, err := imp.Run(ctx, f.upload(t, "b.csv",
		"course_code,title,description,credits,department_code,prerequisite_course_codes\n"+
			"CS101,Intro Revised,New,5,CS,\n"+
			"CS201,Data Structures,,4,CS,CS101\n"), "imp-t2")
	require.NoError(t, err)

	assert.Equal(t, 2, outcome.Failed)
	assert.Equal(t, []string{
		"Row 2: Unable to link prerequisites of CS101",
		"Row 3: Unable to link prerequisites of CS201",
	}, f.errorLog(t, "imp-t2"))

	cs101, err := f.repos.Courses.GetByCode(ctx, "CS101")
	require.NoError(t, err)
	assert.Equal(t, "Intro", cs101.Title, "the failed row left the stored course untouched")
	_, err = f.repos.Courses.GetByCode(ctx, "CS201")
	assert.ErrorIs(t, err, apperrors.ErrCourseNotFound)
	assert.Equal(t, 1, f.store.CourseCount())
}
