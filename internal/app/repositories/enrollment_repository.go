package repositories

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/db"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/dberrors"
)

var enrollmentColumns = []string{"id", "student_id", "section_id", "status", "grade", "created_at", "updated_at"}

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx
type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type enrollmentRepository struct {
	db *pgxpool.Pool
}

// NewEnrollmentRepository creates a new enrollment repository
func NewEnrollmentRepository(db *pgxpool.Pool) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func scanEnrollment(row pgx.Row) (*models.Enrollment, error) {
	var e models.Enrollment
	err := row.Scan(&e.ID, &e.StudentID, &e.SectionID, &e.Status, &e.Grade, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// selectOne runs the query and maps pgx.ErrNoRows to ErrEnrollmentNotFound
func selectOne(ctx context.Context, q queryer, query squirrel.SelectBuilder) (*models.Enrollment, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building enrollment query: %w", err)
	}
	e, err := scanEnrollment(q.QueryRow(ctx, sql, args...))
	if err != nil {
		if dberrors.IsNoRows(err) {
			return nil, apperrors.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("error retrieving enrollment: %w", err)
	}
	return e, nil
}

func selectMany(ctx context.Context, q queryer, query squirrel.SelectBuilder) ([]*models.Enrollment, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building enrollment query: %w", err)
	}
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing enrollments: %w", err)
	}
	defer rows.Close()

	var enrollments []*models.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning enrollment: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

func waitlistQuery(sectionID int64) squirrel.SelectBuilder {
	return psql.Select(enrollmentColumns...).
		From("enrollments").
		Where(squirrel.Eq{"section_id": sectionID, "status": models.EnrollmentStatusWaitlisted}).
		OrderBy("created_at ASC", "id ASC")
}

// GetByID retrieves an enrollment by ID
func (r *enrollmentRepository) GetByID(ctx context.Context, id int64) (*models.Enrollment, error) {
	return selectOne(ctx, r.db, psql.Select(enrollmentColumns...).From("enrollments").Where(squirrel.Eq{"id": id}))
}

// FindEnrolledInSection retrieves the enrolled enrollment of a student in a section
func (r *enrollmentRepository) FindEnrolledInSection(ctx context.Context, sectionID, studentID int64) (*models.Enrollment, error) {
	return selectOne(ctx, r.db, psql.Select(enrollmentColumns...).
		From("enrollments").
		Where(squirrel.Eq{
			"section_id": sectionID,
			"student_id": studentID,
			"status":     models.EnrollmentStatusEnrolled,
		}))
}

// ListWaitlist returns the waitlisted enrollments of a section in promotion order
func (r *enrollmentRepository) ListWaitlist(ctx context.Context, sectionID int64) ([]*models.Enrollment, error) {
	return selectMany(ctx, r.db, waitlistQuery(sectionID))
}

// UpdateGrade sets the grade; only enrolled enrollments are gradable
func (r *enrollmentRepository) UpdateGrade(ctx context.Context, id int64, grade string) error {
	sql, args, err := psql.Update("enrollments").
		Set("grade", grade).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id, "status": models.EnrollmentStatusEnrolled}).
		ToSql()
	if err != nil {
		return fmt.Errorf("error building grade update: %w", err)
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("error updating grade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrGradeNotAssignable
	}
	return nil
}

// WithSectionLock locks the section row with SELECT ... FOR UPDATE and runs fn
// in the same transaction. Concurrent callers for one section are serialized.
func (r *enrollmentRepository) WithSectionLock(ctx context.Context, sectionID int64, fn func(ctx context.Context, tx SectionTx) error) error {
	return db.RunInTx(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		section, err := scanSection(tx.QueryRow(ctx,
			`SELECT `+sectionColumns+` FROM course_sections WHERE id = $1 FOR UPDATE`, sectionID))
		if err != nil {
			return err
		}
		return fn(ctx, &pgSectionTx{tx: tx, section: section})
	})
}

type pgSectionTx struct {
	tx      pgx.Tx
	section *models.CourseSection
}

func (t *pgSectionTx) Section() *models.CourseSection {
	return t.section
}

func (t *pgSectionTx) GetEnrollment(ctx context.Context, id int64) (*models.Enrollment, error) {
	return selectOne(ctx, t.tx, psql.Select(enrollmentColumns...).
		From("enrollments").
		Where(squirrel.Eq{"id": id, "section_id": t.section.ID}))
}

func (t *pgSectionTx) FindOpenEnrollment(ctx context.Context, studentID int64) (*models.Enrollment, error) {
	e, err := selectOne(ctx, t.tx, psql.Select(enrollmentColumns...).
		From("enrollments").
		Where(squirrel.Eq{
			"section_id": t.section.ID,
			"student_id": studentID,
			"status":     []models.EnrollmentStatus{models.EnrollmentStatusEnrolled, models.EnrollmentStatusWaitlisted},
		}).
		Limit(1))
	if apperrors.Is(err, apperrors.ErrEnrollmentNotFound) {
		return nil, nil
	}
	return e, err
}

// InsertEnrollment stamps created_at with clock_timestamp() so rows created
// later in lock order never sort ahead of earlier ones.
func (t *pgSectionTx) InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.SectionID = t.section.ID
	sql, args, err := psql.Insert("enrollments").
		Columns("student_id", "section_id", "status", "created_at", "updated_at").
		Values(enrollment.StudentID, enrollment.SectionID, enrollment.Status,
			squirrel.Expr("clock_timestamp()"), squirrel.Expr("clock_timestamp()")).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("error building enrollment insert: %w", err)
	}

	err = t.tx.QueryRow(ctx, sql, args...).Scan(&enrollment.ID, &enrollment.CreatedAt, &enrollment.UpdatedAt)
	if err != nil {
		if dberrors.IsDuplicateConstraintError(err, "enrollments_open_student_section_key") {
			return apperrors.ErrAlreadyEnrolled
		}
		return fmt.Errorf("error creating enrollment: %w", err)
	}
	return nil
}

func (t *pgSectionTx) UpdateStatus(ctx context.Context, id int64, status models.EnrollmentStatus) error {
	sql, args, err := psql.Update("enrollments").
		Set("status", status).
		Set("updated_at", squirrel.Expr("clock_timestamp()")).
		Where(squirrel.Eq{"id": id, "section_id": t.section.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("error building status update: %w", err)
	}

	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("error updating enrollment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrEnrollmentNotFound
	}
	return nil
}

func (t *pgSectionTx) NextWaitlisted(ctx context.Context) (*models.Enrollment, error) {
	e, err := selectOne(ctx, t.tx, waitlistQuery(t.section.ID).Limit(1))
	if apperrors.Is(err, apperrors.ErrEnrollmentNotFound) {
		return nil, nil
	}
	return e, err
}

func (t *pgSectionTx) SetEnrolledCount(ctx context.Context, count int) error {
	if count < 0 || count > t.section.Capacity {
		return apperrors.ErrCapacityInvariant
	}
	_, err := t.tx.Exec(ctx, `UPDATE course_sections SET enrolled_count = $1 WHERE id = $2`, count, t.section.ID)
	if err != nil {
		return fmt.Errorf("error updating enrolled count: %w", err)
	}
	t.section.EnrolledCount = count
	return nil
}
