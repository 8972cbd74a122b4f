package repositories

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/db"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/dberrors"
)

// courseRepository queries through db, which is the pool or, inside WithTx, the open transaction
type courseRepository struct {
	pool *pgxpool.Pool
	db   queryer
	tx   pgx.Tx
}

// NewCourseRepository creates a new course repository
func NewCourseRepository(db *pgxpool.Pool) CourseRepository {
	return &courseRepository{pool: db, db: db}
}

// WithTx runs fn against a repository bound to one transaction
func (r *courseRepository) WithTx(ctx context.Context, fn func(ctx context.Context, courses CourseRepository) error) error {
	return r.inTx(ctx, func(ctx context.Context, txRepo *courseRepository) error {
		return fn(ctx, txRepo)
	})
}

// inTx reuses the open transaction, or starts one on the pool
func (r *courseRepository) inTx(ctx context.Context, fn func(ctx context.Context, txRepo *courseRepository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}
	return db.RunInTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &courseRepository{pool: r.pool, db: tx, tx: tx})
	})
}

// GetByCode retrieves a course and the codes of its prerequisites
func (r *courseRepository) GetByCode(ctx context.Context, code string) (*models.Course, error) {
	sql, args, err := psql.
		Select("id", "department_id", "code", "title", "description", "credits", "created_at", "updated_at").
		From("courses").
		Where(squirrel.Eq{"code": code}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building course query: %w", err)
	}

	var c models.Course
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&c.ID, &c.DepartmentID, &c.Code, &c.Title, &c.Description, &c.Credits, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if dberrors.IsNoRows(err) {
			return nil, apperrors.ErrCourseNotFound
		}
		return nil, fmt.Errorf("error retrieving course %s: %w", code, err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT p.code
		FROM course_prerequisites cp
		JOIN courses p ON p.id = cp.prerequisite_id
		WHERE cp.course_id = $1
		ORDER BY p.code`, c.ID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving prerequisites of %s: %w", code, err)
	}
	c.Prerequisites, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("error scanning prerequisites of %s: %w", code, err)
	}

	return &c, nil
}

// Upsert inserts the course or overwrites title, description and credits of the existing row.
// xmax is zero only for freshly inserted tuples.
func (r *courseRepository) Upsert(ctx context.Context, course *models.Course) (bool, error) {
	sql, args, err := psql.
		Insert("courses").
		Columns("department_id", "code", "title", "description", "credits").
		Values(course.DepartmentID, course.Code, course.Title, course.Description, course.Credits).
		Suffix(`ON CONFLICT (code) DO UPDATE
			SET title = EXCLUDED.title,
			    description = EXCLUDED.description,
			    credits = EXCLUDED.credits,
			    updated_at = now()
			RETURNING id, (xmax = 0) AS inserted`).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("error building course upsert: %w", err)
	}

	var created bool
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&course.ID, &created); err != nil {
		return false, fmt.Errorf("error upserting course %s: %w", course.Code, err)
	}
	return created, nil
}

// ResolveCodes maps existing course codes to ids
func (r *courseRepository) ResolveCodes(ctx context.Context, codes []string) (map[string]int64, error) {
	resolved := make(map[string]int64, len(codes))
	if len(codes) == 0 {
		return resolved, nil
	}

	sql, args, err := psql.Select("id", "code").From("courses").Where(squirrel.Eq{"code": codes}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("error building course code lookup: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("error resolving course codes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			code string
		)
		if err := rows.Scan(&id, &code); err != nil {
			return nil, err
		}
		resolved[code] = id
	}
	return resolved, rows.Err()
}

// SetPrerequisites replaces the prerequisite edges of courseID in one transaction
func (r *courseRepository) SetPrerequisites(ctx context.Context, courseID int64, prerequisiteIDs []int64) error {
	return r.inTx(ctx, func(ctx context.Context, txRepo *courseRepository) error {
		q := txRepo.db
		if _, err := q.Exec(ctx, `DELETE FROM course_prerequisites WHERE course_id = $1`, courseID); err != nil {
			return fmt.Errorf("error clearing prerequisites: %w", err)
		}
		if len(prerequisiteIDs) == 0 {
			return nil
		}

		insert := psql.Insert("course_prerequisites").Columns("course_id", "prerequisite_id")
		for _, id := range prerequisiteIDs {
			insert = insert.Values(courseID, id)
		}
		sql, args, err := insert.Suffix("ON CONFLICT DO NOTHING").ToSql()
		if err != nil {
			return fmt.Errorf("error building prerequisite insert: %w", err)
		}
		if _, err := q.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("error linking prerequisites: %w", err)
		}
		return nil
	})
}
