package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/pkg/apperrors"
	"github.com/yigit/registrar/internal/pkg/dberrors"
)

const sectionColumns = "id, course_id, section_code, year, term, capacity, enrolled_count"

type sectionRepository struct {
	db *pgxpool.Pool
}

// NewSectionRepository creates a new course section repository
func NewSectionRepository(db *pgxpool.Pool) SectionRepository {
	return &sectionRepository{db: db}
}

func scanSection(row pgx.Row) (*models.CourseSection, error) {
	var s models.CourseSection
	err := row.Scan(&s.ID, &s.CourseID, &s.SectionCode, &s.Year, &s.Term, &s.Capacity, &s.EnrolledCount)
	if err != nil {
		if dberrors.IsNoRows(err) {
			return nil, apperrors.ErrSectionNotFound
		}
		return nil, fmt.Errorf("error scanning course section: %w", err)
	}
	return &s, nil
}

// GetByID retrieves a course section by ID
func (r *sectionRepository) GetByID(ctx context.Context, id int64) (*models.CourseSection, error) {
	return scanSection(r.db.QueryRow(ctx, `SELECT `+sectionColumns+` FROM course_sections WHERE id = $1`, id))
}
