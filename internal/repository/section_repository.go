package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/schedwise/timetable-api/internal/models"
)

const sectionColumns = "id, course_id, section_name, year_level, semester, enrollment"

// SectionRepository reads sections for the planner and validator.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository creates a new section repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

// FindByID loads one section.
func (r *SectionRepository) FindByID(ctx context.Context, id int64) (*models.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections WHERE id = $1`, sectionColumns)
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// ListByCourse returns a course's sections in default (id) order, which the
// planner relies on for determinism.
func (r *SectionRepository) ListByCourse(ctx context.Context, courseID int64) ([]models.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections WHERE course_id = $1 ORDER BY id ASC`, sectionColumns)
	var sections []models.Section
	if err := r.db.SelectContext(ctx, &sections, query, courseID); err != nil {
		return nil, fmt.Errorf("list sections by course: %w", err)
	}
	return sections, nil
}
