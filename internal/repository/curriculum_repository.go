package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/schedwise/timetable-api/internal/models"
)

// CurriculumRepository reads curricula and their subject requirement rows.
type CurriculumRepository struct {
	db *sqlx.DB
}

// NewCurriculumRepository creates a new curriculum repository.
func NewCurriculumRepository(db *sqlx.DB) *CurriculumRepository {
	return &CurriculumRepository{db: db}
}

// FindByID loads one curriculum.
func (r *CurriculumRepository) FindByID(ctx context.Context, id int64) (*models.Curriculum, error) {
	const query = `SELECT id, name, course_id, is_active, created_at FROM curricula WHERE id = $1`
	var curriculum models.Curriculum
	if err := r.db.GetContext(ctx, &curriculum, query, id); err != nil {
		return nil, err
	}
	return &curriculum, nil
}

// ListActive returns every curriculum flagged active, ordered by id for a
// deterministic planner walk.
func (r *CurriculumRepository) ListActive(ctx context.Context) ([]models.Curriculum, error) {
	const query = `SELECT id, name, course_id, is_active, created_at FROM curricula WHERE is_active = TRUE ORDER BY id ASC`
	var curricula []models.Curriculum
	if err := r.db.SelectContext(ctx, &curricula, query); err != nil {
		return nil, fmt.Errorf("list active curricula: %w", err)
	}
	return curricula, nil
}

// ListSubjects returns a curriculum's requirement rows in planner precedence
// order: explicit sort order first, then id.
func (r *CurriculumRepository) ListSubjects(ctx context.Context, curriculumID int64) ([]models.CurriculumSubject, error) {
	const query = `SELECT id, curriculum_id, subject_id, is_required, sort_order FROM curriculum_subjects WHERE curriculum_id = $1 ORDER BY sort_order ASC, id ASC`
	var subjects []models.CurriculumSubject
	if err := r.db.SelectContext(ctx, &subjects, query, curriculumID); err != nil {
		return nil, fmt.Errorf("list curriculum subjects: %w", err)
	}
	return subjects, nil
}
