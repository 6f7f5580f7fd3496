package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/schedwise/timetable-api/internal/models"
)

const subjectColumns = "id, subject_code, subject_name, required_hours_per_week, meeting_type, units"

// SubjectRepository reads subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new subject repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// FindByID loads one subject.
func (r *SubjectRepository) FindByID(ctx context.Context, id int64) (*models.Subject, error) {
	query := fmt.Sprintf(`SELECT %s FROM subjects WHERE id = $1`, subjectColumns)
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// FindByIDs loads subjects keyed by id.
func (r *SubjectRepository) FindByIDs(ctx context.Context, ids []int64) (map[int64]models.Subject, error) {
	if len(ids) == 0 {
		return map[int64]models.Subject{}, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf(`SELECT %s FROM subjects WHERE id IN (?)`, subjectColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("build subject lookup: %w", err)
	}
	query = r.db.Rebind(query)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}
	result := make(map[int64]models.Subject, len(subjects))
	for _, s := range subjects {
		result[s.ID] = s
	}
	return result, nil
}

// Delete removes a subject. Owned schedules cascade at the database level.
func (r *SubjectRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}
