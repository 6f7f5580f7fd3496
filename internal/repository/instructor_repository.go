package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/schedwise/timetable-api/internal/models"
)

// InstructorRepository reads instructors, their subject qualifications and
// availability windows.
type InstructorRepository struct {
	db *sqlx.DB
}

// NewInstructorRepository creates a new instructor repository.
func NewInstructorRepository(db *sqlx.DB) *InstructorRepository {
	return &InstructorRepository{db: db}
}

const instructorColumns = `i.id, i.user_id, u.full_name, i.department_id`

// FindByID loads one instructor.
func (r *InstructorRepository) FindByID(ctx context.Context, id int64) (*models.Instructor, error) {
	query := fmt.Sprintf(`SELECT %s FROM instructors i JOIN users u ON u.id = i.user_id WHERE i.id = $1`, instructorColumns)
	var instructor models.Instructor
	if err := r.db.GetContext(ctx, &instructor, query, id); err != nil {
		return nil, err
	}
	return &instructor, nil
}

// ListAll returns every instructor ordered by id.
func (r *InstructorRepository) ListAll(ctx context.Context) ([]models.Instructor, error) {
	query := fmt.Sprintf(`SELECT %s FROM instructors i JOIN users u ON u.id = i.user_id ORDER BY i.id ASC`, instructorColumns)
	var instructors []models.Instructor
	if err := r.db.SelectContext(ctx, &instructors, query); err != nil {
		return nil, fmt.Errorf("list instructors: %w", err)
	}
	return instructors, nil
}

// ListQualified returns instructors explicitly linked to the subject, in id
// order. An empty result does not imply "nobody may teach it"; the fallback
// policy is decided by the planner.
func (r *InstructorRepository) ListQualified(ctx context.Context, subjectID int64) ([]models.Instructor, error) {
	query := fmt.Sprintf(`SELECT %s FROM instructors i JOIN users u ON u.id = i.user_id JOIN instructor_subjects qs ON qs.instructor_id = i.id WHERE qs.subject_id = $1 ORDER BY i.id ASC`, instructorColumns)
	var instructors []models.Instructor
	if err := r.db.SelectContext(ctx, &instructors, query, subjectID); err != nil {
		return nil, fmt.Errorf("list qualified instructors: %w", err)
	}
	return instructors, nil
}

// ListAvailability returns an instructor's availability windows.
func (r *InstructorRepository) ListAvailability(ctx context.Context, instructorID int64) ([]models.AvailabilityWindow, error) {
	const query = `SELECT id, instructor_id AS owner_id, day, start_time, end_time, created_at FROM instructor_availabilities WHERE instructor_id = $1 ORDER BY day ASC, start_time ASC`
	var windows []models.AvailabilityWindow
	if err := r.db.SelectContext(ctx, &windows, query, instructorID); err != nil {
		return nil, fmt.Errorf("list instructor availability: %w", err)
	}
	return windows, nil
}
