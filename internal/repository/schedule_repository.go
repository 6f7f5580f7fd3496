package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/schedwise/timetable-api/internal/models"
)

const scheduleColumns = "id, section_id, subject_id, instructor_id, room_id, day, time_start, time_end, meeting_type, created_at, updated_at"

var dimensionColumn = map[models.ConflictDimension]string{
	models.DimensionSection:    "section_id",
	models.DimensionInstructor: "instructor_id",
	models.DimensionRoom:       "room_id",
}

// ScheduleRepository provides persistence for committed schedules. All
// overlap queries in the system funnel through FindOverlapping so the
// half-open interval predicate cannot drift between call sites.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// DB exposes the underlying handle for transaction management.
func (r *ScheduleRepository) DB() *sqlx.DB {
	return r.db
}

// FindOverlapping returns committed schedules for the given resource that
// intersect [start, end) on the day. excludeID skips the record being
// updated; pass 0 for creates.
func (r *ScheduleRepository) FindOverlapping(ctx context.Context, exec sqlx.ExtContext, dim models.ConflictDimension, resourceID int64, day models.Day, start, end models.TimeOfDay, excludeID int64) ([]models.Schedule, error) {
	column, ok := dimensionColumn[dim]
	if !ok {
		return nil, fmt.Errorf("unknown conflict dimension %q", dim)
	}
	if exec == nil {
		exec = r.db
	}
	query := fmt.Sprintf(`SELECT %s FROM schedules WHERE %s = $1 AND day = $2 AND time_start < $3 AND time_end > $4 AND id <> $5`, scheduleColumns, column)
	var schedules []models.Schedule
	if err := sqlx.SelectContext(ctx, exec, &schedules, query, resourceID, day, end, start, excludeID); err != nil {
		return nil, fmt.Errorf("find overlapping schedules by %s: %w", column, err)
	}
	return schedules, nil
}

// LockResourceDay serializes check-then-commit sequences touching the same
// (resource, day) pair within the current transaction.
func (r *ScheduleRepository) LockResourceDay(ctx context.Context, exec sqlx.ExtContext, dim models.ConflictDimension, resourceID int64, day models.Day) error {
	if exec == nil {
		exec = r.db
	}
	if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, resourceDayLockKey(dim, resourceID, day)); err != nil {
		return fmt.Errorf("lock %s/%s: %w", dim, day, err)
	}
	return nil
}

func resourceDayLockKey(dim models.ConflictDimension, resourceID int64, day models.Day) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s:%d:%s", dim, resourceID, day)
	return int64(h.Sum64())
}

// Insert stores a new schedule record using the provided executor.
func (r *ScheduleRepository) Insert(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if exec == nil {
		exec = r.db
	}
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	const query = `INSERT INTO schedules (section_id, subject_id, instructor_id, room_id, day, time_start, time_end, meeting_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`
	row := exec.QueryRowxContext(ctx, query,
		schedule.SectionID, schedule.SubjectID, schedule.InstructorID, schedule.RoomID,
		schedule.Day, schedule.TimeStart, schedule.TimeEnd, schedule.MeetingType,
		schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err := row.Scan(&schedule.ID); err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// Update modifies an existing schedule record.
func (r *ScheduleRepository) Update(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if exec == nil {
		exec = r.db
	}
	schedule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedules SET section_id = :section_id, subject_id = :subject_id, instructor_id = :instructor_id, room_id = :room_id, day = :day, time_start = :time_start, time_end = :time_end, meeting_type = :meeting_type, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, schedule); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// FindByID loads a schedule by id.
func (r *ScheduleRepository) FindByID(ctx context.Context, id int64) (*models.Schedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedules WHERE id = $1`, scheduleColumns)
	var sched models.Schedule
	if err := r.db.GetContext(ctx, &sched, query, id); err != nil {
		return nil, err
	}
	return &sched, nil
}

// List returns schedules with optional filtering and pagination.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	base := "FROM schedules WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.SectionID > 0 {
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.SubjectID > 0 {
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.InstructorID > 0 {
		conditions = append(conditions, fmt.Sprintf("instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.RoomID > 0 {
		conditions = append(conditions, fmt.Sprintf("room_id = $%d", len(args)+1))
		args = append(args, filter.RoomID)
	}
	if filter.Day != "" {
		conditions = append(conditions, fmt.Sprintf("day = $%d", len(args)+1))
		args = append(args, filter.Day)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY day ASC, time_start ASC LIMIT %d OFFSET %d", scheduleColumns, base, size, offset)
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}

	return schedules, total, nil
}

// ListBySection returns a section's schedules ordered by day and start time.
func (r *ScheduleRepository) ListBySection(ctx context.Context, sectionID int64) ([]models.Schedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedules WHERE section_id = $1 ORDER BY day ASC, time_start ASC`, scheduleColumns)
	var schedules []models.Schedule
	if err := r.db.SelectContext(ctx, &schedules, query, sectionID); err != nil {
		return nil, fmt.Errorf("list schedules by section: %w", err)
	}
	return schedules, nil
}

// Delete removes a schedule by id.
func (r *ScheduleRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

// DeleteBySubject removes every schedule derived from a subject. Used when
// the owning subject is deleted.
func (r *ScheduleRepository) DeleteBySubject(ctx context.Context, subjectID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE subject_id = $1`, subjectID)
	if err != nil {
		return 0, fmt.Errorf("delete schedules by subject: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return affected, nil
}
