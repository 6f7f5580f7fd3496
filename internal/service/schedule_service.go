package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/schedwise/timetable-api/internal/dto"
	"github.com/schedwise/timetable-api/internal/models"
	appErrors "github.com/schedwise/timetable-api/pkg/errors"
)

// Enforcer rejection messages. These are the single source of truth for
// "is this placement legal" and are shared by every commit path.
const (
	msgRoomOccupied   = "This room is already occupied during the selected time."
	msgInstructorBusy = "This instructor is already teaching during the selected time."
	msgSectionBusy    = "This section already has a class during the selected time."
)

type scheduleStore interface {
	FindOverlapping(ctx context.Context, exec sqlx.ExtContext, dim models.ConflictDimension, resourceID int64, day models.Day, start, end models.TimeOfDay, excludeID int64) ([]models.Schedule, error)
	LockResourceDay(ctx context.Context, exec sqlx.ExtContext, dim models.ConflictDimension, resourceID int64, day models.Day) error
	Insert(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	Update(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	FindByID(ctx context.Context, id int64) (*models.Schedule, error)
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error)
	Delete(ctx context.Context, id int64) error
	DeleteBySubject(ctx context.Context, subjectID int64) (int64, error)
}

type sectionReader interface {
	FindByID(ctx context.Context, id int64) (*models.Section, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id int64) (*models.Subject, error)
}

type instructorReader interface {
	FindByID(ctx context.Context, id int64) (*models.Instructor, error)
	ListAvailability(ctx context.Context, instructorID int64) ([]models.AvailabilityWindow, error)
}

type roomReader interface {
	FindByID(ctx context.Context, id int64) (*models.Room, error)
	ListAvailability(ctx context.Context, roomID int64) ([]models.AvailabilityWindow, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string)
}

// ScheduleService owns the commit path for schedule records. Every create
// and update, whatever its origin, runs through the invariant enforcement in
// CommitWithTx/UpdateWithTx.
type ScheduleService struct {
	repo        scheduleStore
	sections    sectionReader
	subjects    subjectReader
	instructors instructorReader
	rooms       roomReader
	tx          txProvider
	cache       cacheInvalidator
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewScheduleService wires the schedule commit path.
func NewScheduleService(
	repo scheduleStore,
	sections sectionReader,
	subjects subjectReader,
	instructors instructorReader,
	rooms roomReader,
	tx txProvider,
	cache cacheInvalidator,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{
		repo:        repo,
		sections:    sections,
		subjects:    subjects,
		instructors: instructors,
		rooms:       rooms,
		tx:          tx,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// enforce applies the unconditional invariants: time ordering, duration
// bounds, and pairwise non-overlap on room, instructor and section for the
// same day, excluding the record's own id.
func (s *ScheduleService) enforce(ctx context.Context, exec sqlx.ExtContext, sched *models.Schedule) error {
	if err := sched.ValidateTimes(); err != nil {
		return err
	}

	checks := []struct {
		dim        models.ConflictDimension
		resourceID int64
		message    string
	}{
		{models.DimensionRoom, sched.RoomID, msgRoomOccupied},
		{models.DimensionInstructor, sched.InstructorID, msgInstructorBusy},
		{models.DimensionSection, sched.SectionID, msgSectionBusy},
	}
	for _, check := range checks {
		overlapping, err := s.repo.FindOverlapping(ctx, exec, check.dim, check.resourceID, sched.Day, sched.TimeStart, sched.TimeEnd, sched.ID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedule conflicts")
		}
		if len(overlapping) > 0 {
			return appErrors.Clone(appErrors.ErrConflict, check.message)
		}
	}
	return nil
}

// lockResources serializes this commit against concurrent commits touching
// the same room, instructor or section on the same day.
func (s *ScheduleService) lockResources(ctx context.Context, exec sqlx.ExtContext, sched *models.Schedule) error {
	locks := []struct {
		dim models.ConflictDimension
		id  int64
	}{
		{models.DimensionRoom, sched.RoomID},
		{models.DimensionInstructor, sched.InstructorID},
		{models.DimensionSection, sched.SectionID},
	}
	for _, l := range locks {
		if err := s.repo.LockResourceDay(ctx, exec, l.dim, l.id, sched.Day); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire schedule lock")
		}
	}
	return nil
}

// CommitWithTx enforces invariants and inserts the schedule inside the
// caller's transaction. The advisory locks are held until that transaction
// ends, so the conflict checks and the insert observe a consistent store.
func (s *ScheduleService) CommitWithTx(ctx context.Context, tx *sqlx.Tx, sched *models.Schedule) error {
	if tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction required for schedule commit")
	}
	if err := s.lockResources(ctx, tx, sched); err != nil {
		return err
	}
	if err := s.enforce(ctx, tx, sched); err != nil {
		return err
	}
	if err := s.repo.Insert(ctx, tx, sched); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to insert schedule")
	}
	if s.metrics != nil {
		s.metrics.RecordScheduleCommitted()
	}
	return nil
}

// Create validates a manual assignment and commits it in its own
// transaction.
func (s *ScheduleService) Create(ctx context.Context, req dto.ScheduleRequest) (*models.Schedule, error) {
	sched, err := s.buildFromRequest(ctx, req, 0)
	if err != nil {
		return nil, err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.CommitWithTx(ctx, tx, sched); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule")
	}

	s.invalidateTimetables(ctx, sched.SectionID)
	return sched, nil
}

// UpdateByID re-validates and persists a modified schedule. The record's own
// id is excluded from conflict checks.
func (s *ScheduleService) UpdateByID(ctx context.Context, id int64, req dto.ScheduleRequest) (*models.Schedule, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}

	sched, err := s.buildFromRequest(ctx, req, existing.ID)
	if err != nil {
		return nil, err
	}
	sched.CreatedAt = existing.CreatedAt

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.lockResources(ctx, tx, sched); err != nil {
		return nil, err
	}
	if err = s.enforce(ctx, tx, sched); err != nil {
		return nil, err
	}
	if err = s.repo.Update(ctx, tx, sched); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule update")
	}

	s.invalidateTimetables(ctx, existing.SectionID, sched.SectionID)
	return sched, nil
}

// Get loads one schedule.
func (s *ScheduleService) Get(ctx context.Context, id int64) (*models.Schedule, error) {
	sched, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return sched, nil
}

// List returns filtered schedules plus pagination metadata.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, *models.Pagination, error) {
	schedules, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	pagination := &models.Pagination{
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: (total + size - 1) / size,
	}
	return schedules, pagination, nil
}

// Delete removes one schedule record.
func (s *ScheduleService) Delete(ctx context.Context, id int64) error {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule")
	}
	s.invalidateTimetables(ctx, existing.SectionID)
	return nil
}

// DeleteBySubject removes every schedule derived from a subject.
func (s *ScheduleService) DeleteBySubject(ctx context.Context, subjectID int64) (int64, error) {
	removed, err := s.repo.DeleteBySubject(ctx, subjectID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedules for subject")
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, "timetable:*")
	}
	return removed, nil
}

func (s *ScheduleService) buildFromRequest(ctx context.Context, req dto.ScheduleRequest, id int64) (*models.Schedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}

	day, ok := models.ParseDay(req.Day)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day %q", req.Day))
	}
	start, err := models.ParseTimeOfDay(req.TimeStart)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid start time")
	}
	end, err := models.ParseTimeOfDay(req.TimeEnd)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid end time")
	}

	if _, err := s.sections.FindByID(ctx, req.SectionID); err != nil {
		return nil, notFoundOrInternal(err, "section not found")
	}
	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		return nil, notFoundOrInternal(err, "subject not found")
	}
	if _, err := s.instructors.FindByID(ctx, req.InstructorID); err != nil {
		return nil, notFoundOrInternal(err, "instructor not found")
	}
	if _, err := s.rooms.FindByID(ctx, req.RoomID); err != nil {
		return nil, notFoundOrInternal(err, "room not found")
	}

	meetingType := models.MeetingType(req.MeetingType)
	if meetingType == "" {
		meetingType = subject.MeetingType
	}

	return &models.Schedule{
		ID:           id,
		SectionID:    req.SectionID,
		SubjectID:    req.SubjectID,
		InstructorID: req.InstructorID,
		RoomID:       req.RoomID,
		Day:          day,
		TimeStart:    start,
		TimeEnd:      end,
		MeetingType:  meetingType,
	}, nil
}

func (s *ScheduleService) invalidateTimetables(ctx context.Context, sectionIDs ...int64) {
	if s.cache == nil {
		return
	}
	seen := make(map[int64]bool, len(sectionIDs))
	for _, id := range sectionIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		s.cache.Invalidate(ctx, fmt.Sprintf("timetable:section:%d", id))
	}
}

func notFoundOrInternal(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reference")
}
