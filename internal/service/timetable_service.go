package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/schedwise/timetable-api/internal/dto"
	"github.com/schedwise/timetable-api/internal/models"
	appErrors "github.com/schedwise/timetable-api/pkg/errors"
	"github.com/schedwise/timetable-api/pkg/jobs"
)

type curriculumSource interface {
	FindByID(ctx context.Context, id int64) (*models.Curriculum, error)
	ListActive(ctx context.Context) ([]models.Curriculum, error)
	ListSubjects(ctx context.Context, curriculumID int64) ([]models.CurriculumSubject, error)
}

type sectionSource interface {
	ListByCourse(ctx context.Context, courseID int64) ([]models.Section, error)
}

type subjectSource interface {
	FindByIDs(ctx context.Context, ids []int64) (map[int64]models.Subject, error)
}

type instructorSource interface {
	ListAll(ctx context.Context) ([]models.Instructor, error)
	ListQualified(ctx context.Context, subjectID int64) ([]models.Instructor, error)
	ListAvailability(ctx context.Context, instructorID int64) ([]models.AvailabilityWindow, error)
}

type roomSource interface {
	ListByType(ctx context.Context, roomType models.MeetingType) ([]models.Room, error)
	ListAvailability(ctx context.Context, roomID int64) ([]models.AvailabilityWindow, error)
}

type conflictSource interface {
	FindOverlapping(ctx context.Context, exec sqlx.ExtContext, dim models.ConflictDimension, resourceID int64, day models.Day, start, end models.TimeOfDay, excludeID int64) ([]models.Schedule, error)
}

type scheduleCommitter interface {
	CommitWithTx(ctx context.Context, tx *sqlx.Tx, sched *models.Schedule) error
}

// TimetablePolicy governs planner behaviour.
type TimetablePolicy struct {
	// AllowUnqualifiedFallback opens a subject with no explicitly qualified
	// instructors to the entire roster. Kept as an explicit flag so the
	// behaviour is testable and can be turned off.
	AllowUnqualifiedFallback bool
	AsyncWorkers             int
	RunTTL                   time.Duration
}

// TimetableService is the greedy batch planner. It walks curricula ->
// subjects -> sections -> slots and commits the first feasible placement for
// each required hour, with no backtracking.
type TimetableService struct {
	curricula   curriculumSource
	sections    sectionSource
	subjects    subjectSource
	instructors instructorSource
	rooms       roomSource
	conflicts   conflictSource
	committer   scheduleCommitter
	tx          txProvider
	policy      TimetablePolicy
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger

	runs  *runStore
	queue *jobs.Queue
}

// NewTimetableService wires the batch planner.
func NewTimetableService(
	curricula curriculumSource,
	sections sectionSource,
	subjects subjectSource,
	instructors instructorSource,
	rooms roomSource,
	conflicts conflictSource,
	committer scheduleCommitter,
	tx txProvider,
	policy TimetablePolicy,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.AsyncWorkers <= 0 {
		policy.AsyncWorkers = 1
	}
	if policy.RunTTL <= 0 {
		policy.RunTTL = time.Hour
	}
	svc := &TimetableService{
		curricula:   curricula,
		sections:    sections,
		subjects:    subjects,
		instructors: instructors,
		rooms:       rooms,
		conflicts:   conflicts,
		committer:   committer,
		tx:          tx,
		policy:      policy,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		runs:        newRunStore(policy.RunTTL),
	}
	svc.queue = jobs.NewQueue("timetable-runs", svc.handleRunJob, jobs.QueueConfig{
		Workers:    policy.AsyncWorkers,
		MaxRetries: 1,
		Logger:     logger,
	})
	return svc
}

// StartWorkers begins consuming queued asynchronous planner runs.
func (s *TimetableService) StartWorkers(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopWorkers drains the async run queue.
func (s *TimetableService) StopWorkers() {
	s.queue.Stop()
}

// Generate runs the whole batch planner synchronously. The complete run
// executes in one transaction: per-slot enforcer rejections are recorded and
// skipped, but an unexpected failure rolls back everything created during
// the call. Partial infeasibility is never an error; the summary always
// comes back.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}

	curricula, err := s.resolveCurricula(ctx, req.CurriculumID)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result := &dto.GenerateTimetableResult{Failed: []dto.PlacementFailure{}}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin planner transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	run := newPlannerRun(s, tx)
	for _, curriculum := range curricula {
		if err = run.planCurriculum(ctx, curriculum, result); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit planner transaction")
	}

	if s.metrics != nil {
		s.metrics.ObservePlannerRun(time.Since(started), result.Created)
	}
	s.logger.Info("timetable generation finished",
		zap.Int("created", result.Created),
		zap.Int("processed_subjects", result.ProcessedSubjects),
		zap.Int("failures", len(result.Failed)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

func (s *TimetableService) resolveCurricula(ctx context.Context, curriculumID *int64) ([]models.Curriculum, error) {
	if curriculumID != nil {
		curriculum, err := s.curricula.FindByID(ctx, *curriculumID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "curriculum not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load curriculum")
		}
		return []models.Curriculum{*curriculum}, nil
	}
	curricula, err := s.curricula.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active curricula")
	}
	return curricula, nil
}

// qualifiedPool resolves the instructor pool for a subject: explicitly
// qualified instructors, or the whole roster when none are linked and the
// fallback policy allows it.
func (s *TimetableService) qualifiedPool(ctx context.Context, subjectID int64) ([]models.Instructor, error) {
	pool, err := s.instructors.ListQualified(ctx, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load qualified instructors")
	}
	if len(pool) > 0 || !s.policy.AllowUnqualifiedFallback {
		return pool, nil
	}
	pool, err = s.instructors.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor roster")
	}
	return pool, nil
}

// plannerRun holds per-invocation state: the transaction every check and
// commit runs against, plus lazy caches for availability windows and room
// lists so the slot loop does not requery them.
type plannerRun struct {
	svc  *TimetableService
	tx   *sqlx.Tx
	grid []slotInterval

	instructorWindows map[int64][]models.AvailabilityWindow
	roomWindows       map[int64][]models.AvailabilityWindow
	roomsByType       map[models.MeetingType][]models.Room
}

func newPlannerRun(svc *TimetableService, tx *sqlx.Tx) *plannerRun {
	return &plannerRun{
		svc:               svc,
		tx:                tx,
		grid:              plannerGrid(),
		instructorWindows: make(map[int64][]models.AvailabilityWindow),
		roomWindows:       make(map[int64][]models.AvailabilityWindow),
		roomsByType:       make(map[models.MeetingType][]models.Room),
	}
}

func (r *plannerRun) planCurriculum(ctx context.Context, curriculum models.Curriculum, result *dto.GenerateTimetableResult) error {
	svc := r.svc

	sections, err := svc.sections.ListByCourse(ctx, curriculum.CourseID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list course sections")
	}

	csList, err := svc.curricula.ListSubjects(ctx, curriculum.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list curriculum subjects")
	}

	subjectIDs := make([]int64, 0, len(csList))
	for _, cs := range csList {
		subjectIDs = append(subjectIDs, cs.SubjectID)
	}
	subjects, err := svc.subjects.FindByIDs(ctx, subjectIDs)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}

	for _, cs := range csList {
		subject, ok := subjects[cs.SubjectID]
		if !ok {
			svc.logger.Warn("curriculum subject references missing subject",
				zap.Int64("curriculum_id", curriculum.ID),
				zap.Int64("subject_id", cs.SubjectID),
			)
			continue
		}
		result.ProcessedSubjects++

		pool, err := svc.qualifiedPool(ctx, subject.ID)
		if err != nil {
			return err
		}

		for _, section := range sections {
			if err := r.fillSection(ctx, section, subject, pool, result); err != nil {
				return err
			}
		}
	}
	return nil
}

// fillSection assigns the subject's required weekly hours for one section as
// one-hour blocks, walking the fixed day/slot grid in order and taking the
// first feasible instructor and room for each block.
func (r *plannerRun) fillSection(ctx context.Context, section models.Section, subject models.Subject, pool []models.Instructor, result *dto.GenerateTimetableResult) error {
	svc := r.svc

	hoursNeeded := subject.RequiredHoursPerWeek
	if hoursNeeded < 1 {
		hoursNeeded = 1
	}
	hoursAssigned := 0

	for _, day := range models.Weekdays() {
		if hoursAssigned >= hoursNeeded {
			break
		}
		for _, slot := range r.grid {
			if hoursAssigned >= hoursNeeded {
				break
			}

			busy, err := r.hasConflict(ctx, models.DimensionSection, section.ID, day, slot)
			if err != nil {
				return err
			}
			if busy {
				continue
			}

			instructor, err := r.pickInstructor(ctx, pool, day, slot)
			if err != nil {
				return err
			}
			if instructor == nil {
				continue
			}

			room, err := r.pickRoom(ctx, subject.MeetingType, section.Enrollment, day, slot)
			if err != nil {
				return err
			}
			if room == nil {
				continue
			}

			sched := &models.Schedule{
				SectionID:    section.ID,
				SubjectID:    subject.ID,
				InstructorID: instructor.ID,
				RoomID:       room.ID,
				Day:          day,
				TimeStart:    slot.Start,
				TimeEnd:      slot.End,
				MeetingType:  subject.MeetingType,
			}
			if err := svc.committer.CommitWithTx(ctx, r.tx, sched); err != nil {
				if isPlacementRejection(err) {
					result.Failed = append(result.Failed, dto.PlacementFailure{
						Section: section.SectionName,
						Subject: subject.SubjectCode,
						Day:     string(day),
						Start:   slot.Start.String(),
						End:     slot.End.String(),
						Reason:  appErrors.FromError(err).Message,
					})
					if svc.metrics != nil {
						svc.metrics.RecordSlotRejection()
					}
					continue
				}
				return err
			}
			hoursAssigned++
			result.Created++
		}
	}

	if hoursAssigned < hoursNeeded {
		result.Failed = append(result.Failed, dto.PlacementFailure{
			Section: section.SectionName,
			Subject: subject.SubjectCode,
			Reason:  fmt.Sprintf("Only assigned %d/%d hour(s)", hoursAssigned, hoursNeeded),
		})
	}
	return nil
}

func (r *plannerRun) hasConflict(ctx context.Context, dim models.ConflictDimension, resourceID int64, day models.Day, slot slotInterval) (bool, error) {
	overlapping, err := r.svc.conflicts.FindOverlapping(ctx, r.tx, dim, resourceID, day, slot.Start, slot.End, 0)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check planner conflicts")
	}
	return len(overlapping) > 0, nil
}

// pickInstructor returns the first pool member with no conflicting booking
// who is available per their windows, or nil when the slot has nobody.
func (r *plannerRun) pickInstructor(ctx context.Context, pool []models.Instructor, day models.Day, slot slotInterval) (*models.Instructor, error) {
	for i := range pool {
		instructor := &pool[i]

		busy, err := r.hasConflict(ctx, models.DimensionInstructor, instructor.ID, day, slot)
		if err != nil {
			return nil, err
		}
		if busy {
			continue
		}

		windows, err := r.windowsForInstructor(ctx, instructor.ID)
		if err != nil {
			return nil, err
		}
		if !models.WindowsCover(windows, day, slot.Start, slot.End) {
			continue
		}
		return instructor, nil
	}
	return nil, nil
}

// pickRoom returns the first type-matching room, in ascending capacity
// order, that is free, available, and large enough.
func (r *plannerRun) pickRoom(ctx context.Context, meetingType models.MeetingType, enrollment int, day models.Day, slot slotInterval) (*models.Room, error) {
	roomType := models.MeetingLecture
	if meetingType == models.MeetingLaboratory {
		roomType = models.MeetingLaboratory
	}

	rooms, err := r.roomsOfType(ctx, roomType)
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		room := &rooms[i]

		busy, err := r.hasConflict(ctx, models.DimensionRoom, room.ID, day, slot)
		if err != nil {
			return nil, err
		}
		if busy {
			continue
		}

		windows, err := r.windowsForRoom(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		if !models.WindowsCover(windows, day, slot.Start, slot.End) {
			continue
		}

		if room.Capacity > 0 && enrollment > room.Capacity {
			continue
		}
		return room, nil
	}
	return nil, nil
}

func (r *plannerRun) windowsForInstructor(ctx context.Context, instructorID int64) ([]models.AvailabilityWindow, error) {
	if windows, ok := r.instructorWindows[instructorID]; ok {
		return windows, nil
	}
	windows, err := r.svc.instructors.ListAvailability(ctx, instructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor availability")
	}
	r.instructorWindows[instructorID] = windows
	return windows, nil
}

func (r *plannerRun) windowsForRoom(ctx context.Context, roomID int64) ([]models.AvailabilityWindow, error) {
	if windows, ok := r.roomWindows[roomID]; ok {
		return windows, nil
	}
	windows, err := r.svc.rooms.ListAvailability(ctx, roomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room availability")
	}
	r.roomWindows[roomID] = windows
	return windows, nil
}

func (r *plannerRun) roomsOfType(ctx context.Context, roomType models.MeetingType) ([]models.Room, error) {
	if rooms, ok := r.roomsByType[roomType]; ok {
		return rooms, nil
	}
	rooms, err := r.svc.rooms.ListByType(ctx, roomType)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	r.roomsByType[roomType] = rooms
	return rooms, nil
}

// isPlacementRejection reports whether the commit failed on an enforcer
// rule (conflict or invariant) as opposed to an unexpected system error.
func isPlacementRejection(err error) bool {
	var appErr *appErrors.Error
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code == appErrors.ErrConflict.Code || appErr.Code == appErrors.ErrValidation.Code
}

// --- Asynchronous runs ---

// GenerateAsync queues a planner run and returns its run id immediately.
func (s *TimetableService) GenerateAsync(ctx context.Context, req dto.GenerateTimetableRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	run := dto.TimetableRun{
		RunID:       uuid.NewString(),
		Status:      dto.RunStatusPending,
		RequestedAt: time.Now().UTC(),
	}
	s.runs.Save(run)

	if err := s.queue.Enqueue(jobs.Job{ID: run.RunID, Type: "generate_timetable", Payload: req}); err != nil {
		s.runs.Delete(run.RunID)
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue timetable run")
	}
	return run.RunID, nil
}

// GetRun returns the status of an asynchronous planner run.
func (s *TimetableService) GetRun(ctx context.Context, runID string) (*dto.TimetableRun, error) {
	run, ok := s.runs.Get(runID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found or expired")
	}
	return &run, nil
}

func (s *TimetableService) handleRunJob(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.GenerateTimetableRequest)
	if !ok {
		s.logger.Error("unexpected timetable job payload", zap.String("job_id", job.ID))
		return nil
	}

	s.runs.SetStatus(job.ID, dto.RunStatusRunning)
	result, err := s.Generate(ctx, req)
	now := time.Now().UTC()
	if err != nil {
		s.runs.Finish(job.ID, dto.RunStatusFailed, nil, appErrors.FromError(err).Message, now)
		// The run outcome is recorded; retrying could double-book.
		return nil
	}
	s.runs.Finish(job.ID, dto.RunStatusCompleted, result, "", now)
	return nil
}

// runStore keeps recent run outcomes in memory with a TTL.
type runStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]dto.TimetableRun
}

func newRunStore(ttl time.Duration) *runStore {
	return &runStore{ttl: ttl, items: make(map[string]dto.TimetableRun)}
}

func (s *runStore) Save(run dto.TimetableRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[run.RunID] = run
}

func (s *runStore) Get(id string) (dto.TimetableRun, bool) {
	s.mu.RLock()
	run, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return dto.TimetableRun{}, false
	}
	if time.Since(run.RequestedAt) > s.ttl {
		s.Delete(id)
		return dto.TimetableRun{}, false
	}
	return run, true
}

func (s *runStore) SetStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.items[id]; ok {
		run.Status = status
		s.items[id] = run
	}
}

func (s *runStore) Finish(id, status string, result *dto.GenerateTimetableResult, errMsg string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.items[id]; ok {
		run.Status = status
		run.Result = result
		run.Error = errMsg
		run.FinishedAt = &at
		s.items[id] = run
	}
}

func (s *runStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
