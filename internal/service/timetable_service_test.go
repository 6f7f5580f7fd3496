package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedwise/timetable-api/internal/dto"
	"github.com/schedwise/timetable-api/internal/models"
	appErrors "github.com/schedwise/timetable-api/pkg/errors"
)

type stubCurricula struct {
	curricula map[int64]models.Curriculum
	subjects  map[int64][]models.CurriculumSubject
}

func (s *stubCurricula) FindByID(ctx context.Context, id int64) (*models.Curriculum, error) {
	if c, ok := s.curricula[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubCurricula) ListActive(ctx context.Context) ([]models.Curriculum, error) {
	var active []models.Curriculum
	for _, c := range s.curricula {
		if c.IsActive {
			active = append(active, c)
		}
	}
	return active, nil
}

func (s *stubCurricula) ListSubjects(ctx context.Context, curriculumID int64) ([]models.CurriculumSubject, error) {
	return s.subjects[curriculumID], nil
}

type stubSections struct {
	byCourse map[int64][]models.Section
}

func (s *stubSections) ListByCourse(ctx context.Context, courseID int64) ([]models.Section, error) {
	return s.byCourse[courseID], nil
}

type stubSubjects struct {
	subjects map[int64]models.Subject
}

func (s *stubSubjects) FindByIDs(ctx context.Context, ids []int64) (map[int64]models.Subject, error) {
	found := make(map[int64]models.Subject, len(ids))
	for _, id := range ids {
		if subj, ok := s.subjects[id]; ok {
			found[id] = subj
		}
	}
	return found, nil
}

type stubInstructors struct {
	all          []models.Instructor
	qualified    map[int64][]models.Instructor
	availability map[int64][]models.AvailabilityWindow
}

func (s *stubInstructors) ListAll(ctx context.Context) ([]models.Instructor, error) {
	return s.all, nil
}

func (s *stubInstructors) ListQualified(ctx context.Context, subjectID int64) ([]models.Instructor, error) {
	return s.qualified[subjectID], nil
}

func (s *stubInstructors) ListAvailability(ctx context.Context, instructorID int64) ([]models.AvailabilityWindow, error) {
	return s.availability[instructorID], nil
}

type stubRooms struct {
	byType       map[models.MeetingType][]models.Room
	availability map[int64][]models.AvailabilityWindow
}

func (s *stubRooms) ListByType(ctx context.Context, roomType models.MeetingType) ([]models.Room, error) {
	return s.byType[roomType], nil
}

func (s *stubRooms) ListAvailability(ctx context.Context, roomID int64) ([]models.AvailabilityWindow, error) {
	return s.availability[roomID], nil
}

// memoryBoard answers conflict probes from the schedules it has accepted,
// acting as both the planner's conflict source and its committer.
type memoryBoard struct {
	committed  []models.Schedule
	rejectNext int
	nextID     int64
}

func (b *memoryBoard) FindOverlapping(ctx context.Context, exec sqlx.ExtContext, dim models.ConflictDimension, resourceID int64, day models.Day, start, end models.TimeOfDay, excludeID int64) ([]models.Schedule, error) {
	var hits []models.Schedule
	for _, s := range b.committed {
		if s.ID == excludeID || !s.OverlapsInterval(day, start, end) {
			continue
		}
		switch dim {
		case models.DimensionSection:
			if s.SectionID == resourceID {
				hits = append(hits, s)
			}
		case models.DimensionInstructor:
			if s.InstructorID == resourceID {
				hits = append(hits, s)
			}
		case models.DimensionRoom:
			if s.RoomID == resourceID {
				hits = append(hits, s)
			}
		}
	}
	return hits, nil
}

func (b *memoryBoard) CommitWithTx(ctx context.Context, tx *sqlx.Tx, sched *models.Schedule) error {
	if b.rejectNext > 0 {
		b.rejectNext--
		return appErrors.Clone(appErrors.ErrConflict, "This room is already occupied during the selected time.")
	}
	if err := sched.ValidateTimes(); err != nil {
		return err
	}
	b.nextID++
	sched.ID = b.nextID
	b.committed = append(b.committed, *sched)
	return nil
}

type plannerFixture struct {
	curricula   *stubCurricula
	sections    *stubSections
	subjects    *stubSubjects
	instructors *stubInstructors
	rooms       *stubRooms
	board       *memoryBoard
	db          *sqlx.DB
	mock        sqlmock.Sqlmock
}

func newPlannerFixture(t *testing.T, requiredHours int) *plannerFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &plannerFixture{
		curricula: &stubCurricula{
			curricula: map[int64]models.Curriculum{
				1: {ID: 1, Name: "BSCS 1st Year", CourseID: 10, IsActive: true},
			},
			subjects: map[int64][]models.CurriculumSubject{
				1: {{ID: 1, CurriculumID: 1, SubjectID: 100, IsRequired: true, Order: 1}},
			},
		},
		sections: &stubSections{
			byCourse: map[int64][]models.Section{
				10: {{ID: 5, CourseID: 10, SectionName: "CS-1A", YearLevel: 1, Semester: 1, Enrollment: 25}},
			},
		},
		subjects: &stubSubjects{
			subjects: map[int64]models.Subject{
				100: {ID: 100, SubjectCode: "CS101", SubjectName: "Intro to Computing", RequiredHoursPerWeek: requiredHours, MeetingType: models.MeetingLecture},
			},
		},
		instructors: &stubInstructors{
			all: []models.Instructor{{ID: 7, FullName: "Alice Reyes"}},
			qualified: map[int64][]models.Instructor{
				100: {{ID: 7, FullName: "Alice Reyes"}},
			},
			availability: map[int64][]models.AvailabilityWindow{},
		},
		rooms: &stubRooms{
			byType: map[models.MeetingType][]models.Room{
				models.MeetingLecture: {{ID: 3, RoomName: "R-301", Capacity: 40, RoomType: "LECTURE"}},
			},
			availability: map[int64][]models.AvailabilityWindow{},
		},
		board: &memoryBoard{},
		db:    sqlx.NewDb(db, "sqlmock"),
		mock:  mock,
	}
}

func (f *plannerFixture) service() *TimetableService {
	return NewTimetableService(
		f.curricula, f.sections, f.subjects, f.instructors, f.rooms,
		f.board, f.board, f.db,
		TimetablePolicy{AllowUnqualifiedFallback: true},
		nil, nil, nil,
	)
}

func (f *plannerFixture) expectRun() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func TestGenerateFillsRequiredHoursInGridOrder(t *testing.T) {
	f := newPlannerFixture(t, 3)
	f.expectRun()
	svc := f.service()

	result, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 1, result.ProcessedSubjects)
	assert.Empty(t, result.Failed)

	require.Len(t, f.board.committed, 3)
	for i, sched := range f.board.committed {
		assert.Equal(t, models.DayMon, sched.Day, "greedy fill stays on Monday while slots remain")
		assert.Equal(t, models.MinutesOfDay(8+i, 0), sched.TimeStart)
		assert.Equal(t, models.MinutesOfDay(9+i, 0), sched.TimeEnd)
		assert.Equal(t, int64(7), sched.InstructorID)
		assert.Equal(t, int64(3), sched.RoomID)
		assert.Equal(t, models.MeetingLecture, sched.MeetingType)
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGenerateReportsShortfallWhenNoRoomFits(t *testing.T) {
	f := newPlannerFixture(t, 3)
	f.rooms.byType[models.MeetingLecture] = []models.Room{{ID: 3, RoomName: "R-301", Capacity: 20}}
	f.sections.byCourse[10][0].Enrollment = 30
	f.expectRun()
	svc := f.service()

	result, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.NoError(t, err, "infeasibility is a summary outcome, not an error")

	assert.Equal(t, 0, result.Created)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "CS-1A", result.Failed[0].Section)
	assert.Equal(t, "CS101", result.Failed[0].Subject)
	assert.Equal(t, "Only assigned 0/3 hour(s)", result.Failed[0].Reason)
	assert.Empty(t, f.board.committed)
}

func TestGenerateHonorsInstructorWindows(t *testing.T) {
	f := newPlannerFixture(t, 1)
	f.instructors.availability[7] = []models.AvailabilityWindow{
		{OwnerID: 7, Day: models.DayMon, StartTime: models.MinutesOfDay(13, 0), EndTime: models.MinutesOfDay(17, 0)},
	}
	f.expectRun()
	svc := f.service()

	result, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	require.Len(t, f.board.committed, 1)
	assert.Equal(t, models.DayMon, f.board.committed[0].Day)
	assert.Equal(t, models.MinutesOfDay(13, 0), f.board.committed[0].TimeStart, "morning slots are skipped until the window opens")
}

func TestGenerateSpillsToNextDayWhenSectionIsBooked(t *testing.T) {
	f := newPlannerFixture(t, 2)
	// Monday is fully booked for the section by an earlier run.
	for hour := 8; hour < 17; hour++ {
		f.board.committed = append(f.board.committed, models.Schedule{
			ID: int64(1000 + hour), SectionID: 5, InstructorID: 99, RoomID: 99,
			Day: models.DayMon, TimeStart: models.MinutesOfDay(hour, 0), TimeEnd: models.MinutesOfDay(hour+1, 0),
		})
	}
	f.expectRun()
	svc := f.service()

	result, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)

	placed := f.board.committed[len(f.board.committed)-2:]
	assert.Equal(t, models.DayTue, placed[0].Day)
	assert.Equal(t, models.MinutesOfDay(8, 0), placed[0].TimeStart)
	assert.Equal(t, models.DayTue, placed[1].Day)
	assert.Equal(t, models.MinutesOfDay(9, 0), placed[1].TimeStart)
}

func TestGenerateQualificationFallback(t *testing.T) {
	t.Run("fallback enabled uses full roster", func(t *testing.T) {
		f := newPlannerFixture(t, 1)
		f.instructors.qualified = map[int64][]models.Instructor{}
		f.expectRun()
		svc := f.service()

		result, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Created)
		require.Len(t, f.board.committed, 1)
		assert.Equal(t, int64(7), f.board.committed[0].InstructorID)
	})

	t.Run("fallback disabled leaves subject unassigned", func(t *testing.T) {
		f := newPlannerFixture(t, 1)
		f.instructors.qualified = map[int64][]models.Instructor{}
		f.expectRun()
		svc := NewTimetableService(
			f.curricula, f.sections, f.subjects, f.instructors, f.rooms,
			f.board, f.board, f.db,
			TimetablePolicy{AllowUnqualifiedFallback: false},
			nil, nil, nil,
		)

		result, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
		require.NoError(t, err)
		assert.Equal(t, 0, result.Created)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, "Only assigned 0/1 hour(s)", result.Failed[0].Reason)
	})
}

func TestGenerateRecordsCommitRejectionAndContinues(t *testing.T) {
	f := newPlannerFixture(t, 1)
	f.board.rejectNext = 1
	f.expectRun()
	svc := f.service()

	result, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "MON", result.Failed[0].Day)
	assert.Equal(t, "08:00", result.Failed[0].Start)
	assert.Equal(t, "09:00", result.Failed[0].End)
	assert.Equal(t, "This room is already occupied during the selected time.", result.Failed[0].Reason)

	require.Len(t, f.board.committed, 1)
	assert.Equal(t, models.MinutesOfDay(9, 0), f.board.committed[0].TimeStart, "planner moved to the next slot")
}

func TestGenerateIsDeterministic(t *testing.T) {
	run := func() []models.Schedule {
		f := newPlannerFixture(t, 3)
		f.instructors.all = append(f.instructors.all, models.Instructor{ID: 8, FullName: "Ben Cruz"})
		f.rooms.byType[models.MeetingLecture] = append(f.rooms.byType[models.MeetingLecture], models.Room{ID: 4, RoomName: "R-302", Capacity: 45})
		f.expectRun()
		_, err := f.service().Generate(context.Background(), dto.GenerateTimetableRequest{})
		require.NoError(t, err)
		return f.board.committed
	}

	first := run()
	second := run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Day, second[i].Day)
		assert.Equal(t, first[i].TimeStart, second[i].TimeStart)
		assert.Equal(t, first[i].InstructorID, second[i].InstructorID)
		assert.Equal(t, first[i].RoomID, second[i].RoomID)
	}
}

func TestGenerateUnknownCurriculum(t *testing.T) {
	f := newPlannerFixture(t, 1)
	svc := f.service()

	missing := int64(42)
	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{CurriculumID: &missing})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "curriculum not found", appErr.Message)
}

func TestGenerateLaboratorySubjectsUseLabRooms(t *testing.T) {
	f := newPlannerFixture(t, 1)
	f.subjects.subjects[100] = models.Subject{
		ID: 100, SubjectCode: "CS101L", SubjectName: "Computing Lab",
		RequiredHoursPerWeek: 1, MeetingType: models.MeetingLaboratory,
	}
	f.rooms.byType[models.MeetingLaboratory] = []models.Room{{ID: 9, RoomName: "LAB-1", Capacity: 30}}
	f.expectRun()
	svc := f.service()

	result, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	require.Len(t, f.board.committed, 1)
	assert.Equal(t, int64(9), f.board.committed[0].RoomID)
	assert.Equal(t, models.MeetingLaboratory, f.board.committed[0].MeetingType)
}

func TestRunStoreLifecycle(t *testing.T) {
	store := newRunStore(50 * time.Millisecond)
	run := dto.TimetableRun{RunID: "run-1", Status: dto.RunStatusPending, RequestedAt: time.Now().UTC()}
	store.Save(run)

	got, ok := store.Get("run-1")
	require.True(t, ok)
	assert.Equal(t, dto.RunStatusPending, got.Status)

	store.SetStatus("run-1", dto.RunStatusRunning)
	got, _ = store.Get("run-1")
	assert.Equal(t, dto.RunStatusRunning, got.Status)

	finished := time.Now().UTC()
	store.Finish("run-1", dto.RunStatusCompleted, &dto.GenerateTimetableResult{Created: 4}, "", finished)
	got, _ = store.Get("run-1")
	assert.Equal(t, dto.RunStatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, 4, got.Result.Created)

	// Entries disappear once the TTL lapses.
	expired := dto.TimetableRun{RunID: "run-2", RequestedAt: time.Now().Add(-time.Minute)}
	store.Save(expired)
	_, ok = store.Get("run-2")
	assert.False(t, ok)
}

func TestGetRunUnknown(t *testing.T) {
	f := newPlannerFixture(t, 1)
	svc := f.service()

	_, err := svc.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGenerateAsyncCompletesRun(t *testing.T) {
	f := newPlannerFixture(t, 1)
	f.expectRun()
	svc := f.service()

	ctx := context.Background()
	svc.StartWorkers(ctx)
	defer svc.StopWorkers()

	runID, err := svc.GenerateAsync(ctx, dto.GenerateTimetableRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	deadline := time.Now().Add(2 * time.Second)
	for {
		run, err := svc.GetRun(ctx, runID)
		require.NoError(t, err)
		if run.Status == dto.RunStatusCompleted {
			require.NotNil(t, run.Result)
			assert.Equal(t, 1, run.Result.Created)
			require.NotNil(t, run.FinishedAt)
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("run %s never completed, status %s", runID, run.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestIsPlacementRejection(t *testing.T) {
	assert.True(t, isPlacementRejection(appErrors.Clone(appErrors.ErrConflict, "busy")))
	assert.True(t, isPlacementRejection(appErrors.Clone(appErrors.ErrValidation, "bad times")))
	assert.False(t, isPlacementRejection(appErrors.Clone(appErrors.ErrInternal, "boom")))
	assert.False(t, isPlacementRejection(fmt.Errorf("plain failure")))
}
