package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedwise/timetable-api/internal/dto"
	"github.com/schedwise/timetable-api/internal/models"
	appErrors "github.com/schedwise/timetable-api/pkg/errors"
)

type fakeSubjectReader struct {
	subjects map[int64]models.Subject
}

func (f *fakeSubjectReader) FindByID(ctx context.Context, id int64) (*models.Subject, error) {
	if s, ok := f.subjects[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

// fakeScheduleStore is an in-memory scheduleStore that records the advisory
// lock order.
type fakeScheduleStore struct {
	schedules map[int64]models.Schedule
	nextID    int64
	locks     []string
	deleted   []int64
}

func newFakeScheduleStore() *fakeScheduleStore {
	return &fakeScheduleStore{schedules: make(map[int64]models.Schedule)}
}

func (f *fakeScheduleStore) FindOverlapping(ctx context.Context, exec sqlx.ExtContext, dim models.ConflictDimension, resourceID int64, day models.Day, start, end models.TimeOfDay, excludeID int64) ([]models.Schedule, error) {
	var hits []models.Schedule
	for _, s := range f.schedules {
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

func (f *fakeScheduleStore) LockResourceDay(ctx context.Context, exec sqlx.ExtContext, dim models.ConflictDimension, resourceID int64, day models.Day) error {
	f.locks = append(f.locks, fmt.Sprintf("%s:%d:%s", dim, resourceID, day))
	return nil
}

func (f *fakeScheduleStore) Insert(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	f.nextID++
	schedule.ID = f.nextID
	f.schedules[schedule.ID] = *schedule
	return nil
}

func (f *fakeScheduleStore) Update(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error {
	if _, ok := f.schedules[schedule.ID]; !ok {
		return sql.ErrNoRows
	}
	f.schedules[schedule.ID] = *schedule
	return nil
}

func (f *fakeScheduleStore) FindByID(ctx context.Context, id int64) (*models.Schedule, error) {
	if s, ok := f.schedules[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeScheduleStore) List(ctx context.Context, filter models.ScheduleFilter) ([]models.Schedule, int, error) {
	var all []models.Schedule
	for _, s := range f.schedules {
		all = append(all, s)
	}
	return all, len(all), nil
}

func (f *fakeScheduleStore) Delete(ctx context.Context, id int64) error {
	delete(f.schedules, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeScheduleStore) DeleteBySubject(ctx context.Context, subjectID int64) (int64, error) {
	var removed int64
	for id, s := range f.schedules {
		if s.SubjectID == subjectID {
			delete(f.schedules, id)
			removed++
		}
	}
	return removed, nil
}

type recordingCache struct {
	patterns []string
}

func (r *recordingCache) Invalidate(ctx context.Context, pattern string) {
	r.patterns = append(r.patterns, pattern)
}

type scheduleFixture struct {
	store *fakeScheduleStore
	cache *recordingCache
	svc   *ScheduleService
	mock  sqlmock.Sqlmock
}

func newScheduleFixture(t *testing.T) *scheduleFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := newFakeScheduleStore()
	cache := &recordingCache{}
	sections := &fakeSectionReader{sections: map[int64]models.Section{5: {ID: 5, SectionName: "CS-1A"}}}
	subjects := &fakeSubjectReader{subjects: map[int64]models.Subject{100: {ID: 100, SubjectCode: "CS101", MeetingType: models.MeetingLecture}}}
	instructors := &fakeInstructorReader{instructors: map[int64]models.Instructor{7: {ID: 7}}, windows: map[int64][]models.AvailabilityWindow{}}
	rooms := &fakeRoomReader{rooms: map[int64]models.Room{3: {ID: 3}}, windows: map[int64][]models.AvailabilityWindow{}}

	svc := NewScheduleService(store, sections, subjects, instructors, rooms, sqlx.NewDb(db, "sqlmock"), cache, nil, nil, nil)
	return &scheduleFixture{store: store, cache: cache, svc: svc, mock: mock}
}

func scheduleRequest() dto.ScheduleRequest {
	return dto.ScheduleRequest{
		SectionID:    5,
		SubjectID:    100,
		InstructorID: 7,
		RoomID:       3,
		Day:          "MON",
		TimeStart:    "09:00",
		TimeEnd:      "10:00",
	}
}

func TestScheduleCreate(t *testing.T) {
	f := newScheduleFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	sched, err := f.svc.Create(context.Background(), scheduleRequest())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sched.ID)
	assert.Equal(t, models.DayMon, sched.Day)
	assert.Equal(t, models.MinutesOfDay(9, 0), sched.TimeStart)
	assert.Equal(t, models.MeetingLecture, sched.MeetingType, "meeting type defaults from the subject")

	// Room, instructor, then section locks, each scoped to the day.
	assert.Equal(t, []string{"room:3:MON", "instructor:7:MON", "section:5:MON"}, f.store.locks)
	assert.Equal(t, []string{"timetable:section:5"}, f.cache.patterns)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleCreateRejectsConflicts(t *testing.T) {
	cases := []struct {
		name     string
		existing models.Schedule
		message  string
	}{
		{
			"room occupied",
			models.Schedule{ID: 50, SectionID: 99, InstructorID: 99, RoomID: 3, Day: models.DayMon, TimeStart: models.MinutesOfDay(9, 30), TimeEnd: models.MinutesOfDay(10, 30)},
			"This room is already occupied during the selected time.",
		},
		{
			"instructor busy",
			models.Schedule{ID: 51, SectionID: 99, InstructorID: 7, RoomID: 99, Day: models.DayMon, TimeStart: models.MinutesOfDay(8, 30), TimeEnd: models.MinutesOfDay(9, 30)},
			"This instructor is already teaching during the selected time.",
		},
		{
			"section busy",
			models.Schedule{ID: 52, SectionID: 5, InstructorID: 99, RoomID: 99, Day: models.DayMon, TimeStart: models.MinutesOfDay(9, 0), TimeEnd: models.MinutesOfDay(10, 0)},
			"This section already has a class during the selected time.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newScheduleFixture(t)
			f.store.schedules[tc.existing.ID] = tc.existing
			f.mock.ExpectBegin()
			f.mock.ExpectRollback()

			_, err := f.svc.Create(context.Background(), scheduleRequest())
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
			assert.Equal(t, tc.message, appErr.Message)
			assert.Empty(t, f.cache.patterns, "no invalidation on rejection")
			assert.NoError(t, f.mock.ExpectationsWereMet())
		})
	}
}

func TestScheduleCreateRoomCheckedFirst(t *testing.T) {
	f := newScheduleFixture(t)
	// A single booking that collides on every dimension at once.
	f.store.schedules[60] = models.Schedule{
		ID: 60, SectionID: 5, InstructorID: 7, RoomID: 3,
		Day: models.DayMon, TimeStart: models.MinutesOfDay(9, 0), TimeEnd: models.MinutesOfDay(10, 0),
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.svc.Create(context.Background(), scheduleRequest())
	require.Error(t, err)
	assert.Equal(t, "This room is already occupied during the selected time.", appErrors.FromError(err).Message)
}

func TestScheduleCreateInvalidDuration(t *testing.T) {
	f := newScheduleFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	req := scheduleRequest()
	req.TimeEnd = "09:15"
	_, err := f.svc.Create(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "Class duration must be at least 30 minutes.", appErr.Message)
}

func TestScheduleCreateUnknownReferences(t *testing.T) {
	f := newScheduleFixture(t)

	req := scheduleRequest()
	req.RoomID = 999
	_, err := f.svc.Create(context.Background(), req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "room not found", appErr.Message)

	req = scheduleRequest()
	req.Day = "SOMEDAY"
	_, err = f.svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestScheduleUpdateExcludesOwnRecord(t *testing.T) {
	f := newScheduleFixture(t)
	f.store.schedules[1] = models.Schedule{
		ID: 1, SectionID: 5, SubjectID: 100, InstructorID: 7, RoomID: 3,
		Day: models.DayMon, TimeStart: models.MinutesOfDay(9, 0), TimeEnd: models.MinutesOfDay(10, 0),
	}
	f.store.nextID = 1
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	// Stretching the record over its own current slot must not self-conflict.
	req := scheduleRequest()
	req.TimeEnd = "11:00"
	updated, err := f.svc.UpdateByID(context.Background(), 1, req)
	require.NoError(t, err)
	assert.Equal(t, models.MinutesOfDay(11, 0), updated.TimeEnd)
	assert.Equal(t, []string{"timetable:section:5"}, f.cache.patterns)
}

func TestScheduleUpdateUnknownID(t *testing.T) {
	f := newScheduleFixture(t)

	_, err := f.svc.UpdateByID(context.Background(), 404, scheduleRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "schedule not found", appErr.Message)
}

func TestCommitWithTxRequiresTransaction(t *testing.T) {
	f := newScheduleFixture(t)

	err := f.svc.CommitWithTx(context.Background(), nil, &models.Schedule{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestScheduleDeleteInvalidatesTimetable(t *testing.T) {
	f := newScheduleFixture(t)
	f.store.schedules[9] = models.Schedule{ID: 9, SectionID: 5}

	require.NoError(t, f.svc.Delete(context.Background(), 9))
	assert.Equal(t, []int64{9}, f.store.deleted)
	assert.Equal(t, []string{"timetable:section:5"}, f.cache.patterns)

	err := f.svc.Delete(context.Background(), 9)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestScheduleListPagination(t *testing.T) {
	f := newScheduleFixture(t)
	for i := int64(1); i <= 25; i++ {
		f.store.schedules[i] = models.Schedule{ID: i, SectionID: 5}
	}

	_, pagination, err := f.svc.List(context.Background(), models.ScheduleFilter{Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, 10, pagination.PageSize)
	assert.Equal(t, 25, pagination.Total)
	assert.Equal(t, 3, pagination.TotalPages)
}
