package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedwise/timetable-api/internal/dto"
	"github.com/schedwise/timetable-api/internal/models"
	appErrors "github.com/schedwise/timetable-api/pkg/errors"
)

type fakeSectionSchedules struct {
	bySection map[int64][]models.Schedule
	calls     int
}

func (f *fakeSectionSchedules) ListBySection(_ context.Context, sectionID int64) ([]models.Schedule, error) {
	f.calls++
	return f.bySection[sectionID], nil
}

type fakeSubjectBatch struct {
	subjects map[int64]models.Subject
}

func (f *fakeSubjectBatch) FindByIDs(_ context.Context, ids []int64) (map[int64]models.Subject, error) {
	out := make(map[int64]models.Subject, len(ids))
	for _, id := range ids {
		if s, ok := f.subjects[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type fakeTimetableCache struct {
	enabled bool
	entries map[string]*dto.SectionTimetable
	sets    []string
}

func (f *fakeTimetableCache) Enabled() bool { return f.enabled }

func (f *fakeTimetableCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	cached, ok := f.entries[key]
	if !ok {
		return false, nil
	}
	*(dest.(*dto.SectionTimetable)) = *cached
	return true, nil
}

func (f *fakeTimetableCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if f.entries == nil {
		f.entries = make(map[string]*dto.SectionTimetable)
	}
	f.entries[key] = value.(*dto.SectionTimetable)
	f.sets = append(f.sets, key)
	return nil
}

func viewFixture(cache *fakeTimetableCache) (*TimetableViewService, *fakeSectionSchedules) {
	schedules := &fakeSectionSchedules{bySection: map[int64][]models.Schedule{
		5: {
			{
				ID: 11, SectionID: 5, SubjectID: 100, InstructorID: 7, RoomID: 3,
				Day: models.DayWed, TimeStart: models.MinutesOfDay(10, 0), TimeEnd: models.MinutesOfDay(11, 0),
				MeetingType: models.MeetingLecture,
			},
			{
				ID: 12, SectionID: 5, SubjectID: 101, InstructorID: 8, RoomID: 9,
				Day: models.DayMon, TimeStart: models.MinutesOfDay(13, 0), TimeEnd: models.MinutesOfDay(15, 0),
				MeetingType: models.MeetingLaboratory,
			},
			{
				ID: 10, SectionID: 5, SubjectID: 100, InstructorID: 7, RoomID: 3,
				Day: models.DayMon, TimeStart: models.MinutesOfDay(8, 0), TimeEnd: models.MinutesOfDay(9, 0),
				MeetingType: models.MeetingLecture,
			},
		},
	}}
	sections := &fakeSectionReader{sections: map[int64]models.Section{
		5: {ID: 5, CourseID: 10, SectionName: "CS-1A", Enrollment: 25},
	}}
	subjects := &fakeSubjectBatch{subjects: map[int64]models.Subject{
		100: {ID: 100, SubjectCode: "CS101", SubjectName: "Intro to Computing"},
		101: {ID: 101, SubjectCode: "CS102", SubjectName: "Programming Lab"},
	}}
	instructors := &fakeInstructorReader{instructors: map[int64]models.Instructor{
		7: {ID: 7, FullName: "Alice Reyes"},
		8: {ID: 8, FullName: "Ben Cruz"},
	}}
	rooms := &fakeRoomReader{rooms: map[int64]models.Room{
		3: {ID: 3, RoomName: "R-301"},
		9: {ID: 9, RoomName: "LAB-1"},
	}}

	var tc timetableCache
	if cache != nil {
		tc = cache
	}
	svc := NewTimetableViewService(schedules, sections, subjects, instructors, rooms, tc, "Weekly Timetable", nil)
	return svc, schedules
}

func TestSectionTimetableGroupsAndSortsByDay(t *testing.T) {
	svc, _ := viewFixture(nil)

	timetable, err := svc.SectionTimetable(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), timetable.SectionID)
	assert.Equal(t, "CS-1A", timetable.SectionName)

	// Every weekday key is present even when empty.
	for _, day := range models.Weekdays() {
		_, ok := timetable.Days[day]
		assert.True(t, ok, "missing day %s", day)
	}
	assert.Empty(t, timetable.Days[models.DayFri])

	monday := timetable.Days[models.DayMon]
	require.Len(t, monday, 2)
	assert.Equal(t, int64(10), monday[0].ScheduleID)
	assert.Equal(t, "08:00", monday[0].TimeStart)
	assert.Equal(t, "CS101", monday[0].SubjectCode)
	assert.Equal(t, "Alice Reyes", monday[0].InstructorName)
	assert.Equal(t, "R-301", monday[0].RoomName)
	assert.Equal(t, int64(12), monday[1].ScheduleID)
	assert.Equal(t, "Ben Cruz", monday[1].InstructorName)
	assert.Equal(t, "LAB-1", monday[1].RoomName)
	assert.Equal(t, string(models.MeetingLaboratory), monday[1].MeetingType)

	wednesday := timetable.Days[models.DayWed]
	require.Len(t, wednesday, 1)
	assert.Equal(t, "Intro to Computing", wednesday[0].SubjectName)
}

func TestSectionTimetableServesFromCache(t *testing.T) {
	cache := &fakeTimetableCache{enabled: true}
	svc, schedules := viewFixture(cache)

	first, err := svc.SectionTimetable(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"timetable:section:5"}, cache.sets)
	assert.Equal(t, 1, schedules.calls)

	second, err := svc.SectionTimetable(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, first.SectionName, second.SectionName)
	assert.Equal(t, 1, schedules.calls, "cache hit must not hit the store again")
}

func TestSectionTimetableSkipsDisabledCache(t *testing.T) {
	cache := &fakeTimetableCache{enabled: false}
	svc, schedules := viewFixture(cache)

	_, err := svc.SectionTimetable(context.Background(), 5)
	require.NoError(t, err)
	_, err = svc.SectionTimetable(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, cache.sets)
	assert.Equal(t, 2, schedules.calls)
}

func TestSectionTimetableUnknownSection(t *testing.T) {
	svc, _ := viewFixture(nil)

	_, err := svc.SectionTimetable(context.Background(), 404)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "section not found", appErr.Message)

	_, err = svc.SectionTimetable(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportCSVOrdersRowsMondayFirst(t *testing.T) {
	svc, _ := viewFixture(nil)

	payload, filename, err := svc.ExportCSV(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "timetable-CS-1A.csv", filename)

	lines := strings.Split(strings.TrimSpace(string(payload)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Day,Start,End,Subject Code,Subject,Instructor,Room,Type", strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "Monday")
	assert.Contains(t, lines[1], "08:00")
	assert.Contains(t, lines[2], "Monday")
	assert.Contains(t, lines[2], "13:00")
	assert.Contains(t, lines[3], "Wednesday")
}

func TestExportPDFProducesDocument(t *testing.T) {
	svc, _ := viewFixture(nil)

	payload, filename, err := svc.ExportPDF(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "timetable-CS-1A.pdf", filename)
	require.NotEmpty(t, payload)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}
