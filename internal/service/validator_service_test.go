package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schedwise/timetable-api/internal/dto"
	"github.com/schedwise/timetable-api/internal/models"
	appErrors "github.com/schedwise/timetable-api/pkg/errors"
)

type fakeSectionReader struct {
	sections map[int64]models.Section
}

func (f *fakeSectionReader) FindByID(ctx context.Context, id int64) (*models.Section, error) {
	if s, ok := f.sections[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

type fakeInstructorReader struct {
	instructors map[int64]models.Instructor
	windows     map[int64][]models.AvailabilityWindow
}

func (f *fakeInstructorReader) FindByID(ctx context.Context, id int64) (*models.Instructor, error) {
	if i, ok := f.instructors[id]; ok {
		return &i, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeInstructorReader) ListAvailability(ctx context.Context, instructorID int64) ([]models.AvailabilityWindow, error) {
	return f.windows[instructorID], nil
}

type fakeRoomReader struct {
	rooms   map[int64]models.Room
	windows map[int64][]models.AvailabilityWindow
}

func (f *fakeRoomReader) FindByID(ctx context.Context, id int64) (*models.Room, error) {
	if r, ok := f.rooms[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeRoomReader) ListAvailability(ctx context.Context, roomID int64) ([]models.AvailabilityWindow, error) {
	return f.windows[roomID], nil
}

type fakeConflicts struct {
	schedules []models.Schedule
}

func (f *fakeConflicts) FindOverlapping(ctx context.Context, exec sqlx.ExtContext, dim models.ConflictDimension, resourceID int64, day models.Day, start, end models.TimeOfDay, excludeID int64) ([]models.Schedule, error) {
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

func validatorFixture() (*ValidatorService, *fakeConflicts, *fakeInstructorReader, *fakeRoomReader) {
	sections := &fakeSectionReader{sections: map[int64]models.Section{5: {ID: 5, SectionName: "CS-1A"}}}
	instructors := &fakeInstructorReader{
		instructors: map[int64]models.Instructor{7: {ID: 7, FullName: "Alice Reyes"}},
		windows:     map[int64][]models.AvailabilityWindow{},
	}
	rooms := &fakeRoomReader{
		rooms:   map[int64]models.Room{3: {ID: 3, RoomName: "R-301", Capacity: 40}},
		windows: map[int64][]models.AvailabilityWindow{},
	}
	conflicts := &fakeConflicts{}
	return NewValidatorService(sections, instructors, rooms, conflicts, nil), conflicts, instructors, rooms
}

func validRequest() dto.ValidateSlotRequest {
	return dto.ValidateSlotRequest{
		SectionID:    5,
		InstructorID: 7,
		RoomID:       3,
		Day:          models.DayMon,
		TimeStart:    models.MinutesOfDay(9, 0),
		TimeEnd:      models.MinutesOfDay(10, 0),
	}
}

func TestValidateSlotClean(t *testing.T) {
	svc, _, _, _ := validatorFixture()

	result, err := svc.ValidateSlot(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Empty(t, result.Conflicts)
}

func TestValidateSlotAccumulatesEveryViolation(t *testing.T) {
	svc, conflicts, instructors, rooms := validatorFixture()

	// One booking colliding on all three dimensions at once.
	conflicts.schedules = []models.Schedule{{
		ID: 1, SectionID: 5, InstructorID: 7, RoomID: 3,
		Day: models.DayMon, TimeStart: models.MinutesOfDay(9, 30), TimeEnd: models.MinutesOfDay(10, 30),
	}}
	// Windows that exclude the candidate slot.
	instructors.windows[7] = []models.AvailabilityWindow{
		{OwnerID: 7, Day: models.DayMon, StartTime: models.MinutesOfDay(13, 0), EndTime: models.MinutesOfDay(17, 0)},
	}
	rooms.windows[3] = []models.AvailabilityWindow{
		{OwnerID: 3, Day: models.DayTue, StartTime: models.MinutesOfDay(8, 0), EndTime: models.MinutesOfDay(17, 0)},
	}

	result, err := svc.ValidateSlot(context.Background(), validRequest())
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, []string{
		"Section has a conflicting class",
		"Instructor is not available (conflict)",
		"Room is occupied",
		"Instructor not available in this time window",
		"Room not available in this time window",
	}, result.Conflicts)
}

func TestValidateSlotBackToBackIsClean(t *testing.T) {
	svc, conflicts, _, _ := validatorFixture()
	conflicts.schedules = []models.Schedule{{
		ID: 1, SectionID: 5, InstructorID: 7, RoomID: 3,
		Day: models.DayMon, TimeStart: models.MinutesOfDay(8, 0), TimeEnd: models.MinutesOfDay(9, 0),
	}}

	result, err := svc.ValidateSlot(context.Background(), validRequest())
	require.NoError(t, err)
	assert.True(t, result.OK, "a meeting ending exactly at the candidate start does not conflict")
}

func TestValidateSlotRequestErrors(t *testing.T) {
	svc, _, _, _ := validatorFixture()

	bad := validRequest()
	bad.Day = "FUNDAY"
	_, err := svc.ValidateSlot(context.Background(), bad)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	inverted := validRequest()
	inverted.TimeStart, inverted.TimeEnd = inverted.TimeEnd, inverted.TimeStart
	_, err = svc.ValidateSlot(context.Background(), inverted)
	require.Error(t, err)

	missing := validRequest()
	missing.RoomID = 999
	_, err = svc.ValidateSlot(context.Background(), missing)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Equal(t, "room not found", appErr.Message)
}
