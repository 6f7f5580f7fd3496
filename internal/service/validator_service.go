package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/schedwise/timetable-api/internal/dto"
	"github.com/schedwise/timetable-api/internal/models"
	appErrors "github.com/schedwise/timetable-api/pkg/errors"
)

// Validator conflict reasons, reported to the manual-assignment UI.
const (
	reasonSectionConflict      = "Section has a conflicting class"
	reasonInstructorConflict   = "Instructor is not available (conflict)"
	reasonRoomConflict         = "Room is occupied"
	reasonInstructorWindowMiss = "Instructor not available in this time window"
	reasonRoomWindowMiss       = "Room not available in this time window"
)

// ValidatorService checks one fully specified candidate assignment against
// every constraint and reports each violated rule, not just the first. It is
// read-only; committing goes through the schedule service, which re-applies
// the enforcer.
type ValidatorService struct {
	sections    sectionReader
	instructors instructorReader
	rooms       roomReader
	conflicts   conflictSource
	logger      *zap.Logger
}

// NewValidatorService wires the slot validator.
func NewValidatorService(sections sectionReader, instructors instructorReader, rooms roomReader, conflicts conflictSource, logger *zap.Logger) *ValidatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidatorService{
		sections:    sections,
		instructors: instructors,
		rooms:       rooms,
		conflicts:   conflicts,
		logger:      logger,
	}
}

// ValidateSlot accumulates every rule violated by the candidate. Unknown
// references surface as request-level errors, never as conflict entries.
func (s *ValidatorService) ValidateSlot(ctx context.Context, req dto.ValidateSlotRequest) (*dto.ValidateSlotResult, error) {
	if !req.Day.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown day")
	}
	if req.TimeStart >= req.TimeEnd {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}

	section, err := s.sections.FindByID(ctx, req.SectionID)
	if err != nil {
		return nil, notFoundOrInternal(err, "section not found")
	}
	instructor, err := s.instructors.FindByID(ctx, req.InstructorID)
	if err != nil {
		return nil, notFoundOrInternal(err, "instructor not found")
	}
	room, err := s.rooms.FindByID(ctx, req.RoomID)
	if err != nil {
		return nil, notFoundOrInternal(err, "room not found")
	}

	conflicts := make([]string, 0, 5)

	bookingChecks := []struct {
		dim        models.ConflictDimension
		resourceID int64
		reason     string
	}{
		{models.DimensionSection, section.ID, reasonSectionConflict},
		{models.DimensionInstructor, instructor.ID, reasonInstructorConflict},
		{models.DimensionRoom, room.ID, reasonRoomConflict},
	}
	for _, check := range bookingChecks {
		overlapping, err := s.conflicts.FindOverlapping(ctx, nil, check.dim, check.resourceID, req.Day, req.TimeStart, req.TimeEnd, 0)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check conflicts")
		}
		if len(overlapping) > 0 {
			conflicts = append(conflicts, check.reason)
		}
	}

	instructorWindows, err := s.instructors.ListAvailability(ctx, instructor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor availability")
	}
	if !models.WindowsCover(instructorWindows, req.Day, req.TimeStart, req.TimeEnd) {
		conflicts = append(conflicts, reasonInstructorWindowMiss)
	}

	roomWindows, err := s.rooms.ListAvailability(ctx, room.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room availability")
	}
	if !models.WindowsCover(roomWindows, req.Day, req.TimeStart, req.TimeEnd) {
		conflicts = append(conflicts, reasonRoomWindowMiss)
	}

	return &dto.ValidateSlotResult{OK: len(conflicts) == 0, Conflicts: conflicts}, nil
}
