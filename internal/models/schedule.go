package models

import (
	"time"

	appErrors "github.com/schedwise/timetable-api/pkg/errors"
)

// MeetingType distinguishes lecture and laboratory meetings.
type MeetingType string

const (
	MeetingLecture    MeetingType = "LECTURE"
	MeetingLaboratory MeetingType = "LABORATORY"
)

// ConflictDimension names the resource axis a conflict query runs on.
type ConflictDimension string

const (
	DimensionSection    ConflictDimension = "section"
	DimensionInstructor ConflictDimension = "instructor"
	DimensionRoom       ConflictDimension = "room"
)

// Duration bounds enforced on every committed schedule.
const (
	MinClassDuration = 30 * time.Minute
	MaxClassDuration = 4 * time.Hour
)

// Schedule is a committed assignment of a subject meeting for a section to
// an instructor, room and time slot.
type Schedule struct {
	ID           int64       `db:"id" json:"id"`
	SectionID    int64       `db:"section_id" json:"section_id"`
	SubjectID    int64       `db:"subject_id" json:"subject_id"`
	InstructorID int64       `db:"instructor_id" json:"instructor_id"`
	RoomID       int64       `db:"room_id" json:"room_id"`
	Day          Day         `db:"day" json:"day"`
	TimeStart    TimeOfDay   `db:"time_start" json:"time_start"`
	TimeEnd      TimeOfDay   `db:"time_end" json:"time_end"`
	MeetingType  MeetingType `db:"meeting_type" json:"meeting_type"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// Duration returns the meeting length.
func (s *Schedule) Duration() time.Duration {
	return time.Duration(DurationSeconds(s.TimeStart, s.TimeEnd)) * time.Second
}

// OverlapsInterval reports whether the schedule intersects [start, end) on
// the given day.
func (s *Schedule) OverlapsInterval(day Day, start, end TimeOfDay) bool {
	return s.Day == day && Overlaps(s.TimeStart, s.TimeEnd, start, end)
}

// ValidateTimes checks the schedule-local invariants: ordering and duration
// bounds. Cross-record conflicts are checked against the store by the
// schedule service.
func (s *Schedule) ValidateTimes() error {
	if s.TimeStart >= s.TimeEnd {
		return appErrors.Clone(appErrors.ErrValidation, "End time must be after start time.")
	}
	d := s.Duration()
	if d < MinClassDuration {
		return appErrors.Clone(appErrors.ErrValidation, "Class duration must be at least 30 minutes.")
	}
	if d > MaxClassDuration {
		return appErrors.Clone(appErrors.ErrValidation, "Class duration cannot exceed 4 hours.")
	}
	return nil
}

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	SectionID    int64
	SubjectID    int64
	InstructorID int64
	RoomID       int64
	Day          Day
	Page         int
	PageSize     int
}
