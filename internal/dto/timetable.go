package dto

import (
	"time"

	"github.com/schedwise/timetable-api/internal/models"
)

// GenerateTimetableRequest selects the planner's target. A nil curriculum id
// means every active curriculum.
type GenerateTimetableRequest struct {
	CurriculumID *int64 `json:"curriculumId" validate:"omitempty,gt=0"`
}

// PlacementFailure records one slot the planner could not fill, or a
// shortfall after the grid was exhausted.
type PlacementFailure struct {
	Section string `json:"section"`
	Subject string `json:"subject"`
	Day     string `json:"day,omitempty"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
	Reason  string `json:"reason"`
}

// GenerateTimetableResult summarises a planner run. Partial infeasibility is
// reported here, never as a request-level error.
type GenerateTimetableResult struct {
	Created           int                `json:"created"`
	ProcessedSubjects int                `json:"processed_subjects"`
	Failed            []PlacementFailure `json:"failed"`
}

// Run states for asynchronous planner invocations.
const (
	RunStatusPending   = "PENDING"
	RunStatusRunning   = "RUNNING"
	RunStatusCompleted = "COMPLETED"
	RunStatusFailed    = "FAILED"
)

// TimetableRun tracks an asynchronous planner invocation.
type TimetableRun struct {
	RunID       string                   `json:"run_id"`
	Status      string                   `json:"status"`
	Result      *GenerateTimetableResult `json:"result,omitempty"`
	Error       string                   `json:"error,omitempty"`
	RequestedAt time.Time                `json:"requested_at"`
	FinishedAt  *time.Time               `json:"finished_at,omitempty"`
}

// ValidateSlotRequest is a fully specified manual-assignment candidate.
type ValidateSlotRequest struct {
	SectionID    int64
	InstructorID int64
	RoomID       int64
	Day          models.Day
	TimeStart    models.TimeOfDay
	TimeEnd      models.TimeOfDay
}

// ValidateSlotResult accumulates every violated rule, not just the first.
type ValidateSlotResult struct {
	OK        bool     `json:"ok"`
	Conflicts []string `json:"conflicts"`
}

// SlotOption is one selectable start/duration combination offered to the
// manual assignment UI.
type SlotOption struct {
	Start         string `json:"start"`
	End           string `json:"end"`
	DurationHours int    `json:"duration_hours"`
	Label         string `json:"label"`
}
