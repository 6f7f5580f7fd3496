package dto

import "github.com/schedwise/timetable-api/internal/models"

// ScheduleRequest is the manual create/update payload. Times are 24-hour
// "HH:MM" strings.
type ScheduleRequest struct {
	SectionID    int64  `json:"sectionId" validate:"required,gt=0"`
	SubjectID    int64  `json:"subjectId" validate:"required,gt=0"`
	InstructorID int64  `json:"instructorId" validate:"required,gt=0"`
	RoomID       int64  `json:"roomId" validate:"required,gt=0"`
	Day          string `json:"day" validate:"required"`
	TimeStart    string `json:"timeStart" validate:"required"`
	TimeEnd      string `json:"timeEnd" validate:"required"`
	MeetingType  string `json:"meetingType" validate:"omitempty,oneof=LECTURE LABORATORY"`
}

// TimetableEntry is one meeting in a section's weekly view.
type TimetableEntry struct {
	ScheduleID     int64  `json:"schedule_id"`
	SubjectCode    string `json:"subject_code"`
	SubjectName    string `json:"subject_name"`
	InstructorName string `json:"instructor_name"`
	RoomName       string `json:"room_name"`
	TimeStart      string `json:"time_start"`
	TimeEnd        string `json:"time_end"`
	MeetingType    string `json:"meeting_type"`
}

// SectionTimetable groups a section's committed meetings by day.
type SectionTimetable struct {
	SectionID   int64                           `json:"section_id"`
	SectionName string                          `json:"section_name"`
	Days        map[models.Day][]TimetableEntry `json:"days"`
}
