package models

// Section is the unit that receives scheduled meetings. Enrollment is the
// current head count used for room capacity checks.
type Section struct {
	ID          int64  `db:"id" json:"id"`
	CourseID    int64  `db:"course_id" json:"course_id"`
	SectionName string `db:"section_name" json:"section_name"`
	YearLevel   int    `db:"year_level" json:"year_level"`
	Semester    int    `db:"semester" json:"semester"`
	Enrollment  int    `db:"enrollment" json:"enrollment"`
}

// Subject is a unit of required weekly contact hours with a meeting type.
type Subject struct {
	ID                   int64       `db:"id" json:"id"`
	SubjectCode          string      `db:"subject_code" json:"subject_code"`
	SubjectName          string      `db:"subject_name" json:"subject_name"`
	RequiredHoursPerWeek int         `db:"required_hours_per_week" json:"required_hours_per_week"`
	MeetingType          MeetingType `db:"meeting_type" json:"meeting_type"`
	Units                float64     `db:"units" json:"units"`
}

// Instructor wraps a person account. Qualified subjects are linked rows; an
// instructor with none may still teach anything under the fallback policy.
type Instructor struct {
	ID           int64  `db:"id" json:"id"`
	UserID       int64  `db:"user_id" json:"user_id"`
	FullName     string `db:"full_name" json:"full_name"`
	DepartmentID int64  `db:"department_id" json:"department_id"`
}

// Room is a teachable space with a type and capacity. Capacity 0 means
// unconstrained.
type Room struct {
	ID       int64       `db:"id" json:"id"`
	RoomName string      `db:"room_name" json:"room_name"`
	Capacity int         `db:"capacity" json:"capacity"`
	RoomType MeetingType `db:"room_type" json:"room_type"`
	Floor    int         `db:"floor" json:"floor"`
}
