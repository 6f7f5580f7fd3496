package models

import "time"

// Department groups courses and rooms.
type Department struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Code string `db:"code" json:"code"`
}

// Course is a degree program owning sections and curricula.
type Course struct {
	ID           int64  `db:"id" json:"id"`
	DepartmentID int64  `db:"department_id" json:"department_id"`
	CourseCode   string `db:"course_code" json:"course_code"`
	CourseName   string `db:"course_name" json:"course_name"`
}

// Curriculum is the requirement set the batch planner consumes.
type Curriculum struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CourseID  int64     `db:"course_id" json:"course_id"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// CurriculumSubject links a required subject into a curriculum with an
// explicit planner ordering. These rows outlive any schedule attempt.
type CurriculumSubject struct {
	ID           int64 `db:"id" json:"id"`
	CurriculumID int64 `db:"curriculum_id" json:"curriculum_id"`
	SubjectID    int64 `db:"subject_id" json:"subject_id"`
	IsRequired   bool  `db:"is_required" json:"is_required"`
	Order        int   `db:"sort_order" json:"order"`
}
