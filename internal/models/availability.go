package models

import "time"

// AvailabilityWindow is a contiguous span during which an instructor or room
// is usable. An entity with no windows at all is unconstrained, not
// unavailable.
type AvailabilityWindow struct {
	ID        int64     `db:"id" json:"id"`
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	Day       Day       `db:"day" json:"day"`
	StartTime TimeOfDay `db:"start_time" json:"start_time"`
	EndTime   TimeOfDay `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// WindowsCover decides whether [start, end) on the given day is usable. An
// empty window set means unconstrained. Otherwise the candidate must be fully
// contained in a single window; partial coverage across adjoining windows
// does not count.
func WindowsCover(windows []AvailabilityWindow, day Day, start, end TimeOfDay) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if w.Day == day && w.StartTime <= start && w.EndTime >= end {
			return true
		}
	}
	return false
}
