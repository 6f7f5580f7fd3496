package models

import "strings"

// Day is a day-of-week tag used by schedules and availability windows.
type Day string

const (
	DayMon Day = "MON"
	DayTue Day = "TUE"
	DayWed Day = "WED"
	DayThu Day = "THU"
	DayFri Day = "FRI"
	DaySat Day = "SAT"
	DaySun Day = "SUN"
)

var dayNames = map[Day]string{
	DayMon: "Monday",
	DayTue: "Tuesday",
	DayWed: "Wednesday",
	DayThu: "Thursday",
	DayFri: "Friday",
	DaySat: "Saturday",
	DaySun: "Sunday",
}

// Weekdays returns the five planner days in iteration order. The batch
// planner never proposes Saturday or Sunday slots.
func Weekdays() []Day {
	return []Day{DayMon, DayTue, DayWed, DayThu, DayFri}
}

// ParseDay normalises a day code. The second return is false for unknown codes.
func ParseDay(raw string) (Day, bool) {
	d := Day(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := dayNames[d]
	return d, ok
}

// Name returns the human-readable day name.
func (d Day) Name() string {
	if name, ok := dayNames[d]; ok {
		return name
	}
	return string(d)
}

// Valid reports whether d is one of the seven day codes.
func (d Day) Valid() bool {
	_, ok := dayNames[d]
	return ok
}
