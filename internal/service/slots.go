package service

import (
	"fmt"
	"time"

	"github.com/schedwise/timetable-api/internal/dto"
	"github.com/schedwise/timetable-api/internal/models"
)

// Planner grid bounds: one-hour blocks from 08:00 up to (not including) 17:00.
const (
	gridStartHour = 8
	gridEndHour   = 17
)

// Manual catalog bounds: half-hour starts from 07:00 through 21:00, with
// durations of 1-3 hours, capped so no meeting ends after 22:30.
const (
	catalogFirstStartHour = 7
	catalogLastStartHour  = 21
	catalogLatestEnd      = 22*60 + 30
)

type slotInterval struct {
	Start models.TimeOfDay
	End   models.TimeOfDay
}

// plannerGrid returns the fixed hourly blocks the batch planner tries, in
// order. Nine slots per day keeps the greedy search bounded.
func plannerGrid() []slotInterval {
	slots := make([]slotInterval, 0, gridEndHour-gridStartHour)
	for hour := gridStartHour; hour < gridEndHour; hour++ {
		slots = append(slots, slotInterval{
			Start: models.MinutesOfDay(hour, 0),
			End:   models.MinutesOfDay(hour+1, 0),
		})
	}
	return slots
}

// SlotCatalog enumerates the selectable start/duration combinations offered
// to the manual assignment UI. The planner never iterates this catalog.
func SlotCatalog() []dto.SlotOption {
	var options []dto.SlotOption
	first := models.MinutesOfDay(catalogFirstStartHour, 0)
	last := models.MinutesOfDay(catalogLastStartHour, 0)
	for start := first; start <= last; start += 30 {
		for _, hours := range []int{1, 2, 3} {
			end := start + models.TimeOfDay(hours*60)
			if end > catalogLatestEnd {
				continue
			}
			options = append(options, dto.SlotOption{
				Start:         start.String(),
				End:           end.String(),
				DurationHours: hours,
				Label:         catalogLabel(start, end, hours),
			})
		}
	}
	return options
}

func catalogLabel(start, end models.TimeOfDay, hours int) string {
	unit := "hr"
	if hours > 1 {
		unit = "hrs"
	}
	return fmt.Sprintf("%s - %s (%d %s)", clock12(start), clock12(end), hours, unit)
}

func clock12(t models.TimeOfDay) string {
	ref := time.Date(0, time.January, 1, t.Hour(), t.Minute(), 0, 0, time.UTC)
	return ref.Format("3:04 PM")
}
