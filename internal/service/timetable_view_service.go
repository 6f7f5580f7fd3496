package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/schedwise/timetable-api/internal/dto"
	"github.com/schedwise/timetable-api/internal/models"
	appErrors "github.com/schedwise/timetable-api/pkg/errors"
	"github.com/schedwise/timetable-api/pkg/export"
)

type sectionScheduleLister interface {
	ListBySection(ctx context.Context, sectionID int64) ([]models.Schedule, error)
}

type subjectBatchReader interface {
	FindByIDs(ctx context.Context, ids []int64) (map[int64]models.Subject, error)
}

type instructorNameReader interface {
	FindByID(ctx context.Context, id int64) (*models.Instructor, error)
}

type roomNameReader interface {
	FindByID(ctx context.Context, id int64) (*models.Room, error)
}

type timetableCache interface {
	Enabled() bool
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// TimetableViewService assembles read-side weekly timetables for sections
// and renders them as CSV or PDF documents.
type TimetableViewService struct {
	schedules   sectionScheduleLister
	sections    sectionReader
	subjects    subjectBatchReader
	instructors instructorNameReader
	rooms       roomNameReader
	cache       timetableCache
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	exportTitle string
	logger      *zap.Logger
}

// NewTimetableViewService wires the timetable read model.
func NewTimetableViewService(
	schedules sectionScheduleLister,
	sections sectionReader,
	subjects subjectBatchReader,
	instructors instructorNameReader,
	rooms roomNameReader,
	cache timetableCache,
	exportTitle string,
	logger *zap.Logger,
) *TimetableViewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableViewService{
		schedules:   schedules,
		sections:    sections,
		subjects:    subjects,
		instructors: instructors,
		rooms:       rooms,
		cache:       cache,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		exportTitle: exportTitle,
		logger:      logger,
	}
}

func sectionTimetableKey(sectionID int64) string {
	return fmt.Sprintf("timetable:section:%d", sectionID)
}

// SectionTimetable returns the committed weekly timetable of one section,
// grouped by day with entries ordered by start time. Results are cached
// until the section's schedules change.
func (s *TimetableViewService) SectionTimetable(ctx context.Context, sectionID int64) (*dto.SectionTimetable, error) {
	if sectionID <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "section id must be positive")
	}

	key := sectionTimetableKey(sectionID)
	if s.cache != nil && s.cache.Enabled() {
		var cached dto.SectionTimetable
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	section, err := s.sections.FindByID(ctx, sectionID)
	if err != nil {
		return nil, notFoundOrInternal(err, "section not found")
	}

	schedules, err := s.schedules.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build section timetable")
	}

	timetable, err := s.buildTimetable(ctx, section, schedules)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.cache.Enabled() {
		// Set logs its own failures; a cache miss on the next read is fine.
		_ = s.cache.Set(ctx, key, timetable, 0)
	}
	return timetable, nil
}

func (s *TimetableViewService) buildTimetable(ctx context.Context, section *models.Section, schedules []models.Schedule) (*dto.SectionTimetable, error) {
	subjectIDs := make([]int64, 0, len(schedules))
	seen := make(map[int64]bool, len(schedules))
	for _, sched := range schedules {
		if !seen[sched.SubjectID] {
			seen[sched.SubjectID] = true
			subjectIDs = append(subjectIDs, sched.SubjectID)
		}
	}

	subjects, err := s.subjects.FindByIDs(ctx, subjectIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build section timetable")
	}

	instructorNames := make(map[int64]string)
	roomNames := make(map[int64]string)

	timetable := &dto.SectionTimetable{
		SectionID:   section.ID,
		SectionName: section.SectionName,
		Days:        make(map[models.Day][]dto.TimetableEntry),
	}
	for _, day := range models.Weekdays() {
		timetable.Days[day] = []dto.TimetableEntry{}
	}

	for _, sched := range schedules {
		entry := dto.TimetableEntry{
			ScheduleID:  sched.ID,
			TimeStart:   sched.TimeStart.String(),
			TimeEnd:     sched.TimeEnd.String(),
			MeetingType: string(sched.MeetingType),
		}
		if subject, ok := subjects[sched.SubjectID]; ok {
			entry.SubjectCode = subject.SubjectCode
			entry.SubjectName = subject.SubjectName
		}

		name, ok := instructorNames[sched.InstructorID]
		if !ok {
			instructor, err := s.instructors.FindByID(ctx, sched.InstructorID)
			if err != nil {
				return nil, notFoundOrInternal(err, "instructor not found")
			}
			name = instructor.FullName
			instructorNames[sched.InstructorID] = name
		}
		entry.InstructorName = name

		roomName, ok := roomNames[sched.RoomID]
		if !ok {
			room, err := s.rooms.FindByID(ctx, sched.RoomID)
			if err != nil {
				return nil, notFoundOrInternal(err, "room not found")
			}
			roomName = room.RoomName
			roomNames[sched.RoomID] = roomName
		}
		entry.RoomName = roomName

		timetable.Days[sched.Day] = append(timetable.Days[sched.Day], entry)
	}

	for day := range timetable.Days {
		entries := timetable.Days[day]
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].TimeStart != entries[j].TimeStart {
				return entries[i].TimeStart < entries[j].TimeStart
			}
			return entries[i].ScheduleID < entries[j].ScheduleID
		})
		timetable.Days[day] = entries
	}
	return timetable, nil
}

var exportHeaders = []string{"Day", "Start", "End", "Subject Code", "Subject", "Instructor", "Room", "Type"}

func (s *TimetableViewService) dataset(timetable *dto.SectionTimetable) export.Dataset {
	days := make([]models.Day, 0, len(timetable.Days))
	for day := range timetable.Days {
		days = append(days, day)
	}
	order := make(map[models.Day]int, 7)
	for i, day := range []models.Day{models.DayMon, models.DayTue, models.DayWed, models.DayThu, models.DayFri, models.DaySat, models.DaySun} {
		order[day] = i
	}
	sort.Slice(days, func(i, j int) bool { return order[days[i]] < order[days[j]] })

	data := export.Dataset{Headers: exportHeaders}
	for _, day := range days {
		for _, entry := range timetable.Days[day] {
			data.Rows = append(data.Rows, map[string]string{
				"Day":          day.Name(),
				"Start":        entry.TimeStart,
				"End":          entry.TimeEnd,
				"Subject Code": entry.SubjectCode,
				"Subject":      entry.SubjectName,
				"Instructor":   entry.InstructorName,
				"Room":         entry.RoomName,
				"Type":         entry.MeetingType,
			})
		}
	}
	return data
}

// ExportCSV renders a section's timetable as CSV bytes.
func (s *TimetableViewService) ExportCSV(ctx context.Context, sectionID int64) ([]byte, string, error) {
	timetable, err := s.SectionTimetable(ctx, sectionID)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.csv.Render(s.dataset(timetable))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable export")
	}
	return payload, fmt.Sprintf("timetable-%s.csv", timetable.SectionName), nil
}

// ExportPDF renders a section's timetable as PDF bytes.
func (s *TimetableViewService) ExportPDF(ctx context.Context, sectionID int64) ([]byte, string, error) {
	timetable, err := s.SectionTimetable(ctx, sectionID)
	if err != nil {
		return nil, "", err
	}
	subtitle := fmt.Sprintf("Section: %s", timetable.SectionName)
	payload, err := s.pdf.Render(s.dataset(timetable), s.exportTitle, subtitle)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable export")
	}
	return payload, fmt.Sprintf("timetable-%s.pdf", timetable.SectionName), nil
}
