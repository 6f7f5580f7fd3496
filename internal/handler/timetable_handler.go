package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/schedwise/timetable-api/internal/dto"
	"github.com/schedwise/timetable-api/internal/models"
	"github.com/schedwise/timetable-api/internal/service"
	appErrors "github.com/schedwise/timetable-api/pkg/errors"
	"github.com/schedwise/timetable-api/pkg/response"
)

type timetablePlanner interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResult, error)
	GenerateAsync(ctx context.Context, req dto.GenerateTimetableRequest) (string, error)
	GetRun(ctx context.Context, runID string) (*dto.TimetableRun, error)
}

type slotValidator interface {
	ValidateSlot(ctx context.Context, req dto.ValidateSlotRequest) (*dto.ValidateSlotResult, error)
}

// TimetableHandler exposes planner and validator endpoints.
type TimetableHandler struct {
	planner   timetablePlanner
	validator slotValidator
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(planner *service.TimetableService, validator *service.ValidatorService) *TimetableHandler {
	return &TimetableHandler{planner: planner, validator: validator}
}

// Generate godoc
// @Summary Generate timetable
// @Description Run the greedy planner over one curriculum or every active curriculum. Pass mode=async to queue a background run.
// @Tags Timetable
// @Accept json
// @Produce json
// @Param mode query string false "Execution mode" Enums(sync, async)
// @Param payload body dto.GenerateTimetableRequest false "Generation payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetable/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
			return
		}
	}

	if c.Query("mode") == "async" {
		runID, err := h.planner.GenerateAsync(c.Request.Context(), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusAccepted, gin.H{"run_id": runID, "status": dto.RunStatusPending}, nil)
		return
	}

	result, err := h.planner.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// GetRun godoc
// @Summary Get planner run
// @Description Fetch the status and result of an asynchronous planner run
// @Tags Timetable
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetable/runs/{id} [get]
func (h *TimetableHandler) GetRun(c *gin.Context) {
	run, err := h.planner.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// ValidateSlot godoc
// @Summary Validate a timetable slot
// @Description Check a fully specified candidate assignment against every booking and availability rule
// @Tags Timetable
// @Produce json
// @Param sectionId query int true "Section ID"
// @Param instructorId query int true "Instructor ID"
// @Param roomId query int true "Room ID"
// @Param day query string true "Day code (MON..SUN)"
// @Param timeStart query string true "Start time HH:MM"
// @Param timeEnd query string true "End time HH:MM"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetable/validate-slot [get]
func (h *TimetableHandler) ValidateSlot(c *gin.Context) {
	req, err := bindValidateSlotQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.validator.ValidateSlot(c.Request.Context(), *req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SlotOptions godoc
// @Summary List candidate slots
// @Description Enumerate every start time and duration combination offered for manual assignment
// @Tags Timetable
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetable/slot-options [get]
func (h *TimetableHandler) SlotOptions(c *gin.Context) {
	response.JSON(c, http.StatusOK, service.SlotCatalog(), nil)
}

func bindValidateSlotQuery(c *gin.Context) (*dto.ValidateSlotRequest, error) {
	sectionID, err := queryID(c, "sectionId")
	if err != nil {
		return nil, err
	}
	instructorID, err := queryID(c, "instructorId")
	if err != nil {
		return nil, err
	}
	roomID, err := queryID(c, "roomId")
	if err != nil {
		return nil, err
	}

	day, ok := models.ParseDay(c.Query("day"))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid day")
	}
	start, err := models.ParseTimeOfDay(c.Query("timeStart"))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid start time")
	}
	end, err := models.ParseTimeOfDay(c.Query("timeEnd"))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid end time")
	}

	return &dto.ValidateSlotRequest{
		SectionID:    sectionID,
		InstructorID: instructorID,
		RoomID:       roomID,
		Day:          day,
		TimeStart:    start,
		TimeEnd:      end,
	}, nil
}

func queryID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
	}
	return id, nil
}
