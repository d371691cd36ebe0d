package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/stressless/internal/domain"
	"github.com/sumire/stressless/internal/service"
)

// ScheduleHandler handles the leader calendar endpoints.
type ScheduleHandler struct {
	schedules *service.ScheduleService
	defaultTZ string
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(schedules *service.ScheduleService, defaultTZ string) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, defaultTZ: defaultTZ}
}

type slotRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
	Time string `json:"time" validate:"required,len=5"`
}

type queueSlotsRequest struct {
	Timezone        string        `json:"timezone"`
	CollaboratorIDs []int64       `json:"collaborator_ids" validate:"required,min=1,dive,gt=0"`
	Slots           []slotRequest `json:"slots" validate:"required,min=1,dive"`
}

// Queue books one schedule record per (slot, collaborator) pair.
func (h *ScheduleHandler) Queue(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req queueSlotsRequest
	if err := c.Bind(&req); err != nil {
		return domain.ErrInvalidInput
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.Timezone == "" {
		req.Timezone = h.defaultTZ
	}

	slots := make([]service.Slot, 0, len(req.Slots))
	for _, s := range req.Slots {
		day, err := time.Parse("2006-01-02", s.Date)
		if err != nil {
			return fmt.Errorf("%w: %q is not a date", domain.ErrInvalidInput, s.Date)
		}
		slots = append(slots, service.Slot{Date: day, Time: s.Time})
	}

	queued, err := h.schedules.QueueSlots(c.Request().Context(), identity.UserID, req.CollaboratorIDs, slots, req.Timezone)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, map[string]any{"queued": queued})
}

// Upcoming lists the caller's queued records for the next seven days.
func (h *ScheduleHandler) Upcoming(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	tz := c.QueryParam("tz")
	if tz == "" {
		tz = h.defaultTZ
	}

	slots, err := h.schedules.Upcoming(c.Request().Context(), identity.UserID, tz)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, slots)
}

// Cancel withdraws one still-queued record owned by the caller.
func (h *ScheduleHandler) Cancel(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	scheduleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid schedule id", domain.ErrInvalidInput)
	}

	if err := h.schedules.Cancel(c.Request().Context(), identity.UserID, scheduleID); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]string{"message": "schedule cancelled"})
}
