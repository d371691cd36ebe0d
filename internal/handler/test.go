package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/stressless/internal/domain"
	"github.com/sumire/stressless/internal/service"
)

// TestHandler handles the collaborator test queue and completion endpoints.
type TestHandler struct {
	tests *service.TestService
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(tests *service.TestService) *TestHandler {
	return &TestHandler{tests: tests}
}

type completeRequest struct {
	Outcome *bool `json:"outcome" validate:"required"`
}

type analyzeRequest struct {
	AudioRef string `json:"audio_ref" validate:"required"`
}

type createTestsRequest struct {
	CollaboratorIDs []int64 `json:"collaborator_ids" validate:"required,min=1,dive,gt=0"`
}

// NextPending returns the head of the caller's queue, if any.
func (h *TestHandler) NextPending(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	test, err := h.tests.NextPending(c.Request().Context(), identity.UserID)
	if err != nil {
		return err
	}
	if test == nil {
		return JSON(c, http.StatusOK, map[string]any{"pending": false})
	}
	return JSON(c, http.StatusOK, map[string]any{"pending": true, "test": test})
}

// AllPending returns the caller's full backlog in queue order.
func (h *TestHandler) AllPending(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	pending, err := h.tests.AllPending(c.Request().Context(), identity.UserID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]any{"total": len(pending), "items": pending})
}

// Complete closes out the head of the caller's queue with the given outcome.
func (h *TestHandler) Complete(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req completeRequest
	if err := c.Bind(&req); err != nil {
		return domain.ErrInvalidInput
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	test, err := h.tests.Complete(c.Request().Context(), identity.UserID, *req.Outcome)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, test)
}

// Analyze runs the stress predictor on an uploaded audio reference and
// completes the head of the queue with its verdict.
func (h *TestHandler) Analyze(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return domain.ErrInvalidInput
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	test, err := h.tests.Analyze(c.Request().Context(), identity.UserID, req.AudioRef)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, test)
}

// History lists every test of the caller, oldest first.
func (h *TestHandler) History(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	history, err := h.tests.History(c.Request().Context(), identity.UserID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, history)
}

// CreateDirect registers immediate tests for a set of collaborators,
// bypassing the calendar. Leader only.
func (h *TestHandler) CreateDirect(c echo.Context) error {
	var req createTestsRequest
	if err := c.Bind(&req); err != nil {
		return domain.ErrInvalidInput
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	created, err := h.tests.CreateDirect(c.Request().Context(), req.CollaboratorIDs)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, map[string]any{"created": created})
}
