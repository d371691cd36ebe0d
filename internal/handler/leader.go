package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sumire/stressless/internal/domain"
	"github.com/sumire/stressless/internal/repository"
	"github.com/sumire/stressless/internal/service"
)

// LeaderHandler handles the leader-facing team and escalation endpoints.
type LeaderHandler struct {
	invitations *service.InvitationService
	escalations *repository.EscalationRepository
	users       *repository.UserRepository
}

// NewLeaderHandler creates a new LeaderHandler.
func NewLeaderHandler(invitations *service.InvitationService, escalations *repository.EscalationRepository, users *repository.UserRepository) *LeaderHandler {
	return &LeaderHandler{invitations: invitations, escalations: escalations, users: users}
}

type inviteRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

type acceptInviteRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Code     string `json:"code" validate:"required,len=6"`
	Password string `json:"password" validate:"required,min=8"`
}

// Invite emails a one-time code inviting a collaborator into the caller's
// team.
func (h *LeaderHandler) Invite(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	var req inviteRequest
	if err := c.Bind(&req); err != nil {
		return domain.ErrInvalidInput
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	inv, err := h.invitations.Invite(c.Request().Context(), identity.UserID, req.Name, req.Email)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, inv)
}

// AcceptInvite registers the collaborator behind a valid invitation code and
// activates the assignment. Public endpoint.
func (h *LeaderHandler) AcceptInvite(c echo.Context) error {
	var req acceptInviteRequest
	if err := c.Bind(&req); err != nil {
		return domain.ErrInvalidInput
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.invitations.Accept(c.Request().Context(), req.Email, req.Code, req.Password)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusCreated, user)
}

// Team lists the collaborators actively assigned to the caller.
func (h *LeaderHandler) Team(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	team, err := h.invitations.Team(c.Request().Context(), identity.UserID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, team)
}

// SearchCollaborators lists active collaborators, optionally filtered by
// ?name= fragment.
func (h *LeaderHandler) SearchCollaborators(c echo.Context) error {
	users, err := h.users.SearchCollaborators(c.Request().Context(), c.QueryParam("name"))
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, users)
}

// Escalations lists the caller's stress streak alerts, newest first.
func (h *LeaderHandler) Escalations(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	escs, err := h.escalations.ListForLeader(c.Request().Context(), identity.UserID)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, escs)
}

// MarkEscalationRead acknowledges one of the caller's escalations.
func (h *LeaderHandler) MarkEscalationRead(c echo.Context) error {
	identity, ok := GetIdentity(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid escalation id", domain.ErrInvalidInput)
	}

	if err := h.escalations.MarkRead(c.Request().Context(), id, identity.UserID); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]string{"message": "escalation read"})
}
