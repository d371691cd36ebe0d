package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/stressless/internal/domain"
	"github.com/sumire/stressless/internal/service"
)

// PasswordHandler handles the OTP password reset flow.
type PasswordHandler struct {
	passwords *service.PasswordService
}

// NewPasswordHandler creates a new PasswordHandler.
func NewPasswordHandler(passwords *service.PasswordService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords}
}

type forgotRequest struct {
	Email string      `json:"email" validate:"required,email"`
	Role  domain.Role `json:"role" validate:"required,oneof=leader collaborator"`
}

type verifyCodeRequest struct {
	Email string      `json:"email" validate:"required,email"`
	Role  domain.Role `json:"role" validate:"required,oneof=leader collaborator"`
	Code  string      `json:"code" validate:"required,len=6"`
}

type resetPasswordRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	Role     domain.Role `json:"role" validate:"required,oneof=leader collaborator"`
	Code     string      `json:"code" validate:"required,len=6"`
	Password string      `json:"password" validate:"required,min=8"`
}

// Forgot issues a reset code by email. The response is the same whether or
// not the account exists.
func (h *PasswordHandler) Forgot(c echo.Context) error {
	var req forgotRequest
	if err := c.Bind(&req); err != nil {
		return domain.ErrInvalidInput
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.passwords.Forgot(c.Request().Context(), req.Email, req.Role); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]string{"message": "if the account exists, a code was sent"})
}

// Verify checks a reset code without consuming it.
func (h *PasswordHandler) Verify(c echo.Context) error {
	var req verifyCodeRequest
	if err := c.Bind(&req); err != nil {
		return domain.ErrInvalidInput
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.passwords.Verify(c.Request().Context(), req.Email, req.Role, req.Code); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]string{"message": "code valid"})
}

// Reset sets a new password for the account behind a valid code.
func (h *PasswordHandler) Reset(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return domain.ErrInvalidInput
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.passwords.Reset(c.Request().Context(), req.Email, req.Role, req.Code, req.Password); err != nil {
		return err
	}
	return JSON(c, http.StatusOK, map[string]string{"message": "password updated"})
}
