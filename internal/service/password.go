package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sumire/stressless/internal/domain"
	"github.com/sumire/stressless/internal/mailer"
)

// resetCodeTTL is how long a recovery code stays valid.
const resetCodeTTL = 15 * time.Minute

// ResetStore defines the recovery code data access interface consumed by
// PasswordService.
type ResetStore interface {
	IssueCode(ctx context.Context, email string, role domain.Role, code string, expiresAt time.Time) error
	FindValid(ctx context.Context, email string, role domain.Role, code string, now time.Time) (*domain.PasswordReset, error)
	MarkUsed(ctx context.Context, id int64) error
}

// PasswordStore is the account access PasswordService needs.
type PasswordStore interface {
	FindByEmailAndRole(ctx context.Context, email string, role domain.Role) (*domain.User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// PasswordService runs the forgot / verify / reset recovery flow.
type PasswordService struct {
	resets ResetStore
	users  PasswordStore
	mail   mailer.Mailer
	log    *slog.Logger
	now    func() time.Time
}

// NewPasswordService creates a new PasswordService.
func NewPasswordService(resets ResetStore, users PasswordStore, mail mailer.Mailer, log *slog.Logger) *PasswordService {
	return &PasswordService{resets: resets, users: users, mail: mail, log: log, now: time.Now}
}

// Forgot issues a fresh 6-digit code and emails it. Whether the account
// exists is never revealed: unknown emails succeed silently.
func (s *PasswordService) Forgot(ctx context.Context, email string, role domain.Role) error {
	if _, err := s.users.FindByEmailAndRole(ctx, email, role); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	code, err := GenerateOTP(6)
	if err != nil {
		return err
	}
	if err := s.resets.IssueCode(ctx, email, role, code, s.now().Add(resetCodeTTL)); err != nil {
		return err
	}

	body := fmt.Sprintf("Your recovery code is: %s. It expires in 15 minutes. If you did not request this, ignore this message.", code)
	if err := s.mail.Send(ctx, email, "Password recovery", body); err != nil {
		s.log.Error("send recovery email failed", "email", email, "error", err)
	}
	return nil
}

// Verify checks a code without burning it, so clients can gate the new
// password form.
func (s *PasswordService) Verify(ctx context.Context, email string, role domain.Role, code string) error {
	if _, err := s.resets.FindValid(ctx, email, role, code, s.now()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: invalid or expired code", domain.ErrInvalidInput)
		}
		return err
	}
	return nil
}

// Reset burns a valid code and replaces the account password.
func (s *PasswordService) Reset(ctx context.Context, email string, role domain.Role, code, newPassword string) error {
	reset, err := s.resets.FindValid(ctx, email, role, code, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: invalid or expired code", domain.ErrInvalidInput)
		}
		return err
	}

	user, err := s.users.FindByEmailAndRole(ctx, email, role)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	return s.resets.MarkUsed(ctx, reset.ID)
}

// GenerateOTP returns a random numeric code of n digits.
func GenerateOTP(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		digits[i] = byte('0' + v.Int64())
	}
	return string(digits), nil
}
