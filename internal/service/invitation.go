package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sumire/stressless/internal/domain"
	"github.com/sumire/stressless/internal/mailer"
)

// InvitationStore defines the invitation and assignment writes consumed by
// InvitationService.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv domain.Invitation) (*domain.Invitation, error)
	FindPendingInvitation(ctx context.Context, email, code string) (*domain.Invitation, error)
	AcceptInvitation(ctx context.Context, id int64, respondedAt time.Time) error
	Activate(ctx context.Context, leaderID, collaboratorID int64) (*domain.Assignment, error)
	TeamOf(ctx context.Context, leaderID int64) ([]domain.User, error)
}

// InvitationService runs the invite / accept flow that establishes the
// leader-collaborator relation.
type InvitationService struct {
	store InvitationStore
	users UserStore
	mail  mailer.Mailer
	log   *slog.Logger
	now   func() time.Time
}

// NewInvitationService creates a new InvitationService.
func NewInvitationService(store InvitationStore, users UserStore, mail mailer.Mailer, log *slog.Logger) *InvitationService {
	return &InvitationService{store: store, users: users, mail: mail, log: log, now: time.Now}
}

// Invite records a pending invitation and emails its one-time code.
func (s *InvitationService) Invite(ctx context.Context, leaderID int64, name, email string) (*domain.Invitation, error) {
	code, err := GenerateOTP(6)
	if err != nil {
		return nil, err
	}

	inv, err := s.store.CreateInvitation(ctx, domain.Invitation{
		LeaderID: leaderID,
		Name:     name,
		Email:    email,
		Code:     code,
	})
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf("You have been invited to the StressLess workplace stress app. Use this code to accept the invitation: %s", code)
	if err := s.mail.Send(ctx, email, "Invitation to StressLess", body); err != nil {
		s.log.Error("send invitation email failed", "email", email, "error", err)
	}
	return inv, nil
}

// Accept validates the emailed code, registers the collaborator account, and
// activates the assignment to the inviting leader. The new account reuses any
// existing collaborator registered under the email.
func (s *InvitationService) Accept(ctx context.Context, email, code, password string) (*domain.User, error) {
	inv, err := s.store.FindPendingInvitation(ctx, email, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid invitation code", domain.ErrInvalidInput)
		}
		return nil, err
	}

	user, err := s.users.FindByEmailAndRole(ctx, email, domain.RoleCollaborator)
	if errors.Is(err, domain.ErrNotFound) {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if hashErr != nil {
			return nil, fmt.Errorf("hash password: %w", hashErr)
		}
		user, err = s.users.Create(ctx, domain.User{
			Name:         inv.Name,
			Email:        email,
			PasswordHash: string(hash),
			Role:         domain.RoleCollaborator,
		})
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.AcceptInvitation(ctx, inv.ID, s.now()); err != nil {
		return nil, err
	}
	if _, err := s.store.Activate(ctx, inv.LeaderID, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

// Team lists the collaborators actively assigned to a leader.
func (s *InvitationService) Team(ctx context.Context, leaderID int64) ([]domain.User, error) {
	return s.store.TeamOf(ctx, leaderID)
}
