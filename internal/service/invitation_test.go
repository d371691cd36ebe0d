package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/stressless/internal/domain"
)

type fakeInvitationStore struct {
	invitations []*domain.Invitation
	assignments []domain.Assignment
	nextID      int64
}

func (s *fakeInvitationStore) CreateInvitation(_ context.Context, inv domain.Invitation) (*domain.Invitation, error) {
	s.nextID++
	inv.ID = s.nextID
	inv.Status = domain.InvitationPending
	s.invitations = append(s.invitations, &inv)
	cp := inv
	return &cp, nil
}

func (s *fakeInvitationStore) FindPendingInvitation(_ context.Context, email, code string) (*domain.Invitation, error) {
	for _, inv := range s.invitations {
		if inv.Email == email && inv.Code == code && inv.Status == domain.InvitationPending {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeInvitationStore) AcceptInvitation(_ context.Context, id int64, _ time.Time) error {
	for _, inv := range s.invitations {
		if inv.ID == id && inv.Status == domain.InvitationPending {
			inv.Status = domain.InvitationAccepted
			return nil
		}
	}
	return domain.ErrInvalidState
}

func (s *fakeInvitationStore) Activate(_ context.Context, leaderID, collaboratorID int64) (*domain.Assignment, error) {
	a := domain.Assignment{
		ID:             int64(len(s.assignments) + 1),
		LeaderID:       leaderID,
		CollaboratorID: collaboratorID,
		Status:         domain.AssignmentActive,
	}
	s.assignments = append(s.assignments, a)
	return &a, nil
}

func (s *fakeInvitationStore) TeamOf(_ context.Context, leaderID int64) ([]domain.User, error) {
	return nil, nil
}

func TestInviteAndAccept(t *testing.T) {
	store := &fakeInvitationStore{}
	users := newFakeUserStore()
	mail := &recordingMailer{}
	svc := NewInvitationService(store, users, mail, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	inv, err := svc.Invite(ctx, 1, "Rosa Quispe", "rosa@example.com")
	require.NoError(t, err)
	assert.Len(t, inv.Code, 6)
	require.Len(t, mail.sent, 1)
	assert.Contains(t, mail.body, inv.Code)

	user, err := svc.Accept(ctx, "rosa@example.com", inv.Code, "rosas-secret-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCollaborator, user.Role)
	assert.Equal(t, "Rosa Quispe", user.Name)

	require.Len(t, store.assignments, 1)
	assert.Equal(t, int64(1), store.assignments[0].LeaderID)
	assert.Equal(t, user.ID, store.assignments[0].CollaboratorID)
	assert.Equal(t, domain.InvitationAccepted, store.invitations[0].Status)
}

func TestAcceptRejectsWrongCode(t *testing.T) {
	store := &fakeInvitationStore{}
	svc := NewInvitationService(store, newFakeUserStore(), &recordingMailer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	_, err := svc.Invite(ctx, 1, "Rosa Quispe", "rosa@example.com")
	require.NoError(t, err)

	_, err = svc.Accept(ctx, "rosa@example.com", "000000", "rosas-secret-1")
	if err == nil {
		t.Skip("generated code happened to be 000000")
	}
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, store.assignments)
}

func TestAcceptReusesExistingCollaborator(t *testing.T) {
	store := &fakeInvitationStore{}
	users := newFakeUserStore()
	svc := NewInvitationService(store, users, &recordingMailer{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	existing, err := users.Create(ctx, domain.User{
		Name: "Rosa Quispe", Email: "rosa@example.com", Role: domain.RoleCollaborator,
	})
	require.NoError(t, err)

	inv, err := svc.Invite(ctx, 2, "Rosa Quispe", "rosa@example.com")
	require.NoError(t, err)

	user, err := svc.Accept(ctx, "rosa@example.com", inv.Code, "ignored-password")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, user.ID)
	require.Len(t, store.assignments, 1)
	assert.Equal(t, int64(2), store.assignments[0].LeaderID)
}
