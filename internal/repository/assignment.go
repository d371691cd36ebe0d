package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/stressless/internal/domain"
)

// AssignmentRepository handles the leader-collaborator relation and the
// invitations that establish it.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ActiveLeaderFor returns the active assignment for a collaborator, or
// domain.ErrNotFound when nobody supervises them.
func (r *AssignmentRepository) ActiveLeaderFor(ctx context.Context, collaboratorID int64) (*domain.Assignment, error) {
	var a domain.Assignment
	err := r.db.GetContext(ctx, &a,
		`SELECT id, leader_id, collaborator_id, status, started_at, ended_at
		 FROM assignments
		 WHERE collaborator_id = $1 AND status = $2
		 ORDER BY started_at DESC, id DESC
		 LIMIT 1`,
		collaboratorID, domain.AssignmentActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("active leader for collaborator %d: %w", collaboratorID, err)
	}
	return &a, nil
}

// Activate creates an active assignment between a leader and a collaborator.
func (r *AssignmentRepository) Activate(ctx context.Context, leaderID, collaboratorID int64) (*domain.Assignment, error) {
	var a domain.Assignment
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO assignments (leader_id, collaborator_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, leader_id, collaborator_id, status, started_at, ended_at`,
		leaderID, collaboratorID, domain.AssignmentActive,
	).StructScan(&a)
	if err != nil {
		return nil, fmt.Errorf("activate assignment (%d, %d): %w", leaderID, collaboratorID, err)
	}
	return &a, nil
}

// TeamOf lists the collaborators actively assigned to a leader.
func (r *AssignmentRepository) TeamOf(ctx context.Context, leaderID int64) ([]domain.User, error) {
	var users []domain.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT u.id, u.name, u.email, u.password_hash, u.role, u.active, u.created_at, u.updated_at
		 FROM users u
		 JOIN assignments a ON a.collaborator_id = u.id
		 WHERE a.leader_id = $1 AND a.status = $2 AND u.active
		 ORDER BY u.name, u.id`,
		leaderID, domain.AssignmentActive)
	if err != nil {
		return nil, fmt.Errorf("team of leader %d: %w", leaderID, err)
	}
	return users, nil
}

// CreateInvitation records a pending invitation.
func (r *AssignmentRepository) CreateInvitation(ctx context.Context, inv domain.Invitation) (*domain.Invitation, error) {
	var result domain.Invitation
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO invitations (leader_id, name, email, code, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, leader_id, name, email, code, status, sent_at, responded_at`,
		inv.LeaderID, inv.Name, strings.ToLower(inv.Email), inv.Code, domain.InvitationPending,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	return &result, nil
}

// FindPendingInvitation looks up a pending invitation by email and code.
func (r *AssignmentRepository) FindPendingInvitation(ctx context.Context, email, code string) (*domain.Invitation, error) {
	var inv domain.Invitation
	err := r.db.GetContext(ctx, &inv,
		`SELECT id, leader_id, name, email, code, status, sent_at, responded_at
		 FROM invitations
		 WHERE email = $1 AND code = $2 AND status = $3
		 ORDER BY sent_at DESC, id DESC
		 LIMIT 1`,
		strings.ToLower(email), code, domain.InvitationPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find pending invitation for %s: %w", email, err)
	}
	return &inv, nil
}

// AcceptInvitation marks an invitation accepted.
func (r *AssignmentRepository) AcceptInvitation(ctx context.Context, id int64, respondedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET status = $1, responded_at = $2 WHERE id = $3 AND status = $4`,
		domain.InvitationAccepted, respondedAt.UTC(), id, domain.InvitationPending)
	if err != nil {
		return fmt.Errorf("accept invitation %d: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrInvalidState
	}
	return nil
}
