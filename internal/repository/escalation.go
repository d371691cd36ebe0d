package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/stressless/internal/domain"
)

// EscalationRepository handles leader-facing stress streak alerts.
type EscalationRepository struct {
	db *sqlx.DB
}

// NewEscalationRepository creates a new EscalationRepository.
func NewEscalationRepository(db *sqlx.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

const escalationColumns = `id, leader_id, collaborator_id, streak_length, message, read, created_at`

// ExistsSince reports whether an escalation of at least minStreak already
// covers the streak whose third completion happened at since, for the given
// leader-collaborator pair.
func (r *EscalationRepository) ExistsSince(ctx context.Context, leaderID, collaboratorID int64, minStreak int, since time.Time) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (
			SELECT 1 FROM leader_escalations
			WHERE leader_id = $1 AND collaborator_id = $2
			  AND streak_length >= $3 AND created_at >= $4
		 )`,
		leaderID, collaboratorID, minStreak, since.UTC())
	if err != nil {
		return false, fmt.Errorf("check escalation for pair (%d, %d): %w", leaderID, collaboratorID, err)
	}
	return exists, nil
}

// Create inserts a new escalation.
func (r *EscalationRepository) Create(ctx context.Context, esc domain.LeaderEscalation) (*domain.LeaderEscalation, error) {
	var result domain.LeaderEscalation
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO leader_escalations (leader_id, collaborator_id, streak_length, message)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+escalationColumns,
		esc.LeaderID, esc.CollaboratorID, esc.StreakLength, esc.Message,
	).StructScan(&result)
	if err != nil {
		return nil, fmt.Errorf("create escalation: %w", err)
	}
	return &result, nil
}

// ListForLeader returns a leader's escalations, newest first.
func (r *EscalationRepository) ListForLeader(ctx context.Context, leaderID int64) ([]domain.LeaderEscalation, error) {
	var escs []domain.LeaderEscalation
	err := r.db.SelectContext(ctx, &escs,
		`SELECT `+escalationColumns+` FROM leader_escalations
		 WHERE leader_id = $1
		 ORDER BY created_at DESC, id DESC`,
		leaderID)
	if err != nil {
		return nil, fmt.Errorf("list escalations for leader %d: %w", leaderID, err)
	}
	return escs, nil
}

// MarkRead acknowledges one escalation owned by the leader.
func (r *EscalationRepository) MarkRead(ctx context.Context, id, leaderID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leader_escalations SET read = TRUE WHERE id = $1 AND leader_id = $2`,
		id, leaderID)
	if err != nil {
		return fmt.Errorf("mark escalation %d read: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
