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

// ResetRepository handles one-time password recovery codes.
type ResetRepository struct {
	db *sqlx.DB
}

// NewResetRepository creates a new ResetRepository.
func NewResetRepository(db *sqlx.DB) *ResetRepository {
	return &ResetRepository{db: db}
}

// IssueCode invalidates every outstanding code for the account and stores a
// fresh one, in a single transaction.
func (r *ResetRepository) IssueCode(ctx context.Context, email string, role domain.Role, code string, expiresAt time.Time) error {
	email = strings.ToLower(email)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset issue: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE password_resets SET used = TRUE WHERE email = $1 AND role = $2 AND NOT used`,
		email, role); err != nil {
		return fmt.Errorf("invalidate previous reset codes: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO password_resets (email, role, code, expires_at) VALUES ($1, $2, $3, $4)`,
		email, role, code, expiresAt.UTC()); err != nil {
		return fmt.Errorf("insert reset code: %w", err)
	}

	return tx.Commit()
}

// FindValid returns the newest unused, unexpired code matching the request,
// or domain.ErrNotFound.
func (r *ResetRepository) FindValid(ctx context.Context, email string, role domain.Role, code string, now time.Time) (*domain.PasswordReset, error) {
	var reset domain.PasswordReset
	err := r.db.GetContext(ctx, &reset,
		`SELECT id, email, role, code, expires_at, used, created_at
		 FROM password_resets
		 WHERE email = $1 AND role = $2 AND code = $3 AND NOT used AND expires_at >= $4
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		strings.ToLower(email), role, code, now.UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find reset code for %s: %w", email, err)
	}
	return &reset, nil
}

// MarkUsed burns a code after a successful reset.
func (r *ResetRepository) MarkUsed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE password_resets SET used = TRUE WHERE id = $1 AND NOT used`, id)
	if err != nil {
		return fmt.Errorf("mark reset code %d used: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrInvalidState
	}
	return nil
}
