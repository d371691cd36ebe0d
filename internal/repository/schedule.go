package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sumire/stressless/internal/domain"
)

// ScheduleRepository handles schedule records and their dispatch into live
// tests.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, leader_id, collaborator_id, scheduled_at, state, created_at, processed_at`

// InsertQueued stores one queued schedule record.
func (r *ScheduleRepository) InsertQueued(ctx context.Context, leaderID, collaboratorID int64, scheduledAt time.Time) (*domain.ScheduleRecord, error) {
	var rec domain.ScheduleRecord
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO schedule_records (leader_id, collaborator_id, scheduled_at, state)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+scheduleColumns,
		leaderID, collaboratorID, scheduledAt.UTC(), domain.ScheduleStateQueued,
	).StructScan(&rec)
	if err != nil {
		return nil, fmt.Errorf("insert schedule record: %w", err)
	}
	return &rec, nil
}

// FindByID retrieves a schedule record.
func (r *ScheduleRepository) FindByID(ctx context.Context, id int64) (*domain.ScheduleRecord, error) {
	var rec domain.ScheduleRecord
	err := r.db.GetContext(ctx, &rec,
		`SELECT `+scheduleColumns+` FROM schedule_records WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find schedule record %d: %w", id, err)
	}
	return &rec, nil
}

// CancelQueued transitions a record to Cancelled if and only if it is still
// Queued. A dispatch racing this call loses or wins on the state column alone.
func (r *ScheduleRepository) CancelQueued(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE schedule_records SET state = $1 WHERE id = $2 AND state = $3`,
		domain.ScheduleStateCancelled, id, domain.ScheduleStateQueued)
	if err != nil {
		return fmt.Errorf("cancel schedule record %d: %w", id, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// FindDue returns all Queued records whose scheduled instant is at or before
// now, oldest first.
func (r *ScheduleRepository) FindDue(ctx context.Context, now time.Time) ([]domain.ScheduleRecord, error) {
	var recs []domain.ScheduleRecord
	err := r.db.SelectContext(ctx, &recs,
		`SELECT `+scheduleColumns+` FROM schedule_records
		 WHERE state = $1 AND scheduled_at <= $2
		 ORDER BY scheduled_at, id`,
		domain.ScheduleStateQueued, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("find due schedule records: %w", err)
	}
	return recs, nil
}

// ListUpcoming returns a leader's Queued records inside [from, to], soonest
// first.
func (r *ScheduleRepository) ListUpcoming(ctx context.Context, leaderID int64, from, to time.Time) ([]domain.ScheduleRecord, error) {
	var recs []domain.ScheduleRecord
	err := r.db.SelectContext(ctx, &recs,
		`SELECT `+scheduleColumns+` FROM schedule_records
		 WHERE leader_id = $1 AND state = $2 AND scheduled_at BETWEEN $3 AND $4
		 ORDER BY scheduled_at, id`,
		leaderID, domain.ScheduleStateQueued, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list upcoming schedule records: %w", err)
	}
	return recs, nil
}

// Dispatch materializes one due record into a pending test plus its
// notification and marks the record Dispatched, all in a single transaction.
// The state flip is conditional on the record still being Queued, so a record
// cancelled or dispatched concurrently yields domain.ErrInvalidState and no
// writes.
func (r *ScheduleRepository) Dispatch(ctx context.Context, rec domain.ScheduleRecord, now time.Time, message string) (*domain.StressTest, *domain.Notification, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin dispatch: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE schedule_records SET state = $1, processed_at = $2
		 WHERE id = $3 AND state = $4`,
		domain.ScheduleStateDispatched, now.UTC(), rec.ID, domain.ScheduleStateQueued)
	if err != nil {
		return nil, nil, fmt.Errorf("mark schedule record %d dispatched: %w", rec.ID, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, nil, domain.ErrInvalidState
	}

	var test domain.StressTest
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO stress_tests (collaborator_id, registered_at, state)
		 VALUES ($1, $2, $3)
		 RETURNING id, collaborator_id, registered_at, completed_at, state, outcome`,
		rec.CollaboratorID, now.UTC(), domain.TestStatePending,
	).StructScan(&test)
	if err != nil {
		return nil, nil, fmt.Errorf("insert test for schedule record %d: %w", rec.ID, err)
	}

	var notif domain.Notification
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO notifications (collaborator_id, test_id, message)
		 VALUES ($1, $2, $3)
		 RETURNING id, collaborator_id, test_id, message, read, created_at`,
		rec.CollaboratorID, test.ID, message,
	).StructScan(&notif)
	if err != nil {
		return nil, nil, fmt.Errorf("insert notification for test %d: %w", test.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit dispatch of schedule record %d: %w", rec.ID, err)
	}
	return &test, &notif, nil
}
