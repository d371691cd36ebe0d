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

// TestRepository handles stress tests and the collaborator pending queue.
type TestRepository struct {
	db *sqlx.DB
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(db *sqlx.DB) *TestRepository {
	return &TestRepository{db: db}
}

const testColumns = `id, collaborator_id, registered_at, completed_at, state, outcome`

// headOfQueue is the FIFO selection shared by reads and completion:
// registration date first, creation order as the tie-break.
const headOfQueue = `
	SELECT ` + testColumns + ` FROM stress_tests
	WHERE collaborator_id = $1 AND state = $2
	ORDER BY registered_at, id`

// NextPending returns the oldest pending test for a collaborator, or
// domain.ErrNotFound when the queue is empty.
func (r *TestRepository) NextPending(ctx context.Context, collaboratorID int64) (*domain.StressTest, error) {
	var test domain.StressTest
	err := r.db.GetContext(ctx, &test, headOfQueue+` LIMIT 1`,
		collaboratorID, domain.TestStatePending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("next pending test for collaborator %d: %w", collaboratorID, err)
	}
	return &test, nil
}

// ListPending returns the whole pending backlog in queue order, each entry
// carrying its earliest linked notification if one exists.
func (r *TestRepository) ListPending(ctx context.Context, collaboratorID int64) ([]domain.PendingTest, error) {
	var tests []domain.StressTest
	err := r.db.SelectContext(ctx, &tests, headOfQueue,
		collaboratorID, domain.TestStatePending)
	if err != nil {
		return nil, fmt.Errorf("list pending tests for collaborator %d: %w", collaboratorID, err)
	}

	out := make([]domain.PendingTest, 0, len(tests))
	for _, test := range tests {
		var notifID int64
		err := r.db.GetContext(ctx, &notifID,
			`SELECT id FROM notifications WHERE test_id = $1 ORDER BY created_at, id LIMIT 1`,
			test.ID)
		entry := domain.PendingTest{Test: test}
		switch {
		case err == nil:
			entry.NotificationID = &notifID
		case errors.Is(err, sql.ErrNoRows):
			// test without a surviving notification, still listed
		default:
			return nil, fmt.Errorf("notification for test %d: %w", test.ID, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// CompleteNext closes out the head of the collaborator's queue: it re-derives
// the oldest pending test, records the outcome, and marks every unread
// notification for that test read, in one transaction. Returns
// domain.ErrNoPendingTest when the queue is empty.
func (r *TestRepository) CompleteNext(ctx context.Context, collaboratorID int64, outcome bool, now time.Time) (*domain.StressTest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin completion: %w", err)
	}
	defer tx.Rollback()

	var test domain.StressTest
	err = tx.GetContext(ctx, &test, headOfQueue+` LIMIT 1 FOR UPDATE`,
		collaboratorID, domain.TestStatePending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNoPendingTest
		}
		return nil, fmt.Errorf("select head of queue for collaborator %d: %w", collaboratorID, err)
	}

	completedAt := now.UTC()
	err = tx.QueryRowxContext(ctx,
		`UPDATE stress_tests SET state = $1, outcome = $2, completed_at = $3
		 WHERE id = $4
		 RETURNING `+testColumns,
		domain.TestStateCompleted, outcome, completedAt, test.ID,
	).StructScan(&test)
	if err != nil {
		return nil, fmt.Errorf("complete test %d: %w", test.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE test_id = $1 AND NOT read`,
		test.ID); err != nil {
		return nil, fmt.Errorf("mark notifications read for test %d: %w", test.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit completion of test %d: %w", test.ID, err)
	}
	return &test, nil
}

// LastCompleted returns the collaborator's most recently completed tests,
// newest first, up to limit.
func (r *TestRepository) LastCompleted(ctx context.Context, collaboratorID int64, limit int) ([]domain.StressTest, error) {
	var tests []domain.StressTest
	err := r.db.SelectContext(ctx, &tests,
		`SELECT `+testColumns+` FROM stress_tests
		 WHERE collaborator_id = $1 AND state = $2
		 ORDER BY completed_at DESC, id DESC
		 LIMIT $3`,
		collaboratorID, domain.TestStateCompleted, limit)
	if err != nil {
		return nil, fmt.Errorf("last completed tests for collaborator %d: %w", collaboratorID, err)
	}
	return tests, nil
}

// History returns every test for a collaborator, oldest first.
func (r *TestRepository) History(ctx context.Context, collaboratorID int64) ([]domain.StressTest, error) {
	var tests []domain.StressTest
	err := r.db.SelectContext(ctx, &tests,
		`SELECT `+testColumns+` FROM stress_tests
		 WHERE collaborator_id = $1
		 ORDER BY registered_at, id`,
		collaboratorID)
	if err != nil {
		return nil, fmt.Errorf("test history for collaborator %d: %w", collaboratorID, err)
	}
	return tests, nil
}

// CreateWithNotification registers a new pending test together with its
// notification in one transaction, preserving the invariant that no test
// exists without its prompt. Used for direct leader-initiated tests; the
// scheduler path goes through ScheduleRepository.Dispatch.
func (r *TestRepository) CreateWithNotification(ctx context.Context, collaboratorID int64, registeredAt time.Time, message string) (*domain.StressTest, *domain.Notification, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin test creation: %w", err)
	}
	defer tx.Rollback()

	var test domain.StressTest
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO stress_tests (collaborator_id, registered_at, state)
		 VALUES ($1, $2, $3)
		 RETURNING `+testColumns,
		collaboratorID, registeredAt.UTC(), domain.TestStatePending,
	).StructScan(&test)
	if err != nil {
		return nil, nil, fmt.Errorf("insert test: %w", err)
	}

	var notif domain.Notification
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO notifications (collaborator_id, test_id, message)
		 VALUES ($1, $2, $3)
		 RETURNING id, collaborator_id, test_id, message, read, created_at`,
		collaboratorID, test.ID, message,
	).StructScan(&notif)
	if err != nil {
		return nil, nil, fmt.Errorf("insert notification for test %d: %w", test.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit test creation: %w", err)
	}
	return &test, &notif, nil
}
