package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations, applied at startup.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	active        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (email, role)
);

CREATE TABLE IF NOT EXISTS assignments (
	id              BIGSERIAL PRIMARY KEY,
	leader_id       BIGINT NOT NULL REFERENCES users(id),
	collaborator_id BIGINT NOT NULL REFERENCES users(id),
	status          TEXT NOT NULL DEFAULT 'active',
	started_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	ended_at        TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_assignments_collaborator
	ON assignments(collaborator_id, status);

CREATE TABLE IF NOT EXISTS invitations (
	id           BIGSERIAL PRIMARY KEY,
	leader_id    BIGINT NOT NULL REFERENCES users(id),
	name         TEXT NOT NULL,
	email        TEXT NOT NULL,
	code         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	sent_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	responded_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS schedule_records (
	id              BIGSERIAL PRIMARY KEY,
	leader_id       BIGINT NOT NULL REFERENCES users(id),
	collaborator_id BIGINT NOT NULL REFERENCES users(id),
	scheduled_at    TIMESTAMPTZ NOT NULL,
	state           TEXT NOT NULL DEFAULT 'queued',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_schedule_records_due
	ON schedule_records(state, scheduled_at);

CREATE TABLE IF NOT EXISTS stress_tests (
	id              BIGSERIAL PRIMARY KEY,
	collaborator_id BIGINT NOT NULL REFERENCES users(id),
	registered_at   DATE NOT NULL,
	completed_at    TIMESTAMPTZ,
	state           TEXT NOT NULL DEFAULT 'pending',
	outcome         BOOLEAN
);
CREATE INDEX IF NOT EXISTS idx_stress_tests_queue
	ON stress_tests(collaborator_id, state, registered_at, id);

CREATE TABLE IF NOT EXISTS notifications (
	id              BIGSERIAL PRIMARY KEY,
	collaborator_id BIGINT NOT NULL REFERENCES users(id),
	test_id         BIGINT NOT NULL REFERENCES stress_tests(id),
	message         TEXT NOT NULL,
	read            BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_notifications_test ON notifications(test_id);

CREATE TABLE IF NOT EXISTS leader_escalations (
	id              BIGSERIAL PRIMARY KEY,
	leader_id       BIGINT NOT NULL REFERENCES users(id),
	collaborator_id BIGINT NOT NULL REFERENCES users(id),
	streak_length   INTEGER NOT NULL,
	message         TEXT NOT NULL,
	read            BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_leader_escalations_pair
	ON leader_escalations(leader_id, collaborator_id, created_at);

CREATE TABLE IF NOT EXISTS password_resets (
	id         BIGSERIAL PRIMARY KEY,
	email      TEXT NOT NULL,
	role       TEXT NOT NULL,
	code       TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	used       BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
}

// Migrate applies any outstanding schema migrations in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	var current int
	err := db.GetContext(ctx, &current, `
		SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err != nil {
		// First run: the version table itself does not exist yet.
		current = 0
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version) VALUES ($1)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
