package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: SKILL PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS skill_progress (
    learner_id TEXT NOT NULL,
    skill_id TEXT NOT NULL,

    -- Patient simulation
    patient_completed BOOLEAN NOT NULL DEFAULT FALSE,
    completed_steps JSONB NOT NULL DEFAULT '[]'::jsonb,
    total_steps INTEGER NOT NULL DEFAULT 0,
    best_score INTEGER NOT NULL DEFAULT 0,
    attempts INTEGER NOT NULL DEFAULT 0,
    patient_time_spent INTEGER NOT NULL DEFAULT 0,

    -- Chat simulation
    chat_completed BOOLEAN NOT NULL DEFAULT FALSE,
    sessions_completed INTEGER NOT NULL DEFAULT 0,
    total_sessions INTEGER NOT NULL DEFAULT 1,
    average_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    chat_time_spent INTEGER NOT NULL DEFAULT 0,

    -- Overall
    completion_percentage INTEGER NOT NULL DEFAULT 0,
    is_completed BOOLEAN NOT NULL DEFAULT FALSE,
    total_time_spent INTEGER NOT NULL DEFAULT 0,
    last_updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (learner_id, skill_id),
    CONSTRAINT valid_total_steps CHECK (total_steps >= 0),
    CONSTRAINT valid_total_sessions CHECK (total_sessions >= 1),
    CONSTRAINT valid_completion CHECK (completion_percentage BETWEEN 0 AND 100)
);

-- Leaderboard: best score desc, time asc within a skill
CREATE INDEX IF NOT EXISTS idx_skill_progress_leaderboard
    ON skill_progress(skill_id, best_score DESC, total_time_spent ASC);
`

const migration001Down = `
DROP TABLE IF EXISTS skill_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: STAR AWARDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- The composite key is the only identity of an award.
CREATE TABLE IF NOT EXISTS star_awards (
    learner_id TEXT NOT NULL,
    skill_id TEXT NOT NULL,
    lesson_type TEXT NOT NULL,
    awarded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (learner_id, skill_id, lesson_type),
    CONSTRAINT valid_lesson_type CHECK (lesson_type IN ('chat', 'simulation'))
);

CREATE INDEX IF NOT EXISTS idx_star_awards_learner_time ON star_awards(learner_id, awarded_at);
`

const migration002Down = `
DROP TABLE IF EXISTS star_awards;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CHAT SESSION LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS chat_sessions (
    learner_id TEXT NOT NULL,
    skill_id TEXT NOT NULL,
    session_id TEXT NOT NULL,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (learner_id, skill_id, session_id)
);
`

const migration003Down = `
DROP TABLE IF EXISTS chat_sessions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrations returns the embedded migrations in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_skill_progress", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_star_awards", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_chat_sessions", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

const migrationsTable = "schema_migrations"

// Migrator applies embedded migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: Migrations()}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, "SELECT version, applied_at FROM "+migrationsTable+" ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies every pending migration, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO "+migrationsTable+" (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Rollback reverts the most recent migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		last = max(last, v)
	}
	if last == 0 {
		return nil
	}

	for _, mig := range m.migrations {
		if mig.Version != last {
			continue
		}
		return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return fmt.Errorf("failed to roll back migration %d: %w", last, err)
			}
			_, err := tx.Exec(ctx, "DELETE FROM "+migrationsTable+" WHERE version = $1", last)
			return err
		})
	}
	return fmt.Errorf("%w: unknown applied version %d", ErrMigrationFailed, last)
}

// Status reports which migrations are applied.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := applied[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}
