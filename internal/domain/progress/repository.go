package progress

import (
	"context"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ──────────────────────────────────────────────────────────────────────────────

// Repository stores skill progress records per learner.
type Repository interface {
	// Get returns the record for a learner and skill.
	// Returns shared.ErrSkillProgressNotFound when the skill was never started.
	Get(ctx context.Context, learnerID, skillID string) (*SkillProgress, error)

	// List returns every record of a learner ordered by skill ID.
	List(ctx context.Context, learnerID string) ([]SkillProgress, error)

	// Save inserts or replaces the record (last write wins).
	Save(ctx context.Context, learnerID string, p *SkillProgress) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, learnerID, skillID string) error

	// TopBySkill returns the best records for a skill across learners,
	// ordered by best score desc then total time asc.
	TopBySkill(ctx context.Context, skillID string, limit int) ([]LeaderboardEntry, error)

	// RecordChatSession marks a chat session as counted. It returns false
	// when the session was already recorded for this learner and skill.
	RecordChatSession(ctx context.Context, learnerID, skillID, sessionID string) (bool, error)

	// ForgetChatSessions drops the session ledger of a skill on reset.
	ForgetChatSessions(ctx context.Context, learnerID, skillID string) error
}

// StarRepository stores server-side star awards.
type StarRepository interface {
	// Insert creates the award unless one exists for the key. It reports
	// whether a row was created and returns the stored award either way.
	Insert(ctx context.Context, learnerID string, award StarAward) (StarAward, bool, error)

	// List returns a learner's awards ordered by award time.
	List(ctx context.Context, learnerID string) ([]StarAward, error)

	// Count returns the number of distinct awards of a learner.
	Count(ctx context.Context, learnerID string) (int, error)
}

// LeaderboardCache is an optional cache in front of Repository.TopBySkill.
type LeaderboardCache interface {
	Get(ctx context.Context, skillID string, limit int) ([]LeaderboardEntry, bool, error)
	Set(ctx context.Context, skillID string, limit int, entries []LeaderboardEntry, ttl time.Duration) error
	Invalidate(ctx context.Context, skillID string) error
}
