package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
)

// ProgressRepository implements progress.Repository.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a progress repository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

var _ progress.Repository = (*ProgressRepository)(nil)

const progressColumns = `
	skill_id,
	patient_completed, completed_steps, total_steps, best_score, attempts, patient_time_spent,
	chat_completed, sessions_completed, total_sessions, average_rating, chat_time_spent,
	completion_percentage, is_completed, total_time_spent, last_updated_at`

func scanProgress(row pgx.Row) (*progress.SkillProgress, error) {
	var (
		p     progress.SkillProgress
		steps []byte
	)
	ps, cs, op := &p.PatientSimProgress, &p.ChatSimProgress, &p.OverallProgress
	err := row.Scan(
		&p.SkillID,
		&ps.IsCompleted, &steps, &ps.TotalSteps, &ps.BestScore, &ps.Attempts, &ps.TimeSpent,
		&cs.IsCompleted, &cs.SessionsCompleted, &cs.TotalSessions, &cs.AverageRating, &cs.TimeSpent,
		&op.CompletionPercentage, &op.IsCompleted, &op.TotalTimeSpent, &op.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &ps.CompletedSteps); err != nil {
		return nil, fmt.Errorf("decode completed steps: %w", err)
	}
	if ps.CompletedSteps == nil {
		ps.CompletedSteps = []string{}
	}
	op.LastUpdatedAt = op.LastUpdatedAt.UTC()
	return &p, nil
}

// Get returns the record of a learner's skill.
func (r *ProgressRepository) Get(ctx context.Context, learnerID, skillID string) (*progress.SkillProgress, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT`+progressColumns+` FROM skill_progress WHERE learner_id = $1 AND skill_id = $2`,
		learnerID, skillID)

	p, err := scanProgress(row)
	if IsNoRows(err) {
		return nil, shared.ErrSkillProgressNotFound
	}
	if err != nil {
		return nil, shared.WrapError("progress", "Get", shared.ErrStorage, "query skill progress", err)
	}
	return p, nil
}

// List returns every record of a learner ordered by skill ID.
func (r *ProgressRepository) List(ctx context.Context, learnerID string) ([]progress.SkillProgress, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT`+progressColumns+` FROM skill_progress WHERE learner_id = $1 ORDER BY skill_id`,
		learnerID)
	if err != nil {
		return nil, shared.WrapError("progress", "List", shared.ErrStorage, "query skill progress", err)
	}
	defer rows.Close()

	out := []progress.SkillProgress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, shared.WrapError("progress", "List", shared.ErrStorage, "scan skill progress", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("progress", "List", shared.ErrStorage, "iterate skill progress", err)
	}
	return out, nil
}

// Save upserts the record.
func (r *ProgressRepository) Save(ctx context.Context, learnerID string, p *progress.SkillProgress) error {
	steps, err := json.Marshal(p.PatientSimProgress.CompletedSteps)
	if err != nil {
		return fmt.Errorf("encode completed steps: %w", err)
	}
	ps, cs, op := p.PatientSimProgress, p.ChatSimProgress, p.OverallProgress

	_, err = r.conn.Exec(ctx, `
		INSERT INTO skill_progress (learner_id,`+progressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (learner_id, skill_id) DO UPDATE SET
			patient_completed = EXCLUDED.patient_completed,
			completed_steps = EXCLUDED.completed_steps,
			total_steps = EXCLUDED.total_steps,
			best_score = EXCLUDED.best_score,
			attempts = EXCLUDED.attempts,
			patient_time_spent = EXCLUDED.patient_time_spent,
			chat_completed = EXCLUDED.chat_completed,
			sessions_completed = EXCLUDED.sessions_completed,
			total_sessions = EXCLUDED.total_sessions,
			average_rating = EXCLUDED.average_rating,
			chat_time_spent = EXCLUDED.chat_time_spent,
			completion_percentage = EXCLUDED.completion_percentage,
			is_completed = EXCLUDED.is_completed,
			total_time_spent = EXCLUDED.total_time_spent,
			last_updated_at = EXCLUDED.last_updated_at`,
		learnerID, p.SkillID,
		ps.IsCompleted, steps, ps.TotalSteps, ps.BestScore, ps.Attempts, ps.TimeSpent,
		cs.IsCompleted, cs.SessionsCompleted, cs.TotalSessions, cs.AverageRating, cs.TimeSpent,
		op.CompletionPercentage, op.IsCompleted, op.TotalTimeSpent, op.LastUpdatedAt,
	)
	if err != nil {
		return shared.WrapError("progress", "Save", shared.ErrStorage, "upsert skill progress", err)
	}
	return nil
}

// Delete removes a record.
func (r *ProgressRepository) Delete(ctx context.Context, learnerID, skillID string) error {
	_, err := r.conn.Exec(ctx,
		`DELETE FROM skill_progress WHERE learner_id = $1 AND skill_id = $2`, learnerID, skillID)
	if err != nil {
		return shared.WrapError("progress", "Delete", shared.ErrStorage, "delete skill progress", err)
	}
	return nil
}

// TopBySkill ranks learners on a skill by best score, then by time spent.
func (r *ProgressRepository) TopBySkill(ctx context.Context, skillID string, limit int) ([]progress.LeaderboardEntry, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT learner_id, best_score, completion_percentage, total_time_spent, last_updated_at
		FROM skill_progress
		WHERE skill_id = $1
		ORDER BY best_score DESC, total_time_spent ASC, learner_id ASC
		LIMIT $2`, skillID, limit)
	if err != nil {
		return nil, shared.WrapError("progress", "TopBySkill", shared.ErrStorage, "query leaderboard", err)
	}
	defer rows.Close()

	out := []progress.LeaderboardEntry{}
	for rows.Next() {
		e := progress.LeaderboardEntry{Rank: len(out) + 1}
		if err := rows.Scan(&e.LearnerID, &e.BestScore, &e.CompletionPercentage, &e.TotalTimeSpent, &e.LastUpdatedAt); err != nil {
			return nil, shared.WrapError("progress", "TopBySkill", shared.ErrStorage, "scan leaderboard", err)
		}
		e.LastUpdatedAt = e.LastUpdatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordChatSession inserts the session into the ledger.
func (r *ProgressRepository) RecordChatSession(ctx context.Context, learnerID, skillID, sessionID string) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO chat_sessions (learner_id, skill_id, session_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, learnerID, skillID, sessionID)
	if err != nil {
		return false, shared.WrapError("progress", "RecordChatSession", shared.ErrStorage, "insert chat session", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ForgetChatSessions clears the ledger of a skill.
func (r *ProgressRepository) ForgetChatSessions(ctx context.Context, learnerID, skillID string) error {
	_, err := r.conn.Exec(ctx,
		`DELETE FROM chat_sessions WHERE learner_id = $1 AND skill_id = $2`, learnerID, skillID)
	if err != nil {
		return shared.WrapError("progress", "ForgetChatSessions", shared.ErrStorage, "delete chat sessions", err)
	}
	return nil
}
