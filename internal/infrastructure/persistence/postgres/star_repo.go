package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
)

// StarRepository implements progress.StarRepository. The table's primary
// key makes a second insert for the same key a no-op.
type StarRepository struct {
	conn *Connection
}

// NewStarRepository creates a star repository.
func NewStarRepository(conn *Connection) *StarRepository {
	return &StarRepository{conn: conn}
}

var _ progress.StarRepository = (*StarRepository)(nil)

// Insert creates the award unless it exists, returning the stored row.
func (r *StarRepository) Insert(ctx context.Context, learnerID string, award progress.StarAward) (progress.StarAward, bool, error) {
	var (
		stored  progress.StarAward
		created bool
	)
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO star_awards (learner_id, skill_id, lesson_type, awarded_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (learner_id, skill_id, lesson_type) DO NOTHING`,
			learnerID, award.SkillID, string(award.LessonType), award.AwardedAt)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1

		var lt string
		err = tx.QueryRow(ctx, `
			SELECT skill_id, lesson_type, awarded_at FROM star_awards
			WHERE learner_id = $1 AND skill_id = $2 AND lesson_type = $3`,
			learnerID, award.SkillID, string(award.LessonType),
		).Scan(&stored.SkillID, &lt, &stored.AwardedAt)
		stored.LessonType = progress.LessonType(lt)
		stored.AwardedAt = stored.AwardedAt.UTC()
		return err
	})
	if err != nil {
		return progress.StarAward{}, false, shared.WrapError("star", "Insert", shared.ErrStorage, "insert star award", err)
	}
	return stored, created, nil
}

// List returns a learner's awards in award order.
func (r *StarRepository) List(ctx context.Context, learnerID string) ([]progress.StarAward, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT skill_id, lesson_type, awarded_at FROM star_awards
		WHERE learner_id = $1
		ORDER BY awarded_at, skill_id, lesson_type`, learnerID)
	if err != nil {
		return nil, shared.WrapError("star", "List", shared.ErrStorage, "query star awards", err)
	}
	defer rows.Close()

	out := []progress.StarAward{}
	for rows.Next() {
		var (
			a  progress.StarAward
			lt string
		)
		if err := rows.Scan(&a.SkillID, &lt, &a.AwardedAt); err != nil {
			return nil, shared.WrapError("star", "List", shared.ErrStorage, "scan star award", err)
		}
		a.LessonType = progress.LessonType(lt)
		a.AwardedAt = a.AwardedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// Count returns the number of a learner's awards.
func (r *StarRepository) Count(ctx context.Context, learnerID string) (int, error) {
	var n int
	if err := r.conn.QueryRow(ctx,
		`SELECT count(*) FROM star_awards WHERE learner_id = $1`, learnerID,
	).Scan(&n); err != nil {
		return 0, shared.WrapError("star", "Count", shared.ErrStorage, "count star awards", err)
	}
	return n, nil
}
