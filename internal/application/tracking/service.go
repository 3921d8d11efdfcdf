// Package tracking implements the authoritative side of learner progress:
// the operations behind every /progress endpoint.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Config holds optional collaborators of the Service.
type Config struct {
	// LeaderboardCache is consulted before TopBySkill. Nil disables caching.
	LeaderboardCache progress.LeaderboardCache

	// LeaderboardTTL is how long a cached page lives.
	LeaderboardTTL time.Duration

	Logger *slog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service owns progress records and star awards of every learner.
type Service struct {
	records progress.Repository
	stars   progress.StarRepository
	lbCache progress.LeaderboardCache
	lbTTL   time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a tracking service.
func NewService(records progress.Repository, stars progress.StarRepository, cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.LeaderboardTTL <= 0 {
		cfg.LeaderboardTTL = time.Minute
	}
	return &Service{
		records: records,
		stars:   stars,
		lbCache: cfg.LeaderboardCache,
		lbTTL:   cfg.LeaderboardTTL,
		logger:  cfg.Logger.With("component", "tracking"),
		now:     cfg.Now,
	}
}

func validateLearner(learnerID string) error {
	if strings.TrimSpace(learnerID) == "" {
		return shared.ErrInvalidLearnerID
	}
	return nil
}

func validate(learnerID, skillID string) error {
	if err := validateLearner(learnerID); err != nil {
		return err
	}
	return progress.ValidateSkillID(skillID)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// GetSummary returns every started skill of the learner with totals.
func (s *Service) GetSummary(ctx context.Context, learnerID string) (progress.Summary, error) {
	if err := validateLearner(learnerID); err != nil {
		return progress.Summary{}, err
	}
	records, err := s.records.List(ctx, learnerID)
	if err != nil {
		return progress.Summary{}, err
	}
	stars, err := s.stars.Count(ctx, learnerID)
	if err != nil {
		return progress.Summary{}, err
	}
	return progress.Summarize(records, stars), nil
}

// GetSkill returns one record or shared.ErrSkillProgressNotFound.
func (s *Service) GetSkill(ctx context.Context, learnerID, skillID string) (*progress.SkillProgress, error) {
	if err := validate(learnerID, skillID); err != nil {
		return nil, err
	}
	return s.records.Get(ctx, learnerID, skillID)
}

// Initialize creates the record unless it exists. An existing record is
// returned untouched.
func (s *Service) Initialize(ctx context.Context, learnerID, skillID string, totalSteps, totalChatSessions int) (*progress.SkillProgress, error) {
	if err := validate(learnerID, skillID); err != nil {
		return nil, err
	}
	existing, err := s.records.Get(ctx, learnerID, skillID)
	if err == nil {
		return existing, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}

	p, err := progress.NewSkillProgress(skillID, totalSteps, totalChatSessions, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.records.Save(ctx, learnerID, p); err != nil {
		return nil, err
	}
	s.logger.Debug("skill progress initialized", "learner_id", learnerID, "skill_id", skillID)
	return p, nil
}

// loadOrCreate returns the stored record or a fresh one for updates that
// arrive before initialize.
func (s *Service) loadOrCreate(ctx context.Context, learnerID, skillID string, totalSteps int) (*progress.SkillProgress, error) {
	p, err := s.records.Get(ctx, learnerID, skillID)
	if err == nil {
		return p, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}
	if totalSteps < 0 {
		totalSteps = 0
	}
	return progress.NewSkillProgress(skillID, totalSteps, 1, s.now())
}

// UpdatePatientSim folds a patient-simulation attempt into the record.
func (s *Service) UpdatePatientSim(ctx context.Context, learnerID, skillID string, u progress.PatientSimUpdate) (*progress.SkillProgress, error) {
	if err := validate(learnerID, skillID); err != nil {
		return nil, err
	}
	p, err := s.loadOrCreate(ctx, learnerID, skillID, u.TotalSteps)
	if err != nil {
		return nil, err
	}
	if err := p.ApplyPatientSim(u, s.now()); err != nil {
		return nil, err
	}
	if err := s.records.Save(ctx, learnerID, p); err != nil {
		return nil, err
	}
	s.invalidateLeaderboard(ctx, skillID)
	return p, nil
}

// UpdateChatSim counts a finished chat session once. Replaying a session ID
// returns the current record unchanged.
func (s *Service) UpdateChatSim(ctx context.Context, learnerID, skillID string, u progress.ChatSimUpdate) (*progress.SkillProgress, error) {
	if err := validate(learnerID, skillID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(u.SessionID) == "" {
		return nil, shared.ErrInvalidSessionID
	}
	p, err := s.loadOrCreate(ctx, learnerID, skillID, 0)
	if err != nil {
		return nil, err
	}

	fresh, err := s.records.RecordChatSession(ctx, learnerID, skillID, u.SessionID)
	if err != nil {
		return nil, err
	}
	if !fresh {
		s.logger.Debug("chat session replayed", "learner_id", learnerID, "skill_id", skillID, "session_id", u.SessionID)
		return p, nil
	}

	if err := p.ApplyChatSim(u, s.now()); err != nil {
		return nil, err
	}
	if err := s.records.Save(ctx, learnerID, p); err != nil {
		return nil, err
	}
	s.invalidateLeaderboard(ctx, skillID)
	return p, nil
}

// Reset removes the record and its chat session ledger. Stars are kept.
func (s *Service) Reset(ctx context.Context, learnerID, skillID string) error {
	if err := validate(learnerID, skillID); err != nil {
		return err
	}
	if err := s.records.Delete(ctx, learnerID, skillID); err != nil {
		return err
	}
	if err := s.records.ForgetChatSessions(ctx, learnerID, skillID); err != nil {
		return err
	}
	s.invalidateLeaderboard(ctx, skillID)
	s.logger.Info("skill progress reset", "learner_id", learnerID, "skill_id", skillID)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD & STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// Leaderboard returns the top learners of a skill.
func (s *Service) Leaderboard(ctx context.Context, skillID string, limit int) ([]progress.LeaderboardEntry, error) {
	if err := progress.ValidateSkillID(skillID); err != nil {
		return nil, err
	}
	limit = progress.NormalizeLimit(limit)

	if s.lbCache != nil {
		entries, ok, err := s.lbCache.Get(ctx, skillID, limit)
		if err != nil {
			s.logger.Warn("leaderboard cache read failed", "skill_id", skillID, "error", err)
		} else if ok {
			return entries, nil
		}
	}

	entries, err := s.records.TopBySkill(ctx, skillID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []progress.LeaderboardEntry{}
	}
	if s.lbCache != nil {
		if err := s.lbCache.Set(ctx, skillID, limit, entries, s.lbTTL); err != nil {
			s.logger.Warn("leaderboard cache write failed", "skill_id", skillID, "error", err)
		}
	}
	return entries, nil
}

func (s *Service) invalidateLeaderboard(ctx context.Context, skillID string) {
	if s.lbCache == nil {
		return
	}
	if err := s.lbCache.Invalidate(ctx, skillID); err != nil {
		s.logger.Warn("leaderboard cache invalidation failed", "skill_id", skillID, "error", err)
	}
}

// Statistics aggregates the learner's activity.
func (s *Service) Statistics(ctx context.Context, learnerID string) (progress.Statistics, error) {
	if err := validateLearner(learnerID); err != nil {
		return progress.Statistics{}, err
	}
	records, err := s.records.List(ctx, learnerID)
	if err != nil {
		return progress.Statistics{}, err
	}
	stars, err := s.stars.Count(ctx, learnerID)
	if err != nil {
		return progress.Statistics{}, err
	}
	return progress.ComputeStatistics(records, stars), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STARS
// ══════════════════════════════════════════════════════════════════════════════

// AwardStar creates the award once. Repeat awards report AlreadyAwarded and
// keep the first award time.
func (s *Service) AwardStar(ctx context.Context, learnerID, skillID string, lt progress.LessonType) (progress.AwardOutcome, error) {
	if err := validateLearner(learnerID); err != nil {
		return progress.AwardOutcome{}, err
	}
	key := progress.StarKey{SkillID: skillID, LessonType: lt}
	if err := key.Validate(); err != nil {
		return progress.AwardOutcome{}, err
	}

	stored, created, err := s.stars.Insert(ctx, learnerID, progress.StarAward{
		SkillID:    skillID,
		LessonType: lt,
		AwardedAt:  s.now().UTC(),
	})
	if err != nil {
		return progress.AwardOutcome{}, err
	}
	if created {
		s.logger.Info("star awarded", "learner_id", learnerID, "skill_id", skillID, "lesson_type", string(lt))
	}
	return progress.AwardOutcome{Award: stored, AlreadyAwarded: !created}, nil
}

// Stars returns the learner's star count and detail.
func (s *Service) Stars(ctx context.Context, learnerID string) (progress.StarTally, error) {
	if err := validateLearner(learnerID); err != nil {
		return progress.StarTally{}, err
	}
	list, err := s.stars.List(ctx, learnerID)
	if err != nil {
		return progress.StarTally{}, err
	}
	if list == nil {
		list = []progress.StarAward{}
	}
	return progress.StarTally{Total: len(list), Stars: list}, nil
}

// SyncStars awards every star the learner's own records have earned but
// that is missing. Per-skill failures are logged and skipped.
func (s *Service) SyncStars(ctx context.Context, learnerID string) (progress.SyncOutcome, error) {
	if err := validateLearner(learnerID); err != nil {
		return progress.SyncOutcome{}, err
	}
	records, err := s.records.List(ctx, learnerID)
	if err != nil {
		return progress.SyncOutcome{}, err
	}

	var (
		out  progress.SyncOutcome
		errs []error
	)
	for i := range records {
		for _, lt := range records[i].EligibleLessons() {
			res, err := s.AwardStar(ctx, learnerID, records[i].SkillID, lt)
			if err != nil {
				s.logger.Warn("star sync award failed",
					"learner_id", learnerID, "skill_id", records[i].SkillID, "lesson_type", string(lt), "error", err)
				errs = append(errs, err)
				continue
			}
			if !res.AlreadyAwarded {
				out.Awarded++
			}
		}
	}

	total, err := s.stars.Count(ctx, learnerID)
	if err != nil {
		return out, errors.Join(append(errs, err)...)
	}
	out.Total = total
	return out, nil
}
