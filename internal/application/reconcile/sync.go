// Package reconcile backfills stars that a learner's progress has earned but
// that no store has recorded yet.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skillsim/progress-hub/internal/application/achievement"
	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// ProgressReader fetches a single skill record.
type ProgressReader interface {
	GetSkillProgress(ctx context.Context, skillID string) (*progress.SkillProgress, error)
}

// StarAwarder issues and counts stars.
type StarAwarder interface {
	Award(ctx context.Context, skillID string, lt progress.LessonType) achievement.AwardResult
	Count(ctx context.Context) (achievement.StarCount, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT
// ══════════════════════════════════════════════════════════════════════════════

// Report summarizes one reconciliation pass.
type Report struct {
	// Awarded is the number of stars created by this pass.
	Awarded int
	// Skipped is the number of skills that needed no new star.
	Skipped int
	// Failed lists skills whose record could not be fetched or whose award
	// failed, in catalog order.
	Failed []string

	StarsBefore          int
	StarCount            int
	Source               achievement.Source
	CompletionPercentage int
	Duration             time.Duration
}

// ══════════════════════════════════════════════════════════════════════════════
// SYNCER
// ══════════════════════════════════════════════════════════════════════════════

// Config tunes a Syncer.
type Config struct {
	// Concurrency is the number of skills processed at once. Values below
	// two keep the pass strictly sequential.
	Concurrency int

	Logger *slog.Logger
}

// Syncer walks a skill catalog and awards missing stars.
type Syncer struct {
	store       ProgressReader
	awarder     StarAwarder
	concurrency int
	logger      *slog.Logger
}

// New creates a Syncer.
func New(store ProgressReader, awarder StarAwarder, cfg Config) *Syncer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Syncer{
		store:       store,
		awarder:     awarder,
		concurrency: concurrency,
		logger:      logger.With("component", "reconcile"),
	}
}

type skillOutcome struct {
	awarded int
	failed  bool
}

// Run reconciles every skill of catalog in order. summary is the learner's
// progress summary if the caller already has it; it only seeds the
// before-count when the star snapshot cannot be read.
//
// A failing skill never aborts the pass. The returned error is set only
// when the final star count cannot be read from either store; the report is
// filled in regardless.
func (s *Syncer) Run(ctx context.Context, catalog []string, summary *progress.Summary) (Report, error) {
	start := time.Now()
	report := Report{Failed: []string{}}

	existing := progress.StarSet{}
	if snapshot, err := s.awarder.Count(ctx); err != nil {
		s.logger.Warn("star snapshot unavailable, awarding without pre-check", "error", err)
		if summary != nil {
			report.StarsBefore = summary.TotalStars
		}
	} else {
		existing = snapshot.Keys()
		report.StarsBefore = snapshot.Total
	}

	outcomes := make([]skillOutcome, len(catalog))
	if s.concurrency == 1 {
		for i, skillID := range catalog {
			outcomes[i] = s.reconcileSkill(ctx, skillID, existing)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for i, skillID := range catalog {
			g.Go(func() error {
				outcomes[i] = s.reconcileSkill(ctx, skillID, existing)
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, o := range outcomes {
		report.Awarded += o.awarded
		switch {
		case o.failed:
			report.Failed = append(report.Failed, catalog[i])
		case o.awarded == 0:
			report.Skipped++
		}
	}

	count, err := s.awarder.Count(ctx)
	if err == nil {
		report.StarCount = count.Total
		report.Source = count.Source
		report.CompletionPercentage = progress.CompletionPercentage(count.Total, len(catalog))
	}
	report.Duration = time.Since(start)

	s.logger.Info("reconciliation finished",
		"catalog_size", len(catalog),
		"awarded", report.Awarded,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
		"star_count", report.StarCount,
		"source", string(report.Source),
		"duration", report.Duration,
	)
	return report, err
}

// reconcileSkill handles one skill. existing is read-only here.
func (s *Syncer) reconcileSkill(ctx context.Context, skillID string, existing progress.StarSet) skillOutcome {
	record, err := s.store.GetSkillProgress(ctx, skillID)
	if err != nil {
		level := slog.LevelWarn
		if shared.IsNotFound(err) {
			level = slog.LevelDebug
		}
		s.logger.Log(ctx, level, "skill progress unavailable", "skill_id", skillID, "error", err)
		return skillOutcome{failed: true}
	}

	var out skillOutcome
	for _, lt := range record.EligibleLessons() {
		if existing.Has(progress.StarKey{SkillID: skillID, LessonType: lt}) {
			continue
		}
		res := s.awarder.Award(ctx, skillID, lt)
		switch {
		case !res.Success:
			s.logger.Error("star backfill failed", "skill_id", skillID, "lesson_type", string(lt), "error", res.Err)
			out.failed = true
		case !res.AlreadyAwarded:
			out.awarded++
			s.logger.Debug("star backfilled", "skill_id", skillID, "lesson_type", string(lt), "source", string(res.Source))
		}
	}
	return out
}
