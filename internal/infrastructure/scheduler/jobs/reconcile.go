// Package jobs contains scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/skillsim/progress-hub/internal/application/reconcile"
	"github.com/skillsim/progress-hub/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE JOB
// ══════════════════════════════════════════════════════════════════════════════

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context, catalog []string, summary *progress.Summary) (reconcile.Report, error)
}

// ReconcileJob periodically awards stars earned by recorded progress.
type ReconcileJob struct {
	syncer   Reconciler
	catalog  []string
	logger   *slog.Logger
	onReport func(reconcile.Report)

	last atomic.Pointer[reconcile.Report]
}

// NewReconcileJob creates the job. onReport may be nil.
func NewReconcileJob(syncer Reconciler, catalog []string, logger *slog.Logger, onReport func(reconcile.Report)) *ReconcileJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileJob{
		syncer:   syncer,
		catalog:  catalog,
		logger:   logger.With("job", "reconcile_stars"),
		onReport: onReport,
	}
}

func (j *ReconcileJob) Name() string { return "reconcile_stars" }

// Run executes one pass. Per-skill failures are reported, not returned; the
// job fails only when the final star count is unreadable.
func (j *ReconcileJob) Run(ctx context.Context) error {
	report, err := j.syncer.Run(ctx, j.catalog, nil)
	j.last.Store(&report)
	if j.onReport != nil {
		j.onReport(report)
	}
	if err != nil {
		return fmt.Errorf("reconcile stars: %w", err)
	}
	if len(report.Failed) > 0 {
		j.logger.Warn("skills left unreconciled", "failed", report.Failed)
	}
	return nil
}

// LastReport returns the report of the most recent pass.
func (j *ReconcileJob) LastReport() (reconcile.Report, bool) {
	r := j.last.Load()
	if r == nil {
		return reconcile.Report{}, false
	}
	return *r, true
}
