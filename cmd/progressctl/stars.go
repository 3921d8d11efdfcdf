package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillsim/progress-hub/config"
	"github.com/skillsim/progress-hub/internal/application/achievement"
	"github.com/skillsim/progress-hub/internal/application/reconcile"
	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
	"github.com/skillsim/progress-hub/internal/infrastructure/scheduler"
	"github.com/skillsim/progress-hub/internal/infrastructure/scheduler/jobs"
	"github.com/skillsim/progress-hub/pkg/timeutil"
)

type awardView struct {
	SkillID        string `json:"skillId"`
	LessonType     string `json:"lessonType"`
	Success        bool   `json:"success"`
	Source         string `json:"source"`
	AlreadyAwarded bool   `json:"alreadyAwarded"`
	RemoteFailure  string `json:"remoteFailure,omitempty"`
	Error          string `json:"error,omitempty"`
}

type countView struct {
	Total         int                  `json:"total"`
	Source        string               `json:"source"`
	RemoteFailure string               `json:"remoteFailure,omitempty"`
	Stars         []progress.StarAward `json:"stars"`
}

type reconcileView struct {
	Mode                 string   `json:"mode"`
	Awarded              int      `json:"awarded"`
	Skipped              int      `json:"skipped"`
	Failed               []string `json:"failed"`
	StarsBefore          int      `json:"starsBefore"`
	StarCount            int      `json:"starCount"`
	Source               string   `json:"source"`
	CompletionPercentage int      `json:"completionPercentage"`
	DurationMs           int64    `json:"durationMs"`
}

func failureLabel(k shared.FailureKind) string {
	if k == shared.FailureNone {
		return ""
	}
	return k.String()
}

// ─── star ─────────────────────────────────────────────────────────────────────

func (a *app) starCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "star",
		Short: "Award and count stars",
	}

	award := &cobra.Command{
		Use:   "award <skill> <chat|simulation>",
		Short: "Award a star, falling back to the local store",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
			skillID := s.resolveSkill(args[0])
			lt, err := progress.ParseLessonType(args[1])
			if err != nil {
				return err
			}
			res := s.awarder.Award(ctx, skillID, lt)
			v := awardView{
				SkillID:        skillID,
				LessonType:     string(lt),
				Success:        res.Success,
				Source:         string(res.Source),
				AlreadyAwarded: res.AlreadyAwarded,
				RemoteFailure:  failureLabel(res.RemoteFailure),
			}
			if res.Err != nil {
				v.Error = res.Err.Error()
			}
			if err := s.print(cmd.OutOrStdout(), v, func(w io.Writer) {
				switch {
				case !res.Success:
					fmt.Fprintf(w, "Star %s/%s not awarded\n", skillID, lt)
				case res.AlreadyAwarded:
					fmt.Fprintf(w, "Star %s/%s already awarded (%s)\n", skillID, lt, res.Source)
				default:
					fmt.Fprintf(w, "Star %s/%s awarded (%s)\n", skillID, lt, res.Source)
				}
			}); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("star could not be saved: %w", res.Err)
			}
			return nil
		}),
	}

	count := &cobra.Command{
		Use:   "count",
		Short: "Show the star count and its detail",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, _ []string) error {
			c, err := s.awarder.Count(ctx)
			if err != nil {
				return fmt.Errorf("stars could not be loaded: %w", err)
			}
			v := countView{
				Total:         c.Total,
				Source:        string(c.Source),
				RemoteFailure: failureLabel(c.RemoteFailure),
				Stars:         c.Detail,
			}
			return s.print(cmd.OutOrStdout(), v, func(w io.Writer) {
				fmt.Fprintf(w, "%d stars (%s), %d%% of catalog\n",
					c.Total, c.Source, progress.CompletionPercentage(c.Total, s.catalog.Len()))
				writeStarTable(w, c.Detail)
			})
		}),
	}

	syncServer := &cobra.Command{
		Use:   "sync-server",
		Short: "Ask the server to backfill stars from recorded progress",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, _ []string) error {
			res := s.awarder.RequestServerSync(ctx)
			return s.printServerSync(cmd.OutOrStdout(), res)
		}),
	}

	cmd.AddCommand(award, count, syncServer)
	return cmd
}

func (s *session) printServerSync(w io.Writer, res achievement.SyncResult) error {
	v := struct {
		Attempted     bool   `json:"attempted"`
		Awarded       int    `json:"awarded"`
		Total         int    `json:"total"`
		RemoteFailure string `json:"remoteFailure,omitempty"`
	}{res.Attempted, res.Awarded, res.Total, failureLabel(res.RemoteFailure)}
	return s.print(w, v, func(w io.Writer) {
		if !res.Attempted {
			fmt.Fprintf(w, "Server sync unavailable (%s)\n", res.RemoteFailure)
			return
		}
		fmt.Fprintf(w, "Server sync awarded %d, total %d\n", res.Awarded, res.Total)
	})
}

// ─── sync ─────────────────────────────────────────────────────────────────────

func (a *app) syncCmd() *cobra.Command {
	var (
		skills []string
		every  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Award every star the recorded progress has earned",
		Long: `sync walks the skill catalog, awards any star whose mode is completed but
not yet awarded, and prints the resulting star count.

With the stars.server_sync feature enabled the server is asked to backfill
first; the catalog walk runs only when it cannot.

With --every the catalog walk repeats on that interval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, _ []string) error {
			if s.cfg.Features.IsEnabled(config.FeatureServerSync) {
				res := s.awarder.RequestServerSync(ctx)
				if res.Attempted {
					return s.printServerSync(cmd.OutOrStdout(), res)
				}
				s.log.Info("server sync unavailable, reconciling locally",
					"failure", res.RemoteFailure.String())
			}

			catalog := s.catalog.SkillIDs()
			if len(skills) > 0 {
				catalog = make([]string, 0, len(skills))
				for _, sk := range skills {
					catalog = append(catalog, s.resolveSkill(sk))
				}
			}
			if every > 0 {
				return s.watch(ctx, cmd.OutOrStdout(), catalog, every)
			}

			var summary *progress.Summary
			if sum, err := s.client.GetSummary(ctx); err == nil {
				summary = sum
			}

			report, err := s.syncer.Run(ctx, catalog, summary)
			if perr := s.printReport(cmd.OutOrStdout(), report, err == nil); perr != nil {
				return perr
			}
			if err != nil {
				return fmt.Errorf("star count could not be loaded: %w", err)
			}
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&skills, "skills", nil, "Reconcile only these skills (names or IDs)")
	cmd.Flags().DurationVar(&every, "every", 0, "Repeat the catalog walk on this interval")
	return cmd
}

// watch reconciles on a schedule until ctx is cancelled.
func (s *session) watch(ctx context.Context, w io.Writer, catalog []string, every time.Duration) error {
	var mu sync.Mutex
	job := jobs.NewReconcileJob(s.syncer, catalog, s.log, func(r reconcile.Report) {
		mu.Lock()
		defer mu.Unlock()
		if err := s.printReport(w, r, true); err != nil {
			s.log.Warn("report output failed", "error", err)
		}
	})

	sched := scheduler.New(scheduler.Config{Logger: s.log, RunOnStart: true})
	if err := sched.Register(job, scheduler.Every(every)); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return sched.Stop()
}

func (s *session) printReport(w io.Writer, report reconcile.Report, counted bool) error {
	v := reconcileView{
		Mode:                 "catalog",
		Awarded:              report.Awarded,
		Skipped:              report.Skipped,
		Failed:               report.Failed,
		StarsBefore:          report.StarsBefore,
		StarCount:            report.StarCount,
		Source:               string(report.Source),
		CompletionPercentage: report.CompletionPercentage,
		DurationMs:           report.Duration.Milliseconds(),
	}
	return s.print(w, v, func(w io.Writer) {
		fmt.Fprintf(w, "Awarded %d, skipped %d, failed %d\n", report.Awarded, report.Skipped, len(report.Failed))
		for _, f := range report.Failed {
			fmt.Fprintf(w, "  failed: %s\n", f)
		}
		if counted {
			fmt.Fprintf(w, "Stars: %d -> %d (%s), %d%% complete\n",
				report.StarsBefore, report.StarCount, report.Source, report.CompletionPercentage)
		}
	})
}

// ─── cache ────────────────────────────────────────────────────────────────────

func (a *app) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local star store",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stars held locally",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, _ []string) error {
			stars, err := s.cache.List(ctx)
			if err != nil {
				return err
			}
			return s.print(cmd.OutOrStdout(), stars, func(w io.Writer) {
				fmt.Fprintf(w, "%d local stars (%s, origin %s)\n", len(stars), s.cfg.Fallback.Driver, s.cfg.Fallback.Origin)
				writeStarTable(w, stars)
			})
		}),
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every locally held star",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, _ []string) error {
			n, err := s.cache.Clear(ctx)
			if err != nil {
				return err
			}
			return s.print(cmd.OutOrStdout(), map[string]int{"removed": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Removed %d local stars\n", n)
			})
		}),
	}

	cmd.AddCommand(list, clearCmd)
	return cmd
}

// ─── catalog ──────────────────────────────────────────────────────────────────

func (a *app) catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the skills that can earn stars",
		Args:  cobra.NoArgs,
		RunE: a.run(func(_ context.Context, s *session, cmd *cobra.Command, _ []string) error {
			entries := s.catalog.Entries()
			return s.print(cmd.OutOrStdout(), entries, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\n", e.SkillID, e.Name)
				}
				tw.Flush()
			})
		}),
	}
}

func writeStarTable(w io.Writer, stars []progress.StarAward) {
	if len(stars) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SKILL\tMODE\tAWARDED")
	for _, st := range stars {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.SkillID, st.LessonType, st.AwardedAt.Local().Format(timeutil.DateTimeLayout))
	}
	tw.Flush()
}
