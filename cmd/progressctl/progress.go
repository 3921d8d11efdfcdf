package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/pkg/timeutil"
)

func loadErr(err error) error { return fmt.Errorf("progress could not be loaded: %w", err) }
func saveErr(err error) error { return fmt.Errorf("progress could not be saved: %w", err) }

// ─── summary / stats / leaderboard ────────────────────────────────────────────

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show progress across every started skill",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, _ []string) error {
			sum, err := s.client.GetSummary(ctx)
			if err != nil {
				if !s.client.IsHealthy(ctx) {
					return loadErr(fmt.Errorf("server %s is unreachable: %w", s.cfg.ProgressAPI.BaseURL, err))
				}
				return loadErr(err)
			}
			return s.print(cmd.OutOrStdout(), sum, func(w io.Writer) {
				fmt.Fprintf(w, "Skills started: %d  completed: %d  stars: %d  time: %s\n",
					sum.SkillsStarted, sum.SkillsCompleted, sum.TotalStars, timeutil.FormatSeconds(sum.TotalTimeSpent))
				writeSkillTable(w, sum.Skills)
			})
		}),
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate learning statistics",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, _ []string) error {
			st, err := s.client.GetStatistics(ctx)
			if err != nil {
				return loadErr(err)
			}
			return s.print(cmd.OutOrStdout(), st, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "Skills started\t%d\n", st.SkillsStarted)
				fmt.Fprintf(tw, "Skills completed\t%d\n", st.SkillsCompleted)
				fmt.Fprintf(tw, "Simulations completed\t%d\n", st.PatientSimsCompleted)
				fmt.Fprintf(tw, "Chat sessions\t%d\n", st.ChatSessionsCompleted)
				fmt.Fprintf(tw, "Attempts\t%d\n", st.TotalAttempts)
				fmt.Fprintf(tw, "Average best score\t%.2f\n", st.AverageBestScore)
				fmt.Fprintf(tw, "Average chat rating\t%.2f\n", st.AverageChatRating)
				fmt.Fprintf(tw, "Average completion\t%d%%\n", st.AverageCompletionScore)
				fmt.Fprintf(tw, "Time spent\t%s\n", timeutil.FormatSeconds(st.TotalTimeSpent))
				fmt.Fprintf(tw, "Stars\t%d\n", st.TotalStars)
				tw.Flush()
			})
		}),
	}
}

func (a *app) leaderboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard <skill>",
		Short: "Show the top learners of a skill",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
			entries, err := s.client.GetLeaderboard(ctx, s.resolveSkill(args[0]), limit)
			if err != nil {
				return loadErr(err)
			}
			return s.print(cmd.OutOrStdout(), entries, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RANK\tLEARNER\tBEST\tDONE\tTIME")
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%d%%\t%s\n",
						e.Rank, e.LearnerID, e.BestScore, e.CompletionPercentage, timeutil.FormatSeconds(e.TotalTimeSpent))
				}
				tw.Flush()
			})
		}),
	}
	cmd.Flags().IntVar(&limit, "limit", progress.DefaultLeaderboardLimit, "Number of entries")
	return cmd
}

// ─── skill ────────────────────────────────────────────────────────────────────

func (a *app) skillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skill",
		Short: "Read, initialize or reset one skill's progress",
	}

	get := &cobra.Command{
		Use:   "get <skill>",
		Short: "Show one skill's progress",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
			rec, err := s.client.GetSkillProgress(ctx, s.resolveSkill(args[0]))
			if err != nil {
				return loadErr(err)
			}
			return s.printRecord(cmd.OutOrStdout(), rec)
		}),
	}

	var steps, sessions int
	initCmd := &cobra.Command{
		Use:   "init <skill>",
		Short: "Create a skill record if none exists",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
			rec, err := s.client.InitializeSkillProgress(ctx, s.resolveSkill(args[0]), steps, sessions)
			if err != nil {
				return saveErr(err)
			}
			return s.printRecord(cmd.OutOrStdout(), rec)
		}),
	}
	initCmd.Flags().IntVar(&steps, "steps", 0, "Total patient-simulation steps")
	initCmd.Flags().IntVar(&sessions, "sessions", 0, "Chat sessions required for completion")

	reset := &cobra.Command{
		Use:   "reset <skill>",
		Short: "Delete a skill record; earned stars are kept",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
			skillID := s.resolveSkill(args[0])
			if err := s.client.ResetSkillProgress(ctx, skillID); err != nil {
				return saveErr(err)
			}
			return s.print(cmd.OutOrStdout(), map[string]string{"skillId": skillID}, func(w io.Writer) {
				fmt.Fprintf(w, "Reset %s\n", skillID)
			})
		}),
	}

	cmd.AddCommand(get, initCmd, reset)
	return cmd
}

// ─── record ───────────────────────────────────────────────────────────────────

func (a *app) recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Report a finished simulation attempt or chat session",
	}

	var (
		totalSteps int
		stepIDs    []string
		score      int
		timeSpent  int
	)
	patient := &cobra.Command{
		Use:   "patient <skill>",
		Short: "Record a patient-simulation attempt",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
			rec, err := s.client.UpdatePatientSimProgress(ctx, s.resolveSkill(args[0]), progress.PatientSimUpdate{
				TotalSteps:     totalSteps,
				CompletedSteps: stepIDs,
				Score:          score,
				TimeSpent:      timeSpent,
			})
			if err != nil {
				return saveErr(err)
			}
			return s.printRecord(cmd.OutOrStdout(), rec)
		}),
	}
	patient.Flags().IntVar(&totalSteps, "total-steps", 0, "Total steps of the scenario")
	patient.Flags().StringSliceVar(&stepIDs, "steps", nil, "Completed step IDs")
	patient.Flags().IntVar(&score, "score", 0, "Attempt score")
	patient.Flags().IntVar(&timeSpent, "time", 0, "Seconds spent")

	var (
		sessionID string
		rating    float64
		duration  int
	)
	chat := &cobra.Command{
		Use:   "chat <skill>",
		Short: "Record a finished chat-simulation session",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error {
			id := sessionID
			if id == "" {
				id = uuid.NewString()
			}
			rec, err := s.client.UpdateChatSimProgress(ctx, s.resolveSkill(args[0]), progress.ChatSimUpdate{
				SessionID: id,
				Rating:    rating,
				Duration:  duration,
			})
			if err != nil {
				return saveErr(err)
			}
			return s.printRecord(cmd.OutOrStdout(), rec)
		}),
	}
	chat.Flags().StringVar(&sessionID, "session", "", "Session ID (generated when empty)")
	chat.Flags().Float64Var(&rating, "rating", 0, "Session rating, 1 to 5")
	chat.Flags().IntVar(&duration, "duration", 0, "Session length in seconds")

	cmd.AddCommand(patient, chat)
	return cmd
}

// ─── output ───────────────────────────────────────────────────────────────────

func (s *session) printRecord(w io.Writer, rec *progress.SkillProgress) error {
	return s.print(w, rec, func(w io.Writer) {
		ps, cs, op := rec.PatientSimProgress, rec.ChatSimProgress, rec.OverallProgress
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "Skill\t%s\n", rec.SkillID)
		fmt.Fprintf(tw, "Completion\t%d%% (%s)\n", op.CompletionPercentage, doneLabel(op.IsCompleted))
		fmt.Fprintf(tw, "Simulation\t%d/%d steps, best %d, %d attempts (%s)\n",
			len(ps.CompletedSteps), ps.TotalSteps, ps.BestScore, ps.Attempts, doneLabel(ps.IsCompleted))
		if len(ps.CompletedSteps) > 0 {
			fmt.Fprintf(tw, "Steps\t%s\n", strings.Join(ps.CompletedSteps, ", "))
		}
		fmt.Fprintf(tw, "Chat\t%d/%d sessions, rating %.2f (%s)\n",
			cs.SessionsCompleted, cs.TotalSessions, cs.AverageRating, doneLabel(cs.IsCompleted))
		fmt.Fprintf(tw, "Time spent\t%s\n", timeutil.FormatSeconds(op.TotalTimeSpent))
		fmt.Fprintf(tw, "Updated\t%s\n", timeutil.FormatRelative(op.LastUpdatedAt, time.Now()))
		tw.Flush()
	})
}

func writeSkillTable(w io.Writer, skills []progress.SkillProgress) {
	if len(skills) == 0 {
		fmt.Fprintln(w, "No skills started yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SKILL\tDONE\tSIM\tCHAT\tTIME")
	for _, r := range skills {
		fmt.Fprintf(tw, "%s\t%d%%\t%s\t%s\t%s\n",
			r.SkillID,
			r.OverallProgress.CompletionPercentage,
			doneLabel(r.PatientSimProgress.IsCompleted),
			doneLabel(r.ChatSimProgress.IsCompleted),
			timeutil.FormatSeconds(r.OverallProgress.TotalTimeSpent))
	}
	tw.Flush()
}

func doneLabel(done bool) string {
	if done {
		return "done"
	}
	return "open"
}
