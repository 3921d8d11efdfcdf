package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skillsim/progress-hub/config"
)

// app carries state shared by every command of one invocation.
type app struct {
	flags   flags
	load    func() (*config.Config, error)
	session *session
}

func newRootCmd() *cobra.Command {
	return newApp(config.Load).rootCmd()
}

func newApp(load func() (*config.Config, error)) *app {
	return &app{load: load}
}

func (a *app) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progressctl",
		Short: "Skill progress and star synchronization client",
		Long: `progressctl reads and records clinical skill progress on the progress API.

Stars are awarded on the server when it is reachable and mirrored into a local
store otherwise. The sync command reconciles stars against the skill catalog.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	a.flags.bind(cmd)

	cmd.AddCommand(
		a.summaryCmd(),
		a.statsCmd(),
		a.leaderboardCmd(),
		a.skillCmd(),
		a.recordCmd(),
		a.starCmd(),
		a.syncCmd(),
		a.cacheCmd(),
		a.catalogCmd(),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := a.load()
	if err != nil {
		return err
	}
	a.flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	s, err := newSession(cfg, cmd.ErrOrStderr(), a.flags.jsonOut)
	if err != nil {
		return err
	}
	a.session = s
	s.reconcileOnStart(cmd.Context())
	return nil
}

// run adapts a session-aware handler to cobra and releases the session's
// resources when it returns.
func (a *app) run(fn func(ctx context.Context, s *session, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if a.session == nil {
			return fmt.Errorf("session not initialized")
		}
		defer a.session.close()
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return fn(ctx, a.session, cmd, args)
	}
}

// resolveSkill accepts a catalog name or a raw skill ID.
func (s *session) resolveSkill(nameOrID string) string {
	if e, ok := s.catalog.Lookup(nameOrID); ok {
		return e.SkillID
	}
	return nameOrID
}
