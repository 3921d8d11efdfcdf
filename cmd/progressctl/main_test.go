package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsim/progress-hub/config"
	"github.com/skillsim/progress-hub/internal/application/tracking"
	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/infrastructure/persistence/memory"
	httpapi "github.com/skillsim/progress-hub/internal/interface/http"
	"github.com/skillsim/progress-hub/internal/interface/http/handlers"
	"github.com/skillsim/progress-hub/pkg/logger"
)

const testToken = "token-learner-1"

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	svc := tracking.NewService(memory.NewProgressRepository(), memory.NewStarRepository(), tracking.Config{})
	cfg := httpapi.DefaultConfig()
	cfg.RateLimitPerMinute = 0
	srv := httpapi.NewServer(cfg, httpapi.Dependencies{
		Tracking: svc,
		Resolver: handlers.StaticTokens{testToken: "learner-1"},
		Logger:   logger.Nop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// deadURL returns the address of a server that has already shut down.
func deadURL() string {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()
	return url
}

func testLoader(apiURL string, mutate func(*config.Config)) func() (*config.Config, error) {
	return func() (*config.Config, error) {
		cfg, err := config.FromEnv()
		if err != nil {
			return nil, err
		}
		cfg.ProgressAPI.BaseURL = apiURL
		cfg.ProgressAPI.Token = testToken
		cfg.Fallback.Driver = config.DriverMemory
		cfg.Observability.LogLevel = "error"
		if mutate != nil {
			mutate(cfg)
		}
		return cfg, nil
	}
}

func execute(t *testing.T, load func() (*config.Config, error), args ...string) (string, error) {
	t.Helper()
	cmd := newApp(load).rootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_RecordThenSync(t *testing.T) {
	ts := newBackend(t)
	load := testLoader(ts.URL, nil)

	out, err := execute(t, load, "--json", "record", "patient", "Hand Hygiene",
		"--total-steps", "2", "--steps", "wash,dry", "--score", "90")
	require.NoError(t, err)
	var rec progress.SkillProgress
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "hand-hygiene", rec.SkillID)
	assert.True(t, rec.PatientSimProgress.IsCompleted)
	assert.Equal(t, []string{"wash", "dry"}, rec.PatientSimProgress.CompletedSteps)

	out, err = execute(t, load, "--json", "sync", "--skills", "hand-hygiene")
	require.NoError(t, err)
	var report reconcileView
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Awarded)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 0, report.StarsBefore)
	assert.Equal(t, 1, report.StarCount)
	assert.Equal(t, "server", report.Source)

	// A second pass finds nothing left to award.
	out, err = execute(t, load, "--json", "sync", "--skills", "hand-hygiene")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 0, report.Awarded)
	assert.Equal(t, 1, report.Skipped)

	out, err = execute(t, load, "--json", "star", "count")
	require.NoError(t, err)
	var count countView
	require.NoError(t, json.Unmarshal([]byte(out), &count))
	assert.Equal(t, 1, count.Total)
	assert.Equal(t, "server", count.Source)
	assert.Empty(t, count.RemoteFailure)
}

func TestCLI_ChatSessionGetsGeneratedID(t *testing.T) {
	ts := newBackend(t)
	load := testLoader(ts.URL, nil)

	_, err := execute(t, load, "skill", "init", "ppe", "--sessions", "2")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = execute(t, load, "record", "chat", "ppe", "--rating", "4")
		require.NoError(t, err)
	}

	out, err := execute(t, load, "--json", "skill", "get", "ppe")
	require.NoError(t, err)
	var rec progress.SkillProgress
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, 2, rec.ChatSimProgress.SessionsCompleted)
	assert.True(t, rec.ChatSimProgress.IsCompleted)
}

func TestCLI_LoadErrorsAreReported(t *testing.T) {
	ts := newBackend(t)

	_, err := execute(t, testLoader(ts.URL, nil), "skill", "get", "iv-cannulation")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "progress could not be loaded")
}

func TestCLI_AwardFallsBackToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stars.db")
	load := testLoader(deadURL(), func(cfg *config.Config) {
		cfg.Fallback.Driver = config.DriverSQLite
		cfg.Fallback.Path = path
	})

	out, err := execute(t, load, "--json", "star", "award", "ppe", "chat")
	require.NoError(t, err)
	var award awardView
	require.NoError(t, json.Unmarshal([]byte(out), &award))
	assert.True(t, award.Success)
	assert.Equal(t, "local", award.Source)
	assert.Equal(t, "transport", award.RemoteFailure)

	// The star survives into the next invocation.
	out, err = execute(t, load, "--json", "cache", "list")
	require.NoError(t, err)
	var stars []progress.StarAward
	require.NoError(t, json.Unmarshal([]byte(out), &stars))
	require.Len(t, stars, 1)
	assert.Equal(t, progress.StarKey{SkillID: "ppe", LessonType: progress.LessonChat}, stars[0].Key())

	out, err = execute(t, load, "--json", "cache", "clear")
	require.NoError(t, err)
	assert.JSONEq(t, `{"removed":1}`, out)
}

func TestCLI_InvalidDriverFailsSetup(t *testing.T) {
	_, err := execute(t, testLoader(deadURL(), nil), "--fallback-driver", "floppy", "catalog")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FALLBACK_DRIVER")
}

func TestCLI_Catalog(t *testing.T) {
	out, err := execute(t, testLoader(deadURL(), nil), "catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "hand-hygiene")
	assert.Contains(t, out, "Hand Hygiene")
}

func TestCLI_SummaryReportsUnreachableServer(t *testing.T) {
	_, err := execute(t, testLoader(deadURL(), nil), "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "progress could not be loaded")
	assert.Contains(t, err.Error(), "is unreachable")
}

func TestCLI_SummaryRejectedByLiveServer(t *testing.T) {
	ts := newBackend(t)
	load := testLoader(ts.URL, func(cfg *config.Config) {
		cfg.ProgressAPI.Token = "not-a-token"
	})

	_, err := execute(t, load, "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "progress could not be loaded")
	assert.NotContains(t, err.Error(), "unreachable")
}
