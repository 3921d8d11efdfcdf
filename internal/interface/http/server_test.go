package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsim/progress-hub/internal/application/achievement"
	"github.com/skillsim/progress-hub/internal/application/reconcile"
	"github.com/skillsim/progress-hub/internal/application/tracking"
	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
	"github.com/skillsim/progress-hub/internal/infrastructure/external/progressapi"
	"github.com/skillsim/progress-hub/internal/infrastructure/fallback"
	"github.com/skillsim/progress-hub/internal/infrastructure/persistence/memory"
	"github.com/skillsim/progress-hub/internal/interface/http/handlers"
	"github.com/skillsim/progress-hub/pkg/logger"
)

const testToken = "token-learner-1"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	return newTestServerWith(t, cfg)
}

func newTestServerWith(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	svc := tracking.NewService(memory.NewProgressRepository(), memory.NewStarRepository(), tracking.Config{})
	srv := NewServer(cfg, Dependencies{
		Tracking: svc,
		Resolver: handlers.StaticTokens{testToken: "learner-1", "token-learner-2": "learner-2"},
		Logger:   logger.Nop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func newClient(ts *httptest.Server, token string) *progressapi.Client {
	cfg := progressapi.DefaultClientConfig(ts.URL)
	cfg.Credentials = progressapi.StaticToken(token)
	cfg.HTTPClient = ts.Client()
	return progressapi.NewClient(cfg)
}

func doRaw(t *testing.T, ts *httptest.Server, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestServer_RequiresCredential(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doRaw(t, ts, http.MethodGet, "/progress/summary", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var env APIResponse
	require.NoError(t, json.Unmarshal(body, &env))
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)

	_, err := newClient(ts, "nope").GetSummary(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnauthorized))
	assert.Equal(t, shared.FailureRejected, shared.Classify(err))
}

func TestServer_HealthIsPublic(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := doRaw(t, ts, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doRaw(t, ts, http.MethodGet, "/ready", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, newClient(ts, "").IsHealthy(context.Background()))
}

func TestServer_UnknownRouteIsFeatureAbsent(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doRaw(t, ts, http.MethodPost, "/progress/achievements/award", testToken, "{}")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var env APIResponse
	assert.Error(t, json.Unmarshal(body, &env), "unknown routes carry no envelope")
}

func TestServer_ProgressRoundTrip(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := newClient(ts, testToken)

	_, err := c.GetSkillProgress(ctx, "ppe")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	assert.Equal(t, shared.FailureRejected, shared.Classify(err))

	p, err := c.InitializeSkillProgress(ctx, "ppe", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, p.PatientSimProgress.TotalSteps)
	assert.Equal(t, 1, p.ChatSimProgress.TotalSessions)

	p, err = c.UpdatePatientSimProgress(ctx, "ppe", progress.PatientSimUpdate{CompletedSteps: []string{"a", "b"}, Score: 88, TimeSpent: 40})
	require.NoError(t, err)
	assert.True(t, p.PatientSimProgress.IsCompleted)

	p, err = c.UpdateChatSimProgress(ctx, "ppe", progress.ChatSimUpdate{SessionID: "s-1", Rating: 4, Duration: 20})
	require.NoError(t, err)
	assert.True(t, p.OverallProgress.IsCompleted)
	assert.Equal(t, 100, p.OverallProgress.CompletionPercentage)

	got, err := c.GetSkillProgress(ctx, "ppe")
	require.NoError(t, err)
	assert.Equal(t, p.PatientSimProgress, got.PatientSimProgress)
	assert.Equal(t, p.ChatSimProgress, got.ChatSimProgress)

	summary, err := c.GetSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkillsCompleted)
	assert.Equal(t, 60, summary.TotalTimeSpent)

	stats, err := c.GetStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 88.0, stats.AverageBestScore)

	board, err := c.GetLeaderboard(ctx, "ppe", 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "learner-1", board[0].LearnerID)

	require.NoError(t, c.ResetSkillProgress(ctx, "ppe"))
	_, err = c.GetSkillProgress(ctx, "ppe")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestServer_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := newClient(ts, testToken)

	_, err := c.InitializeSkillProgress(ctx, "ppe", -3, 1)
	require.Error(t, err)
	apiErr, ok := progressapi.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	resp, _ := doRaw(t, ts, http.MethodPost, "/progress/stars/award", testToken, `{"skillId":"ppe","lessonType":"quiz"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRaw(t, ts, http.MethodPost, "/progress/skill/ppe/chat-sim", testToken, `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doRaw(t, ts, http.MethodGet, "/progress/leaderboard/ppe?limit=ten", testToken, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_StarsAreIdempotentAndScoped(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c1 := newClient(ts, testToken)
	c2 := newClient(ts, "token-learner-2")

	first, err := c1.AwardStar(ctx, "ppe", progress.LessonChat)
	require.NoError(t, err)
	assert.False(t, first.AlreadyAwarded)

	second, err := c1.AwardStar(ctx, "ppe", progress.LessonChat)
	require.NoError(t, err)
	assert.True(t, second.AlreadyAwarded)
	assert.True(t, first.Award.AwardedAt.Equal(second.Award.AwardedAt))

	tally, err := c1.GetStars(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Total)

	other, err := c2.GetStars(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, other.Total)
}

func TestServer_SyncStars(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := newClient(ts, testToken)

	_, err := c.UpdateChatSimProgress(ctx, "ppe", progress.ChatSimUpdate{SessionID: "s", Rating: 3})
	require.NoError(t, err)

	out, err := c.SyncStars(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Awarded)
	assert.Equal(t, 1, out.Total)
}

// The full client stack against the real server: three skills where A has
// an earned star, B has progress but nothing earned and C was never started.
func TestServer_ReconcileEndToEnd(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := newClient(ts, testToken)

	_, err := c.UpdateChatSimProgress(ctx, "skill-a", progress.ChatSimUpdate{SessionID: "s", Rating: 5})
	require.NoError(t, err)
	_, err = c.InitializeSkillProgress(ctx, "skill-b", 3, 1)
	require.NoError(t, err)
	_, err = c.AwardStar(ctx, "ppe", progress.LessonSimulation)
	require.NoError(t, err)

	cache := fallback.New(fallback.NewMemoryStorage(), nil)
	awarder := achievement.NewAwarder(c, cache, achievement.Config{})
	syncer := reconcile.New(c, awarder, reconcile.Config{})

	report, err := syncer.Run(ctx, []string{"skill-a", "skill-b", "skill-c"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Awarded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []string{"skill-c"}, report.Failed)
	assert.Equal(t, 1, report.StarsBefore)
	assert.Equal(t, 2, report.StarCount)
	assert.Equal(t, achievement.SourceServer, report.Source)
	assert.Equal(t, 33, report.CompletionPercentage)

	// The local cache is untouched while the server answers.
	n, err := cache.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	again, err := syncer.Run(ctx, []string{"skill-a", "skill-b", "skill-c"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Awarded)
	assert.Equal(t, 2, again.StarCount)
}

func TestServer_RateLimitsPerLearner(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 60
	cfg.RateLimitBurst = 2
	ts := newTestServerWith(t, cfg)

	for i := 0; i < 2; i++ {
		resp, _ := doRaw(t, ts, http.MethodGet, "/progress/summary", testToken, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := doRaw(t, ts, http.MethodGet, "/progress/summary", testToken, "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	var env APIResponse
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, "too many requests", env.Error)

	// Another learner has its own bucket.
	resp, _ = doRaw(t, ts, http.MethodGet, "/progress/summary", "token-learner-2", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The client treats throttling as a transient server failure.
	_, err := newClient(ts, testToken).GetSummary(context.Background())
	require.Error(t, err)
	assert.Equal(t, shared.FailureServer, shared.Classify(err))
}
