// Package progressapi implements the client of the remote progress store.
// Each call is a single round trip carrying the session credential; the
// client neither retries nor caches.
package progressapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
	"github.com/skillsim/progress-hub/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Credentials supplies the session token attached to every request.
type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token implements Credentials.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// ClientConfig contains configuration for the progress API client.
type ClientConfig struct {
	// BaseURL is the server root; endpoint paths start with /progress.
	BaseURL string

	Credentials Credentials

	// Timeout bounds a single round trip.
	Timeout time.Duration

	// BreakerThreshold is the number of consecutive transport or server
	// failures that open the circuit. Zero disables the breaker.
	BreakerThreshold int
	BreakerTimeout   time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:          baseURL,
		Timeout:          10 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the progress endpoints.
type Client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a progress API client.
func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		creds:      cfg.Credentials,
		httpClient: httpClient,
		logger:     logger.With("component", "progressapi"),
	}
	if cfg.BreakerThreshold > 0 {
		c.breaker = circuitbreaker.New("progressapi",
			circuitbreaker.WithFailureThreshold(cfg.BreakerThreshold),
			circuitbreaker.WithTimeout(cfg.BreakerTimeout),
			circuitbreaker.WithIsFailure(IsBreakerFailure),
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			}),
		)
	}
	return c
}

// BreakerState returns the circuit state, Closed when the breaker is off.
func (c *Client) BreakerState() circuitbreaker.State {
	if c.breaker == nil {
		return circuitbreaker.StateClosed
	}
	return c.breaker.State()
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetSummary fetches the learner's progress across every started skill.
func (c *Client) GetSummary(ctx context.Context) (*progress.Summary, error) {
	var out progress.Summary
	if err := c.call(ctx, "GetSummary", http.MethodGet, "/progress/summary", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSkillProgress fetches one skill record.
func (c *Client) GetSkillProgress(ctx context.Context, skillID string) (*progress.SkillProgress, error) {
	var out progress.SkillProgress
	if err := c.call(ctx, "GetSkillProgress", http.MethodGet, skillPath(skillID, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InitializeSkillProgress creates the record if missing. totalChatSessions
// below one defaults to one.
func (c *Client) InitializeSkillProgress(ctx context.Context, skillID string, totalSteps, totalChatSessions int) (*progress.SkillProgress, error) {
	if totalChatSessions < 1 {
		totalChatSessions = 1
	}
	body := InitializeRequest{TotalSteps: totalSteps, TotalChatSessions: totalChatSessions}

	var out progress.SkillProgress
	if err := c.call(ctx, "InitializeSkillProgress", http.MethodPost, skillPath(skillID, "initialize"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePatientSimProgress reports a patient-simulation attempt.
func (c *Client) UpdatePatientSimProgress(ctx context.Context, skillID string, u progress.PatientSimUpdate) (*progress.SkillProgress, error) {
	if u.CompletedSteps == nil {
		u.CompletedSteps = []string{}
	}
	var out progress.SkillProgress
	if err := c.call(ctx, "UpdatePatientSimProgress", http.MethodPost, skillPath(skillID, "patient-sim"), u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateChatSimProgress reports a finished chat session.
func (c *Client) UpdateChatSimProgress(ctx context.Context, skillID string, u progress.ChatSimUpdate) (*progress.SkillProgress, error) {
	var out progress.SkillProgress
	if err := c.call(ctx, "UpdateChatSimProgress", http.MethodPost, skillPath(skillID, "chat-sim"), u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetSkillProgress clears every sub-record of a skill.
func (c *Client) ResetSkillProgress(ctx context.Context, skillID string) error {
	return c.call(ctx, "ResetSkillProgress", http.MethodDelete, skillPath(skillID, "reset"), nil, nil)
}

// GetLeaderboard fetches the top learners of a skill. limit <= 0 uses 10.
func (c *Client) GetLeaderboard(ctx context.Context, skillID string, limit int) ([]progress.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = progress.DefaultLeaderboardLimit
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	path := "/progress/leaderboard/" + url.PathEscape(skillID) + "?" + params.Encode()

	var out []progress.LeaderboardEntry
	if err := c.call(ctx, "GetLeaderboard", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetStatistics fetches the learner's aggregate statistics.
func (c *Client) GetStatistics(ctx context.Context) (*progress.Statistics, error) {
	var out progress.Statistics
	if err := c.call(ctx, "GetStatistics", http.MethodGet, "/progress/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STAR OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// AwardStar awards a star. Repeat awards succeed with AlreadyAwarded set.
func (c *Client) AwardStar(ctx context.Context, skillID string, lt progress.LessonType) (*progress.AwardOutcome, error) {
	var out progress.AwardOutcome
	body := AwardRequest{SkillID: skillID, LessonType: lt}
	if err := c.call(ctx, "AwardStar", http.MethodPost, "/progress/stars/award", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStars fetches the aggregate star count and its detail.
func (c *Client) GetStars(ctx context.Context) (*progress.StarTally, error) {
	var out progress.StarTally
	if err := c.call(ctx, "GetStars", http.MethodGet, "/progress/stars", nil, &out); err != nil {
		return nil, err
	}
	if out.Stars == nil {
		out.Stars = []progress.StarAward{}
	}
	return &out, nil
}

// SyncStars asks the server to backfill stars from its own records.
func (c *Client) SyncStars(ctx context.Context) (*progress.SyncOutcome, error) {
	var out progress.SyncOutcome
	if err := c.call(ctx, "SyncStars", http.MethodPost, "/progress/stars/sync", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsHealthy checks if the progress server is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func skillPath(skillID, action string) string {
	p := "/progress/skill/" + url.PathEscape(skillID)
	if action != "" {
		p += "/" + action
	}
	return p
}

// call performs one request through the circuit breaker and decodes the
// envelope's data into result.
func (c *Client) call(ctx context.Context, op, method, path string, body, result any) error {
	if c.breaker != nil {
		if err := c.breaker.Allow(); err != nil {
			return &Error{Op: op, Kind: shared.FailureTransport, Err: err}
		}
	}

	start := time.Now()
	err := c.do(ctx, op, method, path, body, result)
	if c.breaker != nil {
		c.breaker.Record(err)
	}

	if err != nil {
		c.logger.Debug("progress api call failed",
			"op", op, "method", method, "path", path,
			"kind", shared.Classify(err).String(), "latency", time.Since(start), "error", err)
		return err
	}
	c.logger.Debug("progress api call", "op", op, "method", method, "path", path, "latency", time.Since(start))
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Kind: shared.FailureRejected, Err: fmt.Errorf("marshal body: %w", err)}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return &Error{Op: op, Kind: shared.FailureRejected, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.creds != nil {
		token, err := c.creds.Token(ctx)
		if err != nil {
			return &Error{Op: op, Kind: shared.FailureRejected, Err: fmt.Errorf("credentials: %w", err)}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: shared.FailureTransport, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Kind: shared.FailureTransport, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var envelope APIResponse[json.RawMessage]
	decodeErr := json.Unmarshal(respBody, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		hasEnvelope := decodeErr == nil && envelope.Error != ""
		return &Error{
			Op:      op,
			Kind:    classifyStatus(resp.StatusCode, hasEnvelope),
			Status:  resp.StatusCode,
			Message: envelope.Error,
		}
	}

	if decodeErr != nil {
		return &Error{Op: op, Kind: shared.FailureMalformed, Status: resp.StatusCode, Err: fmt.Errorf("decode envelope: %w", decodeErr)}
	}
	if !envelope.Success {
		return &Error{Op: op, Kind: shared.FailureMalformed, Status: resp.StatusCode, Message: envelope.Error}
	}
	if result == nil || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, result); err != nil {
		return &Error{Op: op, Kind: shared.FailureMalformed, Status: resp.StatusCode, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

// AsError extracts the *Error from err.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
