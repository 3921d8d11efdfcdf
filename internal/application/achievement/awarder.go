// Package achievement issues and counts star awards. The remote progress
// store is primary; the local fallback cache takes over whenever the remote
// call does not succeed.
package achievement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
	"github.com/skillsim/progress-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// RemoteStars is the star surface of the remote progress store.
type RemoteStars interface {
	AwardStar(ctx context.Context, skillID string, lt progress.LessonType) (*progress.AwardOutcome, error)
	GetStars(ctx context.Context) (*progress.StarTally, error)
	SyncStars(ctx context.Context) (*progress.SyncOutcome, error)
}

// LocalStars is the local fallback mirror.
type LocalStars interface {
	Has(ctx context.Context, skillID string, lt progress.LessonType) (bool, error)
	Put(ctx context.Context, skillID string, lt progress.LessonType, awardedAt time.Time) (bool, error)
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]progress.StarAward, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// Source names the store that served a request.
type Source string

const (
	SourceServer Source = "server"
	SourceLocal  Source = "local"
)

// AwardResult is the outcome of Award. Success is false only when both the
// remote store and the local cache failed; Err then holds the local error.
type AwardResult struct {
	Success        bool
	Source         Source
	AlreadyAwarded bool
	// RemoteFailure says why the local path ran; FailureNone for server results.
	RemoteFailure shared.FailureKind
	Err           error
}

// StarCount is the aggregate star count and its detail.
type StarCount struct {
	Total         int
	Detail        []progress.StarAward
	Source        Source
	RemoteFailure shared.FailureKind
}

// Keys returns the detail as a set.
func (c StarCount) Keys() progress.StarSet {
	return progress.NewStarSet(c.Detail)
}

// SyncResult is the outcome of RequestServerSync. Attempted is false when
// the server could not run the sync and the caller should reconcile itself.
type SyncResult struct {
	Attempted     bool
	Awarded       int
	Total         int
	RemoteFailure shared.FailureKind
}

// ══════════════════════════════════════════════════════════════════════════════
// AWARDER
// ══════════════════════════════════════════════════════════════════════════════

// Config tunes the remote path of the awarder.
type Config struct {
	// AwardAttempts is how many times a transient remote award failure is
	// tried in total before falling back. One means no retry.
	AwardAttempts int

	// RetryDelay is the initial backoff between award attempts.
	RetryDelay time.Duration

	Logger *slog.Logger

	// Now is the clock used for local award timestamps.
	Now func() time.Time
}

// Awarder issues stars. It is safe for concurrent use; awards of the same
// skill and lesson type are serialized.
type Awarder struct {
	remote  RemoteStars
	local   LocalStars
	retrier *retry.Retrier
	logger  *slog.Logger
	now     func() time.Time

	keys keyedMutex

	// awardAbsent is set once the remote award endpoint reported that it
	// does not exist; later awards go straight to the local cache.
	awardAbsent atomic.Bool
}

// NewAwarder creates an awarder. remote may be nil for local-only operation.
func NewAwarder(remote RemoteStars, local LocalStars, cfg Config) *Awarder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger = logger.With("component", "achievement_awarder")

	return &Awarder{
		remote: remote,
		local:  local,
		retrier: retry.New(
			retry.WithMaxAttempts(cfg.AwardAttempts),
			retry.WithInitialDelay(cfg.RetryDelay),
			retry.WithRetryIf(func(err error) bool { return shared.Classify(err).Transient() }),
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				logger.Debug("retrying remote award", "attempt", attempt, "delay", delay, "error", err)
			}),
		),
		logger: logger,
		now:    now,
	}
}

// errNoRemote stands in for the remote store when none is configured.
var errNoRemote = &noRemoteError{}

type noRemoteError struct{}

func (*noRemoteError) Error() string                   { return "no remote progress store configured" }
func (*noRemoteError) FailureKind() shared.FailureKind { return shared.FailureFeatureAbsent }
func (*noRemoteError) Is(target error) bool            { return target == shared.ErrServiceUnavailable }

// Award issues the star for skillID and lt. It never returns an error:
// remote failures fall back to the local cache, and a failure of both is
// reported through AwardResult.
func (a *Awarder) Award(ctx context.Context, skillID string, lt progress.LessonType) AwardResult {
	if err := (progress.StarKey{SkillID: skillID, LessonType: lt}).Validate(); err != nil {
		a.logger.Error("refusing to award invalid star", "skill_id", skillID, "lesson_type", string(lt), "error", err)
		return AwardResult{Err: err}
	}

	unlock := a.keys.Lock(skillID + "\x00" + string(lt))
	defer unlock()

	out, err := a.awardRemote(ctx, skillID, lt)
	if err == nil {
		return AwardResult{Success: true, Source: SourceServer, AlreadyAwarded: out.AlreadyAwarded}
	}

	kind := shared.Classify(err)
	if kind == shared.FailureFeatureAbsent && a.remote != nil && a.awardAbsent.CompareAndSwap(false, true) {
		a.logger.Info("remote award endpoint is absent, using local stars from now on")
	}
	a.logger.Debug("remote award failed, falling back to local cache",
		"skill_id", skillID, "lesson_type", string(lt), "kind", kind.String(), "error", err)

	res := a.awardLocal(ctx, skillID, lt)
	res.RemoteFailure = kind
	return res
}

func (a *Awarder) awardRemote(ctx context.Context, skillID string, lt progress.LessonType) (*progress.AwardOutcome, error) {
	if a.remote == nil || a.awardAbsent.Load() {
		return nil, errNoRemote
	}
	return retry.DoWithData(ctx, a.retrier, func(ctx context.Context) (*progress.AwardOutcome, error) {
		return a.remote.AwardStar(ctx, skillID, lt)
	})
}

func (a *Awarder) awardLocal(ctx context.Context, skillID string, lt progress.LessonType) AwardResult {
	has, err := a.local.Has(ctx, skillID, lt)
	if err != nil {
		// Put checks existence again, so a failed read is not fatal yet.
		a.logger.Warn("local star lookup failed", "skill_id", skillID, "lesson_type", string(lt), "error", err)
	}
	if has {
		return AwardResult{Success: true, Source: SourceLocal, AlreadyAwarded: true}
	}

	created, err := a.local.Put(ctx, skillID, lt, a.now())
	if err != nil && created {
		a.logger.Warn("local star saved with a storage fault",
			"skill_id", skillID, "lesson_type", string(lt), "error", err)
		return AwardResult{Success: true, Source: SourceLocal}
	}
	if err != nil {
		a.logger.Error("star award lost: remote and local stores both failed",
			"skill_id", skillID, "lesson_type", string(lt), "error", err)
		return AwardResult{Source: SourceLocal, Err: err}
	}
	return AwardResult{Success: true, Source: SourceLocal, AlreadyAwarded: !created}
}

// Count returns the remote aggregate, or the local one when the remote call
// fails.
func (a *Awarder) Count(ctx context.Context) (StarCount, error) {
	var remoteErr error = errNoRemote
	if a.remote != nil {
		tally, err := a.remote.GetStars(ctx)
		if err == nil {
			return StarCount{Total: tally.Total, Detail: tally.Stars, Source: SourceServer}, nil
		}
		remoteErr = err
		a.logger.Debug("remote star count failed, using local cache", "kind", shared.Classify(err).String(), "error", err)
	}

	total, err := a.local.Count(ctx)
	if err != nil {
		return StarCount{}, errors.Join(remoteErr, err)
	}
	detail, err := a.local.List(ctx)
	if err != nil {
		return StarCount{}, errors.Join(remoteErr, err)
	}
	return StarCount{
		Total:         total,
		Detail:        detail,
		Source:        SourceLocal,
		RemoteFailure: shared.Classify(remoteErr),
	}, nil
}

// RequestServerSync asks the remote store to backfill stars itself.
func (a *Awarder) RequestServerSync(ctx context.Context) SyncResult {
	if a.remote == nil {
		return SyncResult{RemoteFailure: shared.FailureFeatureAbsent}
	}
	out, err := a.remote.SyncStars(ctx)
	if err != nil {
		kind := shared.Classify(err)
		a.logger.Debug("server star sync unavailable", "kind", kind.String(), "error", err)
		return SyncResult{RemoteFailure: kind}
	}
	return SyncResult{Attempted: true, Awarded: out.Awarded, Total: out.Total}
}

// ══════════════════════════════════════════════════════════════════════════════
// PER-KEY LOCKING
// ══════════════════════════════════════════════════════════════════════════════

// keyedMutex hands out one mutex per key and frees it when the last holder
// unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
