// Package scheduler runs periodic background jobs such as star
// reconciliation.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job is a unit of periodic work.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job. The context is cancelled when the scheduler
	// stops.
	Run(ctx context.Context) error
}

// Schedule decides when a job runs next.
type Schedule interface {
	Next(t time.Time) time.Time
	String() string
}

// JobResult is the outcome of one execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

var (
	ErrNilJob                  = errors.New("job cannot be nil")
	ErrNilSchedule             = errors.New("schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("job already exists")
	ErrJobNotFound             = errors.New("job not found")
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")
	ErrSchedulerNotRunning     = errors.New("scheduler is not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config tunes a Scheduler.
type Config struct {
	Logger *slog.Logger

	// Tick is how often due jobs are checked. Defaults to one second.
	Tick time.Duration

	// RunOnStart executes every registered job once when Start is called.
	RunOnStart bool

	// OnResult, when set, observes every finished execution.
	OnResult func(JobResult)
}

// Scheduler runs registered jobs on their schedules. A job never overlaps
// with itself: a run that is still in flight when the job comes due again
// is skipped.
type Scheduler struct {
	mu      sync.RWMutex
	logger  *slog.Logger
	tick    time.Duration
	onStart bool
	observe func(JobResult)

	jobs    map[string]*scheduledJob
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type scheduledJob struct {
	job      Job
	schedule Schedule
	nextRun  time.Time
	busy     bool
	runs     int64
	fails    int64
	last     *JobResult
}

// New creates a stopped scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Scheduler{
		logger:  cfg.Logger.With("component", "scheduler"),
		tick:    cfg.Tick,
		onStart: cfg.RunOnStart,
		observe: cfg.OnResult,
		jobs:    make(map[string]*scheduledJob),
	}
}

// Register adds a job with its schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}
	sj := &scheduledJob{job: job, schedule: schedule, nextRun: schedule.Next(time.Now())}
	s.jobs[name] = sj

	s.logger.Info("job registered", "job", name, "schedule", schedule.String())
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	var initial []*scheduledJob
	if s.onStart {
		for _, sj := range s.jobs {
			initial = append(initial, sj)
		}
	}
	s.mu.Unlock()

	for _, sj := range initial {
		s.launch(ctx, sj)
	}

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.RLock()
	due := make([]*scheduledJob, 0, len(s.jobs))
	for _, sj := range s.jobs {
		if !now.Before(sj.nextRun) {
			due = append(due, sj)
		}
	}
	s.mu.RUnlock()

	for _, sj := range due {
		s.launch(ctx, sj)
	}
}

// launch starts sj unless it is already running.
func (s *Scheduler) launch(ctx context.Context, sj *scheduledJob) {
	s.mu.Lock()
	if sj.busy {
		sj.nextRun = sj.schedule.Next(time.Now())
		s.mu.Unlock()
		s.logger.Warn("job still running, skipping", "job", sj.job.Name())
		return
	}
	sj.busy = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx, sj)
	}()
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) {
	name := sj.job.Name()
	started := time.Now()

	err := sj.job.Run(ctx)
	completed := time.Now()
	result := JobResult{
		JobName:     name,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		Success:     err == nil,
		Error:       err,
	}

	s.mu.Lock()
	sj.busy = false
	sj.runs++
	if err != nil {
		sj.fails++
	}
	sj.last = &result
	sj.nextRun = sj.schedule.Next(completed)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("job failed", "job", name, "duration", result.Duration.String(), "error", err)
	} else {
		s.logger.Debug("job completed", "job", name, "duration", result.Duration.String())
	}
	if s.observe != nil {
		s.observe(result)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// INTROSPECTION
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string
	Schedule string
	NextRun  time.Time
	Runs     int64
	Failures int64
	Last     *JobResult
}

// Jobs lists registered jobs by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		info := JobInfo{
			Name:     name,
			Schedule: sj.schedule.String(),
			NextRun:  sj.nextRun,
			Runs:     sj.runs,
			Failures: sj.fails,
		}
		if sj.last != nil {
			last := *sj.last
			info.Last = &last
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
