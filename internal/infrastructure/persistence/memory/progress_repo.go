// Package memory provides in-process implementations of the progress
// repositories for development servers and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
)

type recordKey struct {
	learnerID string
	skillID   string
}

type sessionKey struct {
	learnerID string
	skillID   string
	sessionID string
}

// ProgressRepository implements progress.Repository in memory.
type ProgressRepository struct {
	mu       sync.RWMutex
	records  map[recordKey]progress.SkillProgress
	sessions map[sessionKey]struct{}
}

// NewProgressRepository creates an empty repository.
func NewProgressRepository() *ProgressRepository {
	return &ProgressRepository{
		records:  make(map[recordKey]progress.SkillProgress),
		sessions: make(map[sessionKey]struct{}),
	}
}

var _ progress.Repository = (*ProgressRepository)(nil)

// clone detaches the step slice so callers cannot mutate stored state.
func clone(p progress.SkillProgress) progress.SkillProgress {
	steps := make([]string, len(p.PatientSimProgress.CompletedSteps))
	copy(steps, p.PatientSimProgress.CompletedSteps)
	p.PatientSimProgress.CompletedSteps = steps
	return p
}

func (r *ProgressRepository) Get(_ context.Context, learnerID, skillID string) (*progress.SkillProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.records[recordKey{learnerID, skillID}]
	if !ok {
		return nil, shared.ErrSkillProgressNotFound
	}
	c := clone(p)
	return &c, nil
}

func (r *ProgressRepository) List(_ context.Context, learnerID string) ([]progress.SkillProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []progress.SkillProgress{}
	for k, p := range r.records {
		if k.learnerID == learnerID {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SkillID < out[j].SkillID })
	return out, nil
}

func (r *ProgressRepository) Save(_ context.Context, learnerID string, p *progress.SkillProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[recordKey{learnerID, p.SkillID}] = clone(*p)
	return nil
}

func (r *ProgressRepository) Delete(_ context.Context, learnerID, skillID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, recordKey{learnerID, skillID})
	return nil
}

func (r *ProgressRepository) TopBySkill(_ context.Context, skillID string, limit int) ([]progress.LeaderboardEntry, error) {
	r.mu.RLock()
	var entries []progress.LeaderboardEntry
	for k, p := range r.records {
		if k.skillID != skillID {
			continue
		}
		entries = append(entries, progress.LeaderboardEntry{
			LearnerID:            k.learnerID,
			BestScore:            p.PatientSimProgress.BestScore,
			CompletionPercentage: p.OverallProgress.CompletionPercentage,
			TotalTimeSpent:       p.OverallProgress.TotalTimeSpent,
			LastUpdatedAt:        p.OverallProgress.LastUpdatedAt,
		})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.BestScore != b.BestScore {
			return a.BestScore > b.BestScore
		}
		if a.TotalTimeSpent != b.TotalTimeSpent {
			return a.TotalTimeSpent < b.TotalTimeSpent
		}
		return a.LearnerID < b.LearnerID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]progress.LeaderboardEntry, len(entries))
	for i, e := range entries {
		e.Rank = i + 1
		out[i] = e
	}
	return out, nil
}

func (r *ProgressRepository) RecordChatSession(_ context.Context, learnerID, skillID, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := sessionKey{learnerID, skillID, sessionID}
	if _, ok := r.sessions[k]; ok {
		return false, nil
	}
	r.sessions[k] = struct{}{}
	return true, nil
}

func (r *ProgressRepository) ForgetChatSessions(_ context.Context, learnerID, skillID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k := range r.sessions {
		if k.learnerID == learnerID && k.skillID == skillID {
			delete(r.sessions, k)
		}
	}
	return nil
}
