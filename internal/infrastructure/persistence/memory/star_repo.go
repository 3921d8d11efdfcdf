package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/skillsim/progress-hub/internal/domain/progress"
)

// StarRepository implements progress.StarRepository in memory.
type StarRepository struct {
	mu     sync.Mutex
	awards map[string]progress.StarSet
}

// NewStarRepository creates an empty repository.
func NewStarRepository() *StarRepository {
	return &StarRepository{awards: make(map[string]progress.StarSet)}
}

var _ progress.StarRepository = (*StarRepository)(nil)

func (r *StarRepository) Insert(_ context.Context, learnerID string, award progress.StarAward) (progress.StarAward, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.awards[learnerID]
	if !ok {
		set = progress.StarSet{}
		r.awards[learnerID] = set
	}
	if existing, ok := set[award.Key()]; ok {
		return existing, false, nil
	}
	award.AwardedAt = award.AwardedAt.UTC()
	set[award.Key()] = award
	return award, true, nil
}

func (r *StarRepository) List(_ context.Context, learnerID string) ([]progress.StarAward, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]progress.StarAward, 0, len(r.awards[learnerID]))
	for _, a := range r.awards[learnerID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AwardedAt.Equal(out[j].AwardedAt) {
			return out[i].AwardedAt.Before(out[j].AwardedAt)
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return out, nil
}

func (r *StarRepository) Count(_ context.Context, learnerID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.awards[learnerID]), nil
}
