package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillsim/progress-hub/internal/domain/progress"
)

// LeaderboardCache caches leaderboard pages per skill and limit.
//
// Keys: leaderboard:{skillId}:{limit}. Invalidate drops every limit of a skill.
type LeaderboardCache struct {
	cache *Cache
}

// NewLeaderboardCache creates a leaderboard cache on top of cache.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

func leaderboardKey(skillID string, limit int) string {
	return fmt.Sprintf("%s%s:%d", PrefixLeaderboard, skillID, limit)
}

// Get returns a cached page. A miss is (nil, false, nil).
func (l *LeaderboardCache) Get(ctx context.Context, skillID string, limit int) ([]progress.LeaderboardEntry, bool, error) {
	var entries []progress.LeaderboardEntry
	err := l.cache.Get(ctx, leaderboardKey(skillID, limit), &entries)
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// Set stores a page. ttl <= 0 uses TTLLeaderboardCache.
func (l *LeaderboardCache) Set(ctx context.Context, skillID string, limit int, entries []progress.LeaderboardEntry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	if entries == nil {
		entries = []progress.LeaderboardEntry{}
	}
	return l.cache.Set(ctx, leaderboardKey(skillID, limit), entries, ttl)
}

// Invalidate drops every cached page of a skill.
func (l *LeaderboardCache) Invalidate(ctx context.Context, skillID string) error {
	return l.cache.DeleteByPattern(ctx, PrefixLeaderboard+skillID+":*")
}

var _ progress.LeaderboardCache = (*LeaderboardCache)(nil)
