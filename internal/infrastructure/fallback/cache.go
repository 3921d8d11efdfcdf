package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
)

// Storage layout.
const (
	starKeyPrefix = "star_"
	totalStarsKey = "totalStars"
)

// StarKey returns the storage key of a star: star_{skillId}_{lessonType}.
func StarKey(skillID string, lt progress.LessonType) string {
	return starKeyPrefix + skillID + "_" + string(lt)
}

// Cache mirrors star awards into local storage. It assumes a single writer
// per origin; Put is serialized within the process only.
type Cache struct {
	store  Storage
	logger *slog.Logger

	mu sync.Mutex
}

// New creates a Cache over store.
func New(store Storage, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:  store,
		logger: logger.With("component", "fallback_cache"),
	}
}

// Has reports whether a star is recorded locally. A missing key is false.
func (c *Cache) Has(ctx context.Context, skillID string, lt progress.LessonType) (bool, error) {
	_, ok, err := c.store.Get(ctx, StarKey(skillID, lt))
	if err != nil {
		return false, storageErr("Has", err)
	}
	return ok, nil
}

// Put records a star unless its key already exists. It reports whether a
// new record was created; the counter moves only in that case.
func (c *Cache) Put(ctx context.Context, skillID string, lt progress.LessonType, awardedAt time.Time) (bool, error) {
	key := progress.StarKey{SkillID: skillID, LessonType: lt}
	if err := key.Validate(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	storageKey := StarKey(skillID, lt)
	_, exists, err := c.store.Get(ctx, storageKey)
	if err != nil {
		return false, storageErr("Put", err)
	}
	if exists {
		return false, nil
	}

	data, err := json.Marshal(progress.StarAward{
		SkillID:    skillID,
		LessonType: lt,
		AwardedAt:  awardedAt.UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("fallback: encode star: %w", err)
	}
	if err := c.store.Set(ctx, storageKey, string(data)); err != nil {
		return false, storageErr("Put", err)
	}
	// The star is durable from here on; a stale counter is repaired by the
	// next count.
	if _, err := c.count(ctx); err != nil {
		c.logger.Warn("star saved but counter not refreshed",
			"skill_id", skillID, "lesson_type", string(lt), "error", err)
	}
	return true, nil
}

// Count returns the number of stored stars. The totalStars counter mirrors
// the star keys and is rewritten whenever it disagrees with them.
func (c *Cache) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count(ctx)
}

func (c *Cache) count(ctx context.Context) (int, error) {
	raw, ok, err := c.store.Get(ctx, totalStarsKey)
	if err != nil {
		return 0, storageErr("Count", err)
	}
	keys, err := c.starKeys(ctx)
	if err != nil {
		return 0, err
	}
	n := len(keys)
	if !ok && n == 0 {
		return 0, nil
	}
	if ok {
		stored, perr := strconv.Atoi(strings.TrimSpace(raw))
		if perr == nil && stored == n {
			return n, nil
		}
		c.logger.Warn("star counter out of sync, rebuilding", "value", raw, "stars", n)
	}
	if err := c.store.Set(ctx, totalStarsKey, strconv.Itoa(n)); err != nil {
		c.logger.Warn("star counter rebuild failed", "error", err)
	}
	return n, nil
}

// List returns every parsable star ordered by award time. Entries that do
// not decode are skipped.
func (c *Cache) List(ctx context.Context) ([]progress.StarAward, error) {
	keys, err := c.starKeys(ctx)
	if err != nil {
		return nil, err
	}

	awards := make([]progress.StarAward, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, storageErr("List", err)
		}
		if !ok {
			continue
		}
		var a progress.StarAward
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			c.logger.Debug("skipping malformed star record", "key", key, "error", err)
			continue
		}
		if a.Key().Validate() != nil {
			c.logger.Debug("skipping invalid star record", "key", key)
			continue
		}
		awards = append(awards, a)
	}

	sort.SliceStable(awards, func(i, j int) bool {
		if awards[i].AwardedAt.Equal(awards[j].AwardedAt) {
			return awards[i].Key().String() < awards[j].Key().String()
		}
		return awards[i].AwardedAt.Before(awards[j].AwardedAt)
	})
	return awards, nil
}

// Clear removes every star and the counter, returning the number of stars
// removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.starKeys(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			return removed, storageErr("Clear", err)
		}
		removed++
	}
	if err := c.store.Delete(ctx, totalStarsKey); err != nil {
		return removed, storageErr("Clear", err)
	}
	return removed, nil
}

func (c *Cache) starKeys(ctx context.Context) ([]string, error) {
	all, err := c.store.Keys(ctx)
	if err != nil {
		return nil, storageErr("Keys", err)
	}
	keys := all[:0:0]
	for _, k := range all {
		if strings.HasPrefix(k, starKeyPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func storageErr(op string, err error) error {
	return shared.WrapError("fallback", op, shared.ErrStorage, "local storage failed", err)
}
