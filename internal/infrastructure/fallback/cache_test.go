package fallback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
)

func newTestCache(t *testing.T) (*Cache, *MemoryStorage) {
	t.Helper()
	store := NewMemoryStorage()
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func TestCache_PutIsNoOpForExistingKey(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	has, err := c.Has(ctx, "hand-hygiene", progress.LessonChat)
	require.NoError(t, err)
	assert.False(t, has)

	created, err := c.Put(ctx, "hand-hygiene", progress.LessonChat, at)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Put(ctx, "hand-hygiene", progress.LessonChat, at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)

	raw, ok, _ := store.Get(ctx, "totalStars")
	require.True(t, ok)
	assert.Equal(t, "1", raw)

	raw, ok, _ = store.Get(ctx, "star_hand-hygiene_chat")
	require.True(t, ok)
	assert.JSONEq(t, `{"skillId":"hand-hygiene","lessonType":"chat","awardedAt":"2026-05-01T09:00:00Z"}`, raw)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_PutRejectsInvalidKey(t *testing.T) {
	c, _ := newTestCache(t)
	_, err := c.Put(context.Background(), "ppe", progress.LessonType("video"), time.Now())
	assert.True(t, shared.IsValidation(err))
}

func TestCache_ListSkipsMalformed(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	_, err := c.Put(ctx, "ppe", progress.LessonSimulation, at.Add(time.Minute))
	require.NoError(t, err)
	_, err = c.Put(ctx, "ppe", progress.LessonChat, at)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "star_broken_chat", "{not json"))
	require.NoError(t, store.Set(ctx, "star_odd_quiz", `{"skillId":"odd","lessonType":"quiz"}`))
	require.NoError(t, store.Set(ctx, "unrelated", "x"))

	awards, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, awards, 2)
	assert.Equal(t, progress.LessonChat, awards[0].LessonType)
	assert.Equal(t, progress.LessonSimulation, awards[1].LessonType)
}

func TestCache_CountRebuildsCounter(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok, _ := store.Get(ctx, "totalStars")
	assert.False(t, ok, "empty cache does not write a counter")

	require.NoError(t, store.Set(ctx, "star_a_chat", `{"skillId":"a","lessonType":"chat"}`))
	require.NoError(t, store.Set(ctx, "star_b_chat", `{"skillId":"b","lessonType":"chat"}`))
	n, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, store.Set(ctx, "totalStars", "garbage"))
	n, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	created, err := c.Put(ctx, "c", progress.LessonChat, time.Now())
	require.NoError(t, err)
	assert.True(t, created)
	raw, _, _ := store.Get(ctx, "totalStars")
	assert.Equal(t, "3", raw)
}

func TestCache_Clear(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	for _, id := range []string{"a", "b"} {
		_, err := c.Put(ctx, id, progress.LessonChat, time.Now())
		require.NoError(t, err)
	}
	require.NoError(t, store.Set(ctx, "theme", "dark"))

	removed, err := c.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	keys, _ := store.Keys(ctx)
	assert.Equal(t, []string{"theme"}, keys)
}

type brokenStorage struct{ MemoryStorage }

var errDisk = errors.New("disk full")

func (b *brokenStorage) Get(context.Context, string) (string, bool, error) { return "", false, errDisk }

func TestCache_StorageFaultsAreWrapped(t *testing.T) {
	c := New(&brokenStorage{}, nil)

	_, err := c.Has(context.Background(), "ppe", progress.LessonChat)
	assert.ErrorIs(t, err, shared.ErrStorage)
	assert.ErrorIs(t, err, errDisk)

	_, err = c.Put(context.Background(), "ppe", progress.LessonChat, time.Now())
	assert.ErrorIs(t, err, shared.ErrStorage)
}

// counterFaultStorage fails every write of the star counter while failCounter
// is set.
type counterFaultStorage struct {
	*MemoryStorage
	failCounter bool
}

func (s *counterFaultStorage) Set(ctx context.Context, key, value string) error {
	if s.failCounter && key == "totalStars" {
		return errDisk
	}
	return s.MemoryStorage.Set(ctx, key, value)
}

func TestCache_CounterWriteFaultDoesNotDrift(t *testing.T) {
	ctx := context.Background()
	store := &counterFaultStorage{MemoryStorage: NewMemoryStorage()}
	c := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, id := range []string{"a", "b", "c"} {
		_, err := c.Put(ctx, id, progress.LessonChat, time.Now())
		require.NoError(t, err)
	}

	store.failCounter = true
	created, err := c.Put(ctx, "d", progress.LessonChat, time.Now())
	require.NoError(t, err)
	assert.True(t, created)

	has, err := c.Has(ctx, "d", progress.LessonChat)
	require.NoError(t, err)
	assert.True(t, has)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	stars, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Len(t, stars, n)

	store.failCounter = false
	_, err = c.Put(ctx, "e", progress.LessonChat, time.Now())
	require.NoError(t, err)
	n, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	raw, _, _ := store.Get(ctx, "totalStars")
	assert.Equal(t, "5", raw)
}

func TestCache_CountRepairsStaleCounter(t *testing.T) {
	ctx := context.Background()
	c, store := newTestCache(t)
	for _, id := range []string{"a", "b"} {
		_, err := c.Put(ctx, id, progress.LessonSimulation, time.Now())
		require.NoError(t, err)
	}
	require.NoError(t, store.Set(ctx, "totalStars", "7"))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	raw, _, _ := store.Get(ctx, "totalStars")
	assert.Equal(t, "2", raw)
}
