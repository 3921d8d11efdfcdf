package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestProgressRepository_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository()

	_, err := repo.Get(ctx, "learner-1", "ppe")
	assert.True(t, shared.IsNotFound(err))

	p, err := progress.NewSkillProgress("ppe", 3, 1, t0)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, "learner-1", p))

	got, err := repo.Get(ctx, "learner-1", "ppe")
	require.NoError(t, err)
	assert.Equal(t, 3, got.PatientSimProgress.TotalSteps)

	// Returned records are copies.
	got.PatientSimProgress.CompletedSteps = append(got.PatientSimProgress.CompletedSteps, "x")
	again, _ := repo.Get(ctx, "learner-1", "ppe")
	assert.Empty(t, again.PatientSimProgress.CompletedSteps)

	require.NoError(t, repo.Delete(ctx, "learner-1", "ppe"))
	require.NoError(t, repo.Delete(ctx, "learner-1", "ppe"))
	_, err = repo.Get(ctx, "learner-1", "ppe")
	assert.True(t, shared.IsNotFound(err))
}

func TestProgressRepository_ListIsScopedAndSorted(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository()
	for _, id := range []string{"wound-dressing", "ppe", "blood-pressure"} {
		p, _ := progress.NewSkillProgress(id, 1, 1, t0)
		require.NoError(t, repo.Save(ctx, "a", p))
	}
	other, _ := progress.NewSkillProgress("ng-tube", 1, 1, t0)
	require.NoError(t, repo.Save(ctx, "b", other))

	list, err := repo.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "blood-pressure", list[0].SkillID)
	assert.Equal(t, "wound-dressing", list[2].SkillID)

	empty, err := repo.List(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestProgressRepository_TopBySkill(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository()
	save := func(learner string, score, seconds int) {
		p, _ := progress.NewSkillProgress("ppe", 4, 1, t0)
		require.NoError(t, p.ApplyPatientSim(progress.PatientSimUpdate{Score: score, TimeSpent: seconds}, t0))
		require.NoError(t, repo.Save(ctx, learner, p))
	}
	save("slow", 90, 600)
	save("fast", 90, 300)
	save("low", 40, 100)

	top, err := repo.TopBySkill(ctx, "ppe", 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "fast", top[0].LearnerID)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, "slow", top[1].LearnerID)
	assert.Equal(t, 2, top[1].Rank)
}

func TestProgressRepository_ChatSessionLedger(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository()

	ok, err := repo.RecordChatSession(ctx, "a", "ppe", "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RecordChatSession(ctx, "a", "ppe", "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = repo.RecordChatSession(ctx, "b", "ppe", "s1")
	assert.True(t, ok, "ledger is per learner")

	require.NoError(t, repo.ForgetChatSessions(ctx, "a", "ppe"))
	ok, _ = repo.RecordChatSession(ctx, "a", "ppe", "s1")
	assert.True(t, ok)
}

func TestStarRepository_InsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewStarRepository()
	award := progress.StarAward{SkillID: "ppe", LessonType: progress.LessonChat, AwardedAt: t0}

	stored, created, err := repo.Insert(ctx, "a", award)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, t0, stored.AwardedAt)

	later := award
	later.AwardedAt = t0.Add(time.Hour)
	stored, created, err = repo.Insert(ctx, "a", later)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, t0, stored.AwardedAt, "first award time is kept")

	n, _ := repo.Count(ctx, "a")
	assert.Equal(t, 1, n)
	n, _ = repo.Count(ctx, "b")
	assert.Equal(t, 0, n)
}

func TestStarRepository_ConcurrentInsertCreatesOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewStarRepository()
	award := progress.StarAward{SkillID: "ppe", LessonType: progress.LessonSimulation, AwardedAt: t0}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Insert(ctx, "a", award)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestStarRepository_ListOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewStarRepository()
	_, _, _ = repo.Insert(ctx, "a", progress.StarAward{SkillID: "ppe", LessonType: progress.LessonSimulation, AwardedAt: t0.Add(time.Minute)})
	_, _, _ = repo.Insert(ctx, "a", progress.StarAward{SkillID: "ng-tube", LessonType: progress.LessonChat, AwardedAt: t0})

	list, err := repo.List(ctx, "a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ng-tube", list[0].SkillID)
	assert.Equal(t, "ppe", list[1].SkillID)
}
