package progress

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsim/progress-hub/internal/domain/shared"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestNewSkillProgress(t *testing.T) {
	p, err := NewSkillProgress("hand-hygiene", 4, 0, t0)
	require.NoError(t, err)

	want := &SkillProgress{
		SkillID: "hand-hygiene",
		PatientSimProgress: PatientSimProgress{
			CompletedSteps: []string{},
			TotalSteps:     4,
		},
		ChatSimProgress: ChatSimProgress{TotalSessions: 1},
		OverallProgress: OverallProgress{LastUpdatedAt: t0},
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("NewSkillProgress() mismatch (-want +got):\n%s", diff)
	}
}

func TestNewSkillProgress_Validation(t *testing.T) {
	_, err := NewSkillProgress("", 1, 1, t0)
	assert.ErrorIs(t, err, shared.ErrInvalidSkillID)

	_, err = NewSkillProgress(" padded", 1, 1, t0)
	assert.ErrorIs(t, err, shared.ErrInvalidSkillID)

	_, err = NewSkillProgress("a/b", 1, 1, t0)
	assert.True(t, shared.IsValidation(err))

	_, err = NewSkillProgress("ppe", -1, 1, t0)
	assert.ErrorIs(t, err, shared.ErrInvalidTotalSteps)
}

func TestApplyPatientSim(t *testing.T) {
	p, err := NewSkillProgress("hand-hygiene", 3, 1, t0)
	require.NoError(t, err)

	require.NoError(t, p.ApplyPatientSim(PatientSimUpdate{
		CompletedSteps: []string{"wash", "rinse"},
		Score:          70,
		TimeSpent:      30,
	}, t0.Add(time.Minute)))
	assert.False(t, p.SimulationStarEligible())
	assert.Equal(t, 33, p.OverallProgress.CompletionPercentage)

	require.NoError(t, p.ApplyPatientSim(PatientSimUpdate{
		CompletedSteps: []string{"rinse", "dry", ""},
		Score:          60,
		TimeSpent:      20,
	}, t0.Add(2*time.Minute)))

	want := PatientSimProgress{
		IsCompleted:    true,
		CompletedSteps: []string{"wash", "rinse", "dry"},
		TotalSteps:     3,
		BestScore:      70,
		Attempts:       2,
		TimeSpent:      50,
	}
	if diff := cmp.Diff(want, p.PatientSimProgress); diff != "" {
		t.Errorf("patient sim mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, p.SimulationStarEligible())
	assert.Equal(t, 50, p.OverallProgress.CompletionPercentage)
	assert.Equal(t, 50, p.OverallProgress.TotalTimeSpent)
	assert.Equal(t, t0.Add(2*time.Minute), p.OverallProgress.LastUpdatedAt)
}

func TestApplyPatientSim_ZeroTotalNeverCompletes(t *testing.T) {
	p, err := NewSkillProgress("ppe", 0, 1, t0)
	require.NoError(t, err)

	require.NoError(t, p.ApplyPatientSim(PatientSimUpdate{CompletedSteps: []string{"a"}}, t0))
	assert.False(t, p.PatientSimProgress.IsCompleted)

	require.NoError(t, p.ApplyPatientSim(PatientSimUpdate{TotalSteps: 1}, t0))
	assert.True(t, p.PatientSimProgress.IsCompleted)
}

func TestApplyChatSim(t *testing.T) {
	p, err := NewSkillProgress("breaking-bad-news", 0, 2, t0)
	require.NoError(t, err)

	assert.ErrorIs(t, p.ApplyChatSim(ChatSimUpdate{}, t0), shared.ErrInvalidSessionID)
	assert.False(t, p.ChatStarEligible())

	require.NoError(t, p.ApplyChatSim(ChatSimUpdate{SessionID: "s1", Rating: 9, Duration: 60}, t0))
	assert.True(t, p.ChatStarEligible(), "one session is enough for the chat star")
	assert.False(t, p.ChatSimProgress.IsCompleted)
	assert.Equal(t, 5.0, p.ChatSimProgress.AverageRating)

	require.NoError(t, p.ApplyChatSim(ChatSimUpdate{SessionID: "s2", Rating: 0, Duration: 40}, t0))
	assert.True(t, p.ChatSimProgress.IsCompleted)
	assert.Equal(t, 3.0, p.ChatSimProgress.AverageRating)
	assert.Equal(t, 100, p.ChatSimProgress.TimeSpent)
	assert.Equal(t, 50, p.OverallProgress.CompletionPercentage)
	assert.False(t, p.OverallProgress.IsCompleted)
}

func TestEligibleLessons(t *testing.T) {
	p, err := NewSkillProgress("vital-signs", 1, 1, t0)
	require.NoError(t, err)
	assert.Empty(t, p.EligibleLessons())

	p.ChatSimProgress.SessionsCompleted = 1
	assert.Equal(t, []LessonType{LessonChat}, p.EligibleLessons())

	p.PatientSimProgress.IsCompleted = true
	assert.Equal(t, []LessonType{LessonChat, LessonSimulation}, p.EligibleLessons())
	assert.False(t, p.Eligible(LessonType("quiz")))
}

func TestComputeStatistics(t *testing.T) {
	a, _ := NewSkillProgress("a", 1, 1, t0)
	require.NoError(t, a.ApplyPatientSim(PatientSimUpdate{CompletedSteps: []string{"x"}, Score: 80, TimeSpent: 10}, t0))
	require.NoError(t, a.ApplyChatSim(ChatSimUpdate{SessionID: "s", Rating: 4, Duration: 5}, t0))
	b, _ := NewSkillProgress("b", 2, 1, t0)
	require.NoError(t, b.ApplyPatientSim(PatientSimUpdate{Score: 41}, t0))

	st := ComputeStatistics([]SkillProgress{*a, *b}, 3)
	assert.Equal(t, 2, st.SkillsStarted)
	assert.Equal(t, 1, st.SkillsCompleted)
	assert.Equal(t, 1, st.PatientSimsCompleted)
	assert.Equal(t, 1, st.ChatSessionsCompleted)
	assert.Equal(t, 2, st.TotalAttempts)
	assert.Equal(t, 60.5, st.AverageBestScore)
	assert.Equal(t, 4.0, st.AverageChatRating)
	assert.Equal(t, 15, st.TotalTimeSpent)
	assert.Equal(t, 3, st.TotalStars)
	assert.Equal(t, 50, st.AverageCompletionScore)

	assert.Equal(t, Statistics{}, ComputeStatistics(nil, 0))
}

func TestSummarize(t *testing.T) {
	s := Summarize(nil, 0)
	assert.NotNil(t, s.Skills)
	assert.Zero(t, s.SkillsStarted)
}
