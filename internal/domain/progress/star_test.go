package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillsim/progress-hub/internal/domain/shared"
)

func TestCompletionPercentage(t *testing.T) {
	tests := []struct {
		name        string
		stars, size int
		want        int
	}{
		{"23 skills 5 stars", 5, 23, 11},
		{"none", 0, 23, 0},
		{"all", 46, 23, 100},
		{"overflow capped", 50, 23, 100},
		{"empty catalog", 3, 0, 0},
		{"half", 1, 1, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompletionPercentage(tt.stars, tt.size))
		})
	}
}

func TestParseLessonType(t *testing.T) {
	lt, err := ParseLessonType("chat")
	require.NoError(t, err)
	assert.Equal(t, LessonChat, lt)

	_, err = ParseLessonType("Chat")
	assert.ErrorIs(t, err, shared.ErrInvalidLessonType)
}

func TestStarKey_Validate(t *testing.T) {
	assert.NoError(t, StarKey{SkillID: "ppe", LessonType: LessonSimulation}.Validate())
	assert.Error(t, StarKey{SkillID: "", LessonType: LessonChat}.Validate())
	assert.Error(t, StarKey{SkillID: "ppe", LessonType: "video"}.Validate())
	assert.Equal(t, "ppe/chat", StarKey{SkillID: "ppe", LessonType: LessonChat}.String())
}

func TestNewStarSet_KeepsEarliest(t *testing.T) {
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	set := NewStarSet([]StarAward{
		{SkillID: "ppe", LessonType: LessonChat, AwardedAt: late},
		{SkillID: "ppe", LessonType: LessonChat, AwardedAt: early},
		{SkillID: "ppe", LessonType: LessonSimulation, AwardedAt: late},
	})

	assert.Len(t, set, 2)
	assert.Equal(t, early, set[StarKey{SkillID: "ppe", LessonType: LessonChat}].AwardedAt)
	assert.True(t, set.Has(StarKey{SkillID: "ppe", LessonType: LessonSimulation}))
	assert.False(t, set.Has(StarKey{SkillID: "iv-cannulation", LessonType: LessonChat}))
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, 23, c.Len())
	assert.Equal(t, "hand-hygiene", c.SkillIDs()[0])

	e, ok := c.Lookup("Hand Hygiene")
	require.True(t, ok)
	assert.Equal(t, "hand-hygiene", e.SkillID)
}

func TestNewCatalog_RejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]CatalogEntry{{Name: "A", SkillID: "a"}, {Name: "B", SkillID: "a"}})
	assert.Error(t, err)

	_, err = NewCatalog([]CatalogEntry{{Name: "Bad", SkillID: ""}})
	assert.ErrorIs(t, err, shared.ErrInvalidSkillID)

	c, err := NewCatalog([]CatalogEntry{{SkillID: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "x", c.Entries()[0].Name)
}
