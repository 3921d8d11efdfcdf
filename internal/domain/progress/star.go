package progress

import (
	"math"
	"time"

	"github.com/skillsim/progress-hub/internal/domain/shared"
)

// LessonType is the learning mode a star is awarded for.
type LessonType string

const (
	LessonChat       LessonType = "chat"
	LessonSimulation LessonType = "simulation"
)

// LessonTypes returns every awardable mode. Each skill carries exactly these two.
func LessonTypes() []LessonType {
	return []LessonType{LessonChat, LessonSimulation}
}

// ModesPerSkill is the number of stars a single skill can carry.
const ModesPerSkill = 2

// Valid reports whether lt is a known lesson type.
func (lt LessonType) Valid() bool {
	return lt == LessonChat || lt == LessonSimulation
}

// ParseLessonType validates a raw lesson type string.
func ParseLessonType(s string) (LessonType, error) {
	lt := LessonType(s)
	if !lt.Valid() {
		return "", shared.ErrInvalidLessonType
	}
	return lt, nil
}

// StarKey is the sole identity of a star award.
type StarKey struct {
	SkillID    string
	LessonType LessonType
}

// Validate checks both halves of the key.
func (k StarKey) Validate() error {
	if err := ValidateSkillID(k.SkillID); err != nil {
		return err
	}
	if !k.LessonType.Valid() {
		return shared.ErrInvalidLessonType
	}
	return nil
}

func (k StarKey) String() string {
	return k.SkillID + "/" + string(k.LessonType)
}

// StarAward is a one-time completion marker for a skill/mode pair.
type StarAward struct {
	SkillID    string     `json:"skillId"`
	LessonType LessonType `json:"lessonType"`
	AwardedAt  time.Time  `json:"awardedAt"`
}

// Key returns the identity of the award.
func (a StarAward) Key() StarKey {
	return StarKey{SkillID: a.SkillID, LessonType: a.LessonType}
}

// StarSet indexes awards by key.
type StarSet map[StarKey]StarAward

// NewStarSet builds a set from a listing; duplicate keys keep the earliest award.
func NewStarSet(awards []StarAward) StarSet {
	set := make(StarSet, len(awards))
	for _, a := range awards {
		if prev, ok := set[a.Key()]; ok && !a.AwardedAt.Before(prev.AwardedAt) {
			continue
		}
		set[a.Key()] = a
	}
	return set
}

// Has reports whether the key is present.
func (s StarSet) Has(k StarKey) bool {
	_, ok := s[k]
	return ok
}

// CompletionPercentage is the share of earned stars over every awardable
// skill/mode pair of the catalog, rounded to the nearest integer.
func CompletionPercentage(starCount, catalogSize int) int {
	if catalogSize <= 0 || starCount <= 0 {
		return 0
	}
	pct := math.Round(100 * float64(starCount) / float64(catalogSize*ModesPerSkill))
	if pct > 100 {
		return 100
	}
	return int(pct)
}

// AwardOutcome is the result of an award on the authoritative store.
type AwardOutcome struct {
	Award          StarAward `json:"award"`
	AlreadyAwarded bool      `json:"alreadyAwarded"`
}

// StarTally is the aggregate star count with its detail.
type StarTally struct {
	Total int         `json:"total"`
	Stars []StarAward `json:"stars"`
}

// SyncOutcome reports a server-side star backfill.
type SyncOutcome struct {
	Awarded int `json:"awarded"`
	Total   int `json:"total"`
}
