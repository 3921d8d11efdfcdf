// Package progress holds the learner-progress domain: per-skill progress
// records for the two learning modes, one-time star awards, the skill catalog
// and the rules that connect them.
package progress

import (
	"math"
	"strings"
	"time"

	"github.com/skillsim/progress-hub/internal/domain/shared"
)

// PatientSimProgress is the step-based simulation mode of a skill.
type PatientSimProgress struct {
	IsCompleted    bool     `json:"isCompleted"`
	CompletedSteps []string `json:"completedSteps"`
	TotalSteps     int      `json:"totalSteps"`
	BestScore      int      `json:"bestScore"`
	Attempts       int      `json:"attempts"`
	TimeSpent      int      `json:"timeSpent"` // seconds
}

// ChatSimProgress is the conversational practice mode of a skill.
type ChatSimProgress struct {
	IsCompleted       bool    `json:"isCompleted"`
	SessionsCompleted int     `json:"sessionsCompleted"`
	TotalSessions     int     `json:"totalSessions"`
	AverageRating     float64 `json:"averageRating"`
	TimeSpent         int     `json:"timeSpent"` // seconds
}

// OverallProgress is derived from the two modes on every mutation.
type OverallProgress struct {
	CompletionPercentage int       `json:"completionPercentage"`
	IsCompleted          bool      `json:"isCompleted"`
	TotalTimeSpent       int       `json:"totalTimeSpent"` // seconds
	LastUpdatedAt        time.Time `json:"lastUpdatedAt"`
}

// SkillProgress is one learner's record for one skill.
type SkillProgress struct {
	SkillID            string             `json:"skillId"`
	PatientSimProgress PatientSimProgress `json:"patientSimProgress"`
	ChatSimProgress    ChatSimProgress    `json:"chatSimProgress"`
	OverallProgress    OverallProgress    `json:"overallProgress"`
}

// ValidateSkillID rejects empty or whitespace-padded identifiers and ones
// containing '/' which would break the URL path.
func ValidateSkillID(skillID string) error {
	if skillID == "" || strings.TrimSpace(skillID) != skillID || strings.Contains(skillID, "/") {
		return shared.ErrInvalidSkillID
	}
	return nil
}

// NewSkillProgress creates an empty record for a skill. totalChatSessions
// below one is raised to one.
func NewSkillProgress(skillID string, totalSteps, totalChatSessions int, now time.Time) (*SkillProgress, error) {
	if err := ValidateSkillID(skillID); err != nil {
		return nil, err
	}
	if totalSteps < 0 {
		return nil, shared.ErrInvalidTotalSteps
	}
	if totalChatSessions < 1 {
		totalChatSessions = 1
	}
	p := &SkillProgress{
		SkillID: skillID,
		PatientSimProgress: PatientSimProgress{
			CompletedSteps: []string{},
			TotalSteps:     totalSteps,
		},
		ChatSimProgress: ChatSimProgress{
			TotalSessions: totalChatSessions,
		},
	}
	p.recompute(now)
	return p, nil
}

// PatientSimUpdate is one reported patient-simulation attempt.
type PatientSimUpdate struct {
	TotalSteps     int      `json:"totalSteps"`
	CompletedSteps []string `json:"completedSteps"`
	Score          int      `json:"score"`
	TimeSpent      int      `json:"timeSpent"`
}

// ApplyPatientSim folds an attempt into the record. Completed steps are a
// set that keeps first-completion order.
func (p *SkillProgress) ApplyPatientSim(u PatientSimUpdate, now time.Time) error {
	if u.TotalSteps < 0 {
		return shared.ErrInvalidTotalSteps
	}
	ps := &p.PatientSimProgress
	if u.TotalSteps > 0 {
		ps.TotalSteps = u.TotalSteps
	}
	seen := make(map[string]struct{}, len(ps.CompletedSteps))
	for _, s := range ps.CompletedSteps {
		seen[s] = struct{}{}
	}
	for _, s := range u.CompletedSteps {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		ps.CompletedSteps = append(ps.CompletedSteps, s)
	}
	if u.Score > ps.BestScore {
		ps.BestScore = u.Score
	}
	ps.Attempts++
	if u.TimeSpent > 0 {
		ps.TimeSpent += u.TimeSpent
	}
	ps.IsCompleted = ps.TotalSteps > 0 && len(ps.CompletedSteps) >= ps.TotalSteps
	p.recompute(now)
	return nil
}

// ChatSimUpdate is one finished chat-simulation session.
type ChatSimUpdate struct {
	SessionID string  `json:"sessionId"`
	Rating    float64 `json:"rating"`
	Duration  int     `json:"duration"`
}

// ApplyChatSim counts a finished session. Ratings are clamped to 1–5 and
// folded into a running mean.
func (p *SkillProgress) ApplyChatSim(u ChatSimUpdate, now time.Time) error {
	if strings.TrimSpace(u.SessionID) == "" {
		return shared.ErrInvalidSessionID
	}
	cs := &p.ChatSimProgress
	rating := math.Max(1, math.Min(5, u.Rating))
	total := cs.AverageRating*float64(cs.SessionsCompleted) + rating
	cs.SessionsCompleted++
	cs.AverageRating = math.Round(total/float64(cs.SessionsCompleted)*100) / 100
	if u.Duration > 0 {
		cs.TimeSpent += u.Duration
	}
	if cs.TotalSessions < 1 {
		cs.TotalSessions = 1
	}
	cs.IsCompleted = cs.SessionsCompleted >= cs.TotalSessions
	p.recompute(now)
	return nil
}

func (p *SkillProgress) recompute(now time.Time) {
	ps, cs := p.PatientSimProgress, p.ChatSimProgress

	var patient, chat float64
	if ps.IsCompleted {
		patient = 1
	} else if ps.TotalSteps > 0 {
		patient = math.Min(1, float64(len(ps.CompletedSteps))/float64(ps.TotalSteps))
	}
	if cs.IsCompleted {
		chat = 1
	} else if cs.TotalSessions > 0 {
		chat = math.Min(1, float64(cs.SessionsCompleted)/float64(cs.TotalSessions))
	}

	p.OverallProgress = OverallProgress{
		CompletionPercentage: int(math.Round(50*patient + 50*chat)),
		IsCompleted:          ps.IsCompleted && cs.IsCompleted,
		TotalTimeSpent:       ps.TimeSpent + cs.TimeSpent,
		LastUpdatedAt:        now.UTC(),
	}
}

// ChatStarEligible reports whether the chat-mode star is earned.
func (p *SkillProgress) ChatStarEligible() bool {
	return p.ChatSimProgress.IsCompleted || p.ChatSimProgress.SessionsCompleted > 0
}

// SimulationStarEligible reports whether the simulation-mode star is earned.
func (p *SkillProgress) SimulationStarEligible() bool {
	return p.PatientSimProgress.IsCompleted
}

// Eligible reports whether the star for lessonType is earned.
func (p *SkillProgress) Eligible(lt LessonType) bool {
	switch lt {
	case LessonChat:
		return p.ChatStarEligible()
	case LessonSimulation:
		return p.SimulationStarEligible()
	default:
		return false
	}
}

// EligibleLessons lists the earned lesson types in canonical order.
func (p *SkillProgress) EligibleLessons() []LessonType {
	var out []LessonType
	for _, lt := range LessonTypes() {
		if p.Eligible(lt) {
			out = append(out, lt)
		}
	}
	return out
}
