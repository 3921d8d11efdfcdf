package progress

import "time"

// Summary is a learner's progress across every started skill.
type Summary struct {
	Skills          []SkillProgress `json:"skills"`
	SkillsStarted   int             `json:"skillsStarted"`
	SkillsCompleted int             `json:"skillsCompleted"`
	TotalStars      int             `json:"totalStars"`
	TotalTimeSpent  int             `json:"totalTimeSpent"`
}

// Summarize builds a Summary from records and the learner's star count.
func Summarize(records []SkillProgress, starCount int) Summary {
	s := Summary{
		Skills:        records,
		SkillsStarted: len(records),
		TotalStars:    starCount,
	}
	if s.Skills == nil {
		s.Skills = []SkillProgress{}
	}
	for _, r := range records {
		if r.OverallProgress.IsCompleted {
			s.SkillsCompleted++
		}
		s.TotalTimeSpent += r.OverallProgress.TotalTimeSpent
	}
	return s
}

// LeaderboardEntry is one learner's standing on a skill.
type LeaderboardEntry struct {
	Rank                 int       `json:"rank"`
	LearnerID            string    `json:"learnerId"`
	BestScore            int       `json:"bestScore"`
	CompletionPercentage int       `json:"completionPercentage"`
	TotalTimeSpent       int       `json:"totalTimeSpent"`
	LastUpdatedAt        time.Time `json:"lastUpdatedAt"`
}

// DefaultLeaderboardLimit applies when the caller passes no positive limit.
const DefaultLeaderboardLimit = 10

// MaxLeaderboardLimit caps a single leaderboard page.
const MaxLeaderboardLimit = 100

// NormalizeLimit maps a caller-supplied limit into [1, MaxLeaderboardLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}

// Statistics aggregates a learner's activity.
type Statistics struct {
	SkillsStarted          int     `json:"skillsStarted"`
	SkillsCompleted        int     `json:"skillsCompleted"`
	PatientSimsCompleted   int     `json:"patientSimsCompleted"`
	ChatSessionsCompleted  int     `json:"chatSessionsCompleted"`
	TotalAttempts          int     `json:"totalAttempts"`
	AverageBestScore       float64 `json:"averageBestScore"`
	AverageChatRating      float64 `json:"averageChatRating"`
	TotalTimeSpent         int     `json:"totalTimeSpent"`
	TotalStars             int     `json:"totalStars"`
	AverageCompletionScore int     `json:"averageCompletion"`
}

// ComputeStatistics derives Statistics from a learner's records.
func ComputeStatistics(records []SkillProgress, starCount int) Statistics {
	st := Statistics{SkillsStarted: len(records), TotalStars: starCount}
	if len(records) == 0 {
		return st
	}

	var scoreSum, completionSum int
	var ratingSum float64
	var rated int
	for _, r := range records {
		ps, cs := r.PatientSimProgress, r.ChatSimProgress
		if r.OverallProgress.IsCompleted {
			st.SkillsCompleted++
		}
		if ps.IsCompleted {
			st.PatientSimsCompleted++
		}
		st.ChatSessionsCompleted += cs.SessionsCompleted
		st.TotalAttempts += ps.Attempts
		st.TotalTimeSpent += r.OverallProgress.TotalTimeSpent
		scoreSum += ps.BestScore
		completionSum += r.OverallProgress.CompletionPercentage
		if cs.SessionsCompleted > 0 {
			ratingSum += cs.AverageRating
			rated++
		}
	}

	n := float64(len(records))
	st.AverageBestScore = roundTo2(float64(scoreSum) / n)
	st.AverageCompletionScore = int(float64(completionSum)/n + 0.5)
	if rated > 0 {
		st.AverageChatRating = roundTo2(ratingSum / float64(rated))
	}
	return st
}

func roundTo2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
