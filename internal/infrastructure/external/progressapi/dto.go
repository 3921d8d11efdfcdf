package progressapi

import "github.com/skillsim/progress-hub/internal/domain/progress"

// APIResponse is the envelope of every progress endpoint.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta carries request metadata.
type Meta struct {
	RequestID string `json:"requestId,omitempty"`
}

// InitializeRequest is the body of POST /progress/skill/{skillId}/initialize.
type InitializeRequest struct {
	TotalSteps        int `json:"totalSteps"`
	TotalChatSessions int `json:"totalChatSessions"`
}

// AwardRequest is the body of POST /progress/stars/award.
type AwardRequest struct {
	SkillID    string              `json:"skillId"`
	LessonType progress.LessonType `json:"lessonType"`
}
