package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skillsim/progress-hub/internal/domain/progress"
	"github.com/skillsim/progress-hub/internal/domain/shared"
	"github.com/skillsim/progress-hub/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

type initializeRequest struct {
	TotalSteps        int `json:"totalSteps"`
	TotalChatSessions int `json:"totalChatSessions"`
}

type awardRequest struct {
	SkillID    string `json:"skillId"`
	LessonType string `json:"lessonType"`
}

// learner returns the authenticated learner or writes a 401.
func (s *Server) learner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := handlers.LearnerIDFrom(r.Context())
	if !ok {
		s.writeError(w, r, shared.ErrMissingCredential)
	}
	return id, ok
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"status":  "healthy",
			"uptime":  s.Uptime().String(),
			"version": s.config.Version,
		})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		if status := s.deps.HealthChecker.Check(r.Context()); !status.Ready {
			writeJSONError(w, r, http.StatusServiceUnavailable, status.Message)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSummary handles GET /progress/summary
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learner(w, r)
	if !ok {
		return
	}
	summary, err := s.deps.Tracking.GetSummary(r.Context(), learnerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

// handleGetSkill handles GET /progress/skill/{skillId}
func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learner(w, r)
	if !ok {
		return
	}
	p, err := s.deps.Tracking.GetSkill(r.Context(), learnerID, chi.URLParam(r, "skillId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// handleInitialize handles POST /progress/skill/{skillId}/initialize
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learner(w, r)
	if !ok {
		return
	}
	var req initializeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.deps.Tracking.Initialize(r.Context(), learnerID, chi.URLParam(r, "skillId"), req.TotalSteps, req.TotalChatSessions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// handlePatientSim handles POST /progress/skill/{skillId}/patient-sim
func (s *Server) handlePatientSim(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learner(w, r)
	if !ok {
		return
	}
	var req progress.PatientSimUpdate
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.deps.Tracking.UpdatePatientSim(r.Context(), learnerID, chi.URLParam(r, "skillId"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// handleChatSim handles POST /progress/skill/{skillId}/chat-sim
func (s *Server) handleChatSim(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learner(w, r)
	if !ok {
		return
	}
	var req progress.ChatSimUpdate
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.deps.Tracking.UpdateChatSim(r.Context(), learnerID, chi.URLParam(r, "skillId"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// handleReset handles DELETE /progress/skill/{skillId}/reset
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learner(w, r)
	if !ok {
		return
	}
	skillID := chi.URLParam(r, "skillId")
	if err := s.deps.Tracking.Reset(r.Context(), learnerID, skillID); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"skillId": skillID})
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD & STATISTICS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /progress/leaderboard/{skillId}?limit=N
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", progress.DefaultLeaderboardLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.deps.Tracking.Leaderboard(r.Context(), chi.URLParam(r, "skillId"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}

// handleGetStatistics handles GET /progress/stats
func (s *Server) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learner(w, r)
	if !ok {
		return
	}
	stats, err := s.deps.Tracking.Statistics(r.Context(), learnerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// ══════════════════════════════════════════════════════════════════════════════
// STAR HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleAwardStar handles POST /progress/stars/award
func (s *Server) handleAwardStar(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learner(w, r)
	if !ok {
		return
	}
	var req awardRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	lt, err := progress.ParseLessonType(req.LessonType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := s.deps.Tracking.AwardStar(r.Context(), learnerID, req.SkillID, lt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleGetStars handles GET /progress/stars
func (s *Server) handleGetStars(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learner(w, r)
	if !ok {
		return
	}
	tally, err := s.deps.Tracking.Stars(r.Context(), learnerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tally)
}

// handleSyncStars handles POST /progress/stars/sync
func (s *Server) handleSyncStars(w http.ResponseWriter, r *http.Request) {
	learnerID, ok := s.learner(w, r)
	if !ok {
		return
	}
	out, err := s.deps.Tracking.SyncStars(r.Context(), learnerID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, out)
}
