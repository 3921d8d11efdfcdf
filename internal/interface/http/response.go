package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/skillsim/progress-hub/internal/domain/shared"
	"github.com/skillsim/progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// APIResponse is the envelope of every /progress response.
type APIResponse struct {
	Success bool          `json:"success"`
	Data    any           `json:"data"`
	Error   string        `json:"error,omitempty"`
	Meta    *ResponseMeta `json:"meta,omitempty"`
}

// ResponseMeta carries request metadata.
type ResponseMeta struct {
	RequestID string `json:"requestId,omitempty"`
}

func meta(r *http.Request) *ResponseMeta {
	id := middleware.GetReqID(r.Context())
	if id == "" {
		return nil
	}
	return &ResponseMeta{RequestID: id}
}

// writeJSON writes a success envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data, Meta: meta(r)})
}

// writeJSONError writes a failure envelope. The message is never empty so
// clients can tell an API error from a missing route.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message, Meta: meta(r)})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

var errBadRequestBody = shared.NewDomainError("http", "Decode", shared.ErrInvalidInput, "malformed request body")

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	switch {
	case shared.IsNotFound(err):
		return http.StatusNotFound
	case shared.IsValidation(err):
		return http.StatusBadRequest
	case shared.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and envelope. Internal errors are logged
// and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()

	var de *shared.DomainError
	if errors.As(err, &de) {
		message = de.Message
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.Err(err),
		)
		message = "internal error"
	}
	writeJSONError(w, r, status, message)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON body into dst. An empty body leaves dst zero.
func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return shared.WrapError("http", "Decode", shared.ErrInvalidInput, errBadRequestBody.Message, err)
}

// queryInt parses an integer query parameter. A missing value yields def.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.WrapError("http", "Query", shared.ErrInvalidInput, key+" must be an integer", err)
	}
	return v, nil
}
