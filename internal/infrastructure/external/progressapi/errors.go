package progressapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/skillsim/progress-hub/internal/domain/shared"
)

// Error is returned by every Client call that did not succeed. It always
// matches shared.ErrServiceUnavailable and carries the failure kind.
type Error struct {
	Op      string
	Kind    shared.FailureKind
	Status  int    // HTTP status, 0 when no response arrived
	Message string // server-supplied message, if any
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("progressapi.%s: %s (status %d): %s", e.Op, e.Kind, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("progressapi.%s: %s (status %d)", e.Op, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("progressapi.%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("progressapi.%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// FailureKind implements shared.Classified.
func (e *Error) FailureKind() shared.FailureKind { return e.Kind }

// Is matches shared.ErrServiceUnavailable, and ErrNotFound or
// ErrUnauthorized for the corresponding statuses.
func (e *Error) Is(target error) bool {
	switch target {
	case shared.ErrServiceUnavailable:
		return true
	case shared.ErrNotFound:
		return e.Status == http.StatusNotFound && e.Kind == shared.FailureRejected
	case shared.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	}
	return false
}

// classifyStatus maps a non-2xx status to a failure kind. hasEnvelope tells
// a routed 404 (the resource is missing) from an unrouted one (the endpoint
// is not deployed).
func classifyStatus(status int, hasEnvelope bool) shared.FailureKind {
	switch {
	case status == http.StatusNotFound && hasEnvelope:
		return shared.FailureRejected
	case status == http.StatusNotFound,
		status == http.StatusMethodNotAllowed,
		status == http.StatusNotImplemented:
		return shared.FailureFeatureAbsent
	case status == http.StatusTooManyRequests, status >= 500:
		return shared.FailureServer
	default:
		return shared.FailureRejected
	}
}

// IsBreakerFailure reports whether err says something about the health of
// the remote store. Missing features and rejected requests do not.
func IsBreakerFailure(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind == shared.FailureTransport || apiErr.Kind == shared.FailureServer
	}
	return err != nil
}
