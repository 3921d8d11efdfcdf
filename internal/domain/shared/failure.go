package shared

import "errors"

// FailureKind classifies why a call to the remote store did not succeed.
// Callers branch on the kind instead of on which error was returned.
type FailureKind int

const (
	// FailureNone means the call succeeded.
	FailureNone FailureKind = iota
	// FailureTransport covers no response: dial, DNS, timeout, reset, open breaker.
	FailureTransport
	// FailureFeatureAbsent means the endpoint is not deployed (404, 405, 501).
	FailureFeatureAbsent
	// FailureServer covers other 5xx responses and 429.
	FailureServer
	// FailureRejected covers other 4xx responses.
	FailureRejected
	// FailureMalformed means a success status with an undecodable or
	// unsuccessful envelope.
	FailureMalformed
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureTransport:
		return "transport"
	case FailureFeatureAbsent:
		return "feature_absent"
	case FailureServer:
		return "server"
	case FailureRejected:
		return "rejected"
	case FailureMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Transient reports whether the same request could succeed if sent again.
func (k FailureKind) Transient() bool {
	return k == FailureTransport || k == FailureServer
}

// Classified is implemented by errors that know their FailureKind.
type Classified interface {
	error
	FailureKind() FailureKind
}

// Classify returns the FailureKind of err. Unclassified errors count as
// transport failures; nil is FailureNone.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	var c Classified
	if errors.As(err, &c) {
		return c.FailureKind()
	}
	return FailureTransport
}
