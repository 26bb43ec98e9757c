package servicetitan

import "fmt"

// FailureKind is the closed set of failure categories produced at the
// external-call boundary. Callers branch on the category, never on message
// text.
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureNetwork     FailureKind = "network"
	FailureServer      FailureKind = "server_error"
	FailureRateLimited FailureKind = "rate_limited"
	FailureValidation  FailureKind = "validation"
	FailureConflict    FailureKind = "conflict"
	FailureAuth        FailureKind = "auth"
)

// APIError is a classified failure of a ServiceTitan call.
type APIError struct {
	Kind       FailureKind
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("servicetitan: %s (status=%d code=%s): %s", e.Kind, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("servicetitan: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure is worth re-attempting later.
// Validation rejections, conflicts and credential failures are permanent.
func (e *APIError) Retryable() bool {
	switch e.Kind {
	case FailureTimeout, FailureNetwork, FailureServer, FailureRateLimited:
		return true
	default:
		return false
	}
}
