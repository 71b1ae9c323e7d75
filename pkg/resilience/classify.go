package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Kind buckets a failure for retry policy decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindSessionExpired
	KindElementNotFound
	KindServiceError
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindSessionExpired:
		return "session_expired"
	case KindElementNotFound:
		return "element_not_found"
	case KindServiceError:
		return "service_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind are governed by the retry
// policy. Session expiry is surfaced to the operator immediately; a service
// refusal is a fatal per-task outcome.
func (k Kind) Retryable() bool {
	return k != KindSessionExpired && k != KindServiceError
}

// ClassifiedError tags an underlying error with its failure kind. Drivers
// wrap their errors with Mark so classification does not depend on message
// matching.
type ClassifiedError struct {
	Kind Kind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Mark wraps err with an explicit failure kind. A nil err returns nil.
func Mark(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: kind, Err: err}
}

// Classify determines the failure kind of an error: explicit marks first,
// then context/net errors, then message keywords as a last resort.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection", "network", "dns", "socket", "tls", "certificate"):
		return KindNetwork
	case containsAny(msg, "timeout", "timed out", "deadline"):
		return KindTimeout
	case containsAny(msg, "session expired", "not logged in", "login required", "unauthorized"):
		return KindSessionExpired
	case containsAny(msg, "element not found", "no such element", "unable to locate", "cannot find element"):
		return KindElementNotFound
	case containsAny(msg, "rate limit", "too many requests", "quota exceeded", "service refused"):
		return KindServiceError
	default:
		return KindUnknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
