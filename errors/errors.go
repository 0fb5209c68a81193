// Package errors provides the error taxonomy for SKOS endpoint probing.
// It distinguishes transport-level failures (classified by kind so callers
// can decide on retry or user action) from capability answers, which are
// never modeled as errors.
package errors

import (
	"errors"
	"fmt"
)

// TransportKind classifies a failed round trip to a SPARQL endpoint.
type TransportKind int

const (
	// KindNetwork covers connect/DNS/reset failures before a response arrived.
	KindNetwork TransportKind = iota
	// KindCORSBlocked marks responses a browser would have rejected for
	// cross-origin reasons; detected from response shape, not a status code.
	KindCORSBlocked
	// KindHTTP covers non-2xx responses; Status carries the code.
	KindHTTP
	// KindTimeout covers per-request deadline expiry.
	KindTimeout
	// KindMalformed covers responses that are not valid SPARQL JSON results.
	KindMalformed
)

// String returns the wire-stable name of the kind.
func (k TransportKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindCORSBlocked:
		return "cors_blocked"
	case KindHTTP:
		return "http_error"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	ErrEndpointUnreachable = errors.New("endpoint unreachable")
	ErrRequestTimeout      = errors.New("request timed out")
	ErrCORSBlocked         = errors.New("cross-origin request blocked")
	ErrMalformedResults    = errors.New("malformed query results")

	// ErrAnalysisAborted marks a run terminated by a failing step. The
	// originating transport error is wrapped underneath it.
	ErrAnalysisAborted = errors.New("analysis aborted")

	// ErrAnalysisSuperseded marks a run whose result was discarded because a
	// later run for the same endpoint committed first.
	ErrAnalysisSuperseded = errors.New("analysis superseded by newer run")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// TransportError is the structured failure of a single endpoint round trip.
// It is the only error type the transport client returns; every probe step
// forwards it verbatim without reclassifying (callers rely on Kind).
type TransportError struct {
	Kind      TransportKind
	Status    int // HTTP status, set only for KindHTTP
	Endpoint  string
	Operation string
	Err       error
}

// Error implements the error interface.
func (te *TransportError) Error() string {
	switch te.Kind {
	case KindHTTP:
		return fmt.Sprintf("sparql.%s: endpoint %s returned HTTP %d", te.Operation, te.Endpoint, te.Status)
	default:
		return fmt.Sprintf("sparql.%s: %s: %v", te.Operation, te.Kind, te.Err)
	}
}

// Unwrap returns the underlying error.
func (te *TransportError) Unwrap() error {
	return te.Err
}

// Retryable reports whether the failure may succeed on a retry. Only
// network and timeout failures qualify; HTTP errors, CORS rejections and
// malformed responses are deterministic for a given endpoint.
func (te *TransportError) Retryable() bool {
	return te.Kind == KindNetwork || te.Kind == KindTimeout
}

// Network builds a network-kind transport error.
func Network(err error, endpoint, operation string) *TransportError {
	return &TransportError{Kind: KindNetwork, Endpoint: endpoint, Operation: operation, Err: wrapSentinel(err, ErrEndpointUnreachable)}
}

// Timeout builds a timeout-kind transport error.
func Timeout(err error, endpoint, operation string) *TransportError {
	return &TransportError{Kind: KindTimeout, Endpoint: endpoint, Operation: operation, Err: wrapSentinel(err, ErrRequestTimeout)}
}

// HTTPStatus builds an HTTP-kind transport error for a non-2xx response.
func HTTPStatus(status int, endpoint, operation string) *TransportError {
	return &TransportError{
		Kind:      KindHTTP,
		Status:    status,
		Endpoint:  endpoint,
		Operation: operation,
		Err:       fmt.Errorf("http status %d", status),
	}
}

// CORSBlocked builds a cors-kind transport error.
func CORSBlocked(endpoint, operation string) *TransportError {
	return &TransportError{Kind: KindCORSBlocked, Endpoint: endpoint, Operation: operation, Err: ErrCORSBlocked}
}

// Malformed builds a malformed-response transport error.
func Malformed(err error, endpoint, operation string) *TransportError {
	return &TransportError{Kind: KindMalformed, Endpoint: endpoint, Operation: operation, Err: wrapSentinel(err, ErrMalformedResults)}
}

func wrapSentinel(err, sentinel error) error {
	if err == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// AsTransport extracts a TransportError from an error chain.
func AsTransport(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// IsTransport reports whether err carries a TransportError of the given kind.
func IsTransport(err error, kind TransportKind) bool {
	te, ok := AsTransport(err)
	return ok && te.Kind == kind
}

// IsRetryable reports whether err is a transport failure worth retrying.
// Non-transport errors are never retryable.
func IsRetryable(err error) bool {
	te, ok := AsTransport(err)
	return ok && te.Retryable()
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// Aborted wraps a step failure as the run's terminal error, preserving the
// transport classification underneath ErrAnalysisAborted.
func Aborted(err error, step string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w at step %q: %w", ErrAnalysisAborted, step, err)
}
