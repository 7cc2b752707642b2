package errors

import (
	"fmt"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *Error {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *Error {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// Transport creates a transport failure for a request that could not be completed.
func Transport(method, url string, err error) *Error {
	return Wrap(err, ErrCodeTransport, fmt.Sprintf("%s %s failed", method, url)).
		WithDetail("method", method).
		WithDetail("url", url)
}

// HTTPStatus creates a transport failure for a non-2xx response.
func HTTPStatus(method, url string, status int, body string) *Error {
	e := New(ErrCodeTransport, fmt.Sprintf("%s %s returned status %d", method, url, status)).
		WithDetail("method", method).
		WithDetail("url", url).
		WithDetail("status", status)
	if body != "" {
		e = e.WithDetail("body", body)
	}
	return e
}

// Unauthenticated creates an error for a 401/403 response.
func Unauthenticated(url string, status int) *Error {
	return New(ErrCodeUnauthenticated, fmt.Sprintf("not authenticated for %s", url)).
		WithDetail("url", url).
		WithDetail("status", status)
}

// MalformedResponse creates an error for a response body that could not be decoded.
func MalformedResponse(url string, err error) *Error {
	return Wrap(err, ErrCodeMalformedResponse, fmt.Sprintf("malformed response from %s", url)).
		WithDetail("url", url)
}

// InFlight creates an error for a request rejected because its resource is already being fetched.
func InFlight(key string) *Error {
	return New(ErrCodeInFlight, fmt.Sprintf("a request for '%s' is already in flight", key)).
		WithDetail("resource", key)
}

// FlowActive creates an error for a flow started while already active.
func FlowActive(flow string) *Error {
	return New(ErrCodeFlowActive, fmt.Sprintf("flow '%s' is already active", flow)).
		WithDetail("flow", flow)
}

// FlowTerminated creates an error for a flow that failed at the given step.
func FlowTerminated(flow, step string, err error) *Error {
	return Wrap(err, ErrCodeFlowTerminated, fmt.Sprintf("flow '%s' terminated at step '%s'", flow, step)).
		WithDetail("flow", flow).
		WithDetail("step", step)
}

// NotFound creates an error for a missing local entity.
func NotFound(kind, id string) *Error {
	return New(ErrCodeNotFound, fmt.Sprintf("%s '%s' not found", kind, id)).
		WithDetail("kind", kind).
		WithDetail("id", id)
}

// InvalidInput creates an invalid input error
func InvalidInput(reason string) *Error {
	return New(ErrCodeInvalidInput, reason)
}
