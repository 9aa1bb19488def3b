package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrNoMessages           = sterrors.New("jetflow: no messages")
	ErrRejected             = sterrors.New("jetflow: task rejected, pool is shut down")
	ErrMalformedPayload     = sterrors.New("jetflow: malformed payload")
	ErrHandlerNotRegistered = sterrors.New("jetflow: handler not registered")
	ErrHandlerRequired      = sterrors.New("jetflow: handler factory is required")
	ErrClassRequired        = sterrors.New("jetflow: class name is required")
	ErrStreamRequired       = sterrors.New("jetflow: stream is required")
	ErrSubjectRequired      = sterrors.New("jetflow: subject is required")
	ErrConfigRequired       = sterrors.New("jetflow: config is required")
	ErrLoggerRequired       = sterrors.New("jetflow: logger is required")
	ErrClientRequired       = sterrors.New("jetflow: broker client is required")
	ErrNotImplemented       = sterrors.New("jetflow: not implemented")

	ErrSchedulerNotConfigured = sterrors.New("jetflow: no scheduled job consumer configured")
)

// ConfigNotFoundError is returned when an explicitly requested config file does not exist.
type ConfigNotFoundError struct {
	Path string
}

func (e *ConfigNotFoundError) Error() string {
	return "No such file " + e.Path
}

// StreamNotFoundError is returned when a publish or subscribe targets a stream the broker does not know.
type StreamNotFoundError struct {
	Stream string
	Cause  error
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("Missing stream `%s`", e.Stream)
}

func (e *StreamNotFoundError) Unwrap() error {
	return e.Cause
}

// HandlerNotRegisteredError names the class that could not be resolved.
type HandlerNotRegisteredError struct {
	Class string
}

func (e *HandlerNotRegisteredError) Error() string {
	return fmt.Sprintf("jetflow: %s class not found", e.Class)
}

// Is implements errors.Is for HandlerNotRegisteredError.
func (e *HandlerNotRegisteredError) Is(target error) bool {
	return target == ErrHandlerNotRegistered
}
