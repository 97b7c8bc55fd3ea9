package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrTransient     = errors.New("transient failure")
	ErrFatal         = errors.New("fatal stage failure")
	ErrLeaseConflict = errors.New("lease conflict")
	ErrNotFound      = errors.New("not found")
	ErrExternalTool  = errors.New("external tool error")
	ErrConfiguration = errors.New("configuration error")
	ErrTimeout       = errors.New("timeout")
)

// Kind is the string classification attached to structured logs.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindTransient     Kind = "transient"
	KindFatal         Kind = "fatal"
	KindLeaseConflict Kind = "lease_conflict"
	KindNotFound      Kind = "not_found"
	KindExternalTool  Kind = "external_tool"
	KindConfiguration Kind = "configuration"
	KindTimeout       Kind = "timeout"
	KindUnknown       Kind = "unknown"
)

// Classified tags an error with one of the sentinel markers above plus the
// stage and operation where it happened. errors.Is sees both the marker and
// the wrapped cause.
type Classified struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Code      string
	Hint      string
	Path      string
	Cause     error
}

func (e *Classified) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Marker.Error(), detail, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Marker.Error(), detail)
}

func (e *Classified) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Marker, e.Cause}
	}
	return []error{e.Marker}
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &Classified{
		Marker:    marker,
		Stage:     stage,
		Operation: operation,
		Message:   message,
		Cause:     err,
	}
}

// KindOf maps an error chain to its classification kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrLeaseConflict):
		return KindLeaseConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrFatal):
		return KindFatal
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrExternalTool):
		return KindExternalTool
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindUnknown
	}
}

// Retryable reports whether a stage failure is worth another attempt.
// Validation, configuration, and fatal failures are terminal; transient
// failures, timeouts, and external tool errors are not.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTimeout, KindExternalTool:
		return true
	default:
		return false
	}
}

// ErrorDetails carries the structured fields extracted from an error chain
// for logging and operator-facing messages.
type ErrorDetails struct {
	Kind      Kind
	Operation string
	Code      string
	Hint      string
	Path      string
	Message   string
	Cause     error
}

// Details inspects an error chain and returns structured details. Unclassified
// errors yield the raw message with KindUnknown.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{Kind: KindUnknown}
	}
	var classified *Classified
	if errors.As(err, &classified) {
		return ErrorDetails{
			Kind:      KindOf(err),
			Operation: classified.Operation,
			Code:      classified.Code,
			Hint:      classified.Hint,
			Path:      classified.Path,
			Message:   classified.Error(),
			Cause:     classified.Cause,
		}
	}
	return ErrorDetails{
		Kind:    KindOf(err),
		Message: err.Error(),
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
