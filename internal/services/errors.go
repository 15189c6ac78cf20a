package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrPermanent     = errors.New("permanent failure")
	ErrUnavailable   = errors.New("dependency unavailable")
)

// FailureClass separates failures worth retrying from those that are not.
// Neither class is retried automatically; the class is kept for operators.
type FailureClass string

const (
	ClassTransient FailureClass = "transient"
	ClassPermanent FailureClass = "permanent"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify reports whether err is transient or permanent. Errors without a
// recognised marker are permanent.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return ClassPermanent
	case errors.Is(err, ErrPermanent), errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration), errors.Is(err, ErrNotFound):
		return ClassPermanent
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout),
		errors.Is(err, ErrExternalTool), errors.Is(err, ErrUnavailable):
		return ClassTransient
	default:
		return ClassPermanent
	}
}

// Marker returns the name of the first sentinel found in err's chain, or
// an empty string.
func Marker(err error) string {
	for _, marker := range []error{
		ErrPermanent, ErrValidation, ErrConfiguration, ErrNotFound,
		ErrTimeout, ErrExternalTool, ErrUnavailable, ErrTransient,
	} {
		if errors.Is(err, marker) {
			return marker.Error()
		}
	}
	return ""
}

// ErrorDetails is the operator-facing breakdown of a failure.
type ErrorDetails struct {
	Kind    string
	Class   FailureClass
	Message string
}

// Details summarises err for event payloads and notifications.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	kind := Marker(err)
	if kind == "" {
		kind = "unclassified"
	}
	return ErrorDetails{
		Kind:    kind,
		Class:   Classify(err),
		Message: strings.TrimSpace(err.Error()),
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
