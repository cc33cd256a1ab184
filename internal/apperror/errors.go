// Package apperror defines the error taxonomy shared by the admission and
// lifecycle paths.  Handlers translate a Kind into an HTTP status; callers
// decide whether to retry with IsRetryable.
package apperror

import (
	"errors"
	"fmt"

	"github.com/neighborhood/facility-booking/internal/model"
)

// Kind classifies an application error.
type Kind string

const (
	KindInvalidWindow       Kind = "INVALID_WINDOW"
	KindInvalidQuantity     Kind = "INVALID_QUANTITY"
	KindUnknownFacility     Kind = "UNKNOWN_FACILITY"
	KindFacilityUnavailable Kind = "FACILITY_UNAVAILABLE"
	KindCapacityExceeded    Kind = "CAPACITY_EXCEEDED"
	KindStorage             Kind = "STORAGE_ERROR"
	KindInvalidTransition   Kind = "INVALID_TRANSITION"
	KindNotFound            Kind = "NOT_FOUND"
	KindForbidden           Kind = "FORBIDDEN"
)

// CapacityDetail is attached to CAPACITY_EXCEEDED errors so the caller can
// suggest a smaller quantity or another time.
type CapacityDetail struct {
	Capacity   int          `json:"capacity"`
	PeakUsage  int          `json:"peak_usage"`
	Available  int          `json:"available"`
	PeakWindow model.Window `json:"peak_window"`
}

// Error is the concrete error type returned by the service layer.
type Error struct {
	Kind     Kind
	Message  string
	Err      error
	Capacity *CapacityDetail
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err,
// &Error{Kind: KindNotFound}) works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

func InvalidWindow(err error) *Error {
	return &Error{Kind: KindInvalidWindow, Message: "invalid reservation window", Err: err}
}

func InvalidQuantity(message string) *Error {
	return &Error{Kind: KindInvalidQuantity, Message: message}
}

func UnknownFacility(id string) *Error {
	return &Error{Kind: KindUnknownFacility, Message: fmt.Sprintf("facility %q does not exist", id)}
}

func FacilityUnavailable(id string, status model.FacilityStatus) *Error {
	return &Error{Kind: KindFacilityUnavailable, Message: fmt.Sprintf("facility %q is not bookable (status %s)", id, status)}
}

func CapacityExceeded(d CapacityDetail) *Error {
	return &Error{
		Kind: KindCapacityExceeded,
		Message: fmt.Sprintf("capacity %d exceeded: peak usage would be %d during %s, at most %d available",
			d.Capacity, d.PeakUsage, d.PeakWindow, d.Available),
		Capacity: &d,
	}
}

// Storage wraps a persistence or lock failure.  The outcome of the operation
// is not known to have succeeded and must not be treated as an admission.
func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Err: err}
}

func InvalidTransition(from, to model.Status) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf("cannot change status from %s to %s", from, to)}
}

func NotFound(what, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %q not found", what, id)}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when
// err is not an application error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsRetryable reports whether the caller may retry the same request.  Only
// storage failures qualify; every other kind is a definitive answer.
func IsRetryable(err error) bool {
	return KindOf(err) == KindStorage
}
