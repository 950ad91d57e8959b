package ir

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrorCode categorizes reconciliation errors.
type ErrorCode string

const (
	// ErrCodeNoRowsSelected indicates an empty selection or a selection with
	// no usable data rows.
	ErrCodeNoRowsSelected ErrorCode = "NO_ROWS_SELECTED"

	// ErrCodeValidation indicates one or more rows were rejected before any
	// network call.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeUniqueKeysNotConfigured indicates the target has no unique keys.
	ErrCodeUniqueKeysNotConfigured ErrorCode = "UNIQUE_KEYS_NOT_CONFIGURED"

	// ErrCodeTransport indicates the store call failed or the store returned
	// a top-level error.
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"

	// ErrCodeIntegrityViolation indicates the store's result list does not
	// reconcile with the rows sent.
	ErrCodeIntegrityViolation ErrorCode = "INTEGRITY_VIOLATION"

	// ErrCodePartialFailure indicates the store rejected some rows.
	ErrCodePartialFailure ErrorCode = "PARTIAL_FAILURE"

	// ErrCodeRowsFailed indicates the store rejected every row sent.
	ErrCodeRowsFailed ErrorCode = "ROWS_FAILED"

	// ErrCodePassInProgress indicates another pass holds the grid.
	ErrCodePassInProgress ErrorCode = "PASS_IN_PROGRESS"
)

// Error is the error type returned by every stage of a reconciliation pass.
//
// Rows lists the row-addressed problems for validation errors; Err carries
// the underlying cause for transport errors.
type Error struct {
	Code    ErrorCode
	Message string
	Rows    []RowIssue
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// ErrPassInProgress is returned when a pass is attempted while another one
// holds the same grid.
var ErrPassInProgress = &Error{
	Code:    ErrCodePassInProgress,
	Message: "a reconciliation pass is already running for this grid",
}

// NewNoRowsSelected creates an Error for an empty or blank selection.
func NewNoRowsSelected(message string) *Error {
	return &Error{Code: ErrCodeNoRowsSelected, Message: message}
}

// NewUniqueKeysNotConfigured creates an Error for a target with no unique keys.
func NewUniqueKeysNotConfigured(target string) *Error {
	return &Error{
		Code:    ErrCodeUniqueKeysNotConfigured,
		Message: fmt.Sprintf("Unique keys are not configured for table %q.", target),
	}
}

// NewTransportError wraps a failed store call.
func NewTransportError(err error) *Error {
	return &Error{Code: ErrCodeTransport, Message: "store request failed", Err: err}
}

// NewPartialFailure creates an Error for a pass in which the store rejected
// some of the rows sent.
func NewPartialFailure(failed, total int) *Error {
	return &Error{
		Code:    ErrCodePartialFailure,
		Message: fmt.Sprintf("%d of %d row(s) failed", failed, total),
	}
}

// NewRowsFailed creates an Error for a pass in which the store accepted
// none of the rows sent.
func NewRowsFailed(total int) *Error {
	return &Error{
		Code:    ErrCodeRowsFailed,
		Message: fmt.Sprintf("all %d row(s) failed", total),
	}
}

// NewIntegrityViolation creates an Error describing result lists that did
// not reconcile. A pass that hits one still completes: the error comes back
// with the report.
func NewIntegrityViolation(messages []string) *Error {
	return &Error{
		Code:    ErrCodeIntegrityViolation,
		Message: strings.Join(messages, "; "),
	}
}

// NewValidationError aggregates row issues into one error. The message
// groups malformed identifiers first, then missing required fields.
func NewValidationError(issues []RowIssue) *Error {
	var badIDs []string
	var missing []string
	for _, is := range issues {
		if is.Reason == ReasonIDNotNumeric {
			badIDs = append(badIDs, strconv.Itoa(is.Row))
		}
		if len(is.Missing) > 0 {
			missing = append(missing, fmt.Sprintf("Row %d: %s", is.Row, strings.Join(is.Missing, ", ")))
		}
	}

	var parts []string
	if len(badIDs) > 0 {
		parts = append(parts, fmt.Sprintf("Invalid ID value in row(s): %s. IDs must be numeric.", strings.Join(badIDs, ", ")))
	}
	if len(missing) > 0 {
		parts = append(parts, "Missing required fields:\n"+strings.Join(missing, "\n"))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d row(s) rejected", len(issues)))
	}

	return &Error{
		Code:    ErrCodeValidation,
		Message: strings.Join(parts, "\n"),
		Rows:    issues,
	}
}

// Rejection reasons recorded on ClassifiedRow and RowIssue.
const (
	ReasonIDNotNumeric  = "identifier must be numeric"
	ReasonMissingFields = "missing required fields"
)

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNoRowsSelected reports whether err is a NO_ROWS_SELECTED error.
func IsNoRowsSelected(err error) bool { return hasCode(err, ErrCodeNoRowsSelected) }

// IsValidationError reports whether err is a VALIDATION_ERROR.
func IsValidationError(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsUniqueKeysNotConfigured reports whether err is a UNIQUE_KEYS_NOT_CONFIGURED error.
func IsUniqueKeysNotConfigured(err error) bool {
	return hasCode(err, ErrCodeUniqueKeysNotConfigured)
}

// IsTransportError reports whether err is a TRANSPORT_ERROR.
func IsTransportError(err error) bool { return hasCode(err, ErrCodeTransport) }

// IsPartialFailure reports whether err is a PARTIAL_FAILURE error.
func IsPartialFailure(err error) bool { return hasCode(err, ErrCodePartialFailure) }

// IsRowsFailed reports whether err is a ROWS_FAILED error.
func IsRowsFailed(err error) bool { return hasCode(err, ErrCodeRowsFailed) }

// IsCompletedPass reports whether err ends a pass that reached write-back,
// so its report carries a summary worth showing.
func IsCompletedPass(err error) bool {
	return IsPartialFailure(err) || IsRowsFailed(err) || IsIntegrityViolation(err)
}

// IsPassInProgress reports whether err is a PASS_IN_PROGRESS error.
func IsPassInProgress(err error) bool { return hasCode(err, ErrCodePassInProgress) }

// IsIntegrityViolation reports whether err is an INTEGRITY_VIOLATION error.
func IsIntegrityViolation(err error) bool { return hasCode(err, ErrCodeIntegrityViolation) }

// CodeOf returns the code of err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
