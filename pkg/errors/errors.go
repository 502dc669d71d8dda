package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Business rule codes shared with the UI layer.
const (
	CodeBusinessRule          = "BUSINESS_RULE"
	CodePastSession           = "PAST_SESSION"
	CodePastEffectiveDate     = "PAST_EFFECTIVE_DATE"
	CodeNoSessionOnDate       = "NO_SESSION_ON_DATE"
	CodeInvalidTransfer       = "INVALID_TRANSFER"
	CodeTransferLimitExceeded = "TRANSFER_LIMIT_EXCEEDED"
	CodeRequiresAAApproval    = "REQUIRES_AA_APPROVAL"
	CodeInvalidStatus         = "INVALID_STATUS"
	CodeCapacityExceeded      = "CAPACITY_EXCEEDED"
)

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("SCHEDULE_CONFLICT", http.StatusConflict, "scheduling conflict")
	ErrDuplicateRequest   = New("DUPLICATE_REQUEST", http.StatusConflict, "an equivalent request is already open")
	ErrInvalidInput       = New("INVALID_INPUT", http.StatusBadRequest, "invalid input")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrBusinessRule       = New(CodeBusinessRule, http.StatusUnprocessableEntity, "business rule violated")
	ErrInvalidStatus      = New(CodeInvalidStatus, http.StatusUnprocessableEntity, "request is not in a valid status for this action")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrLockTimeout        = New("LOCK_TIMEOUT", http.StatusServiceUnavailable, "timetable is busy, retry the request")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// BusinessRule builds a business rule violation carrying a machine-readable code.
func BusinessRule(code, message string) *Error {
	if code == "" {
		code = CodeBusinessRule
	}
	return New(code, http.StatusUnprocessableEntity, message)
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// HasCode reports whether err normalises to the given code.
func HasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}
