package errors

import (
	stdErrors "errors"
	"net/http"
	"strings"
)

// Code classifies an error for transport mapping.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnavailable  Code = "UNAVAILABLE"
	CodeConflict     Code = "CONFLICT"
	CodeStorageFault Code = "STORAGE_FAULT"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
)

// Reason narrows a Code to the precondition that failed.
type Reason string

const (
	ReasonBookNotFound     Reason = "BOOK_NOT_FOUND"
	ReasonBorrowerNotFound Reason = "BORROWER_NOT_FOUND"
	ReasonRentalNotFound   Reason = "RENTAL_NOT_FOUND"

	ReasonBookUnavailable Reason = "BOOK_UNAVAILABLE"

	ReasonDuplicateRental  Reason = "DUPLICATE_RENTAL"
	ReasonAlreadyReturned  Reason = "ALREADY_RETURNED"
	ReasonDuplicateEmail   Reason = "DUPLICATE_EMAIL"
	ReasonHasActiveRentals Reason = "HAS_ACTIVE_RENTALS"
)

// Metadata describes how a Code is surfaced to clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// Domain rule violations (unavailable, conflict) are client errors, so they
// map to 400 like validation failures.
var metadataByCode = map[Code]Metadata{
	CodeValidation:   {http.StatusBadRequest, false, "validation failed", true},
	CodeNotFound:     {http.StatusNotFound, false, "resource not found", false},
	CodeUnavailable:  {http.StatusBadRequest, false, "resource unavailable", true},
	CodeConflict:     {http.StatusBadRequest, false, "conflict detected", true},
	CodeStorageFault: {http.StatusInternalServerError, false, "storage failure", false},
	CodeIdempotency:  {http.StatusConflict, false, "idempotency key reused", true},
	CodeInternal:     {http.StatusInternalServerError, true, "internal server error", false},
	CodeDependency:   {http.StatusServiceUnavailable, true, "dependency unavailable", true},
}

// MetadataFor returns the transport mapping for code, falling back to
// CodeInternal.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error every service layer returns. The message is shown
// to clients as-is, the cause never is.
type Error struct {
	code    Code
	reason  Reason
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches cause for logging and errors.Is/As chains.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

func NotFound(reason Reason, message string) *Error {
	return New(CodeNotFound, message).WithReason(reason)
}

func Conflict(reason Reason, message string) *Error {
	return New(CodeConflict, message).WithReason(reason)
}

func Unavailable(reason Reason, message string) *Error {
	return New(CodeUnavailable, message).WithReason(reason)
}

// Storage wraps a record store failure. Storage faults are never retried.
func Storage(cause error, message string) *Error {
	return Wrap(CodeStorageFault, cause, message)
}

func (e *Error) WithReason(reason Reason) *Error {
	if e != nil {
		e.reason = reason
	}
	return e
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// Code is CodeInternal for a nil *Error.
func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Reason() Reason {
	if e == nil {
		return ""
	}
	return e.reason
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// Error renders CODE(REASON): message.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	if e.reason != "" {
		b.WriteString("(" + string(e.reason) + ")")
	}
	b.WriteString(": " + e.message)
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error with the same code and, when the target sets
// one, the same reason. errors.Is(err, NotFound(ReasonBookNotFound, ""))
// therefore ignores messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code && (t.reason == "" || e.reason == t.reason)
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasReason reports whether err carries the given code and reason.
func HasReason(err error, code Code, reason Reason) bool {
	typed := As(err)
	return typed != nil && typed.code == code && typed.reason == reason
}

// IsRetryable reports whether clients may retry the failed request as-is.
func IsRetryable(err error) bool {
	return MetadataFor(As(err).Code()).Retryable
}
