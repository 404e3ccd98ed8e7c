package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeMissingField Code = "MISSING_FIELD"
	CodeEmptyBatch   Code = "EMPTY_BATCH"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeItemNotFound Code = "ITEM_NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeSubmitted    Code = "ALREADY_SUBMITTED"
	CodePartial      Code = "PARTIAL_NOT_FOUND"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
)

// Kind groups codes into the categories callers branch on.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindNotFound        Kind = "NotFound"
	KindForbidden       Kind = "Forbidden"
	KindConflict        Kind = "Conflict"
	KindUnauthenticated Kind = "Unauthenticated"
	KindInternal        Kind = "Internal"
)

type Metadata struct {
	Kind           Kind
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		Kind:           KindValidation,
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeMissingField: {
		Kind:           KindValidation,
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "required field missing",
		DetailsAllowed: true,
	},
	CodeEmptyBatch: {
		Kind:           KindValidation,
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "batch contains no rows",
		DetailsAllowed: false,
	},
	CodeUnauthorized: {
		Kind:           KindUnauthenticated,
		HTTPStatus:     http.StatusUnauthorized,
		PublicMessage:  "authentication required",
		DetailsAllowed: false,
	},
	CodeForbidden: {
		Kind:           KindForbidden,
		HTTPStatus:     http.StatusForbidden,
		PublicMessage:  "access denied",
		DetailsAllowed: false,
	},
	CodeNotFound: {
		Kind:           KindNotFound,
		HTTPStatus:     http.StatusNotFound,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
	},
	CodeItemNotFound: {
		Kind:           KindNotFound,
		HTTPStatus:     http.StatusNotFound,
		PublicMessage:  "catalog item not found",
		DetailsAllowed: false,
	},
	CodeConflict: {
		Kind:           KindConflict,
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "conflict detected",
		DetailsAllowed: false,
	},
	CodeSubmitted: {
		Kind:           KindConflict,
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "record already submitted",
		DetailsAllowed: false,
	},
	CodePartial: {
		Kind:           KindConflict,
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "some records were not found",
		DetailsAllowed: true,
	},
	CodeIdempotency: {
		Kind:           KindConflict,
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "idempotency key reused",
		DetailsAllowed: true,
	},
	CodeRateLimit: {
		Kind:           KindInternal,
		HTTPStatus:     http.StatusTooManyRequests,
		PublicMessage:  "rate limit exceeded",
		DetailsAllowed: false,
	},
	CodeInternal: {
		Kind:           KindInternal,
		HTTPStatus:     http.StatusInternalServerError,
		Retryable:      true,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
	},
	CodeDependency: {
		Kind:           KindInternal,
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// KindOf maps a code onto its category.
func KindOf(code Code) Kind {
	return MetadataFor(code).Kind
}

// IsKind reports whether err carries a typed error of the given category.
func IsKind(err error, kind Kind) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return KindOf(typed.Code()) == kind
}

// CodeFromStatus maps an HTTP status back onto the closest code for callers
// that only see the wire response.
func CodeFromStatus(status int) Code {
	switch status {
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimit
	case http.StatusServiceUnavailable:
		return CodeDependency
	default:
		return CodeInternal
	}
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Kind() Kind {
	return KindOf(e.Code())
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

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// Is reports whether err carries a typed error with the given code.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
