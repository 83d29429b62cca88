package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Error codes shared by services and the HTTP layer.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNoSuchEntity    = "NO_SUCH_ENTITY"
	CodeUniqueViolation = "UNIQUE_VIOLATION"
	CodeIllegalArgument = "ILLEGAL_ARGUMENT"
	CodeInternal        = "INTERNAL_ERROR"
	CodeRequest         = "BAD_REQUEST"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewUnauthenticated reports bad credentials or an inactive principal at issuance.
func NewUnauthenticated(message string) error {
	return NewDomainError(CodeUnauthenticated, message, http.StatusUnauthorized, nil)
}

// NewUnauthorized reports an unusable token or an ownership mismatch.
func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusForbidden, nil)
}

func NewNoSuchEntity(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNoSuchEntity,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUniqueViolation(message string, details map[string]any) error {
	return NewDomainError(CodeUniqueViolation, message, http.StatusConflict, details)
}

func NewIllegalArgument(message string, details map[string]any) error {
	return NewDomainError(CodeIllegalArgument, message, http.StatusBadRequest, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fromFiberError(fiberErr)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &DomainError{
			Code:       CodeUniqueViolation,
			Message:    "resource already exists",
			HTTPStatus: http.StatusConflict,
			Details:    map[string]any{"constraint": pgErr.ConstraintName},
			Err:        err,
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &DomainError{
			Code:       CodeNoSuchEntity,
			Message:    "resource not found",
			HTTPStatus: http.StatusNotFound,
			Details:    map[string]any{},
			Err:        err,
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// fromFiberError keeps the status of framework errors such as unknown
// routes or unparsable bodies.
func fromFiberError(fe *fiber.Error) *DomainError {
	code := CodeRequest
	switch {
	case fe.Code == http.StatusBadRequest:
		code = CodeIllegalArgument
	case fe.Code == http.StatusUnauthorized:
		code = CodeUnauthenticated
	case fe.Code == http.StatusForbidden:
		code = CodeUnauthorized
	case fe.Code == http.StatusNotFound:
		code = CodeNoSuchEntity
	case fe.Code == http.StatusConflict:
		code = CodeUniqueViolation
	case fe.Code >= http.StatusInternalServerError:
		code = CodeInternal
	}
	return &DomainError{Code: code, Message: fe.Message, HTTPStatus: fe.Code, Err: fe}
}

// MapError converts generic errors to DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
