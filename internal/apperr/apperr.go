// Package apperr defines the error kinds shared by every domain package and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Error is a domain error tagged with one of the kinds above. Domain packages
// declare their own sentinels with New so that errors.Is matches both the
// sentinel and its kind.
type Error struct {
	kind error
	code string
	msg  string
}

// New returns an error of the given kind with a machine readable code.
func New(kind error, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

// Code is the machine readable identifier rendered in error bodies.
func (e *Error) Code() string { return e.code }

// HTTPStatus maps an error to the response status it should produce.
func HTTPStatus(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine readable code for err.
func Code(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.code != "" {
		return ae.code
	}
	if errors.Is(err, ErrInsufficientFunds) {
		return "insufficient_funds"
	}
	switch HTTPStatus(err) {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	default:
		return "internal_error"
	}
}

// Handler is a fiber.ErrorHandler rendering {"error": code, "message": msg}.
// Unclassified errors are reported without their message.
func Handler(c *fiber.Ctx, err error) error {
	status := HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	return c.Status(status).JSON(fiber.Map{"error": Code(err), "message": msg})
}
