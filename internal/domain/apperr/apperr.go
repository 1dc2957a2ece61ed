// Package apperr defines the error classes services return and their HTTP
// mapping. Handlers pass any service error through ToHTTP; unclassified
// errors become 500 without leaking internals.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	// ErrNotFound marks a missing entity or one the caller may not see.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks a caller acting outside their grant or role.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidState marks an operation whose preconditions do not hold,
	// including rejected OTP codes and payment signatures. Those share one
	// generic message so a caller cannot probe which check failed.
	ErrInvalidState = errors.New("invalid state")

	// ErrExternalDependency marks a gateway or downstream failure.
	ErrExternalDependency = errors.New("external dependency failure")
)

func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrNotFound, args)...)
}

func Unauthorized(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrUnauthorized, args)...)
}

func InvalidState(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrInvalidState, args)...)
}

func External(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrExternalDependency, args)...)
}

func prepend(err error, args []interface{}) []interface{} {
	return append([]interface{}{err}, args...)
}

// ToHTTP converts a service error into an echo HTTP error.
func ToHTTP(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrExternalDependency):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
