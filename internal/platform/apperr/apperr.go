package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error classes shared by every domain service. Callers wrap one of these
// so handlers can pick a status code with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

type classified struct {
	class error
	msg   string
}

func (e *classified) Error() string { return e.msg }
func (e *classified) Unwrap() error { return e.class }

// Validation returns an error that matches ErrValidation.
func Validation(format string, args ...interface{}) error {
	return &classified{class: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// NotFound returns an error that matches ErrNotFound.
func NotFound(format string, args ...interface{}) error {
	return &classified{class: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// Conflict returns an error that matches ErrConflict.
func Conflict(format string, args ...interface{}) error {
	return &classified{class: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

// ToHTTP maps a service error onto an echo HTTP error. Unclassified errors
// become 500 without leaking their text; the cause stays on Internal for
// the request log.
func ToHTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &he):
		return he
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
