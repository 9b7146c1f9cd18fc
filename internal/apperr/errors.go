// Package apperr defines the error taxonomy shared by handlers and the
// central Echo error handler. Every failure surfaced to a client funnels
// through HTTPErrorHandler so responses always carry a JSON {message} body.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrForbidden is returned when a request has no session on a mutating
// call or the authorization gate denies access. It always maps to 403 and
// never reveals whether the target record exists.
var ErrForbidden = errors.New("forbidden")

// ValidationError carries field-level messages from schema validation or
// query translation. No persistence is attempted once one is raised.
type ValidationError struct {
	Violations map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d violation(s)", len(e.Violations))
}

// PersistenceError wraps a database failure. The underlying cause is not
// guaranteed to be interpretable by the client, so it surfaces as an
// opaque 500.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "persistence error: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// NotificationError signals that the post-write notification dispatch
// failed. The triggering write already committed; there is no
// compensating rollback, but the request still fails loudly.
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string { return "notification error: " + e.Err.Error() }
func (e *NotificationError) Unwrap() error { return e.Err }

// TenantSyncError marks a failed pharmacy-name propagation to the tenant
// directory. It is reported distinctly from primary-write failure: the
// pharmacy row is already updated when this is raised.
type TenantSyncError struct {
	Err error
}

func (e *TenantSyncError) Error() string { return "tenant sync error: " + e.Err.Error() }
func (e *TenantSyncError) Unwrap() error { return e.Err }

// HTTPErrorHandler converts thrown errors into JSON responses with the
// status mapping: 400 validation, 403 forbidden, 405 method not allowed
// (via Echo's own HTTPError), 500 everything else.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		ve *ValidationError
		he *echo.HTTPError
		te *TenantSyncError
		ne *NotificationError
	)
	switch {
	case errors.As(err, &ve):
		_ = c.JSON(http.StatusBadRequest, echo.Map{
			"message":    "validation failed",
			"violations": ve.Violations,
		})
	case errors.Is(err, ErrForbidden):
		_ = c.JSON(http.StatusForbidden, echo.Map{"message": "Forbidden"})
	case errors.As(err, &te):
		_ = c.JSON(http.StatusInternalServerError, echo.Map{"message": "tenant synchronization failed"})
	case errors.As(err, &ne):
		_ = c.JSON(http.StatusInternalServerError, echo.Map{"message": "notification dispatch failed"})
	case errors.As(err, &he):
		_ = c.JSON(he.Code, echo.Map{"message": fmt.Sprintf("%v", he.Message)})
	default:
		_ = c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal server error"})
	}
}
