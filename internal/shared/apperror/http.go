package apperror

import (
	"errors"
	"net/http"
)

// HTTPError is the transport view of any error returned by a service.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Details any
}

// ToHTTP maps err onto a status and code. Errors that are not an *AppError
// are reported as internal errors without leaking their text.
func ToHTTP(err error) HTTPError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		var details any
		if appErr.Err != nil && status < http.StatusInternalServerError {
			details = appErr.Err.Error()
		}
		return HTTPError{
			Status:  status,
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		}
	}
	return HTTPError{
		Status:  ErrInternal.HTTPStatus,
		Code:    ErrInternal.Code,
		Message: ErrInternal.Message,
	}
}

// Retryable reports whether the failure left leave state unchanged for a
// reason that may clear on its own: lock contention or an unavailable backend.
func (e HTTPError) Retryable() bool {
	return e.Code == CodeConflict || e.Status >= http.StatusInternalServerError
}
