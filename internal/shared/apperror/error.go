package apperror

import "fmt"

// AppError is a failure a leave command reports to its caller. Sentinels are
// declared with New; Because attaches the underlying cause to a copy.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Because returns a copy of e carrying cause. The sentinel itself is not
// modified.
func (e *AppError) Because(cause error) *AppError {
	cp := *e
	cp.Err = cause
	return &cp
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap builds an AppError around err; it returns nil for a nil err.
func Wrap(err error, code, message string, httpStatus int) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}
