package leaveerrors

import (
	"net/http"

	"go-leave-ledger/internal/shared/apperror"
)

var (
	ErrInvalidEmployeeID = apperror.New(
		apperror.CodeInvalidInput,
		"employee_id is required",
		http.StatusBadRequest,
	)
	ErrInvalidRequestID = apperror.New(
		apperror.CodeInvalidInput,
		"request_id is required",
		http.StatusBadRequest,
	)
	ErrInvalidDateFormat = apperror.New(
		apperror.CodeInvalidInput,
		"invalid date format, expected YYYY-MM-DD",
		http.StatusBadRequest,
	)
	ErrInvalidDateRange = apperror.New(
		apperror.CodeInvalidInput,
		"start_date must be before or equal end_date",
		http.StatusBadRequest,
	)
	ErrInvalidEventType = apperror.New(
		apperror.CodeInvalidInput,
		"unknown event_type",
		http.StatusBadRequest,
	)
	ErrUnknownAction = apperror.New(
		apperror.CodeInvalidInput,
		"unknown action",
		http.StatusBadRequest,
	)
	ErrAdminRequired = apperror.New(
		apperror.CodeForbidden,
		"this action requires admin privileges",
		http.StatusForbidden,
	)
	ErrEmployeeNotFound = apperror.New(
		apperror.CodeNotFound,
		"employee has no leave quota",
		http.StatusNotFound,
	)
	ErrLeaveNotFound = apperror.New(
		apperror.CodeNotFound,
		"no approved leave found for employee on that start date",
		http.StatusNotFound,
	)
	ErrLeaveOverlap = apperror.New(
		apperror.CodeConflict,
		"leave already exists in overlapping period",
		http.StatusConflict,
	)
	ErrInvalidStatusTransition = apperror.New(
		apperror.CodeInvalidState,
		"invalid leave status transition",
		http.StatusConflict,
	)
	ErrConcurrencyConflict = apperror.New(
		apperror.CodeConflict,
		"leave records are being modified concurrently, please retry",
		http.StatusConflict,
	)
)
