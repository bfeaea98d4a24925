package apperror

// Codes returned by leave commands. CONFLICT means the command lost a lock
// or version race and changed nothing.
const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInvalidState = "INVALID_STATE"

	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Codes set by the HTTP middleware before a command reaches the engine.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeRateLimited          = "RATE_LIMITED"
	CodeProcessing           = "PROCESSING"
	CodeIdempotencyKeyReused = "IDEMPOTENCY_KEY_REUSED"
)
