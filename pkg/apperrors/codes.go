package apperrors

// ErrorCode is a machine-readable error identifier returned to API clients.
type ErrorCode string

// Cross-cutting codes
const (
	// System and infrastructure
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeDatabaseError        ErrorCode = "DATABASE_ERROR"
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"
	CodeStorageUnavailable   ErrorCode = "STORAGE_UNAVAILABLE"
	CodeMisconfiguration     ErrorCode = "MISCONFIGURATION"

	// Generic business rules
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeAlreadyExists     ErrorCode = "ALREADY_EXISTS"
	CodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeLimitExceeded     ErrorCode = "LIMIT_EXCEEDED"
	CodeInvalidStatus     ErrorCode = "INVALID_STATUS"
	CodeInvalidOperation  ErrorCode = "INVALID_OPERATION"
	CodeIllegalTransition ErrorCode = "ILLEGAL_TRANSITION"
	CodeRateLimited       ErrorCode = "RATE_LIMITED"

	// Authentication and authorization
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeInvalidToken ErrorCode = "INVALID_TOKEN"
)
