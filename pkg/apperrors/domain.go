package apperrors

import (
	"net/http"
)

// =========================================================================
// Factories
// =========================================================================

// ErrNotFound converts a repository miss into a 404.
func ErrNotFound(err error, domain, message string) *AppError {
	return Wrap(err, CodeNotFound, domain, message, http.StatusNotFound)
}

func ErrConflict(err error, domain, message string) *AppError {
	return Wrap(err, CodeConflict, domain, message, http.StatusConflict)
}

func ErrInvalidOperation(domain, message string) *AppError {
	return New(CodeInvalidOperation, domain, message, http.StatusBadRequest)
}

func ErrInvalidStatus(domain, message string) *AppError {
	return New(CodeInvalidStatus, domain, message, http.StatusConflict)
}

// ErrIllegalTransition reports a status change the allow-list refused.
func ErrIllegalTransition(err error) *AppError {
	return Wrap(err, CodeIllegalTransition, "order", err.Error(), http.StatusConflict)
}

// =========================================================================
// Authorization
// =========================================================================

var ErrInsufficientPermissions = New(
	CodeForbidden,
	"auth",
	"Insufficient permissions",
	http.StatusForbidden,
)

var ErrNotOrderOwner = New(
	CodeForbidden,
	"order",
	"Only the client who placed this order can do this",
	http.StatusForbidden,
)

var ErrEngineerNotAssigned = New(
	CodeForbidden,
	"order",
	"You are not the engineer assigned to this order",
	http.StatusForbidden,
)

// =========================================================================
// Orders
// =========================================================================

var ErrOrderNotFound = New(
	CodeNotFound,
	"order",
	"Order not found",
	http.StatusNotFound,
)

var ErrOrderClosed = New(
	CodeInvalidStatus,
	"order",
	"order is closed",
	http.StatusConflict,
)

var ErrOrderArchived = New(
	CodeInvalidStatus,
	"order",
	"order is archived, buy an extension to reopen it",
	http.StatusConflict,
)

var ErrOrderNotPaid = New(
	CodeInvalidOperation,
	"order",
	"The initial payment for this order has not been completed",
	http.StatusConflict,
)

var ErrPackageLocked = New(
	CodeInvalidOperation,
	"order",
	"The package can no longer be changed after the initial payment",
	http.StatusConflict,
)

var ErrPackageNotFound = New(
	CodeNotFound,
	"package",
	"Package not found or no longer offered",
	http.StatusNotFound,
)

var ErrPlansPurged = New(
	CodeInvalidOperation,
	"order",
	"Files of this order have already been deleted",
	http.StatusGone,
)

// =========================================================================
// Payments and purchases
// =========================================================================

var ErrAlreadyPaid = New(
	CodeConflict,
	"payment",
	"already paid",
	http.StatusConflict,
)

var ErrIdempotencyKeyReused = New(
	CodeConflict,
	"payment",
	"This idempotency key was already used for a different order",
	http.StatusUnprocessableEntity,
)

var ErrInvalidRevisionCount = New(
	CodeValidationFailed,
	"payment",
	"Revision count is outside the allowed range",
	http.StatusBadRequest,
)

var ErrPinPackLimitReached = New(
	CodeLimitExceeded,
	"payment",
	"maximum number of pin groups reached",
	http.StatusConflict,
)

// ErrPricingNotConfigured is a misconfiguration on the admin side, not a client mistake.
var ErrPricingNotConfigured = New(
	CodeMisconfiguration,
	"payment",
	"This purchase is temporarily unavailable",
	http.StatusServiceUnavailable,
)

// =========================================================================
// Revisions and plans
// =========================================================================

var ErrNoRemainingRevisions = New(
	CodeLimitExceeded,
	"revision",
	"No revisions remaining, purchase more to continue",
	http.StatusConflict,
)

var ErrNoActivePlan = New(
	CodeInvalidOperation,
	"revision",
	"There is no active plan to request a revision on",
	http.StatusConflict,
)

var ErrPlanNotActive = New(
	CodeInvalidOperation,
	"revision",
	"The selected plan is not active",
	http.StatusConflict,
)

var ErrPlanNotFound = New(
	CodeNotFound,
	"plan",
	"Plan not found",
	http.StatusNotFound,
)

var ErrTooManyPins = New(
	CodeLimitExceeded,
	"revision",
	"Too many pins for the purchased pin groups",
	http.StatusBadRequest,
)

var ErrActivePlanLimit = New(
	CodeLimitExceeded,
	"plan",
	"An order can have at most 6 active plans",
	http.StatusConflict,
)

// =========================================================================
// Infrastructure
// =========================================================================

var ErrStorageUnavailable = New(
	CodeStorageUnavailable,
	"storage",
	"File storage is not available, please try again later",
	http.StatusServiceUnavailable,
)

var ErrFileTooLarge = New(
	CodeLimitExceeded,
	"validation",
	"File size exceeds the allowed limit",
	http.StatusRequestEntityTooLarge,
)

var ErrRateLimited = New(
	CodeRateLimited,
	"request",
	"Too many requests, slow down",
	http.StatusTooManyRequests,
)
