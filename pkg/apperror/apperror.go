// Package apperror defines the error kinds the core services raise.
// Services wrap these sentinels with %w and context; handlers translate
// them to HTTP statuses with errors.Is.
package apperror

import "errors"

var (
	// ErrNotFound signals a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock signals a deduction request exceeds availability.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrAuthorizationRequired signals the NHIA gate blocks the operation.
	ErrAuthorizationRequired = errors.New("authorization required")
	// ErrInvalidState signals the operation is illegal in the current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidAmount signals a non-positive or out-of-range amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrConstraintViolation signals a uniqueness or FK violation, usually a
	// duplicate submission.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrTransactionFailed signals a commit-level failure after rollback.
	ErrTransactionFailed = errors.New("transaction failed")
)

// HTTPStatus maps an error kind to the HTTP status the API surfaces.
// Unrecognized errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrInvalidAmount):
		return 400
	case errors.Is(err, ErrAuthorizationRequired):
		return 403
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrConstraintViolation):
		return 409
	default:
		return 500
	}
}
