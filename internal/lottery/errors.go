package lottery

import (
	"errors"

	"stall-lottery/internal/repository"
)

// Domain errors
var (
	// Validation errors
	ErrMissingIdentity   = errors.New("identity number is required")
	ErrMissingCategory   = errors.New("category is required")
	ErrMissingName       = errors.New("name is required")
	ErrInvalidMode       = errors.New("invalid mode")
	ErrInvalidQtyFilter  = errors.New("invalid quantity filter")
	ErrInvalidStallClass = errors.New("invalid stall class")
	ErrInvalidQty        = errors.New("quantity must be at least 1")

	// Lookup errors
	ErrStallClassNotFound = errors.New("stall class not found")

	// Eligibility errors
	ErrCategoryNotActive = errors.New("category is not the current category")
	ErrNotQueueMode      = errors.New("queueing is not open")
	ErrNotDrawMode       = errors.New("drawing is not open")
	ErrQtyFilterMismatch = errors.New("quantity does not match the current round")
	ErrOwnerNotFound     = errors.New("owner not found")
	ErrOwnerNotQueued    = errors.New("owner has not queued")
	ErrAlreadyDrawn      = errors.New("owner is already fully drawn")
	ErrMissingSubClass   = errors.New("owner has no classification")

	// Exhaustion errors
	ErrPoolExhausted      = errors.New("drawing finished: no numbers remaining")
	ErrInsufficientStalls = errors.New("insufficient remaining numbers")
	ErrNoContiguousBlock  = errors.New("cannot form a contiguous block")

	// Race errors
	ErrAllocationFailed = errors.New("allocation failed, please retry")
)

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMissingIdentity) ||
		errors.Is(err, ErrMissingCategory) ||
		errors.Is(err, ErrMissingName) ||
		errors.Is(err, ErrInvalidMode) ||
		errors.Is(err, ErrInvalidQtyFilter) ||
		errors.Is(err, ErrInvalidStallClass) ||
		errors.Is(err, ErrInvalidQty)
}

// IsNotFoundError checks if the error names a configuration row that does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrStallClassNotFound) ||
		errors.Is(err, repository.ErrStallClassNotFound)
}

// IsEligibilityError checks if the error rejects a request in the current state.
func IsEligibilityError(err error) bool {
	return errors.Is(err, ErrCategoryNotActive) ||
		errors.Is(err, ErrNotQueueMode) ||
		errors.Is(err, ErrNotDrawMode) ||
		errors.Is(err, ErrQtyFilterMismatch) ||
		errors.Is(err, ErrOwnerNotFound) ||
		errors.Is(err, ErrOwnerNotQueued) ||
		errors.Is(err, ErrAlreadyDrawn) ||
		errors.Is(err, ErrMissingSubClass)
}

// IsExhaustionError checks if the error means no numbers could be drawn right now.
func IsExhaustionError(err error) bool {
	return errors.Is(err, ErrPoolExhausted) ||
		errors.Is(err, ErrInsufficientStalls) ||
		errors.Is(err, ErrNoContiguousBlock)
}

// IsRaceLostError checks if a conditional write lost to a concurrent request.
func IsRaceLostError(err error) bool {
	return errors.Is(err, ErrAllocationFailed) ||
		errors.Is(err, repository.ErrAllocationLost)
}
