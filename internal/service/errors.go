package service

import (
	"errors"

	"stall-lottery/internal/lottery"
	"stall-lottery/pkg/apierror"
)

// ToAPIError maps a domain error onto the error returned to clients.
// Storage and other unexpected failures are reported as a generic service error.
func ToAPIError(err error) *apierror.Error {
	if err == nil {
		return nil
	}
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case lottery.IsValidationError(err):
		return apierror.BadRequest(err.Error())
	case lottery.IsNotFoundError(err):
		return apierror.NotFound(lottery.ErrStallClassNotFound.Error())
	case lottery.IsEligibilityError(err):
		return apierror.NotEligible(err.Error())
	case lottery.IsExhaustionError(err):
		return apierror.Exhausted(err.Error())
	case lottery.IsRaceLostError(err):
		return apierror.AllocationConflict(lottery.ErrAllocationFailed.Error())
	}
	return apierror.InternalError("service error")
}
