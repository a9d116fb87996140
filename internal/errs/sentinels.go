// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested code, grant or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyUsed indicates a key has already been redeemed.
	ErrAlreadyUsed = errors.New("already used")

	// ErrExpired indicates an unredeemed key whose redemption window has closed.
	ErrExpired = errors.New("expired")

	// ErrForbidden indicates the requester is not allowed to perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadyAdmin indicates the target is already in the admin set.
	ErrAlreadyAdmin = errors.New("already admin")

	// ErrNotAdmin indicates the target is not in the admin set.
	ErrNotAdmin = errors.New("not admin")

	// ErrSelfRemoval indicates an admin tried to remove themselves.
	ErrSelfRemoval = errors.New("self removal")

	// ErrCannotRemoveOwner indicates an attempt to remove the owner.
	ErrCannotRemoveOwner = errors.New("cannot remove owner")

	// ErrInvalidDuration indicates a non-positive grant or key duration.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrRateLimited indicates the caller exhausted the throttle window for an operation.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., code collision).
	ErrAlreadyExists = errors.New("already exists")

	// ErrStorageUnavailable hides backend failures from callers; the cause is logged.
	ErrStorageUnavailable = errors.New("storage unavailable")
)
