package dispatch

import (
	"errors"

	"github.com/and161185/keygate/internal/errs"
)

const (
	msgUnavailable = "Service temporarily unavailable. Please try again later."
	msgNoAccess    = "You don't have access. Redeem a key with /redeem <code>."
	msgUnknown     = "Unknown command. Send /help for the list."
)

var errorMessages = []struct {
	err error
	msg string
}{
	{errs.ErrNotFound, "Not found."},
	{errs.ErrAlreadyUsed, "This key has already been used."},
	{errs.ErrExpired, "This key has expired."},
	{errs.ErrForbidden, "You are not allowed to do that."},
	{errs.ErrAlreadyAdmin, "That user is already an admin."},
	{errs.ErrNotAdmin, "That user is not an admin."},
	{errs.ErrSelfRemoval, "You cannot remove yourself."},
	{errs.ErrCannotRemoveOwner, "The owner cannot be removed."},
	{errs.ErrInvalidDuration, "Invalid duration. Use a positive value like 1h, 3d or 30d."},
	{errs.ErrRateLimited, "Too many attempts. Please wait and try again."},
}

// message maps an error to its user-facing text. Unknown errors, including
// storage failures, get the generic unavailable reply.
func message(err error) string {
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return msgUnavailable
}
