package service

import (
	"errors"

	"go.uber.org/zap"

	"github.com/and161185/keygate/internal/errs"
)

var domainErrors = []error{
	errs.ErrNotFound,
	errs.ErrAlreadyUsed,
	errs.ErrExpired,
	errs.ErrForbidden,
	errs.ErrAlreadyAdmin,
	errs.ErrNotAdmin,
	errs.ErrSelfRemoval,
	errs.ErrCannotRemoveOwner,
	errs.ErrInvalidDuration,
	errs.ErrRateLimited,
	errs.ErrStorageUnavailable,
}

// storageErr passes domain sentinels through and hides anything else behind
// errs.ErrStorageUnavailable after logging it.
func storageErr(log *zap.Logger, op string, err error) error {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	log.Error("storage failure", zap.String("op", op), zap.Error(err))
	return errs.ErrStorageUnavailable
}
