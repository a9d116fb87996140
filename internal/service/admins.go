package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/and161185/keygate/internal/clock"
	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/model"
	"github.com/and161185/keygate/internal/repository"
)

// AdminService maintains the privileged identity set. The owner is fixed by configuration.
type AdminService struct {
	repo    repository.AdminRepository
	ownerID int64
	clock   clock.Clock
	log     *zap.Logger
}

// NewAdminService constructs AdminService for the configured owner.
func NewAdminService(repo repository.AdminRepository, ownerID int64, clk clock.Clock, log *zap.Logger) *AdminService {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminService{repo: repo, ownerID: ownerID, clock: clk, log: log}
}

// EnsureOwner makes sure the owner row exists. Safe to call on every start.
func (s *AdminService) EnsureOwner(ctx context.Context) error {
	if err := s.repo.EnsureOwner(ctx, s.ownerID, s.clock.Now()); err != nil {
		return storageErr(s.log, "ensure_owner", err)
	}
	return nil
}

// IsOwner reports whether userID is the configured owner.
func (s *AdminService) IsOwner(userID int64) bool { return userID == s.ownerID }

// IsAdmin reports membership. The owner is always an admin.
func (s *AdminService) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if s.IsOwner(userID) {
		return true, nil
	}
	ok, err := s.repo.IsAdmin(ctx, userID)
	if err != nil {
		return false, storageErr(s.log, "is_admin", err)
	}
	return ok, nil
}

func (s *AdminService) authorize(ctx context.Context, requester int64) error {
	ok, err := s.IsAdmin(ctx, requester)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrForbidden
	}
	return nil
}

// AddAdmin adds target on behalf of requester.
func (s *AdminService) AddAdmin(ctx context.Context, requester, target int64) error {
	if err := s.authorize(ctx, requester); err != nil {
		return err
	}
	if s.IsOwner(target) {
		return errs.ErrAlreadyAdmin
	}
	if err := s.repo.AddAdmin(ctx, target, requester, s.clock.Now()); err != nil {
		return storageErr(s.log, "add_admin", err)
	}
	s.log.Info("admin added", zap.Int64("user_id", target), zap.Int64("added_by", requester))
	return nil
}

// RemoveAdmin removes target on behalf of requester. The owner can never be removed,
// and nobody can remove themselves.
func (s *AdminService) RemoveAdmin(ctx context.Context, requester, target int64) error {
	if s.IsOwner(target) {
		return errs.ErrCannotRemoveOwner
	}
	if err := s.authorize(ctx, requester); err != nil {
		return err
	}
	if requester == target {
		return errs.ErrSelfRemoval
	}
	if err := s.repo.RemoveAdmin(ctx, target); err != nil {
		return storageErr(s.log, "remove_admin", err)
	}
	s.log.Info("admin removed", zap.Int64("user_id", target), zap.Int64("removed_by", requester))
	return nil
}

// ListAdmins returns every admin, owner first.
func (s *AdminService) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	as, err := s.repo.ListAdmins(ctx)
	if err != nil {
		return nil, storageErr(s.log, "list_admins", err)
	}
	return as, nil
}
