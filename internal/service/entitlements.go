// Package service contains the entitlement and admin registry services.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/keygate/internal/clock"
	"github.com/and161185/keygate/internal/crypto"
	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/metrics"
	"github.com/and161185/keygate/internal/model"
	"github.com/and161185/keygate/internal/repository"
)

const (
	// DefaultRedeemWindow is how long an issued key stays redeemable.
	DefaultRedeemWindow = 30 * 24 * time.Hour
	// DefaultKeyPrefix is prepended to generated codes.
	DefaultKeyPrefix = "KEY-"

	issueAttempts   = 5
	defaultKeysPage = 20
)

// EntitlementOptions tunes key generation.
type EntitlementOptions struct {
	KeyPrefix    string
	RedeemWindow time.Duration
}

// EntitlementService manages grants and one-time keys.
type EntitlementService struct {
	grants  repository.GrantRepository
	keys    repository.KeyRepository
	admins  repository.AdminRepository
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics

	keyPrefix    string
	redeemWindow time.Duration
	newCode      func(prefix string) (string, error)
}

// NewEntitlementService constructs the service. nil clock, logger and metrics get safe defaults.
func NewEntitlementService(
	grants repository.GrantRepository,
	keys repository.KeyRepository,
	admins repository.AdminRepository,
	clk clock.Clock,
	log *zap.Logger,
	m *metrics.Metrics,
	opts EntitlementOptions,
) *EntitlementService {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.RedeemWindow <= 0 {
		opts.RedeemWindow = DefaultRedeemWindow
	}
	return &EntitlementService{
		grants:       grants,
		keys:         keys,
		admins:       admins,
		clock:        clk,
		log:          log,
		metrics:      m,
		keyPrefix:    opts.KeyPrefix,
		redeemWindow: opts.RedeemWindow,
		newCode:      crypto.NewCode,
	}
}

func (s *EntitlementService) roleOf(ctx context.Context, userID int64) (model.Role, error) {
	ok, err := s.admins.IsAdmin(ctx, userID)
	if err != nil {
		return "", err
	}
	if ok {
		return model.RoleAdmin, nil
	}
	return model.RoleStandard, nil
}

// GrantAccess sets the user's grant to expire d from now, replacing any existing grant.
func (s *EntitlementService) GrantAccess(ctx context.Context, granter, userID int64, d time.Duration) (model.AccessGrant, error) {
	if d <= 0 {
		return model.AccessGrant{}, errs.ErrInvalidDuration
	}
	role, err := s.roleOf(ctx, userID)
	if err != nil {
		return model.AccessGrant{}, storageErr(s.log, "grant", err)
	}
	now := s.clock.Now()
	g := model.AccessGrant{
		UserID:    userID,
		ExpiresAt: now.Add(d),
		Role:      role,
		GrantedAt: now,
		Source:    fmt.Sprintf("admin:%d", granter),
	}
	if err := s.grants.UpsertGrant(ctx, g); err != nil {
		return model.AccessGrant{}, storageErr(s.log, "grant", err)
	}
	s.log.Info("access granted",
		zap.Int64("user_id", userID),
		zap.Int64("granted_by", granter),
		zap.Time("expires_at", g.ExpiresAt),
	)
	return g, nil
}

// HasAccess reports whether the user holds an unexpired grant. An expired but unswept
// grant counts as no access.
func (s *EntitlementService) HasAccess(ctx context.Context, userID int64) (bool, error) {
	g, err := s.grants.GetGrant(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageErr(s.log, "has_access", err)
	}
	return g.Active(s.clock.Now()), nil
}

// AccessInfo returns the stored grant even when it has expired.
func (s *EntitlementService) AccessInfo(ctx context.Context, userID int64) (*model.AccessGrant, error) {
	g, err := s.grants.GetGrant(ctx, userID)
	if err != nil {
		return nil, storageErr(s.log, "access_info", err)
	}
	return g, nil
}

// RevokeAccess deletes the user's grant.
func (s *EntitlementService) RevokeAccess(ctx context.Context, userID int64) error {
	if err := s.grants.DeleteGrant(ctx, userID); err != nil {
		return storageErr(s.log, "revoke", err)
	}
	s.log.Info("access revoked", zap.Int64("user_id", userID))
	return nil
}

// IssueKey creates a fresh unused key granting d on redemption.
func (s *EntitlementService) IssueKey(ctx context.Context, issuer int64, d time.Duration) (model.IssuedKey, error) {
	if d <= 0 {
		return model.IssuedKey{}, errs.ErrInvalidDuration
	}
	for attempt := 1; ; attempt++ {
		id, err := uuid.NewV4()
		if err != nil {
			return model.IssuedKey{}, storageErr(s.log, "issue_key", err)
		}
		code, err := s.newCode(s.keyPrefix)
		if err != nil {
			return model.IssuedKey{}, storageErr(s.log, "issue_key", err)
		}
		now := s.clock.Now()
		k := model.IssuedKey{
			ID:        id,
			Code:      code,
			Duration:  d,
			CreatedAt: now,
			ExpiresAt: now.Add(s.redeemWindow),
			CreatedBy: issuer,
		}
		err = s.keys.CreateKey(ctx, &k)
		if err == nil {
			s.metrics.KeyIssued(ctx)
			s.log.Info("key issued",
				zap.String("key", crypto.Fingerprint(code)),
				zap.Int64("issuer", issuer),
				zap.Duration("duration", d),
			)
			return k, nil
		}
		if !errors.Is(err, errs.ErrAlreadyExists) || attempt == issueAttempts {
			return model.IssuedKey{}, storageErr(s.log, "issue_key", err)
		}
		s.log.Warn("key code collision, retrying", zap.Int("attempt", attempt))
	}
}

// Redeem consumes code on behalf of userID and returns the resulting grant.
func (s *EntitlementService) Redeem(ctx context.Context, code string, userID int64) (model.AccessGrant, error) {
	role, err := s.roleOf(ctx, userID)
	if err != nil {
		s.metrics.Redemption(ctx, "error")
		return model.AccessGrant{}, storageErr(s.log, "redeem", err)
	}
	g, err := s.keys.Redeem(ctx, repository.Redemption{
		Code:   code,
		UserID: userID,
		Role:   role,
		Now:    s.clock.Now(),
	})
	fp := crypto.Fingerprint(code)
	switch {
	case err == nil:
		s.metrics.Redemption(ctx, "ok")
		s.log.Info("key redeemed", zap.String("key", fp), zap.Int64("user_id", userID), zap.Time("expires_at", g.ExpiresAt))
		return g, nil
	case errors.Is(err, errs.ErrNotFound):
		s.metrics.Redemption(ctx, "not_found")
	case errors.Is(err, errs.ErrAlreadyUsed):
		s.metrics.Redemption(ctx, "already_used")
	case errors.Is(err, errs.ErrExpired):
		s.metrics.Redemption(ctx, "expired")
	default:
		s.metrics.Redemption(ctx, "error")
	}
	s.log.Info("redeem rejected", zap.String("key", fp), zap.Int64("user_id", userID), zap.Error(err))
	return model.AccessGrant{}, storageErr(s.log, "redeem", err)
}

// KeyStatus returns the key record; callers derive the state with IssuedKey.Status.
func (s *EntitlementService) KeyStatus(ctx context.Context, code string) (*model.IssuedKey, error) {
	k, err := s.keys.GetKey(ctx, code)
	if err != nil {
		return nil, storageErr(s.log, "key_status", err)
	}
	return k, nil
}

// ListKeys returns up to limit keys, newest first.
func (s *EntitlementService) ListKeys(ctx context.Context, limit int) ([]model.IssuedKey, error) {
	if limit <= 0 {
		limit = defaultKeysPage
	}
	ks, err := s.keys.ListKeys(ctx, limit)
	if err != nil {
		return nil, storageErr(s.log, "list_keys", err)
	}
	return ks, nil
}

// SweepExpired removes every grant with ExpiresAt <= now.
func (s *EntitlementService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.grants.DeleteExpiredGrants(ctx, s.clock.Now())
	if err != nil {
		return 0, storageErr(s.log, "sweep", err)
	}
	s.metrics.Swept(ctx, n)
	if n > 0 {
		s.log.Info("expired grants removed", zap.Int64("count", n))
	}
	return n, nil
}
