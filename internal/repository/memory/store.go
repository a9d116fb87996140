// Package memory is a process-local implementation of the repository interfaces.
// State is lost on restart; it backs dev mode and service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/and161185/keygate/internal/errs"
	"github.com/and161185/keygate/internal/model"
	"github.com/and161185/keygate/internal/repository"
)

var (
	_ repository.GrantRepository = (*Store)(nil)
	_ repository.KeyRepository   = (*Store)(nil)
	_ repository.AdminRepository = (*Store)(nil)
)

// Store keeps grants and keys under one mutex so redemption is a single critical section.
// Admins have their own mutex.
type Store struct {
	mu     sync.Mutex
	grants map[int64]model.AccessGrant
	keys   map[string]*model.IssuedKey

	adminMu sync.Mutex
	admins  map[int64]model.Admin
}

// New returns an empty store.
func New() *Store {
	return &Store{
		grants: make(map[int64]model.AccessGrant),
		keys:   make(map[string]*model.IssuedKey),
		admins: make(map[int64]model.Admin),
	}
}

func (s *Store) UpsertGrant(_ context.Context, g model.AccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[g.UserID] = g
	return nil
}

func (s *Store) GetGrant(_ context.Context, userID int64) (*model.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[userID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &g, nil
}

func (s *Store) DeleteGrant(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[userID]; !ok {
		return errs.ErrNotFound
	}
	delete(s.grants, userID)
	return nil
}

func (s *Store) DeleteExpiredGrants(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, g := range s.grants {
		if !g.Active(now) {
			delete(s.grants, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateKey(_ context.Context, k *model.IssuedKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[k.Code]; ok {
		return errs.ErrAlreadyExists
	}
	cpy := *k
	s.keys[k.Code] = &cpy
	return nil
}

func (s *Store) GetKey(_ context.Context, code string) (*model.IssuedKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[code]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *k
	return &cpy, nil
}

func (s *Store) ListKeys(_ context.Context, limit int) ([]model.IssuedKey, error) {
	s.mu.Lock()
	out := make([]model.IssuedKey, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, *k)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Redeem checks and marks the key and replaces the grant without releasing the lock.
func (s *Store) Redeem(_ context.Context, r repository.Redemption) (model.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[r.Code]
	if !ok {
		return model.AccessGrant{}, errs.ErrNotFound
	}
	if k.Used {
		return model.AccessGrant{}, errs.ErrAlreadyUsed
	}
	if r.Now.After(k.ExpiresAt) {
		return model.AccessGrant{}, errs.ErrExpired
	}

	by, at := r.UserID, r.Now
	k.Used = true
	k.RedeemedBy = &by
	k.RedeemedAt = &at

	g := model.AccessGrant{
		UserID:    r.UserID,
		ExpiresAt: r.Now.Add(k.Duration),
		Role:      r.Role,
		GrantedAt: r.Now,
		Source:    "redeem:" + k.ID.String(),
	}
	s.grants[g.UserID] = g
	return g, nil
}

func (s *Store) EnsureOwner(_ context.Context, ownerID int64, now time.Time) error {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()
	for id, a := range s.admins {
		if a.IsOwner && id != ownerID {
			a.IsOwner = false
			s.admins[id] = a
		}
	}
	a, ok := s.admins[ownerID]
	if !ok {
		a = model.Admin{UserID: ownerID, AddedBy: ownerID, AddedAt: now}
	}
	a.IsOwner = true
	s.admins[ownerID] = a
	return nil
}

func (s *Store) IsAdmin(_ context.Context, userID int64) (bool, error) {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()
	_, ok := s.admins[userID]
	return ok, nil
}

func (s *Store) AddAdmin(_ context.Context, target, addedBy int64, now time.Time) error {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()
	if _, ok := s.admins[target]; ok {
		return errs.ErrAlreadyAdmin
	}
	s.admins[target] = model.Admin{UserID: target, AddedBy: addedBy, AddedAt: now}
	return nil
}

func (s *Store) RemoveAdmin(_ context.Context, target int64) error {
	s.adminMu.Lock()
	defer s.adminMu.Unlock()
	a, ok := s.admins[target]
	if !ok {
		return errs.ErrNotAdmin
	}
	if a.IsOwner {
		return errs.ErrCannotRemoveOwner
	}
	delete(s.admins, target)
	return nil
}

func (s *Store) ListAdmins(_ context.Context) ([]model.Admin, error) {
	s.adminMu.Lock()
	out := make([]model.Admin, 0, len(s.admins))
	for _, a := range s.admins {
		out = append(out, a)
	}
	s.adminMu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].IsOwner != out[j].IsOwner {
			return out[i].IsOwner
		}
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out, nil
}
