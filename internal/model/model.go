// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is informational: privileged operations always consult the admin registry.
type Role string

const (
	RoleStandard Role = "standard"
	RoleAdmin    Role = "admin"
)

// AccessGrant is a user's current entitlement. At most one exists per user.
type AccessGrant struct {
	UserID    int64
	ExpiresAt time.Time
	Role      Role
	GrantedAt time.Time
	Source    string // "redeem:<key id>" or "admin:<admin id>"
}

// Active reports whether the grant is still valid at now.
func (g AccessGrant) Active(now time.Time) bool { return g.ExpiresAt.After(now) }

// KeyStatus is the derived redemption state of an issued key.
type KeyStatus string

const (
	KeyUnused  KeyStatus = "unused"
	KeyUsed    KeyStatus = "used"
	KeyExpired KeyStatus = "expired"
)

// IssuedKey is a one-time redeemable access code.
type IssuedKey struct {
	ID         uuid.UUID     // server-generated PK
	Code       string        // unique
	Duration   time.Duration // grant lifetime applied on redemption
	Used       bool
	CreatedAt  time.Time
	ExpiresAt  time.Time // end of the redemption window
	CreatedBy  int64
	RedeemedBy *int64
	RedeemedAt *time.Time
}

// Status derives the key state at now. A used key stays used.
func (k IssuedKey) Status(now time.Time) KeyStatus {
	switch {
	case k.Used:
		return KeyUsed
	case now.After(k.ExpiresAt):
		return KeyExpired
	default:
		return KeyUnused
	}
}

// Admin is a member of the privileged set.
type Admin struct {
	UserID  int64
	IsOwner bool
	AddedBy int64
	AddedAt time.Time
}

// Verdict is the opaque outcome of an external verification lookup.
type Verdict string

const (
	VerdictApproved    Verdict = "approved"
	VerdictDeclined    Verdict = "declined"
	VerdictUnavailable Verdict = "unavailable"
)
