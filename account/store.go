package account

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned by Create when the normalized email is taken.
	ErrDuplicateEmail = errors.New("account email already exists")
	// ErrVersionConflict is returned by Update when the stored version moved.
	ErrVersionConflict = errors.New("account version conflict")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("account store unavailable")
)

// Patch lists the field changes applied by Store.Update. Nil pointers leave a
// field untouched. Setting a challenge and clearing it in the same patch is
// invalid.
type Patch struct {
	Verified     *bool
	Status       *Status
	PasswordHash *string

	OTP      *Challenge
	ClearOTP bool

	Reset      *Challenge
	ClearReset bool

	// RevokeSessions empties the session family in the same atomic step.
	RevokeSessions bool
}

// Validate rejects contradictory patches.
func (p Patch) Validate() error {
	if p.OTP != nil && p.ClearOTP {
		return errors.New("patch sets and clears the otp challenge")
	}
	if p.Reset != nil && p.ClearReset {
		return errors.New("patch sets and clears the reset challenge")
	}
	if p.Status != nil && !p.Status.Valid() {
		return errors.New("patch carries an unknown status")
	}
	return nil
}

// Apply writes p onto an account and its secrets. Stores that load, modify and
// save a whole record use it so every backend applies patches the same way.
func (p Patch) Apply(acc *Account, sec *Secrets) {
	if p.Verified != nil {
		acc.Verified = *p.Verified
	}
	if p.Status != nil {
		acc.Status = *p.Status
	}
	if p.PasswordHash != nil {
		sec.PasswordHash = *p.PasswordHash
	}
	switch {
	case p.OTP != nil:
		c := *p.OTP
		sec.OTP = &c
	case p.ClearOTP:
		sec.OTP = nil
	}
	switch {
	case p.Reset != nil:
		c := *p.Reset
		sec.Reset = &c
	case p.ClearReset:
		sec.Reset = nil
	}
}

// Store persists accounts and their session families.
//
// Implementations must make Update a compare-and-set on Version and make the
// session family operations atomic per element.
type Store interface {
	Create(ctx context.Context, rec Record) error
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id string) (Account, error)
	// Secrets loads the account together with its hidden fields.
	Secrets(ctx context.Context, email string) (Account, Secrets, error)
	// Update applies patch when the stored version equals version and returns
	// the updated account.
	Update(ctx context.Context, id string, version uint64, patch Patch) (Account, error)

	// AddRefreshToken adds digest to the family only while the stored
	// version equals version, so a concurrent update that wipes the family
	// cannot be followed by a token minted from the state it replaced.
	AddRefreshToken(ctx context.Context, id string, version uint64, digest string, expiresAt time.Time) error
	// RotateRefreshToken removes oldDigest and, only if it was present, adds
	// newDigest. It reports whether the removal happened.
	RotateRefreshToken(ctx context.Context, id, oldDigest, newDigest string, expiresAt time.Time) (bool, error)
	RemoveRefreshToken(ctx context.Context, id, digest string) (bool, error)
	// RevokeRefreshTokens empties the family and returns how many digests it held.
	RevokeRefreshTokens(ctx context.Context, id string) (int, error)
	RefreshTokenCount(ctx context.Context, id string) (int, error)
}
