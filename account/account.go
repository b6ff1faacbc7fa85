package account

import (
	"net/mail"
	"strings"
	"time"
)

// Status is the gate category of an account.
type Status string

const (
	// StatusActive allows session creation and authenticated actions.
	StatusActive Status = "active"
	// StatusInactive blocks the account.
	StatusInactive Status = "inactive"
	// StatusSuspended blocks the account.
	StatusSuspended Status = "suspended"
	// StatusBlocked blocks the account.
	StatusBlocked Status = "blocked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusBlocked:
		return true
	default:
		return false
	}
}

// Role names the storefront role carried by an account.
type Role string

const (
	RoleUser        Role = "user"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "superadmin"
	RoleStaff       Role = "staff"
	RoleManager     Role = "manager"
	RoleDeliveryman Role = "deliveryman"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin, RoleStaff, RoleManager, RoleDeliveryman:
		return true
	default:
		return false
	}
}

// Account is the public view of a stored account. It carries no secrets.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Status    Status    `json:"status"`
	Verified  bool      `json:"verified"`
	Version   uint64    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Challenge is an outstanding OTP challenge: the hash of the code and its
// expiry. A nil *Challenge means no challenge is outstanding.
type Challenge struct {
	Hash      string
	ExpiresAt time.Time
}

// Live reports whether c exists and has not expired at now.
func (c *Challenge) Live(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}

// Secrets holds the fields that are hidden unless explicitly selected.
type Secrets struct {
	PasswordHash string
	OTP          *Challenge
	Reset        *Challenge
}

// Record is what Store.Create persists.
type Record struct {
	Account
	Secrets
}

// NormalizeEmail trims and lower-cases an address. Uniqueness is enforced
// on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is a bare, well-formed address.
func ValidEmail(email string) bool {
	if email == "" || len(email) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Address == email && addr.Name == ""
}
