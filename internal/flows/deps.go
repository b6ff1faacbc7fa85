package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/storeauth/account"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Registration RegistrationDeps
	Session      SessionDeps
	Recovery     RecoveryDeps
	Status       StatusDeps
}

// Purpose tells the mailer which OTP email to render.
type Purpose string

const (
	PurposeVerifyEmail        Purpose = "verify_email"
	PurposeResendVerification Purpose = "resend_verification"
	PurposeResetPassword      Purpose = "reset_password"
)

// Errors carries host-level sentinel errors. Flows never define their own
// public errors so callers can match with errors.Is against the root package.
type Errors struct {
	EngineNotReady error

	// Validation builds the missing-input error with an operation specific
	// public message.
	Validation func(message string) error
	// Blocked builds the error for a non-active account.
	Blocked func(status account.Status) error

	AccountNotFound    error
	EmailExists        error
	InvalidEmail       error
	InvalidOTP         error
	OTPExpired         error
	OTPNotExpired      error
	AlreadyVerified    error
	InvalidCredentials error
	NotVerified        error
	MissingToken       error
	InvalidToken       error
	TokenReuse         error
	ResetInvalid       error
	ConcurrentUpdate   error
}

// Metrics carries metric IDs incremented by the flows.
type Metrics struct {
	RegisterSuccess   int
	RegisterDuplicate int
	VerifySuccess     int
	VerifyFailure     int
	OTPResent         int
	LoginSuccess      int
	LoginFailure      int
	RefreshSuccess    int
	RefreshFailure    int
	ReuseDetected     int
	Logout            int
	LogoutAll         int
	ResetRequested    int
	ResetSuccess      int
	ResetFailure      int
	StatusChanged     int
	HashUpgraded      int
}

// Events carries audit event names emitted by the flows.
type Events struct {
	Register       string
	VerifyEmail    string
	ResendOTP      string
	LoginSuccess   string
	LoginFailure   string
	Refresh        string
	ReuseDetected  string
	Logout         string
	LogoutAll      string
	ResetRequested string
	ResetConfirmed string
	StatusChanged  string
}

// Hooks are the observability callbacks shared by all flows. Nil fields are
// replaced with no-ops.
type Hooks struct {
	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID string, err error, metadata func() map[string]string)
	Warn      func(msg string, args ...any)
}

func (h Hooks) normalize() Hooks {
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if h.Warn == nil {
		h.Warn = func(string, ...any) {}
	}
	return h
}

func normalizeNow(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}

// storeError translates store sentinels the caller can act on. Everything
// else passes through and ends up as a server error.
func storeError(err error, errs Errors) error {
	if errors.Is(err, account.ErrVersionConflict) && errs.ConcurrentUpdate != nil {
		return errs.ConcurrentUpdate
	}
	return err
}
