package storeauth

import (
	"errors"

	"github.com/MrEthical07/storeauth/account"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrEmailExists is returned by Register for a taken email.
	ErrEmailExists = errors.New("email already exists")
	// ErrInvalidEmail is returned when no account or no challenge matches the email.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidOTP is returned when a verification code does not match.
	ErrInvalidOTP = errors.New("invalid otp")
	// ErrOTPExpired is returned when a matching verification code has expired.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPNotExpired is returned by ResendOTP while the current code is live.
	ErrOTPNotExpired = errors.New("otp not expired")
	// ErrAlreadyVerified is returned for verification requests on a verified account.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotVerified is returned by the gate for unverified accounts.
	ErrNotVerified = errors.New("email not verified")
	// ErrAccountBlocked matches every *AccountBlockedError.
	ErrAccountBlocked = errors.New("account blocked")
	// ErrAccountNotFound is returned by admin operations addressing an unknown id.
	ErrAccountNotFound = errors.New("account not found")
	// ErrMissingToken is returned when no token was presented.
	ErrMissingToken = errors.New("token missing")
	// ErrInvalidToken is returned when a token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenReuse is returned when a consumed refresh token is presented.
	// The account's session family has been revoked by the time it is seen.
	ErrTokenReuse = errors.New("refresh token reuse detected")
	// ErrResetInvalid covers every password reset failure cause.
	ErrResetInvalid = errors.New("invalid or expired reset otp")
	// ErrForbidden is returned when an authorized account lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrConcurrentUpdate is returned when another request changed the account first.
	ErrConcurrentUpdate = errors.New("concurrent account update")
	// ErrEngineNotReady is returned by an Engine that was not built by a Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ValidationError is missing or malformed input. Message is safe to show.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func newValidationError(message string) error {
	return &ValidationError{Message: message}
}

// AccountBlockedError is returned by the gate for a verified account whose
// status is not active.
type AccountBlockedError struct {
	Status account.Status
}

func (e *AccountBlockedError) Error() string {
	return "account " + string(e.Status)
}

// Is matches ErrAccountBlocked.
func (e *AccountBlockedError) Is(target error) bool {
	return target == ErrAccountBlocked
}

func newAccountBlockedError(status account.Status) error {
	return &AccountBlockedError{Status: status}
}
