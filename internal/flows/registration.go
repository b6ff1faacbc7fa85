package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/internal"
)

// RegistrationDeps captures register/verify/resend dependencies.
type RegistrationDeps struct {
	OTPDigits         int
	OTPTTL            time.Duration
	DefaultRole       account.Role
	MinPasswordLength int

	Now   func() time.Time
	NewID func() string

	Store        account.Store
	HashSecret   func(string) (string, error)
	VerifySecret func(secret, hash string) (bool, error)
	SendOTP      func(ctx context.Context, purpose Purpose, acc account.Account, code string)

	Hooks   Hooks
	Metrics Metrics
	Events  Events
	Errors  Errors
}

// RegisterInput is the flow-local registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

const (
	DefaultOTPDigits = 6
	DefaultOTPTTL    = 10 * time.Minute
)

type otpHasher func(string) (string, error)

func (h otpHasher) Hash(s string) (string, error) { return h(s) }

func normalizeRegistrationDeps(deps RegistrationDeps) (RegistrationDeps, error) {
	deps.Hooks = deps.Hooks.normalize()
	deps.Now = normalizeNow(deps.Now)
	if deps.Store == nil || deps.HashSecret == nil || deps.VerifySecret == nil || deps.NewID == nil || deps.Errors.Validation == nil {
		return deps, deps.Errors.EngineNotReady
	}
	if deps.SendOTP == nil {
		deps.SendOTP = func(context.Context, Purpose, account.Account, string) {}
	}
	if deps.DefaultRole == "" {
		deps.DefaultRole = account.RoleUser
	}
	if deps.OTPDigits == 0 {
		deps.OTPDigits = DefaultOTPDigits
	}
	if deps.OTPTTL <= 0 {
		deps.OTPTTL = DefaultOTPTTL
	}
	return deps, nil
}

// RunRegister creates an unverified account with an outstanding OTP
// challenge and hands the code to the mailer. Mail delivery never affects
// the result.
func RunRegister(ctx context.Context, in RegisterInput, deps RegistrationDeps) (account.Account, error) {
	deps, err := normalizeRegistrationDeps(deps)
	if err != nil {
		return account.Account{}, err
	}

	name := strings.TrimSpace(in.Name)
	email := account.NormalizeEmail(in.Email)
	if name == "" || email == "" || in.Password == "" {
		return account.Account{}, deps.Errors.Validation("Name, email and password are required")
	}
	if !account.ValidEmail(email) {
		return account.Account{}, deps.Errors.Validation("Please provide a valid email address")
	}
	if deps.MinPasswordLength > 0 && len(in.Password) < deps.MinPasswordLength {
		return account.Account{}, deps.Errors.Validation("Password is too short")
	}

	hash, err := deps.HashSecret(in.Password)
	if err != nil {
		return account.Account{}, err
	}

	now := deps.Now()
	code, challenge, err := internal.IssueChallenge(otpHasher(deps.HashSecret), deps.OTPDigits, deps.OTPTTL, now)
	if err != nil {
		return account.Account{}, err
	}

	rec := account.Record{
		Account: account.Account{
			ID:        deps.NewID(),
			Email:     email,
			Name:      name,
			Role:      deps.DefaultRole,
			Status:    account.StatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Secrets: account.Secrets{PasswordHash: hash, OTP: challenge},
	}

	if err := deps.Store.Create(ctx, rec); err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			deps.Hooks.MetricInc(deps.Metrics.RegisterDuplicate)
			deps.Hooks.EmitAudit(ctx, deps.Events.Register, false, "", deps.Errors.EmailExists, func() map[string]string {
				return map[string]string{"email": email}
			})
			return account.Account{}, deps.Errors.EmailExists
		}
		return account.Account{}, err
	}

	deps.SendOTP(ctx, PurposeVerifyEmail, rec.Account, code)
	deps.Hooks.MetricInc(deps.Metrics.RegisterSuccess)
	deps.Hooks.EmitAudit(ctx, deps.Events.Register, true, rec.ID, nil, nil)
	return rec.Account, nil
}

// RunVerifyEmail consumes the registration OTP. A single timestamp is taken
// before the comparison and used for the expiry check.
func RunVerifyEmail(ctx context.Context, email, otp string, deps RegistrationDeps) error {
	deps, err := normalizeRegistrationDeps(deps)
	if err != nil {
		return err
	}

	email = account.NormalizeEmail(email)
	otp = strings.TrimSpace(otp)
	if email == "" || otp == "" {
		return deps.Errors.Validation("Email and OTP are required")
	}

	acc, sec, err := deps.Store.Secrets(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return verifyFailed(ctx, deps, "", deps.Errors.InvalidEmail)
		}
		return err
	}
	if acc.Verified {
		return verifyFailed(ctx, deps, acc.ID, deps.Errors.AlreadyVerified)
	}
	if sec.OTP == nil {
		return verifyFailed(ctx, deps, acc.ID, deps.Errors.InvalidEmail)
	}

	now := deps.Now()
	ok, err := deps.VerifySecret(otp, sec.OTP.Hash)
	if err != nil || !ok {
		return verifyFailed(ctx, deps, acc.ID, deps.Errors.InvalidOTP)
	}
	if !sec.OTP.Live(now) {
		return verifyFailed(ctx, deps, acc.ID, deps.Errors.OTPExpired)
	}

	verified := true
	patch := account.Patch{Verified: &verified, ClearOTP: true}
	_, err = deps.Store.Update(ctx, acc.ID, acc.Version, patch)
	if errors.Is(err, account.ErrVersionConflict) {
		// Writes that leave the challenge alone, such as a reset request, also
		// move the version. Retry once if the matched challenge is still stored.
		err = retryVerify(ctx, email, sec.OTP, patch, deps)
	}
	if err != nil {
		// The loser of a concurrent verify sees the version move.
		return storeError(err, deps.Errors)
	}

	deps.Hooks.MetricInc(deps.Metrics.VerifySuccess)
	deps.Hooks.EmitAudit(ctx, deps.Events.VerifyEmail, true, acc.ID, nil, nil)
	return nil
}

func retryVerify(ctx context.Context, email string, matched *account.Challenge, patch account.Patch, deps RegistrationDeps) error {
	acc, sec, err := deps.Store.Secrets(ctx, email)
	if err != nil {
		return err
	}
	if acc.Verified || !sameChallenge(sec.OTP, matched) {
		return account.ErrVersionConflict
	}
	_, err = deps.Store.Update(ctx, acc.ID, acc.Version, patch)
	return err
}

func sameChallenge(a, b *account.Challenge) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Hash == b.Hash && a.ExpiresAt.Equal(b.ExpiresAt)
}

func verifyFailed(ctx context.Context, deps RegistrationDeps, accountID string, err error) error {
	deps.Hooks.MetricInc(deps.Metrics.VerifyFailure)
	deps.Hooks.EmitAudit(ctx, deps.Events.VerifyEmail, false, accountID, err, nil)
	return err
}

// RunResendOTP replaces a dead registration OTP with a new one. While the
// current code is still live the request is refused.
func RunResendOTP(ctx context.Context, email string, deps RegistrationDeps) error {
	deps, err := normalizeRegistrationDeps(deps)
	if err != nil {
		return err
	}

	email = account.NormalizeEmail(email)
	if email == "" {
		return deps.Errors.Validation("Email is required")
	}

	acc, sec, err := deps.Store.Secrets(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return deps.Errors.InvalidEmail
		}
		return err
	}
	if acc.Verified {
		return deps.Errors.AlreadyVerified
	}

	now := deps.Now()
	if sec.OTP.Live(now) {
		return deps.Errors.OTPNotExpired
	}

	code, challenge, err := internal.IssueChallenge(otpHasher(deps.HashSecret), deps.OTPDigits, deps.OTPTTL, now)
	if err != nil {
		return err
	}
	updated, err := deps.Store.Update(ctx, acc.ID, acc.Version, account.Patch{OTP: challenge})
	if err != nil {
		return storeError(err, deps.Errors)
	}

	deps.SendOTP(ctx, PurposeResendVerification, updated, code)
	deps.Hooks.MetricInc(deps.Metrics.OTPResent)
	deps.Hooks.EmitAudit(ctx, deps.Events.ResendOTP, true, acc.ID, nil, nil)
	return nil
}
