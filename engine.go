package storeauth

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrEthical07/storeauth/account"
	internalaudit "github.com/MrEthical07/storeauth/internal/audit"
	"github.com/MrEthical07/storeauth/internal/flows"
	"github.com/MrEthical07/storeauth/jwt"
	"github.com/MrEthical07/storeauth/mail"
	"github.com/MrEthical07/storeauth/password"
)

// Engine runs registration, session and recovery operations against an
// [account.Store]. Build one with [New] and share it; every method is safe for
// concurrent use.
type Engine struct {
	config Config
	now    func() time.Time
	logger *slog.Logger

	store        account.Store
	flows        flows.Service
	passwordHash *password.Argon2
	dummyHash    string
	access       *jwt.Manager
	refresh      *jwt.Manager

	mail    *mail.Dispatcher
	audit   *internalaudit.Dispatcher
	metrics *Metrics
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// Close drains the mail and audit queues. The engine must not be used after
// Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mail.Close()
	e.audit.Close()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.flows.Initialized()
}

// flowErrors binds the flow layer to the public sentinels of this package.
func flowErrors() flows.Errors {
	return flows.Errors{
		EngineNotReady: ErrEngineNotReady,
		Validation:     newValidationError,
		Blocked:        newAccountBlockedError,

		AccountNotFound:    ErrAccountNotFound,
		EmailExists:        ErrEmailExists,
		InvalidEmail:       ErrInvalidEmail,
		InvalidOTP:         ErrInvalidOTP,
		OTPExpired:         ErrOTPExpired,
		OTPNotExpired:      ErrOTPNotExpired,
		AlreadyVerified:    ErrAlreadyVerified,
		InvalidCredentials: ErrInvalidCredentials,
		NotVerified:        ErrNotVerified,
		MissingToken:       ErrMissingToken,
		InvalidToken:       ErrInvalidToken,
		TokenReuse:         ErrTokenReuse,
		ResetInvalid:       ErrResetInvalid,
		ConcurrentUpdate:   ErrConcurrentUpdate,
	}
}

func flowMetrics() flows.Metrics {
	return flows.Metrics{
		RegisterSuccess:   int(MetricRegisterSuccess),
		RegisterDuplicate: int(MetricRegisterDuplicate),
		VerifySuccess:     int(MetricEmailVerifySuccess),
		VerifyFailure:     int(MetricEmailVerifyFailure),
		OTPResent:         int(MetricOTPResent),
		LoginSuccess:      int(MetricLoginSuccess),
		LoginFailure:      int(MetricLoginFailure),
		RefreshSuccess:    int(MetricRefreshSuccess),
		RefreshFailure:    int(MetricRefreshFailure),
		ReuseDetected:     int(MetricRefreshReuseDetected),
		Logout:            int(MetricLogout),
		LogoutAll:         int(MetricLogoutAll),
		ResetRequested:    int(MetricPasswordResetRequest),
		ResetSuccess:      int(MetricPasswordResetSuccess),
		ResetFailure:      int(MetricPasswordResetFailure),
		StatusChanged:     int(MetricAccountStatusChange),
		HashUpgraded:      int(MetricPasswordHashUpgraded),
	}
}

func flowEvents() flows.Events {
	return flows.Events{
		Register:       auditEventRegister,
		VerifyEmail:    auditEventVerifyEmail,
		ResendOTP:      auditEventResendOTP,
		LoginSuccess:   auditEventLoginSuccess,
		LoginFailure:   auditEventLoginFailure,
		Refresh:        auditEventRefresh,
		ReuseDetected:  auditEventRefreshReuse,
		Logout:         auditEventLogout,
		LogoutAll:      auditEventLogoutAll,
		ResetRequested: auditEventResetRequest,
		ResetConfirmed: auditEventResetConfirm,
		StatusChanged:  auditEventStatusChange,
	}
}

func (e *Engine) flowHooks() flows.Hooks {
	return flows.Hooks{
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn: func(msg string, args ...any) {
			e.logger.Warn(msg, args...)
		},
	}
}

func (e *Engine) flowDeps() flows.Deps {
	return flows.Deps{
		Registration: e.registrationFlowDeps(),
		Session:      e.sessionFlowDeps(),
		Recovery:     e.recoveryFlowDeps(),
		Status:       e.statusFlowDeps(),
	}
}

// sendOTP renders and queues an OTP email. Failures are logged only.
func (e *Engine) sendOTP(ctx context.Context, purpose flows.Purpose, acc account.Account, code string) {
	msg, err := mail.OTPMessage(mail.Kind(purpose), e.config.Mail.AppName, acc.Email, code, e.config.OTP.TTL)
	if err != nil {
		e.logger.ErrorContext(ctx, "render otp email", "account_id", acc.ID, "purpose", string(purpose), "error", err)
		return
	}
	if e.mail == nil {
		e.logger.WarnContext(ctx, "no mailer configured, otp email discarded", "account_id", acc.ID, "purpose", string(purpose))
		return
	}
	e.mail.Enqueue(msg)
}

func (e *Engine) mailOutcome(o mail.Outcome) {
	switch o {
	case mail.OutcomeSent:
		e.metricInc(MetricMailSent)
	case mail.OutcomeFailed:
		e.metricInc(MetricMailFailed)
	case mail.OutcomeDropped:
		e.metricInc(MetricMailDropped)
	}
}
