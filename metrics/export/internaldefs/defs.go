package internaldefs

import (
	"github.com/MrEthical07/storeauth"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   storeauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   storeauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: storeauth.MetricRegisterSuccess, Name: "storeauth_register_success_total", Help: "Accounts registered."},
	{ID: storeauth.MetricRegisterDuplicate, Name: "storeauth_register_duplicate_total", Help: "Registrations rejected for a taken email."},
	{ID: storeauth.MetricEmailVerifySuccess, Name: "storeauth_email_verify_success_total", Help: "Successful email verifications."},
	{ID: storeauth.MetricEmailVerifyFailure, Name: "storeauth_email_verify_failure_total", Help: "Failed email verifications."},
	{ID: storeauth.MetricOTPResent, Name: "storeauth_otp_resent_total", Help: "Verification codes re-issued."},
	{ID: storeauth.MetricLoginSuccess, Name: "storeauth_login_success_total", Help: "Successful logins."},
	{ID: storeauth.MetricLoginFailure, Name: "storeauth_login_failure_total", Help: "Failed logins."},
	{ID: storeauth.MetricRefreshSuccess, Name: "storeauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: storeauth.MetricRefreshFailure, Name: "storeauth_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: storeauth.MetricRefreshReuseDetected, Name: "storeauth_refresh_reuse_detected_total", Help: "Consumed refresh tokens presented again."},
	{ID: storeauth.MetricLogout, Name: "storeauth_logout_total", Help: "Single-session logouts."},
	{ID: storeauth.MetricLogoutAll, Name: "storeauth_logout_all_total", Help: "Logout-all operations."},
	{ID: storeauth.MetricPasswordResetRequest, Name: "storeauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: storeauth.MetricPasswordResetSuccess, Name: "storeauth_password_reset_success_total", Help: "Completed password resets."},
	{ID: storeauth.MetricPasswordResetFailure, Name: "storeauth_password_reset_failure_total", Help: "Rejected password resets."},
	{ID: storeauth.MetricAccountStatusChange, Name: "storeauth_account_status_change_total", Help: "Account status changes."},
	{ID: storeauth.MetricPasswordHashUpgraded, Name: "storeauth_password_hash_upgraded_total", Help: "Password hashes re-encoded on login."},
	{ID: storeauth.MetricMailSent, Name: "storeauth_mail_sent_total", Help: "OTP emails delivered to the mailer."},
	{ID: storeauth.MetricMailFailed, Name: "storeauth_mail_failed_total", Help: "OTP emails the mailer rejected."},
	{ID: storeauth.MetricMailDropped, Name: "storeauth_mail_dropped_total", Help: "OTP emails dropped on a full queue."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: storeauth.MetricAuthorizeLatency, Name: "storeauth_authorize_latency_seconds", Help: "Access token authorization latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "storeauth_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// HistogramUpperBounds are the bucket upper bounds in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf last.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
