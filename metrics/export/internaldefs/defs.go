package internaldefs

import (
	goFactor "github.com/MrEthical07/goFactor"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   goFactor.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its exported name.
type HistogramDef struct {
	ID   goFactor.MetricID
	Name string
	Help string
}

const (
	// AuditDroppedName is the counter exported for dispatcher backpressure drops.
	AuditDroppedName = "gofactor_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped by a full dispatcher queue."

	// MethodLabel keys the delivery method on challenge and OTP series.
	MethodLabel = "method"
)

// MethodSplit returns the per-method counts of id in MetricMethods order,
// or false when the snapshot carries no split for it.
func MethodSplit(s goFactor.MetricsSnapshot, id goFactor.MetricID) ([]goFactor.Method, []uint64, bool) {
	split, ok := s.Methods[id]
	if !ok || !id.ByMethod() {
		return nil, nil, false
	}
	methods := goFactor.MetricMethods()
	values := make([]uint64, len(methods))
	for i, m := range methods {
		values[i] = split[m]
	}
	return methods, values, true
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: goFactor.MetricRegisterSuccess, Name: "gofactor_register_success_total", Help: "Successful registrations."},
	{ID: goFactor.MetricRegisterDuplicate, Name: "gofactor_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: goFactor.MetricVerificationSent, Name: "gofactor_verification_sent_total", Help: "Verification mails sent."},
	{ID: goFactor.MetricEmailVerified, Name: "gofactor_email_verified_total", Help: "Successful email verifications."},
	{ID: goFactor.MetricEmailVerificationFailure, Name: "gofactor_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: goFactor.MetricLoginSuccess, Name: "gofactor_login_success_total", Help: "Successful logins."},
	{ID: goFactor.MetricLoginFailure, Name: "gofactor_login_failure_total", Help: "Failed logins."},
	{ID: goFactor.MetricLoginLockedRejected, Name: "gofactor_login_locked_rejected_total", Help: "Logins rejected because the account is locked."},
	{ID: goFactor.MetricAccountLocked, Name: "gofactor_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: goFactor.MetricLocationBaseline, Name: "gofactor_location_baseline_total", Help: "Baseline login locations recorded."},
	{ID: goFactor.MetricLocationAnomaly, Name: "gofactor_location_anomaly_total", Help: "Logins from an unrecognized location."},
	{ID: goFactor.MetricLocationUnresolved, Name: "gofactor_location_unresolved_total", Help: "Logins whose location could not be resolved."},
	{ID: goFactor.MetricChallengeSent, Name: "gofactor_challenge_sent_total", Help: "One-time codes sent."},
	{ID: goFactor.MetricChallengeResent, Name: "gofactor_challenge_resent_total", Help: "One-time codes resent."},
	{ID: goFactor.MetricOTPSuccess, Name: "gofactor_otp_success_total", Help: "Successful one-time code verifications."},
	{ID: goFactor.MetricOTPFailure, Name: "gofactor_otp_failure_total", Help: "Failed one-time code verifications."},
	{ID: goFactor.MetricNotificationFailure, Name: "gofactor_notification_failure_total", Help: "Notifications the delivery channel rejected."},
	{ID: goFactor.MetricPasswordChanged, Name: "gofactor_password_changed_total", Help: "Password changes."},
	{ID: goFactor.MetricPasswordReuseRejected, Name: "gofactor_password_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: goFactor.MetricPasswordResetRequest, Name: "gofactor_password_reset_request_total", Help: "Password reset mails requested."},
	{ID: goFactor.MetricUsernameReminder, Name: "gofactor_username_reminder_total", Help: "Username reminder mails requested."},
	{ID: goFactor.MetricEmailChanged, Name: "gofactor_email_changed_total", Help: "Email address changes."},
	{ID: goFactor.MetricTwoFactorChanged, Name: "gofactor_two_factor_changed_total", Help: "Two-factor setting changes."},
	{ID: goFactor.MetricUnregister, Name: "gofactor_unregister_total", Help: "Removed identities."},
	{ID: goFactor.MetricLogout, Name: "gofactor_logout_total", Help: "Logouts."},
	{ID: goFactor.MetricNotificationThrottled, Name: "gofactor_notification_throttled_total", Help: "Notifications refused by send throttling."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goFactor.MetricLoginLatency, Name: "gofactor_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets pads or truncates raw to exactly eight buckets.
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
