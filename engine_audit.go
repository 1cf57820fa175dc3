package goFactor

import (
	"context"
	"errors"
)

const (
	auditEventIdentityRegistered    = "identity_registered"
	auditEventIdentityUnregistered  = "identity_unregistered"
	auditEventVerificationSent      = "email_verification_sent"
	auditEventEmailVerified         = "email_verified"
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventAccountLocked         = "account_locked"
	auditEventLocationBaseline      = "location_baseline"
	auditEventLocationAnomaly       = "location_anomaly"
	auditEventChallengeSent         = "otp_challenge_sent"
	auditEventOTPVerified           = "otp_verified"
	auditEventOTPFailure            = "otp_failure"
	auditEventPasswordChanged       = "password_changed"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventUsernameReminder      = "username_reminder"
	auditEventEmailChanged          = "email_changed"
	auditEventTwoFactorChanged      = "two_factor_changed"
	auditEventLogout                = "logout"
	auditEventNotificationFailed    = "notification_failed"
	auditEventNotificationThrottled = "notification_throttled"
)

// AuditErrorCode is the stable error label carried in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrBadCredentials  AuditErrorCode = "bad_credentials"
	auditErrAccountLocked   AuditErrorCode = "account_locked"
	auditErrDuplicate       AuditErrorCode = "duplicate"
	auditErrBadVerification AuditErrorCode = "bad_verification"
	auditErrExpired         AuditErrorCode = "expired_token"
	auditErrInvalidToken    AuditErrorCode = "invalid_token"
	auditErrBadMethod       AuditErrorCode = "bad_method"
	auditErrBadOTP          AuditErrorCode = "bad_otp"
	auditErrNotPending      AuditErrorCode = "second_factor_not_pending"
	auditErrPasswordReuse   AuditErrorCode = "password_reuse"
	auditErrEmailConflict   AuditErrorCode = "email_conflict"
	auditErrNoIdentity      AuditErrorCode = "no_identity"
	auditErrSessionNotFound AuditErrorCode = "session_not_found"
	auditErrUnavailable     AuditErrorCode = "backend_unavailable"
	auditErrDeliveryFailed  AuditErrorCode = "delivery_failed"
	auditErrRateLimited     AuditErrorCode = "rate_limited"
	auditErrInternal        AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrBadCredentials):
		return auditErrBadCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAlreadyRegistered):
		return auditErrDuplicate
	case errors.Is(err, ErrVerificationExpired),
		errors.Is(err, ErrExpiredToken):
		return auditErrExpired
	case errors.Is(err, ErrBadVerification):
		return auditErrBadVerification
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrBadMethod):
		return auditErrBadMethod
	case errors.Is(err, ErrBadOTP):
		return auditErrBadOTP
	case errors.Is(err, ErrSecondFactorNotPending):
		return auditErrNotPending
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrReusedEmail),
		errors.Is(err, ErrEmailExists):
		return auditErrEmailConflict
	case errors.Is(err, ErrUserNotInContext):
		return auditErrNoIdentity
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrSessionUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, errDeliveryFailed):
		return auditErrDeliveryFailed
	default:
		return auditErrInternal
	}
}
