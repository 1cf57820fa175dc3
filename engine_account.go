package goFactor

import (
	"context"
	"errors"

	"github.com/MrEthical07/goFactor/session"
)

// TwoFactorEnabled reports whether the session identity uses a second factor.
func (e *Engine) TwoFactorEnabled(ctx context.Context, sess *session.Session) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	ident, err := e.sessionIdentity(ctx, sess)
	if err != nil {
		return false, err
	}
	return ident.TwoFactorEnabled, nil
}

// SetTwoFactor turns the second factor on or off for the session identity
// and reports whether anything changed.
func (e *Engine) SetTwoFactor(ctx context.Context, sess *session.Session, enabled bool) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	ident, err := e.sessionIdentity(ctx, sess)
	if err != nil {
		return false, err
	}
	if ident.TwoFactorEnabled == enabled {
		return false, nil
	}

	if err := e.identities.SetTwoFactor(ctx, ident.ID, enabled); err != nil {
		return false, storeError(err)
	}

	e.metricInc(MetricTwoFactorChanged)
	e.emitAudit(ctx, auditEventTwoFactorChanged, true, ident.ID, sess.ID, nil, func() map[string]string {
		if enabled {
			return map[string]string{"enabled": "true"}
		}
		return map[string]string{"enabled": "false"}
	})
	return true, nil
}

// ForgotUsername mails the username registered for email. It reports false
// when no identity has that email.
func (e *Engine) ForgotUsername(ctx context.Context, email string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	ident, err := e.identities.IdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return false, nil
		}
		return false, storeError(err)
	}
	if err := e.throttle(ctx, sendUsername, ident.ID); err != nil {
		return false, err
	}

	e.dispatch(ctx, ident.ID, usernameMail(ident.Email, ident.Username))
	e.metricInc(MetricUsernameReminder)
	e.emitAudit(ctx, auditEventUsernameReminder, true, ident.ID, "", nil, nil)
	return true, nil
}

// ForgotPassword mails a password reset link to the identity registered
// under username. It reports false when there is none.
func (e *Engine) ForgotPassword(ctx context.Context, username string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	ident, err := e.identities.IdentityByUsername(ctx, foldUsername(username))
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return false, nil
		}
		return false, storeError(err)
	}
	if err := e.throttle(ctx, sendPasswordReset, ident.ID); err != nil {
		return false, err
	}

	tok, err := e.resetTokens.Issue(ident.Username)
	if err != nil {
		return false, err
	}
	e.dispatch(ctx, ident.ID, e.passwordResetMail(ident.Email, tok))
	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, ident.ID, "", nil, nil)
	return true, nil
}

// ChangePassword sets a new password. With a reset token the identity comes
// from the token, otherwise from the session. Reusing the current password
// fails with [ErrPasswordReuse]. The new hash and the unlock are one commit;
// the caller's attempt counter is reset afterwards.
func (e *Engine) ChangePassword(ctx context.Context, sess *session.Session, newPassword, resetToken string) error {
	if err := e.ready(); err != nil {
		return err
	}

	ident, err := e.passwordChangeTarget(ctx, sess, resetToken)
	if err != nil {
		return err
	}

	if e.passwordMatches(ctx, ident, newPassword) {
		e.metricInc(MetricPasswordReuseRejected)
		return ErrPasswordReuse
	}

	hash, err := e.hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := e.identities.ResetPassword(ctx, ident.ID, hash); err != nil {
		return storeError(err)
	}

	sessionID := ""
	if sess != nil {
		sessionID = sess.ID
		if err := e.lockout.resetAttempts(ctx, sess); err != nil {
			e.logger.WarnContext(ctx, "reset login attempts", "user_id", ident.ID, "error", err)
		}
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, auditEventPasswordChanged, true, ident.ID, sessionID, nil, func() map[string]string {
		if resetToken != "" {
			return map[string]string{"via": "reset_link"}
		}
		return map[string]string{"via": "session"}
	})
	return nil
}

func (e *Engine) passwordChangeTarget(ctx context.Context, sess *session.Session, resetToken string) (Identity, error) {
	if resetToken == "" {
		return e.sessionIdentity(ctx, sess)
	}

	username, err := e.resetTokens.Redeem(resetToken)
	if err != nil {
		if errors.Is(tokenError(err), ErrExpiredToken) {
			return Identity{}, ErrResetPasswordExpired
		}
		return Identity{}, ErrInvalidToken
	}

	ident, err := e.identities.IdentityByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return Identity{}, ErrInvalidToken
		}
		return Identity{}, storeError(err)
	}
	return ident, nil
}

// ChangeEmail replaces the session identity's email. The one-time code
// secret is derived from the email, so it changes too.
func (e *Engine) ChangeEmail(ctx context.Context, sess *session.Session, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	ident, err := e.sessionIdentity(ctx, sess)
	if err != nil {
		return err
	}

	if ident.Email == email {
		return ErrReusedEmail
	}
	if _, err := e.identities.IdentityByEmail(ctx, email); err == nil {
		return ErrEmailExists
	} else if !errors.Is(err, ErrIdentityNotFound) {
		return storeError(err)
	}

	if err := e.identities.UpdateEmail(ctx, ident.ID, email); err != nil {
		if errors.Is(err, ErrIdentityConflict) {
			return ErrEmailExists
		}
		return storeError(err)
	}

	e.metricInc(MetricEmailChanged)
	e.emitAudit(ctx, auditEventEmailChanged, true, ident.ID, sess.ID, nil, nil)
	return nil
}
