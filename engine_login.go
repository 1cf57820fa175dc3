package goFactor

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goFactor/password"
	"github.com/MrEthical07/goFactor/session"
)

// Authenticate checks username and password. Checks run in a fixed order:
// unknown username, locked identity, then password. A wrong password that
// crosses the lockout threshold fails with [ErrAccountLocked], not
// [ErrBadCredentials]. On success the location guard runs before returning.
func (e *Engine) Authenticate(ctx context.Context, sess *session.Session, username, plain string) (Identity, error) {
	if err := e.ready(); err != nil {
		return Identity{}, err
	}
	if sess == nil {
		return Identity{}, ErrSessionNotFound
	}

	ident, err := e.identities.IdentityByUsername(ctx, foldUsername(username))
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			e.loginFailed(ctx, sess, "", ErrBadCredentials)
			return Identity{}, ErrBadCredentials
		}
		return Identity{}, storeError(err)
	}

	if ident.Locked {
		e.metricInc(MetricLoginLockedRejected)
		e.loginFailed(ctx, sess, ident.ID, ErrAccountLocked)
		return Identity{}, ErrAccountLocked
	}

	if !e.passwordMatches(ctx, ident, plain) {
		locked, err := e.lockout.RecordFailure(ctx, sess, ident)
		if err != nil {
			return Identity{}, err
		}
		if locked {
			e.loginFailed(ctx, sess, ident.ID, ErrAccountLocked)
			return Identity{}, ErrAccountLocked
		}
		e.loginFailed(ctx, sess, ident.ID, ErrBadCredentials)
		return Identity{}, ErrBadCredentials
	}

	e.location.Check(ctx, ident)
	return ident, nil
}

func (e *Engine) passwordMatches(ctx context.Context, ident Identity, plain string) bool {
	ok, err := e.hasher.Verify(plain, ident.PasswordHash)
	if err != nil {
		if !errors.Is(err, password.ErrTooLong) {
			e.logger.ErrorContext(ctx, "verify password hash", "user_id", ident.ID, "error", err)
		}
		return false
	}
	return ok
}

func (e *Engine) loginFailed(ctx context.Context, sess *session.Session, userID string, err error) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, sess.ID, err, nil)
}

// Login authenticates and binds the identity to sess. The session is
// cleared (keeping its return-to path), moved to a fresh id and marked for
// the next funnel stage: email confirmation, the second factor challenge
// with a pinned moving factor, or home when two-factor is disabled.
//
// sess.ID changes on success; the caller must reissue its cookie.
func (e *Engine) Login(ctx context.Context, sess *session.Session, username, plain string) (LoginResult, error) {
	start := time.Now()
	defer func() {
		e.metricObserve(MetricLoginLatency, time.Since(start))
	}()

	ident, err := e.Authenticate(ctx, sess, username, plain)
	if err != nil {
		return LoginResult{}, err
	}

	sess.Clear()
	sess.UserID = ident.ID

	next := RedirectConfirmEmail
	if ident.Verified {
		sess.EmailVerified = true
		if ident.TwoFactorEnabled {
			sess.MovingFactor = e.now().Unix()
			next = RedirectChallenge
		} else {
			sess.SecondFactorPassed = true
			next = RedirectHome
		}
	}

	if err := e.sessions.Rotate(ctx, sess); err != nil {
		return LoginResult{}, sessionError(err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, ident.ID, sess.ID, nil, func() map[string]string {
		return map[string]string{"next": next.String()}
	})

	return LoginResult{Identity: ident, Next: next}, nil
}
