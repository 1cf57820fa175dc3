package goFactor

import (
	"context"
	"fmt"

	"github.com/MrEthical07/goFactor/session"
)

// Method is the channel a one-time code is delivered over.
type Method string

const (
	MethodSMS  Method = "sms"
	MethodMail Method = "mail"
)

func (m Method) check() error {
	switch m {
	case MethodSMS, MethodMail:
		return nil
	default:
		return ErrBadMethod
	}
}

func (m Method) channel() Channel {
	if m == MethodSMS {
		return ChannelSMS
	}
	return ChannelMail
}

// pendingIdentity returns the identity of a session that is waiting for its
// second factor.
func (e *Engine) pendingIdentity(ctx context.Context, sess *session.Session) (Identity, error) {
	if sess == nil {
		return Identity{}, ErrSessionNotFound
	}
	if !sess.HasIdentity() {
		return Identity{}, ErrUserNotInContext
	}
	if !sess.PendingSecondFactor() {
		return Identity{}, ErrSecondFactorNotPending
	}
	return e.sessionIdentity(ctx, sess)
}

// RequestChallenge sends a one-time code derived from the session's pinned
// moving factor and returns the destination wrapped in a signed token, so
// the raw phone number or address never reaches a client-visible URL. An
// empty mail destination means the identity's own address.
//
// Delivery failures are logged and do not change the result.
func (e *Engine) RequestChallenge(ctx context.Context, sess *session.Session, method Method, destination string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if err := method.check(); err != nil {
		return "", err
	}

	ident, err := e.pendingIdentity(ctx, sess)
	if err != nil {
		return "", err
	}

	if destination == "" {
		if method == MethodSMS {
			return "", fmt.Errorf("%w: sms needs a destination", ErrBadMethod)
		}
		destination = ident.Email
	}
	if err := e.throttle(ctx, sendChallenge, ident.ID); err != nil {
		return "", err
	}

	destToken, err := e.destTokens.Issue(destination)
	if err != nil {
		return "", err
	}
	if err := e.sendCode(ctx, sess, ident, method, destination); err != nil {
		return "", err
	}

	e.metricIncMethod(MetricChallengeSent, method)
	e.emitAudit(ctx, auditEventChallengeSent, true, ident.ID, sess.ID, nil, func() map[string]string {
		return map[string]string{"method": string(method)}
	})
	return destToken, nil
}

// Resend redelivers the code for the same login attempt. The moving factor
// is unchanged, so the code is the one already sent.
func (e *Engine) Resend(ctx context.Context, sess *session.Session, method Method, destToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := method.check(); err != nil {
		return err
	}

	ident, err := e.pendingIdentity(ctx, sess)
	if err != nil {
		return err
	}

	destination, err := e.destTokens.Redeem(destToken)
	if err != nil {
		return tokenError(err)
	}
	if err := e.throttle(ctx, sendChallenge, ident.ID); err != nil {
		return err
	}
	if err := e.sendCode(ctx, sess, ident, method, destination); err != nil {
		return err
	}

	e.metricIncMethod(MetricChallengeResent, method)
	e.emitAudit(ctx, auditEventChallengeSent, true, ident.ID, sess.ID, nil, func() map[string]string {
		return map[string]string{"method": string(method), "resend": "true"}
	})
	return nil
}

func (e *Engine) sendCode(ctx context.Context, sess *session.Session, ident Identity, method Method, destination string) error {
	code, err := e.codes.Generate(ident.Email, sess.MovingFactor)
	if err != nil {
		return err
	}
	e.dispatch(ctx, ident.ID, otpMessage(method.channel(), destination, code))
	return nil
}

// VerifyChallenge checks a submitted code. The destination token must still
// redeem; its payload is not otherwise used. A wrong code fails with
// [ErrBadOTP] and leaves the challenge intact. Success marks the session
// fully authenticated and ends the challenge, so a second verify fails with
// [ErrSecondFactorNotPending].
func (e *Engine) VerifyChallenge(ctx context.Context, sess *session.Session, method Method, destToken, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := method.check(); err != nil {
		return err
	}

	ident, err := e.pendingIdentity(ctx, sess)
	if err != nil {
		return err
	}

	if _, err := e.destTokens.Redeem(destToken); err != nil {
		return tokenError(err)
	}

	if !e.codes.Verify(ident.Email, code, sess.MovingFactor) {
		e.metricIncMethod(MetricOTPFailure, method)
		e.emitAudit(ctx, auditEventOTPFailure, false, ident.ID, sess.ID, ErrBadOTP, nil)
		return ErrBadOTP
	}

	pinned := sess.MovingFactor
	sess.SecondFactorPassed = true
	sess.MovingFactor = 0
	if err := e.saveSession(ctx, sess); err != nil {
		sess.SecondFactorPassed = false
		sess.MovingFactor = pinned
		return err
	}

	e.metricIncMethod(MetricOTPSuccess, method)
	e.emitAudit(ctx, auditEventOTPVerified, true, ident.ID, sess.ID, nil, func() map[string]string {
		return map[string]string{"method": string(method)}
	})
	return nil
}
