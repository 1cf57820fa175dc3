package goFactor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/goFactor/password"
	"github.com/MrEthical07/goFactor/session"
	"golang.org/x/text/cases"
)

// foldUsername case-folds a username for storage and lookup. Whitespace is
// kept as typed. Emails are never folded.
func foldUsername(username string) string {
	return cases.Fold().String(username)
}

// Register creates an identity and its two-factor configuration. A taken
// username or email fails with [ErrAlreadyRegistered]. Unverified
// registrations receive a verification mail unless suppressed.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (Identity, error) {
	if err := e.ready(); err != nil {
		return Identity{}, err
	}

	username := foldUsername(req.Username)

	if err := e.ensureUnclaimed(ctx, username, req.Email); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventIdentityRegistered, false, "", "", err, nil)
		}
		return Identity{}, err
	}

	hash, err := e.hashPassword(req.Password)
	if err != nil {
		return Identity{}, err
	}

	twoFactor := e.config.Registration.TwoFactorDefault
	if req.TwoFactorEnabled != nil {
		twoFactor = *req.TwoFactorEnabled
	}

	in := NewIdentity{
		Username:         username,
		First:            strings.ToLower(req.First),
		Last:             strings.ToLower(req.Last),
		Email:            req.Email,
		PasswordHash:     hash,
		Verified:         req.Verified,
		TwoFactorEnabled: twoFactor,
	}
	if req.Verified {
		in.VerifiedAt = e.now().UTC()
	}

	ident, err := e.identities.CreateIdentity(ctx, in)
	if err != nil {
		if errors.Is(err, ErrIdentityConflict) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventIdentityRegistered, false, "", "", ErrAlreadyRegistered, nil)
			return Identity{}, ErrAlreadyRegistered
		}
		return Identity{}, storeError(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventIdentityRegistered, true, ident.ID, "", nil, nil)

	if !ident.Verified && !req.SkipVerificationMail {
		e.sendVerification(ctx, ident)
	}

	return ident, nil
}

// ensureUnclaimed checks both uniqueness keys before insert. The store's
// constraints still catch concurrent registrations.
func (e *Engine) ensureUnclaimed(ctx context.Context, username, email string) error {
	if _, err := e.identities.IdentityByUsername(ctx, username); err == nil {
		return ErrAlreadyRegistered
	} else if !errors.Is(err, ErrIdentityNotFound) {
		return storeError(err)
	}

	if _, err := e.identities.IdentityByEmail(ctx, email); err == nil {
		return ErrAlreadyRegistered
	} else if !errors.Is(err, ErrIdentityNotFound) {
		return storeError(err)
	}

	return nil
}

func (e *Engine) hashPassword(plain string) (string, error) {
	hash, err := e.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrEmpty) || errors.Is(err, password.ErrTooLong) {
			return "", fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return "", err
	}
	return hash, nil
}

// RequestVerification resends the verification mail to the session
// identity. It reports false when the identity is already verified.
func (e *Engine) RequestVerification(ctx context.Context, sess *session.Session) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}

	ident, err := e.sessionIdentity(ctx, sess)
	if err != nil {
		return false, err
	}
	if ident.Verified {
		return false, nil
	}
	if err := e.throttle(ctx, sendVerification, ident.ID); err != nil {
		return false, err
	}

	e.sendVerification(ctx, ident)
	return true, nil
}

func (e *Engine) sendVerification(ctx context.Context, ident Identity) {
	tok, err := e.verifyTokens.Issue(ident.Email)
	if err != nil {
		e.logger.ErrorContext(ctx, "issue verification token", "user_id", ident.ID, "error", err)
		return
	}
	if e.dispatch(ctx, ident.ID, e.verifyMail(ident.Email, tok)) {
		e.metricInc(MetricVerificationSent)
		e.emitAudit(ctx, auditEventVerificationSent, true, ident.ID, "", nil, nil)
	}
}

// VerifyEmail redeems a verification link and marks its identity verified.
// Verifying an already verified identity succeeds without a write.
func (e *Engine) VerifyEmail(ctx context.Context, tok string) (Identity, error) {
	if err := e.ready(); err != nil {
		return Identity{}, err
	}

	email, err := e.verifyTokens.Redeem(tok)
	if err != nil {
		verr := ErrVerificationExpired
		if !errors.Is(tokenError(err), ErrExpiredToken) {
			verr = fmt.Errorf("%w: %w", ErrBadVerification, ErrInvalidToken)
		}
		e.metricInc(MetricEmailVerificationFailure)
		e.emitAudit(ctx, auditEventEmailVerified, false, "", "", verr, nil)
		return Identity{}, verr
	}

	ident, err := e.identities.IdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			e.metricInc(MetricEmailVerificationFailure)
			e.emitAudit(ctx, auditEventEmailVerified, false, "", "", ErrBadVerification, nil)
			return Identity{}, ErrBadVerification
		}
		return Identity{}, storeError(err)
	}

	if ident.Verified {
		return ident, nil
	}

	at := e.now().UTC()
	if err := e.identities.MarkVerified(ctx, ident.ID, at); err != nil {
		return Identity{}, storeError(err)
	}
	ident.Verified = true
	ident.VerifiedAt = at

	e.metricInc(MetricEmailVerified)
	e.emitAudit(ctx, auditEventEmailVerified, true, ident.ID, "", nil, nil)
	return ident, nil
}

// Unregister deletes the identity and everything it owns.
func (e *Engine) Unregister(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.identities.DeleteIdentity(ctx, id); err != nil {
		return storeError(err)
	}
	e.metricInc(MetricUnregister)
	e.emitAudit(ctx, auditEventIdentityUnregistered, true, id, "", nil, nil)
	return nil
}

// FindByUsername looks an identity up by username, ignoring case.
func (e *Engine) FindByUsername(ctx context.Context, username string) (Identity, error) {
	if err := e.ready(); err != nil {
		return Identity{}, err
	}
	ident, err := e.identities.IdentityByUsername(ctx, foldUsername(username))
	return ident, storeError(err)
}

// FindByEmail looks an identity up by email. The match is case-sensitive.
func (e *Engine) FindByEmail(ctx context.Context, email string) (Identity, error) {
	if err := e.ready(); err != nil {
		return Identity{}, err
	}
	ident, err := e.identities.IdentityByEmail(ctx, email)
	return ident, storeError(err)
}

// FindByID looks an identity up by id.
func (e *Engine) FindByID(ctx context.Context, id string) (Identity, error) {
	if err := e.ready(); err != nil {
		return Identity{}, err
	}
	ident, err := e.identities.IdentityByID(ctx, id)
	return ident, storeError(err)
}

// sessionIdentity loads the identity the session is bound to.
func (e *Engine) sessionIdentity(ctx context.Context, sess *session.Session) (Identity, error) {
	if sess == nil {
		return Identity{}, ErrSessionNotFound
	}
	if !sess.HasIdentity() {
		return Identity{}, ErrUserNotInContext
	}
	ident, err := e.identities.IdentityByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return Identity{}, ErrUserNotInContext
		}
		return Identity{}, storeError(err)
	}
	return ident, nil
}
