package goFactor

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRegistered is returned when the username or email is taken.
	ErrAlreadyRegistered = errors.New("identity already registered")
	// ErrBadVerification is returned when a verification link names no identity.
	ErrBadVerification = errors.New("bad email verification")
	// ErrVerificationExpired is a [ErrBadVerification] whose link has aged out.
	ErrVerificationExpired = fmt.Errorf("verification link expired: %w", ErrBadVerification)
	// ErrBadCredentials is returned for an unknown username or a wrong password.
	ErrBadCredentials = errors.New("bad credentials")
	// ErrAccountLocked is returned while the identity is locked.
	ErrAccountLocked = errors.New("account locked")
	// ErrBadMethod is returned for an unsupported second factor channel.
	ErrBadMethod = errors.New("unsupported second factor method")
	// ErrBadOTP is returned when a submitted one-time code does not match.
	ErrBadOTP = errors.New("bad one-time password")
	// ErrInvalidToken is returned for tampered, foreign or malformed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for correctly signed tokens past their age.
	ErrExpiredToken = errors.New("expired token")
	// ErrResetPasswordExpired is a [ErrExpiredToken] raised by the password reset flow.
	ErrResetPasswordExpired = fmt.Errorf("password reset link expired: %w", ErrExpiredToken)
	// ErrReusedEmail is returned when changing the email to its current value.
	ErrReusedEmail = errors.New("email unchanged")
	// ErrEmailExists is returned when changing the email to one already registered.
	ErrEmailExists = errors.New("email already registered")
	// ErrUserNotInContext is returned when an operation needs a session identity
	// and the session carries none.
	ErrUserNotInContext = errors.New("no identity in session")
	// ErrSecondFactorNotPending is returned by challenge operations when the
	// session has no pinned moving factor, including after a successful verify.
	ErrSecondFactorNotPending = errors.New("no second factor pending")
	// ErrPasswordReuse is returned when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrRateLimited is returned when too many mails or texts were requested
	// for one identity within the throttle window.
	ErrRateLimited = errors.New("too many requests")
	// ErrPasswordPolicy is returned when the hasher rejects the plaintext.
	ErrPasswordPolicy = errors.New("password policy violation")

	// ErrIdentityNotFound is returned by IdentityStore lookups that match nothing.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityConflict is returned by IdentityStore writes that violate a
	// uniqueness constraint.
	ErrIdentityConflict = errors.New("identity uniqueness conflict")
	// ErrSessionNotFound is returned when an operation is given no live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable wraps identity store failures.
	ErrStoreUnavailable = errors.New("identity store unavailable")
	// ErrSessionUnavailable wraps session store failures.
	ErrSessionUnavailable = errors.New("session store unavailable")
	// ErrEngineNotReady is returned by methods on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
