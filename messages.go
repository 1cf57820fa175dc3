package goFactor

import "errors"

const msgGenericLogin = "Invalid username or password."

var userMessages = []struct {
	err error
	msg string
}{
	// Expired kinds first: they wrap their generic parents.
	{ErrVerificationExpired, "The verification link has expired. Please log in to verify your account."},
	{ErrResetPasswordExpired, "The password reset link has expired. Please request a new one."},
	{ErrAlreadyRegistered, "User already registered!"},
	{ErrBadVerification, "The verification link is not valid."},
	{ErrBadCredentials, msgGenericLogin},
	{ErrAccountLocked, msgGenericLogin},
	{ErrBadMethod, "Unsupported one time password method."},
	{ErrBadOTP, "Invalid otp."},
	{ErrExpiredToken, "The link has expired. Please request a new one."},
	{ErrInvalidToken, "The link is not valid."},
	{ErrReusedEmail, "Cannot reuse current email!"},
	{ErrEmailExists, "Email already in use!"},
	{ErrPasswordReuse, "Cannot reuse previous password!"},
	{ErrRateLimited, "Too many requests. Please try again later."},
	{ErrPasswordPolicy, "Password not accepted."},
	{ErrUserNotInContext, "Please log in."},
	{ErrSecondFactorNotPending, "Please log in."},
	{ErrSessionNotFound, "Please log in."},
}

// UserMessage maps an engine error to the text shown to the end user.
// Locked accounts and bad credentials share one message so that the
// response does not reveal which usernames exist.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Something went wrong. Please try again."
}
