// Package otp derives counter-based one-time codes (RFC 4226 HOTP) from a
// per-user secret and a caller-supplied moving factor.
//
// The secret is a deterministic function of the user's email address, so no
// secret storage is needed; changing the email changes the secret and
// invalidates every outstanding code. The moving factor is whatever integer
// the caller pins for an authentication attempt (the engine uses the Unix
// time at which credentials were accepted), so regenerating with the same
// factor yields the same code.
package otp
