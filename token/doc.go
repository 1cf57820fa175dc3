// Package token issues and redeems signed, time-bound tokens that carry an
// opaque string payload.
//
// Tokens are stateless: there is no server-side registry or revocation list.
// A token is valid iff its HS256 signature verifies under the service secret,
// its purpose matches the service purpose, and no more than MaxAge has passed
// since it was issued.
package token
