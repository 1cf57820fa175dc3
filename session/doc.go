// Package session provides Redis-backed, per-caller session state for the
// authentication funnel.
//
// # Data layout
//
// Each session is one Redis hash under "<prefix>:<id>" with the fields
// user_id, email_verified, second_factor, moving_factor, login_attempts,
// return_to and created_at. The key carries an idle TTL that is refreshed on
// every read, so a pending second factor lives exactly as long as the
// session that holds it.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It
// does NOT decide which stage a caller may enter or verify credentials; those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import goFactor (no upward imports).
//   - Store passwords, OTP codes or raw tokens in [Session] fields.
//   - Share state between callers: every operation is keyed by session id.
package session
