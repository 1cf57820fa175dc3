// Package goFactor turns a username and password into a trusted,
// two-factor-verified session.
//
// The funnel has four stages: anonymous, awaiting email verification,
// awaiting the second factor, and authenticated. Every stage is derived from
// three markers kept in the caller's [session.Session]; the guards in this
// package map those markers to a [Verdict] the web layer acts on.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. Per-caller state lives in Redis behind the session store;
// identities live behind an [IdentityStore].
//
// # Architecture boundaries
//
// goFactor is the public surface. It exposes [Engine], [Builder], [Config],
// the guard functions and value types. Token signing, one-time codes and
// password hashing live in the token, otp and password packages. Concrete
// stores and senders live in store/sqlstore, notify and geo.
//
// # What this package must NOT do
//
//   - Surface notification or geolocation failures to callers. They are
//     logged and audited.
//   - Log passwords, one-time codes or raw tokens.
//   - Import any sub-package that re-imports goFactor (no import cycles).
package goFactor
