// Package middleware adapts a goFactor engine to net/http.
//
// # Pieces
//
//   - [Sessions] loads or starts the caller session and keeps its cookie current.
//   - [ClientIP] records the caller address for the location guard.
//   - [Guard] runs one of the goFactor stage guards and redirects on refusal.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Stage decisions
// belong to the goFactor guards; this package only maps their verdicts to
// redirects.
//
// # What this package must NOT do
//
//   - Talk to Redis directly.
//   - Decide whether a session may proceed.
package middleware
