// Package internal contains helpers that are private to goFactor, currently
// opaque session identifier generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//
// # What this package must NOT do
//
//   - Export types that appear in the public goFactor API.
package internal
