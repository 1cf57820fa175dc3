// Package geo resolves network addresses to goFactor locations.
//
// [IPInfo] queries ipinfo.io under a client-side rate limit. [Static] is a
// fixed table for tests and local runs. Private, loopback and otherwise
// non-routable addresses are never sent upstream; they resolve to
// [ErrUnresolvable], which the location guard treats as "skip the check".
package geo
