package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// SessionID is an opaque 128-bit caller session identifier.
type SessionID [16]byte

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID rejects anything that NewSessionID could not have produced.
func ParseSessionID(raw string) (SessionID, error) {
	var sid SessionID

	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return sid, err
	}
	if len(b) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], b)
	return sid, nil
}
