package session

// Session is the transient state of one caller. The Engine mutates it in
// place and persists it through [Store.Save] or [Store.Rotate].
type Session struct {
	ID string

	// UserID is empty until credentials have been accepted.
	UserID             string
	EmailVerified      bool
	SecondFactorPassed bool

	// MovingFactor is the Unix time captured when credentials were accepted.
	// Zero means no second factor is pending.
	MovingFactor int64

	// LoginAttempts counts consecutive failed password checks made from this
	// session since it was last cleared.
	LoginAttempts int64

	// ReturnTo is the path a caller asked for before being sent to login.
	// It survives Clear.
	ReturnTo string

	CreatedAt int64
}

// HasIdentity reports whether an identity is bound to the session.
func (s *Session) HasIdentity() bool {
	return s != nil && s.UserID != ""
}

// PendingSecondFactor reports whether a second factor challenge may be
// issued or verified for this session.
func (s *Session) PendingSecondFactor() bool {
	return s.HasIdentity() && s.MovingFactor > 0 && !s.SecondFactorPassed
}

// Clear drops every authentication marker and the attempt counter while
// keeping ReturnTo.
func (s *Session) Clear() {
	s.UserID = ""
	s.EmailVerified = false
	s.SecondFactorPassed = false
	s.MovingFactor = 0
	s.LoginAttempts = 0
}

// PopReturnTo returns and forgets the remembered path.
func (s *Session) PopReturnTo() string {
	p := s.ReturnTo
	s.ReturnTo = ""
	return p
}
