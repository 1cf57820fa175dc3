package goFactor

import "github.com/MrEthical07/goFactor/session"

// Redirect names a funnel destination the web layer maps to a route.
type Redirect uint8

const (
	RedirectNone Redirect = iota
	RedirectHome
	RedirectLogin
	RedirectLogout
	RedirectConfirmEmail
	RedirectChallenge
)

func (r Redirect) String() string {
	switch r {
	case RedirectNone:
		return "none"
	case RedirectHome:
		return "home"
	case RedirectLogin:
		return "login"
	case RedirectLogout:
		return "logout"
	case RedirectConfirmEmail:
		return "confirm-email"
	case RedirectChallenge:
		return "challenge"
	default:
		return "unknown"
	}
}

// Markers are the three session facts every stage decision is derived from.
type Markers struct {
	HasIdentity        bool
	EmailVerified      bool
	SecondFactorPassed bool
}

// MarkersOf reads the markers of sess. A nil session is anonymous.
func MarkersOf(sess *session.Session) Markers {
	if !sess.HasIdentity() {
		return Markers{}
	}
	return Markers{
		HasIdentity:        true,
		EmailVerified:      sess.EmailVerified,
		SecondFactorPassed: sess.SecondFactorPassed,
	}
}

// Stage is a position in the authentication funnel.
type Stage uint8

const (
	StageAnonymous Stage = iota
	StageAwaitingEmailVerification
	StageAwaitingSecondFactor
	StageAuthenticated
)

func (s Stage) String() string {
	switch s {
	case StageAnonymous:
		return "anonymous"
	case StageAwaitingEmailVerification:
		return "awaiting-email-verification"
	case StageAwaitingSecondFactor:
		return "awaiting-second-factor"
	case StageAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Stage derives the funnel position. Authenticated requires all three markers.
func (m Markers) Stage() Stage {
	switch {
	case !m.HasIdentity:
		return StageAnonymous
	case !m.EmailVerified:
		return StageAwaitingEmailVerification
	case !m.SecondFactorPassed:
		return StageAwaitingSecondFactor
	default:
		return StageAuthenticated
	}
}

// Verdict is the outcome of a guard: proceed, or go somewhere else.
type Verdict struct {
	Redirect Redirect
	// Remember asks the web layer to store the requested path so that Home
	// can return the caller there after login.
	Remember bool
}

// Proceed reports whether the guarded action may run.
func (v Verdict) Proceed() bool {
	return v.Redirect == RedirectNone
}

// RedirectTo returns a verdict that short-circuits to r.
func RedirectTo(r Redirect) Verdict {
	return Verdict{Redirect: r}
}

// Guard decides whether an action at one funnel position may run. Every
// protected action is wrapped by exactly one guard.
type Guard func(Markers) Verdict

// RequireAnonymous admits callers without an identity: registration, login
// and the forgot-credentials pages.
func RequireAnonymous(m Markers) Verdict {
	if m.HasIdentity {
		return RedirectTo(RedirectHome)
	}
	return Verdict{}
}

// RequireUnverifiedEmail guards the email confirmation pages. A fully
// authenticated caller goes home; a caller with a verified email but no
// second factor is logged out so the funnel restarts cleanly.
func RequireUnverifiedEmail(m Markers) Verdict {
	if !m.HasIdentity {
		return Verdict{}
	}
	if m.SecondFactorPassed {
		return RedirectTo(RedirectHome)
	}
	if m.EmailVerified {
		return RedirectTo(RedirectLogout)
	}
	return Verdict{}
}

// RequirePendingSecondFactor guards the challenge pages.
func RequirePendingSecondFactor(m Markers) Verdict {
	if !m.HasIdentity {
		return Verdict{Redirect: RedirectLogin, Remember: true}
	}
	if m.SecondFactorPassed {
		return RedirectTo(RedirectHome)
	}
	return Verdict{}
}

// RequireAuthenticated guards everything behind the funnel.
func RequireAuthenticated(m Markers) Verdict {
	switch {
	case !m.HasIdentity:
		return Verdict{Redirect: RedirectLogin, Remember: true}
	case !m.EmailVerified:
		return RedirectTo(RedirectConfirmEmail)
	case !m.SecondFactorPassed:
		return RedirectTo(RedirectChallenge)
	}
	return Verdict{}
}

// Run runs action when v proceeds and hands v to redirect otherwise. A nil
// redirect yields the zero T.
func Run[T any](v Verdict, action func() T, redirect func(Verdict) T) T {
	if v.Proceed() {
		return action()
	}
	if redirect == nil {
		var zero T
		return zero
	}
	return redirect(v)
}
