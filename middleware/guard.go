package middleware

import (
	"net/http"

	goFactor "github.com/MrEthical07/goFactor"
)

// Paths maps funnel destinations to routes.
type Paths struct {
	Home         string
	Login        string
	Logout       string
	ConfirmEmail string
	Challenge    string
}

// DefaultPaths returns the routes served by cmd/factord.
func DefaultPaths() Paths {
	return Paths{
		Home:         "/",
		Login:        "/login",
		Logout:       "/logout",
		ConfirmEmail: "/confirm-email",
		Challenge:    "/challenge",
	}
}

// For returns the route of r, or "" for RedirectNone.
func (p Paths) For(r goFactor.Redirect) string {
	switch r {
	case goFactor.RedirectHome:
		return p.Home
	case goFactor.RedirectLogin:
		return p.Login
	case goFactor.RedirectLogout:
		return p.Logout
	case goFactor.RedirectConfirmEmail:
		return p.ConfirmEmail
	case goFactor.RedirectChallenge:
		return p.Challenge
	default:
		return ""
	}
}

// Guard admits a request only when check lets the session proceed.
// Refusals become 303 redirects; a verdict that asks to remember the
// target stores the request URI in the session first. Guard must run
// inside [Sessions].
func Guard(src SessionSource, check goFactor.Guard, paths Paths) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, _ := SessionFromContext(r.Context())
			verdict := check(goFactor.MarkersOf(sess))

			h := goFactor.Run(verdict,
				func() http.Handler { return next },
				func(v goFactor.Verdict) http.Handler {
					return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
						if v.Remember && sess != nil && src != nil {
							sess.ReturnTo = r.URL.RequestURI()
							if err := src.SaveSession(r.Context(), sess); err != nil {
								http.Error(w, "service unavailable", http.StatusServiceUnavailable)
								return
							}
						}
						target := paths.For(v.Redirect)
						if target == "" {
							http.Error(w, "forbidden", http.StatusForbidden)
							return
						}
						http.Redirect(w, r, target, http.StatusSeeOther)
					})
				},
			)
			h.ServeHTTP(w, r)
		})
	}
}
