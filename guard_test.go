package goFactor

import (
	"testing"

	"github.com/MrEthical07/goFactor/session"
)

var (
	anonymous     = Markers{}
	unverified    = Markers{HasIdentity: true}
	pendingFactor = Markers{HasIdentity: true, EmailVerified: true}
	authenticated = Markers{HasIdentity: true, EmailVerified: true, SecondFactorPassed: true}
)

func TestGuards(t *testing.T) {
	home := RedirectTo(RedirectHome)
	login := Verdict{Redirect: RedirectLogin, Remember: true}

	tests := []struct {
		name    string
		guard   Guard
		markers Markers
		want    Verdict
	}{
		{"anonymous/anonymous", RequireAnonymous, anonymous, Verdict{}},
		{"anonymous/unverified", RequireAnonymous, unverified, home},
		{"anonymous/pending", RequireAnonymous, pendingFactor, home},
		{"anonymous/authenticated", RequireAnonymous, authenticated, home},

		{"unverified/anonymous", RequireUnverifiedEmail, anonymous, Verdict{}},
		{"unverified/unverified", RequireUnverifiedEmail, unverified, Verdict{}},
		{"unverified/pending", RequireUnverifiedEmail, pendingFactor, RedirectTo(RedirectLogout)},
		{"unverified/authenticated", RequireUnverifiedEmail, authenticated, home},

		{"pending/anonymous", RequirePendingSecondFactor, anonymous, login},
		{"pending/unverified", RequirePendingSecondFactor, unverified, Verdict{}},
		{"pending/pending", RequirePendingSecondFactor, pendingFactor, Verdict{}},
		{"pending/authenticated", RequirePendingSecondFactor, authenticated, home},

		{"authenticated/anonymous", RequireAuthenticated, anonymous, login},
		{"authenticated/unverified", RequireAuthenticated, unverified, RedirectTo(RedirectConfirmEmail)},
		{"authenticated/pending", RequireAuthenticated, pendingFactor, RedirectTo(RedirectChallenge)},
		{"authenticated/authenticated", RequireAuthenticated, authenticated, Verdict{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.guard(tc.markers); got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestAuthenticatedRequiresAllMarkers(t *testing.T) {
	for bits := 0; bits < 8; bits++ {
		m := Markers{
			HasIdentity:        bits&1 != 0,
			EmailVerified:      bits&2 != 0,
			SecondFactorPassed: bits&4 != 0,
		}
		want := bits == 7
		if got := RequireAuthenticated(m).Proceed(); got != want {
			t.Fatalf("markers %+v: proceed=%v, want %v", m, got, want)
		}
		if got := m.Stage() == StageAuthenticated; got != want {
			t.Fatalf("markers %+v: authenticated stage=%v, want %v", m, got, want)
		}
	}
}

func TestStage(t *testing.T) {
	tests := []struct {
		markers Markers
		want    Stage
	}{
		{anonymous, StageAnonymous},
		{unverified, StageAwaitingEmailVerification},
		{pendingFactor, StageAwaitingSecondFactor},
		{authenticated, StageAuthenticated},
		{Markers{EmailVerified: true, SecondFactorPassed: true}, StageAnonymous},
	}
	for _, tc := range tests {
		if got := tc.markers.Stage(); got != tc.want {
			t.Fatalf("%+v: got %v, want %v", tc.markers, got, tc.want)
		}
	}
}

func TestMarkersOf(t *testing.T) {
	if MarkersOf(nil) != anonymous {
		t.Fatal("nil session must be anonymous")
	}
	stale := &session.Session{EmailVerified: true, SecondFactorPassed: true}
	if MarkersOf(stale) != anonymous {
		t.Fatal("markers without an identity must not count")
	}
	sess := &session.Session{UserID: "u1", EmailVerified: true}
	if MarkersOf(sess) != pendingFactor {
		t.Fatalf("unexpected markers %+v", MarkersOf(sess))
	}
}

func TestRun(t *testing.T) {
	ran := Run(Verdict{}, func() string { return "action" }, func(v Verdict) string { return v.Redirect.String() })
	if ran != "action" {
		t.Fatalf("proceed ran %q", ran)
	}

	redirected := Run(RedirectTo(RedirectChallenge), func() string { return "action" }, func(v Verdict) string { return v.Redirect.String() })
	if redirected != "challenge" {
		t.Fatalf("redirect ran %q", redirected)
	}

	called := false
	zero := Run(RedirectTo(RedirectLogin), func() int { called = true; return 1 }, nil)
	if zero != 0 || called {
		t.Fatal("nil fallback must yield the zero value without running the action")
	}
}
