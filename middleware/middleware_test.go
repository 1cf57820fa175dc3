package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/MrEthical07/goFactor/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySessions struct {
	mu      sync.Mutex
	next    int
	byID    map[string]session.Session
	saves   int
	loadErr error
}

func newMemorySessions() *memorySessions {
	return &memorySessions{byID: map[string]session.Session{}}
}

func (m *memorySessions) NewSession(context.Context) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	sess := session.Session{ID: "s" + strconv.Itoa(m.next)}
	m.byID[sess.ID] = sess
	return &sess, nil
}

func (m *memorySessions) LoadSession(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	sess, ok := m.byID[id]
	if !ok {
		return nil, goFactor.ErrSessionNotFound
	}
	return &sess, nil
}

func (m *memorySessions) SaveSession(_ context.Context, sess *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.byID[sess.ID] = *sess
	return nil
}

func (m *memorySessions) put(sess session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[sess.ID] = sess
}

func (m *memorySessions) get(id string) session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "gf_session" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestSessionsStartsSessionWithoutCookie(t *testing.T) {
	src := newMemorySessions()
	var seen *session.Session
	h := Sessions(src, DefaultCookieConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, seen)
	c := sessionCookie(t, rec)
	assert.Equal(t, seen.ID, c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
}

func TestSessionsLoadsExistingSession(t *testing.T) {
	src := newMemorySessions()
	src.put(session.Session{ID: "known", UserID: "u1"})

	var seen *session.Session
	h := Sessions(src, DefaultCookieConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = SessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "gf_session", Value: "known"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UserID)
}

func TestSessionsReplacesStaleCookie(t *testing.T) {
	src := newMemorySessions()
	h := Sessions(src, DefaultCookieConfig())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "gf_session", Value: "gone"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "s1", sessionCookie(t, rec).Value)
}

func TestSessionsStoreOutageIsUnavailable(t *testing.T) {
	src := newMemorySessions()
	src.loadErr = errors.New("redis down")
	h := Sessions(src, DefaultCookieConfig())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "gf_session", Value: "any"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionsCookieFollowsRotation(t *testing.T) {
	src := newMemorySessions()
	h := Sessions(src, DefaultCookieConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := SessionFromContext(r.Context())
		sess.ID = "rotated"
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "rotated", sessionCookie(t, rec).Value)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		headers    map[string]string
		remote     string
		want       string
	}{
		{name: "remote addr", remote: "198.51.100.7:5123", want: "198.51.100.7"},
		{name: "headers ignored without trust", headers: map[string]string{"X-Real-IP": "203.0.113.10"}, remote: "10.0.0.1:80", want: "10.0.0.1"},
		{name: "real ip", trustProxy: true, headers: map[string]string{"X-Real-IP": "203.0.113.10"}, remote: "10.0.0.1:80", want: "203.0.113.10"},
		{name: "first forwarded", trustProxy: true, headers: map[string]string{"X-Forwarded-For": "203.0.113.11, 10.0.0.2"}, remote: "10.0.0.1:80", want: "203.0.113.11"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := ClientIP(tt.trustProxy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = clientAddr(r, tt.trustProxy)
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func serveGuarded(src *memorySessions, sess *session.Session, check goFactor.Guard, target string) (*httptest.ResponseRecorder, bool) {
	ran := false
	h := Guard(src, check, DefaultPaths())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		ran = true
	}))
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if sess != nil {
		req = req.WithContext(WithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, ran
}

func TestGuardProceeds(t *testing.T) {
	src := newMemorySessions()
	sess := &session.Session{ID: "a", UserID: "u1", EmailVerified: true, SecondFactorPassed: true}

	rec, ran := serveGuarded(src, sess, goFactor.RequireAuthenticated, "/account")

	assert.True(t, ran)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuardRemembersTargetOnLoginRedirect(t *testing.T) {
	src := newMemorySessions()
	sess := &session.Session{ID: "anon"}
	src.put(*sess)

	rec, ran := serveGuarded(src, sess, goFactor.RequireAuthenticated, "/account?tab=security")

	assert.False(t, ran)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, "/account?tab=security", src.get("anon").ReturnTo)
}

func TestGuardRedirectsWithoutRemembering(t *testing.T) {
	src := newMemorySessions()
	sess := &session.Session{ID: "b", UserID: "u1", EmailVerified: true}

	rec, ran := serveGuarded(src, sess, goFactor.RequireAuthenticated, "/account")

	assert.False(t, ran)
	assert.Equal(t, "/challenge", rec.Header().Get("Location"))
	assert.Zero(t, src.saves)
}

func TestGuardAnonymousOnlyPage(t *testing.T) {
	src := newMemorySessions()
	sess := &session.Session{ID: "c", UserID: "u1", EmailVerified: true, SecondFactorPassed: true}

	rec, ran := serveGuarded(src, sess, goFactor.RequireAnonymous, "/login")

	assert.False(t, ran)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestPathsForNone(t *testing.T) {
	assert.Empty(t, DefaultPaths().For(goFactor.RedirectNone))
	assert.Equal(t, "/confirm-email", DefaultPaths().For(goFactor.RedirectConfirmEmail))
}
