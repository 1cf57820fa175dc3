package goFactor

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goFactor/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type mockIdentityStore struct {
	mu         sync.Mutex
	users      map[string]Identity
	byUsername map[string]string
	byEmail    map[string]string
	twoFactor  map[string]bool
	locations  map[string]LocationRecord
	nextID     int

	createErr error
	lookupErr error

	createCalls       int
	markVerifiedCalls int
	setLockedCalls    int
	locationCreates   int
}

func newMockIdentityStore() *mockIdentityStore {
	return &mockIdentityStore{
		users:      map[string]Identity{},
		byUsername: map[string]string{},
		byEmail:    map[string]string{},
		twoFactor:  map[string]bool{},
		locations:  map[string]LocationRecord{},
	}
}

func (m *mockIdentityStore) CreateIdentity(_ context.Context, in NewIdentity) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++

	if m.createErr != nil {
		return Identity{}, m.createErr
	}
	if _, ok := m.byUsername[in.Username]; ok {
		return Identity{}, ErrIdentityConflict
	}
	if _, ok := m.byEmail[in.Email]; ok {
		return Identity{}, ErrIdentityConflict
	}

	m.nextID++
	ident := Identity{
		ID:           "user-" + strconv.Itoa(m.nextID),
		Username:     in.Username,
		First:        in.First,
		Last:         in.Last,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Verified:     in.Verified,
		VerifiedAt:   in.VerifiedAt,
	}
	m.users[ident.ID] = ident
	m.byUsername[ident.Username] = ident.ID
	m.byEmail[ident.Email] = ident.ID
	m.twoFactor[ident.ID] = in.TwoFactorEnabled

	ident.TwoFactorEnabled = in.TwoFactorEnabled
	return ident, nil
}

func (m *mockIdentityStore) get(id string) (Identity, error) {
	if m.lookupErr != nil {
		return Identity{}, m.lookupErr
	}
	ident, ok := m.users[id]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	ident.TwoFactorEnabled = m.twoFactor[id]
	return ident, nil
}

func (m *mockIdentityStore) IdentityByID(_ context.Context, id string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

func (m *mockIdentityStore) IdentityByUsername(_ context.Context, username string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return Identity{}, m.lookupErr
	}
	id, ok := m.byUsername[username]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return m.get(id)
}

func (m *mockIdentityStore) IdentityByEmail(_ context.Context, email string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return Identity{}, m.lookupErr
	}
	id, ok := m.byEmail[email]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return m.get(id)
}

func (m *mockIdentityStore) update(id string, fn func(*Identity)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.users[id]
	if !ok {
		return ErrIdentityNotFound
	}
	fn(&ident)
	m.users[id] = ident
	return nil
}

func (m *mockIdentityStore) MarkVerified(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	m.markVerifiedCalls++
	m.mu.Unlock()
	return m.update(id, func(i *Identity) {
		i.Verified = true
		i.VerifiedAt = at
	})
}

func (m *mockIdentityStore) SetLocked(_ context.Context, id string, locked bool) error {
	m.mu.Lock()
	m.setLockedCalls++
	m.mu.Unlock()
	return m.update(id, func(i *Identity) { i.Locked = locked })
}

func (m *mockIdentityStore) ResetPassword(_ context.Context, id, hash string) error {
	return m.update(id, func(i *Identity) {
		i.PasswordHash = hash
		i.Locked = false
	})
}

func (m *mockIdentityStore) UpdateEmail(_ context.Context, id, email string) error {
	m.mu.Lock()
	if _, taken := m.byEmail[email]; taken {
		m.mu.Unlock()
		return ErrIdentityConflict
	}
	old := m.users[id].Email
	delete(m.byEmail, old)
	m.byEmail[email] = id
	m.mu.Unlock()
	return m.update(id, func(i *Identity) { i.Email = email })
}

func (m *mockIdentityStore) SetTwoFactor(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrIdentityNotFound
	}
	m.twoFactor[id] = enabled
	return nil
}

func (m *mockIdentityStore) DeleteIdentity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, ok := m.users[id]
	if !ok {
		return ErrIdentityNotFound
	}
	delete(m.locations, id)
	delete(m.twoFactor, id)
	delete(m.byUsername, ident.Username)
	delete(m.byEmail, ident.Email)
	delete(m.users, id)
	return nil
}

func (m *mockIdentityStore) BaselineLocation(_ context.Context, userID string) (LocationRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.locations[userID]
	return rec, ok, nil
}

func (m *mockIdentityStore) CreateBaselineLocation(_ context.Context, rec LocationRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locations[rec.UserID]; ok {
		return false, nil
	}
	m.locations[rec.UserID] = rec
	m.locationCreates++
	return true, nil
}

func (m *mockIdentityStore) identity(t *testing.T, id string) Identity {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	ident, err := m.get(id)
	if err != nil {
		t.Fatalf("identity %s: %v", id, err)
	}
	return ident
}

func (m *mockIdentityStore) counts() (identities, twoFactor int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), len(m.twoFactor)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []Message
	attempts int
	err      error
}

func (n *recordingNotifier) Send(_ context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) failWith(err error) {
	n.mu.Lock()
	n.err = err
	n.mu.Unlock()
}

func (n *recordingNotifier) sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.messages...)
}

func (n *recordingNotifier) last(t *testing.T) Message {
	t.Helper()
	msgs := n.sent()
	if len(msgs) == 0 {
		t.Fatal("expected a sent message")
	}
	return msgs[len(msgs)-1]
}

func (n *recordingNotifier) withSubject(subject string) []Message {
	var out []Message
	for _, m := range n.sent() {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

type staticGeo struct {
	mu    sync.Mutex
	table map[string]Location
	calls int
}

func (g *staticGeo) Resolve(_ context.Context, addr string) (Location, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	loc, ok := g.table[addr]
	if !ok {
		return Location{}, errors.New("unresolved")
	}
	return loc, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	engine *Engine
	store  *mockIdentityStore
	outbox *recordingNotifier
	geo    *staticGeo
	clock  *fakeClock
	mr     *miniredis.Miniredis
	rdb    *redis.Client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = testSecret
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	mr, rdb := newTestRedis(t)
	h := &harness{
		store:  newMockIdentityStore(),
		outbox: &recordingNotifier{},
		geo: &staticGeo{table: map[string]Location{
			"203.0.113.10": {City: "Springfield", Region: "IL", Country: "US", CoarseKey: "39.80,-89.64"},
			"203.0.113.11": {City: "Springfield", Region: "IL", Country: "US", CoarseKey: "39.80,-89.64"},
			"198.51.100.7": {City: "Lyon", Region: "ARA", Country: "FR", CoarseKey: "45.75,4.85"},
		}},
		clock: &fakeClock{now: time.Unix(1_700_000_000, 0)},
		mr:    mr,
		rdb:   rdb,
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(h.store).
		WithNotifier(h.outbox).
		WithGeoResolver(h.geo).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func (h *harness) register(t *testing.T, username, email, password string, verified bool) Identity {
	t.Helper()
	ident, err := h.engine.Register(context.Background(), RegisterRequest{
		Username: username,
		First:    "Test",
		Last:     "User",
		Email:    email,
		Password: password,
		Verified: verified,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return ident
}

func (h *harness) newSession(t *testing.T) *session.Session {
	t.Helper()
	sess, err := h.engine.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess
}

// loggedIn runs Login and fails the test on error.
func (h *harness) loggedIn(t *testing.T, ctx context.Context, username, password string) (*session.Session, LoginResult) {
	t.Helper()
	sess := h.newSession(t)
	res, err := h.engine.Login(ctx, sess, username, password)
	if err != nil {
		t.Fatalf("Login(%s): %v", username, err)
	}
	return sess, res
}

// tokenFromLink extracts the token query parameter of the first link in body.
func tokenFromLink(t *testing.T, body string) string {
	t.Helper()
	for _, field := range strings.Fields(body) {
		if !strings.HasPrefix(field, "http") {
			continue
		}
		u, err := url.Parse(field)
		if err != nil {
			t.Fatalf("parse link %q: %v", field, err)
		}
		if tok := u.Query().Get("token"); tok != "" {
			return tok
		}
	}
	t.Fatalf("no token link in %q", body)
	return ""
}

// codeFromBody extracts the one-time code from an OTP message.
func codeFromBody(t *testing.T, body string) string {
	t.Helper()
	const marker = "Your one time password is "
	i := strings.Index(body, marker)
	if i < 0 {
		t.Fatalf("no code in %q", body)
	}
	rest := body[i+len(marker):]
	if j := strings.IndexAny(rest, " \n"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
