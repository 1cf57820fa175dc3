package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/MrEthical07/goFactor/metrics/export/prometheus"
	"github.com/MrEthical07/goFactor/store/sqlstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type outbox struct {
	mu   sync.Mutex
	sent []goFactor.Message
}

func (o *outbox) Send(_ context.Context, msg goFactor.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) last(t *testing.T) goFactor.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent)
	return o.sent[len(o.sent)-1]
}

var linkToken = regexp.MustCompile(`token=([^\s]+)`)

func tokenFrom(t *testing.T, body string) string {
	t.Helper()
	m := linkToken.FindStringSubmatch(body)
	require.Len(t, m, 2, "no token in %q", body)
	tok, err := url.QueryUnescape(m[1])
	require.NoError(t, err)
	return tok
}

type testClient struct {
	t      *testing.T
	base   string
	http   *http.Client
	engine *goFactor.Engine
}

func newTestServer(t *testing.T) (*testClient, *outbox) {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store, err := sqlstore.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	cfg := config{
		SecretKey:   "0123456789abcdef0123456789abcdef",
		TokenAge:    3600,
		BaseURL:     "http://factord.test",
		TwoFactor:   true,
		MaxAttempts: 4,
		SessionTTL:  30 * time.Minute,
		CookieName:  "gf_session",
		Metrics:     true,
	}
	ec := cfg.engineConfig()
	ec.Password.Memory = 8192
	ec.Password.Time = 1
	ec.Password.Parallelism = 1

	box := &outbox{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := goFactor.New().
		WithConfig(ec).
		WithRedis(rdb).
		WithIdentityStore(store).
		WithNotifier(box).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	ts := httptest.NewServer(newServer(engine, cfg, logger, prometheus.New(engine)).routes())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testClient{t: t, base: ts.URL, http: client, engine: engine}, box
}

func (c *testClient) do(method, path string, body any) (*http.Response, map[string]any) {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	require.NoError(c.t, err)
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(c.t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestVerifyEmailRestartsParkedSession(t *testing.T) {
	c, box := newTestServer(t)
	creds := map[string]string{"username": "bob", "password": "correct horse"}

	resp, _ := c.do(http.MethodPost, "/register", map[string]string{
		"username": "bob",
		"first":    "Bob",
		"last":     "Builder",
		"email":    "bob@x.com",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tok := tokenFrom(t, box.last(t).Body)

	resp, body := c.do(http.MethodPost, "/login", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/confirm-email", body["next"])

	resp, _ = c.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/confirm-email", resp.Header.Get("Location"))

	resp, body = c.do(http.MethodGet, "/verify-email?token="+url.QueryEscape(tok), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bob", body["username"])

	// The parked session is gone: the caller is anonymous again.
	resp, _ = c.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, body = c.do(http.MethodPost, "/login", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/challenge", body["next"])
}

func TestVerifyEmailRedirectsAuthenticatedCaller(t *testing.T) {
	c, box := newTestServer(t)

	resp, _ := c.do(http.MethodPost, "/register", map[string]string{
		"username": "carol",
		"email":    "carol@x.com",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tok := tokenFrom(t, box.last(t).Body)

	resp, _ = c.do(http.MethodGet, "/verify-email?token="+url.QueryEscape(tok), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := c.do(http.MethodPost, "/login", map[string]string{"username": "carol", "password": "correct horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "/challenge", body["next"])

	// Verified but awaiting the second factor: the guard restarts the funnel.
	resp, _ = c.do(http.MethodGet, "/verify-email?token="+url.QueryEscape(tok), nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/logout", resp.Header.Get("Location"))
}

func TestVerifyEmailRejectsBadToken(t *testing.T) {
	c, _ := newTestServer(t)

	resp, body := c.do(http.MethodGet, "/verify-email?token=garbage", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestTelemetryPublishesChallengeMethod(t *testing.T) {
	c, box := newTestServer(t)
	ctx := context.Background()

	resp, _ := c.do(http.MethodPost, "/register", map[string]string{
		"username": "dave",
		"email":    "dave@x.com",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = c.do(http.MethodGet, "/verify-email?token="+url.QueryEscape(tokenFrom(t, box.last(t).Body)), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/login", map[string]string{"username": "dave", "password": "correct horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := c.do(http.MethodPost, "/challenge", map[string]string{"method": "sms", "destination": "+15550100"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, body["token"])

	reader := sdkmetric.NewManualReader()
	stop, err := startTelemetry(reader, c.engine)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sent := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "gofactor_challenge_sent_total" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key("method"))
				sent[v.AsString()] = dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"sms": 1, "mail": 0}, sent)

	require.NoError(t, stop(ctx))
}
