package goFactor

import (
	"context"
	"errors"
	"testing"
)

func TestLocationFirstLoginCreatesBaselineSilently(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, "alice", "alice@x.com", "rightpass", true)
	ctx := WithClientIP(context.Background(), "203.0.113.10")

	h.loggedIn(t, ctx, "alice", "rightpass")

	rec, ok, _ := h.store.BaselineLocation(ctx, alice.ID)
	if !ok {
		t.Fatal("expected a baseline location")
	}
	if rec.CoarseKey != "39.80,-89.64" || rec.City != "Springfield" {
		t.Fatalf("unexpected baseline %+v", rec)
	}
	if h.store.locationCreates != 1 {
		t.Fatalf("expected one baseline insert, got %d", h.store.locationCreates)
	}
	if n := len(h.outbox.withSubject(subjectUnrecognizedLogin)); n != 0 {
		t.Fatalf("first login must not alert, sent %d", n)
	}
}

func TestLocationAnomalyAlertsWithoutMovingBaseline(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, "alice", "alice@x.com", "rightpass", true)
	home := WithClientIP(context.Background(), "203.0.113.10")
	abroad := WithClientIP(context.Background(), "198.51.100.7")

	h.loggedIn(t, home, "alice", "rightpass")
	_, res := h.loggedIn(t, abroad, "alice", "rightpass")
	if res.Next != RedirectChallenge {
		t.Fatalf("anomaly must not block login, next=%v", res.Next)
	}

	alerts := h.outbox.withSubject(subjectUnrecognizedLogin)
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	if alerts[0].To != "alice@x.com" {
		t.Fatalf("alert sent to %q", alerts[0].To)
	}

	rec, _, _ := h.store.BaselineLocation(home, alice.ID)
	if rec.CoarseKey != "39.80,-89.64" {
		t.Fatalf("baseline moved to %q", rec.CoarseKey)
	}
	if h.store.locationCreates != 1 {
		t.Fatalf("expected one baseline insert, got %d", h.store.locationCreates)
	}

	// The alert carries a working password reset link.
	tok := tokenFromLink(t, alerts[0].Body)
	if err := h.engine.ChangePassword(home, h.newSession(t), "newpass", tok); err != nil {
		t.Fatalf("ChangePassword via alert link: %v", err)
	}
}

func TestLocationSameCoarseKeyIsRecognized(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, "alice", "alice@x.com", "rightpass", true)

	first := h.engine.Location().Check(WithClientIP(context.Background(), "203.0.113.10"), alice)
	second := h.engine.Location().Check(WithClientIP(context.Background(), "203.0.113.11"), alice)
	if first != LocationBaselineCreated || second != LocationRecognized {
		t.Fatalf("got %v then %v", first, second)
	}
	if n := len(h.outbox.sent()); n != 0 {
		t.Fatalf("expected no mail, sent %d", n)
	}
}

func TestLocationUnresolvableNeverRecordsOrAlerts(t *testing.T) {
	h := newHarness(t)
	alice := h.register(t, "alice", "alice@x.com", "rightpass", true)

	for _, ctx := range []context.Context{
		context.Background(),
		WithClientIP(context.Background(), "10.0.0.1"),
	} {
		if got := h.engine.Location().Check(ctx, alice); got != LocationUnresolved {
			t.Fatalf("expected unresolved, got %v", got)
		}
	}
	h.loggedIn(t, WithClientIP(context.Background(), "10.0.0.1"), "alice", "rightpass")

	if _, ok, _ := h.store.BaselineLocation(context.Background(), alice.ID); ok {
		t.Fatal("unresolvable address created a baseline")
	}
	if n := len(h.outbox.sent()); n != 0 {
		t.Fatalf("expected no mail, sent %d", n)
	}
}

func TestLocationDisabledSkipsResolver(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Location.Enabled = false
	})
	h.register(t, "alice", "alice@x.com", "rightpass", true)

	h.loggedIn(t, WithClientIP(context.Background(), "203.0.113.10"), "alice", "rightpass")
	if h.geo.calls != 0 {
		t.Fatalf("resolver called %d times", h.geo.calls)
	}
}

func TestLocationAlertDeliveryFailureDoesNotBlockLogin(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Metrics.Enabled = true
	})
	h.register(t, "alice", "alice@x.com", "rightpass", true)
	h.loggedIn(t, WithClientIP(context.Background(), "203.0.113.10"), "alice", "rightpass")

	h.outbox.failWith(errors.New("smtp down"))
	h.loggedIn(t, WithClientIP(context.Background(), "198.51.100.7"), "alice", "rightpass")

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricLocationAnomaly] != 1 {
		t.Fatalf("expected one anomaly, got %d", snap.Counters[MetricLocationAnomaly])
	}
	if snap.Counters[MetricNotificationFailure] != 1 {
		t.Fatalf("expected one delivery failure, got %d", snap.Counters[MetricNotificationFailure])
	}
}
