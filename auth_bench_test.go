package goFactor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goFactor/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newBenchmarkEngine(b *testing.B) (*Engine, *session.Session, string, func()) {
	b.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	cfg.Throttle.Enabled = false
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(newMockIdentityStore()).
		WithNotifier(&recordingNotifier{}).
		WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }).
		Build()
	if err != nil {
		mr.Close()
		b.Fatalf("Build failed: %v", err)
	}

	ctx := context.Background()
	if _, err := engine.Register(ctx, RegisterRequest{
		Username: "alice",
		Email:    "alice@x.com",
		Password: "rightpass",
		Verified: true,
	}); err != nil {
		b.Fatalf("Register failed: %v", err)
	}
	sess, err := engine.NewSession(ctx)
	if err != nil {
		b.Fatalf("NewSession failed: %v", err)
	}
	if _, err := engine.Login(ctx, sess, "alice", "rightpass"); err != nil {
		b.Fatalf("Login failed: %v", err)
	}
	dest, err := engine.RequestChallenge(ctx, sess, MethodMail, "")
	if err != nil {
		b.Fatalf("RequestChallenge failed: %v", err)
	}

	return engine, sess, dest, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

func BenchmarkRequireAuthenticated(b *testing.B) {
	sess := &session.Session{UserID: "u1", EmailVerified: true, SecondFactorPassed: true}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !RequireAuthenticated(MarkersOf(sess)).Proceed() {
			b.Fatal("expected proceed")
		}
	}
}

func BenchmarkVerifyChallengeWrongCode(b *testing.B) {
	engine, sess, dest, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	code, err := engine.codes.Generate("alice@x.com", sess.MovingFactor)
	if err != nil {
		b.Fatalf("Generate failed: %v", err)
	}
	wrong := "000000"
	if wrong == code {
		wrong = "111111"
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := engine.VerifyChallenge(context.Background(), sess, MethodMail, dest, wrong); !errors.Is(err, ErrBadOTP) {
			b.Fatalf("expected ErrBadOTP, got %v", err)
		}
	}
}

func BenchmarkResend(b *testing.B) {
	engine, sess, dest, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := engine.Resend(context.Background(), sess, MethodMail, dest); err != nil {
			b.Fatalf("Resend failed: %v", err)
		}
	}
}

func BenchmarkLoadSession(b *testing.B) {
	engine, sess, _, cleanup := newBenchmarkEngine(b)
	defer cleanup()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.LoadSession(context.Background(), sess.ID); err != nil {
			b.Fatalf("LoadSession failed: %v", err)
		}
	}
}
