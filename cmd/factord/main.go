// Command factord serves the goFactor authentication funnel over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/MrEthical07/goFactor/geo"
	"github.com/MrEthical07/goFactor/metrics/export/prometheus"
	"github.com/MrEthical07/goFactor/notify"
	"github.com/MrEthical07/goFactor/store/sqlstore"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "factord:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	b := goFactor.New().
		WithConfig(cfg.engineConfig()).
		WithRedis(rdb).
		WithIdentityStore(store).
		WithNotifier(notifier).
		WithAuditSink(goFactor.NewSlogSink(logger.With("component", "audit"))).
		WithLogger(logger)

	if cfg.GeoEnabled {
		resolver, err := geo.NewIPInfo(geo.IPInfoConfig{
			Token:             cfg.IPInfoToken,
			RequestsPerSecond: cfg.IPInfoRate,
		})
		if err != nil {
			return err
		}
		b = b.WithGeoResolver(resolver)
	}

	engine, err := b.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	if cfg.OTelStdout {
		reader, err := stdoutReader(cfg)
		if err != nil {
			return err
		}
		stopTelemetry, err := startTelemetry(reader, engine)
		if err != nil {
			return err
		}
		defer func() {
			if err := stopTelemetry(context.Background()); err != nil {
				logger.Warn("otel shutdown", slog.String("error", err.Error()))
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newServer(engine, cfg, logger, prometheus.New(engine)).routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("factord listening", slog.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("factord shutting down")
	return srv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openStore(ctx context.Context, cfg config, logger *slog.Logger) (*sqlstore.Store, error) {
	opts := []sqlstore.Option{sqlstore.WithLogger(logger.With("component", "migrate"))}
	if strings.HasPrefix(cfg.DatabaseURL, "postgres://") || strings.HasPrefix(cfg.DatabaseURL, "postgresql://") {
		return sqlstore.OpenPostgres(ctx, cfg.DatabaseURL, opts...)
	}
	return sqlstore.OpenSQLite(ctx, cfg.SQLitePath, opts...)
}

// newNotifier wires real providers when credentials are present and falls
// back to logging otherwise.
func newNotifier(cfg config, logger *slog.Logger) (*notify.Router, error) {
	router := notify.NewRouter()
	devLog := notify.NewLogSender(logger.With("component", "notify"))

	if cfg.PostmarkServerToken != "" {
		pm, err := notify.NewPostmark(notify.PostmarkConfig{
			ServerToken:  cfg.PostmarkServerToken,
			AccountToken: cfg.PostmarkAccountToken,
			From:         cfg.PostmarkFrom,
			ReplyTo:      cfg.PostmarkReplyTo,
			Tag:          "gofactor",
		})
		if err != nil {
			return nil, err
		}
		router.Handle(goFactor.ChannelMail, pm)
	} else {
		logger.Warn("POSTMARK_SERVER_TOKEN not set, mail is logged instead of sent")
		router.Handle(goFactor.ChannelMail, devLog)
	}

	if cfg.SMSAccountSID != "" {
		tw, err := notify.NewTwilio(notify.TwilioConfig{
			AccountSID: cfg.SMSAccountSID,
			AuthToken:  cfg.SMSAuthToken,
			From:       cfg.SMSFrom,
		})
		if err != nil {
			return nil, err
		}
		router.Handle(goFactor.ChannelSMS, tw)
	} else {
		logger.Warn("SMS_ACCOUNT_SID not set, sms is logged instead of sent")
		router.Handle(goFactor.ChannelSMS, devLog)
	}

	return router, nil
}
