package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goFactor "github.com/MrEthical07/goFactor"
)

var (
	// ErrInvalidConfig is returned by constructors given incomplete settings.
	ErrInvalidConfig = errors.New("notify: invalid config")
	// ErrNoRoute is returned when no sender is registered for a channel.
	ErrNoRoute = errors.New("notify: no sender for channel")
	// ErrDelivery wraps provider rejections and transport failures.
	ErrDelivery = errors.New("notify: delivery failed")
	// ErrEmptyRecipient is returned for a message without a destination.
	ErrEmptyRecipient = errors.New("notify: empty recipient")
)

// Router dispatches each message to the sender registered for its channel.
type Router struct {
	routes map[goFactor.Channel]goFactor.NotificationSender
}

var _ goFactor.NotificationSender = (*Router)(nil)

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{routes: map[goFactor.Channel]goFactor.NotificationSender{}}
}

// Handle registers s for ch, replacing any earlier sender.
func (r *Router) Handle(ch goFactor.Channel, s goFactor.NotificationSender) *Router {
	if s != nil {
		r.routes[ch] = s
	}
	return r
}

func (r *Router) Send(ctx context.Context, msg goFactor.Message) error {
	s, ok := r.routes[msg.Channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoRoute, msg.Channel)
	}
	return s.Send(ctx, msg)
}

// LogSender records messages at Info instead of sending them. Bodies carry
// codes and links, so it must never run in production.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a LogSender writing to logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(ctx context.Context, msg goFactor.Message) error {
	if msg.To == "" {
		return ErrEmptyRecipient
	}
	l.logger.InfoContext(ctx, "notification",
		slog.String("channel", string(msg.Channel)),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
