// Package notify delivers goFactor messages.
//
// [Postmark] sends mail, [Twilio] sends SMS and [Router] picks between them
// by channel. [LogSender] writes messages to a slog logger instead of
// delivering them, for local development.
package notify
