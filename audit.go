package goFactor

import (
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/goFactor/internal/audit"
)

// AuditEvent is one security-relevant occurrence in the authentication
// funnel. It never carries passwords, codes or raw tokens.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the Engine's async dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink drops every event.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers events in a channel, mainly for tests.
type ChannelSink = internalaudit.ChannelSink

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per event to w.
func NewJSONWriterSink(w io.Writer) AuditSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink logs events through logger.
func NewSlogSink(logger *slog.Logger) AuditSink {
	return internalaudit.NewSlogSink(logger)
}
