package llm

import (
	"context"
	"log/slog"
)

// CallEvent records metadata about a single completion call.
type CallEvent struct {
	Purpose   string
	Model     string
	LatencyMs int64
	Success   bool
	ErrorCode string
}

// Observer receives events about completion calls.
type Observer interface {
	OnCallComplete(event CallEvent)
}

// LogObserver writes call events to a structured logger.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) OnCallComplete(event CallEvent) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "llm call",
		"purpose", event.Purpose,
		"model", event.Model,
		"latency_ms", event.LatencyMs,
		"ok", event.Success,
		"error_code", event.ErrorCode,
	)
}

// NoopObserver discards all events.
type NoopObserver struct{}

func (NoopObserver) OnCallComplete(CallEvent) {}
