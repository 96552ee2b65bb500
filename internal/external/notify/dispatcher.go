// Package notify is the push-notification collaborator boundary. Delivery is
// fire-and-forget: failures are logged and swallowed, never block the caller.
package notify

import (
	"context"
	"log/slog"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
)

type Dispatcher interface {
	Notify(ctx context.Context, userID uint64, message string, level Level)
	NotifyMany(ctx context.Context, userIDs []uint64, message string)
}

// LogDispatcher writes notifications to the structured log. It is the default
// wiring when no real push backend is configured.
type LogDispatcher struct{}

func (LogDispatcher) Notify(_ context.Context, userID uint64, message string, level Level) {
	slog.Info("notify", "user_id", userID, "level", string(level), "message", message)
}

func (LogDispatcher) NotifyMany(_ context.Context, userIDs []uint64, message string) {
	slog.Info("notify_many", "user_count", len(userIDs), "message", message)
}
