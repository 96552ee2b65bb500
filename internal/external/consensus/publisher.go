// Package consensus is the tamper-evident audit log collaborator boundary.
// Publishing is best-effort: a failed publish is logged, never fatal.
package consensus

import (
	"context"
	"log/slog"
)

type Event struct {
	Action  string         `json:"action"`
	GroupID uint64         `json:"group_id,omitempty"`
	ActorID uint64         `json:"actor_id,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher is the default wiring: events land in the structured log.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev Event) error {
	slog.Info("consensus_publish", "action", ev.Action, "group_id", ev.GroupID, "actor_id", ev.ActorID)
	return nil
}
