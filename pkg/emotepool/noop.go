package emotepool

import (
	"context"
	"log/slog"
)

// NoopNotifier is a no-operation implementation of Notifier
// Useful when eviction transparency is not wired up or for testing
type NoopNotifier struct{}

// NewNoopNotifier creates a new no-operation notifier
func NewNoopNotifier() Notifier {
	return &NoopNotifier{}
}

// OnDecay does nothing and returns a handle whose Retract is a no-op
func (n *NoopNotifier) OnDecay(ctx context.Context, emote *Emote) (NotificationHandle, error) {
	return noopHandle{}, nil
}

type noopHandle struct{}

func (noopHandle) Retract(ctx context.Context) error { return nil }

// LogNotifier reports decay evictions through a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs evictions.
func NewLogNotifier(logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OnDecay(ctx context.Context, emote *Emote) (NotificationHandle, error) {
	n.logger.Info("emote decayed due to inactivity",
		"name", emote.Name, "author", emote.Author, "created", emote.Created)
	return noopHandle{}, nil
}
