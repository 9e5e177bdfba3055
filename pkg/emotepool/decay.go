package emotepool

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// DecaySettings configures the decay engine. Zero values are replaced with
// the defaults below.
type DecaySettings struct {
	Enabled        bool
	Window         time.Duration
	UsageThreshold int
	PollInterval   time.Duration
}

func (s *DecaySettings) withDefaults() {
	if s.Window <= 0 {
		s.Window = DefaultUsageWindow
	}
	if s.UsageThreshold <= 0 {
		s.UsageThreshold = 2
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 10 * time.Minute
	}
}

// DecayOption configures a DecayEngine.
type DecayOption func(*DecayEngine)

// WithDecayNotifier sets the eviction notification collaborator.
func WithDecayNotifier(n Notifier) DecayOption {
	return func(e *DecayEngine) { e.notifier = n }
}

// WithDecayLogger sets the structured logger.
func WithDecayLogger(logger *slog.Logger) DecayOption {
	return func(e *DecayEngine) { e.logger = logger }
}

// DecayEngine periodically evicts emotes that are old, unused and not
// preserved. It alternates between idle (waiting out the poll interval)
// and scanning (one pass over the candidates); a new scan never starts
// while a previous one is still running.
type DecayEngine struct {
	svc      Service
	repo     Repository
	notifier Notifier
	settings DecaySettings
	logger   *slog.Logger
	scanning atomic.Bool
}

// NewDecayEngine creates a decay engine driving system-initiated removals
// through the service.
func NewDecayEngine(svc Service, repo Repository, settings DecaySettings, opts ...DecayOption) *DecayEngine {
	settings.withDefaults()
	e := &DecayEngine{
		svc:      svc,
		repo:     repo,
		notifier: NewNoopNotifier(),
		settings: settings,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Run polls until the context is cancelled. Scans wait for the slot
// directory to become ready first.
func (e *DecayEngine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.settings.PollInterval)
	defer ticker.Stop()

	for {
		if e.settings.Enabled {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.svc.Directory().Ready():
			}

			if err := e.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("decay scan failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Scan performs one pass over the decay candidates. If a scan is already
// in progress the call returns immediately. One candidate's failure never
// aborts the pass.
func (e *DecayEngine) Scan(ctx context.Context) error {
	if !e.scanning.CompareAndSwap(false, true) {
		e.logger.Debug("decay scan already in progress, skipping")
		return nil
	}
	defer e.scanning.Store(false)

	cutoff := time.Now().UTC().Add(-e.settings.Window)
	for emote, err := range e.repo.DecayCandidates(ctx, cutoff, e.settings.UsageThreshold) {
		if err != nil {
			return err
		}
		e.evict(ctx, emote)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// evict notifies first, then removes. When the removal fails the metadata
// record stays in place and the notification is retracted if possible.
func (e *DecayEngine) evict(ctx context.Context, emote *Emote) {
	e.logger.Debug("decaying", "name", emote.Name)

	handle, err := e.notifier.OnDecay(ctx, emote)
	if err != nil {
		e.logger.Warn("failed to send decay notification", "name", emote.Name, "error", err)
		handle = nil
	}

	if _, err := e.svc.RemoveEmote(ctx, emote.Name, SystemActor); err != nil {
		e.logger.Error("decaying failed", "name", emote.Name, "error", err)
		if handle != nil {
			if rerr := handle.Retract(ctx); rerr != nil {
				e.logger.Warn("failed to retract decay notification", "name", emote.Name, "error", rerr)
			}
		}
	}
}
