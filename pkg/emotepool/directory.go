package emotepool

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// DefaultSlotPrefixes returns the container naming prefixes recognized as
// backend slots.
func DefaultSlotPrefixes() []string {
	return []string{"EmojiBackend", "EmoteBackend"}
}

// Directory enumerates and caches the eligible backend slots. A container
// is eligible when its name carries a recognized prefix and its owner is a
// designated administrator.
//
// The set is published once per process lifetime; later Refresh calls are
// no-ops unless forced. First publication closes the Ready channel so
// dependents (the decay engine, capacity reporting) can wait for it.
type Directory struct {
	backend  Backend
	repo     Repository
	guard    *Guard
	prefixes []string
	logger   *slog.Logger

	mu        sync.RWMutex
	slots     []int64
	populated bool

	ready     chan struct{}
	readyOnce sync.Once
}

// NewDirectory creates a slot directory.
func NewDirectory(backend Backend, repo Repository, guard *Guard, prefixes []string, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		backend:  backend,
		repo:     repo,
		guard:    guard,
		prefixes: prefixes,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Refresh enumerates eligible slots unless the directory is already
// populated.
func (d *Directory) Refresh(ctx context.Context) error {
	d.mu.RLock()
	populated := d.populated
	d.mu.RUnlock()
	if populated {
		return nil
	}
	return d.refresh(ctx)
}

// ForceRefresh re-enumerates eligible slots even when already populated.
func (d *Directory) ForceRefresh(ctx context.Context) error {
	return d.refresh(ctx)
}

func (d *Directory) refresh(ctx context.Context) error {
	infos, err := d.backend.ListSlots(ctx)
	if err != nil {
		return err
	}

	var slots []int64
	for _, info := range infos {
		if d.eligible(info) {
			slots = append(slots, info.ID)
		}
	}

	if err := d.repo.RegisterSlots(ctx, slots); err != nil {
		return err
	}

	d.mu.Lock()
	d.slots = slots
	d.populated = true
	d.mu.Unlock()

	d.logger.Info("enumerated backend slots", "eligible", len(slots), "total", len(infos))
	d.readyOnce.Do(func() { close(d.ready) })
	return nil
}

func (d *Directory) eligible(info SlotInfo) bool {
	if !d.guard.IsAdmin(info.Owner) {
		return false
	}
	for _, prefix := range d.prefixes {
		if strings.HasPrefix(info.Name, prefix) {
			return true
		}
	}
	return false
}

// Slots returns the cached eligible slot ids.
func (d *Directory) Slots() []int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]int64, len(d.slots))
	copy(out, d.slots)
	return out
}

// Len returns the number of eligible slots.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.slots)
}

// Ready returns a channel closed after the first successful refresh.
func (d *Directory) Ready() <-chan struct{} { return d.ready }
