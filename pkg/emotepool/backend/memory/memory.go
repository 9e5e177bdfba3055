// Package memory provides an in-memory emote backend for development and
// testing.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
)

type stored struct {
	name  string
	kind  emotepool.Kind
	image []byte
}

// Backend is an in-memory implementation of the emotepool.Backend interface
type Backend struct {
	mu     sync.RWMutex
	slots  map[int64]emotepool.SlotInfo
	images map[int64]map[uuid.UUID]*stored
}

// New creates a new in-memory backend with no slots.
func New() *Backend {
	return &Backend{
		slots:  make(map[int64]emotepool.SlotInfo),
		images: make(map[int64]map[uuid.UUID]*stored),
	}
}

var _ emotepool.Backend = (*Backend)(nil)

// AddSlot registers a container with the backend.
func (b *Backend) AddSlot(info emotepool.SlotInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[info.ID] = info
	if b.images[info.ID] == nil {
		b.images[info.ID] = make(map[uuid.UUID]*stored)
	}
}

func (b *Backend) ListSlots(ctx context.Context) ([]emotepool.SlotInfo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]emotepool.SlotInfo, 0, len(b.slots))
	for _, info := range b.slots {
		out = append(out, info)
	}
	return out, nil
}

func (b *Backend) Create(ctx context.Context, slot int64, name string, kind emotepool.Kind, image []byte) (uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.slots[slot]; !ok {
		return uuid.Nil, emotepool.ErrBackendNotFound
	}

	id := uuid.New()
	data := make([]byte, len(image))
	copy(data, image)
	b.images[slot][id] = &stored{name: name, kind: kind, image: data}
	return id, nil
}

func (b *Backend) Delete(ctx context.Context, slot int64, id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	images, ok := b.images[slot]
	if !ok {
		return emotepool.ErrBackendNotFound
	}
	if _, ok := images[id]; !ok {
		return emotepool.ErrBackendNotFound
	}
	delete(images, id)
	return nil
}

func (b *Backend) Rename(ctx context.Context, slot int64, id uuid.UUID, newName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	images, ok := b.images[slot]
	if !ok {
		return emotepool.ErrBackendNotFound
	}
	img, ok := images[id]
	if !ok {
		return emotepool.ErrBackendNotFound
	}
	img.name = newName
	return nil
}

// Len returns the number of images stored in a slot.
func (b *Backend) Len(slot int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.images[slot])
}
