package emotepool

import (
	"context"
	"math/rand/v2"
)

// Allocator chooses a slot for a new emote of a given kind.
//
// It picks uniformly at random among slots below capacity rather than
// first-fit: always reusing the first free slot would concentrate creation
// traffic there and trip the backend's per-container rate limits.
type Allocator struct {
	dir      *Directory
	repo     Repository
	capacity int
}

// NewAllocator creates an allocator with the given per-kind capacity.
func NewAllocator(dir *Directory, repo Repository, capacity int) *Allocator {
	if capacity <= 0 {
		capacity = SlotCapacity
	}
	return &Allocator{dir: dir, repo: repo, capacity: capacity}
}

// Allocate returns a slot with free capacity for the kind. Occupancy is
// read from the registry at call time; two concurrent allocations may both
// observe the same near-full slot, which is accepted as a bounded overshoot
// since capacity is a rate-limit heuristic rather than a hard constraint.
func (a *Allocator) Allocate(ctx context.Context, kind Kind) (int64, error) {
	slots := a.dir.Slots()
	if len(slots) == 0 {
		return 0, ErrNoEligibleSlots
	}

	occupancy, err := a.repo.SlotOccupancy(ctx, kind)
	if err != nil {
		return 0, err
	}

	var candidates []int64
	for _, slot := range slots {
		if occupancy[slot] < a.capacity {
			candidates = append(candidates, slot)
		}
	}
	if len(candidates) == 0 {
		return 0, ErrNoMoreSlots
	}

	return candidates[rand.IntN(len(candidates))], nil
}
