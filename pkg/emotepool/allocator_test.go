package emotepool_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
)

func TestAllocationSpread(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupTestService(t, emotepool.WithSlotCapacity(4))

	// Fill the pool completely and verify no slot ever exceeds capacity.
	perSlot := make(map[int64]int)
	for i := 0; i < 8; i++ {
		emote, err := svc.CreateEmote(ctx, emotepool.CreateEmoteRequest{
			Name:   string(rune('a' + i)),
			Author: 42,
			Kind:   emotepool.KindStatic,
		})
		require.NoError(t, err)
		perSlot[emote.Slot]++
	}

	for slot, n := range perSlot {
		assert.LessOrEqual(t, n, 4, "slot %d over capacity", slot)
	}
	assert.Len(t, perSlot, 2, "both slots should be used once one is full")

	_, err := svc.CreateEmote(ctx, emotepool.CreateEmoteRequest{
		Name: "overflow", Author: 42, Kind: emotepool.KindStatic,
	})
	assert.ErrorIs(t, err, emotepool.ErrNoMoreSlots)
}

func TestAllocationSkipsFullSlots(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupTestService(t, emotepool.WithSlotCapacity(2))

	// With capacity 2 across 2 slots, creating 3 emotes requires the
	// allocator to place at least one in each slot.
	slots := make(map[int64]bool)
	for _, name := range []string{"one", "two", "three"} {
		emote, err := svc.CreateEmote(ctx, emotepool.CreateEmoteRequest{
			Name: name, Author: 42, Kind: emotepool.KindStatic,
		})
		require.NoError(t, err)
		slots[emote.Slot] = true
	}
	assert.Len(t, slots, 2)
}
