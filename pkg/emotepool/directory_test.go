package emotepool_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
	backendmem "github.com/bmintz/emoji-vacuum/pkg/emotepool/backend/memory"
	repomem "github.com/bmintz/emoji-vacuum/pkg/emotepool/repo/memory"
)

func TestDirectoryEligibility(t *testing.T) {
	ctx := context.Background()
	backend := backendmem.New()
	backend.AddSlot(emotepool.SlotInfo{ID: 1, Name: "EmojiBackend 1", Owner: testAdmin})
	backend.AddSlot(emotepool.SlotInfo{ID: 2, Name: "EmoteBackend 2", Owner: testAdmin})
	// Wrong prefix.
	backend.AddSlot(emotepool.SlotInfo{ID: 3, Name: "General Chat", Owner: testAdmin})
	// Right prefix, wrong owner.
	backend.AddSlot(emotepool.SlotInfo{ID: 4, Name: "EmojiBackend 4", Owner: 99})

	svc, err := emotepool.New(
		emotepool.WithRepository(repomem.New()),
		emotepool.WithBackend(backend),
		emotepool.WithAdmins(testAdmin),
	)
	require.NoError(t, err)

	dir := svc.Directory()
	require.NoError(t, dir.Refresh(ctx))

	assert.ElementsMatch(t, []int64{1, 2}, dir.Slots())
	assert.Equal(t, 2, dir.Len())
}

func TestDirectoryRefreshIsOneShot(t *testing.T) {
	ctx := context.Background()
	backend := backendmem.New()
	backend.AddSlot(emotepool.SlotInfo{ID: 1, Name: "EmojiBackend 1", Owner: testAdmin})

	svc, err := emotepool.New(
		emotepool.WithRepository(repomem.New()),
		emotepool.WithBackend(backend),
		emotepool.WithAdmins(testAdmin),
	)
	require.NoError(t, err)

	dir := svc.Directory()

	select {
	case <-dir.Ready():
		t.Fatal("directory ready before any refresh")
	default:
	}

	require.NoError(t, dir.Refresh(ctx))
	assert.Equal(t, 1, dir.Len())

	select {
	case <-dir.Ready():
	default:
		t.Fatal("directory not ready after refresh")
	}

	// A slot added later is invisible to a plain Refresh.
	backend.AddSlot(emotepool.SlotInfo{ID: 2, Name: "EmojiBackend 2", Owner: testAdmin})
	require.NoError(t, dir.Refresh(ctx))
	assert.Equal(t, 1, dir.Len())

	// But visible to a forced one.
	require.NoError(t, dir.ForceRefresh(ctx))
	assert.Equal(t, 2, dir.Len())
}

func TestCustomSlotPrefixes(t *testing.T) {
	ctx := context.Background()
	backend := backendmem.New()
	backend.AddSlot(emotepool.SlotInfo{ID: 1, Name: "Pool 1", Owner: testAdmin})
	backend.AddSlot(emotepool.SlotInfo{ID: 2, Name: "EmojiBackend 2", Owner: testAdmin})

	svc, err := emotepool.New(
		emotepool.WithRepository(repomem.New()),
		emotepool.WithBackend(backend),
		emotepool.WithAdmins(testAdmin),
		emotepool.WithSlotPrefixes("Pool"),
	)
	require.NoError(t, err)

	require.NoError(t, svc.Directory().Refresh(ctx))
	assert.Equal(t, []int64{1}, svc.Directory().Slots())
}
