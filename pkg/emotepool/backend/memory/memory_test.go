package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
)

func TestBackendLifecycle(t *testing.T) {
	ctx := context.Background()
	backend := New()
	backend.AddSlot(emotepool.SlotInfo{ID: 100, Name: "EmojiBackend 1", Owner: 1})

	slots, err := backend.ListSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, int64(100), slots[0].ID)

	id, err := backend.Create(ctx, 100, "blobcat", emotepool.KindStatic, []byte("png"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, 1, backend.Len(100))

	require.NoError(t, backend.Rename(ctx, 100, id, "happycat"))

	require.NoError(t, backend.Delete(ctx, 100, id))
	assert.Zero(t, backend.Len(100))
}

func TestBackendMissing(t *testing.T) {
	ctx := context.Background()
	backend := New()
	backend.AddSlot(emotepool.SlotInfo{ID: 100, Name: "EmojiBackend 1", Owner: 1})

	_, err := backend.Create(ctx, 999, "blobcat", emotepool.KindStatic, nil)
	assert.ErrorIs(t, err, emotepool.ErrBackendNotFound)

	err = backend.Delete(ctx, 100, uuid.New())
	assert.ErrorIs(t, err, emotepool.ErrBackendNotFound)

	err = backend.Rename(ctx, 100, uuid.New(), "happycat")
	assert.ErrorIs(t, err, emotepool.ErrBackendNotFound)
}
