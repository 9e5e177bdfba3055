package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
)

func insertTestEmote(t *testing.T, repo *Repository, name string, author int64) *emotepool.Emote {
	t.Helper()
	emote, err := repo.Insert(context.Background(), &emotepool.Emote{
		ID:      uuid.New(),
		Name:    name,
		Author:  author,
		Kind:    emotepool.KindStatic,
		Slot:    100,
		Created: time.Now().UTC(),
	})
	require.NoError(t, err)
	return emote
}

func TestInsertAndGet(t *testing.T) {
	repo := New()
	ctx := context.Background()

	inserted := insertTestEmote(t, repo, "BlobCat", 42)
	assert.Equal(t, emotepool.NSFWSafe, inserted.NSFW)

	got, err := repo.GetByName(ctx, "BLOBCAT")
	require.NoError(t, err)
	assert.Equal(t, inserted.ID, got.ID)
	assert.Equal(t, "BlobCat", got.Name)

	_, err = repo.Insert(ctx, &emotepool.Emote{ID: uuid.New(), Name: "blobcat"})
	assert.ErrorIs(t, err, emotepool.ErrEmoteExists)
}

func TestReturnedEmotesAreCopies(t *testing.T) {
	repo := New()
	ctx := context.Background()

	insertTestEmote(t, repo, "blobcat", 42)

	got, err := repo.GetByName(ctx, "blobcat")
	require.NoError(t, err)
	got.Name = "mangled"

	again, err := repo.GetByName(ctx, "blobcat")
	require.NoError(t, err)
	assert.Equal(t, "blobcat", again.Name)
}

func TestRename(t *testing.T) {
	repo := New()
	ctx := context.Background()

	emote := insertTestEmote(t, repo, "blobcat", 42)
	insertTestEmote(t, repo, "taken", 42)

	t.Run("conflict with another emote", func(t *testing.T) {
		_, err := repo.Rename(ctx, emote.ID, "TAKEN")
		assert.ErrorIs(t, err, emotepool.ErrEmoteExists)
	})

	t.Run("case-only rename of itself succeeds", func(t *testing.T) {
		renamed, err := repo.Rename(ctx, emote.ID, "BlobCat")
		require.NoError(t, err)
		assert.Equal(t, "BlobCat", renamed.Name)

		got, err := repo.GetByName(ctx, "blobcat")
		require.NoError(t, err)
		assert.Equal(t, "BlobCat", got.Name)
	})

	t.Run("old name is released", func(t *testing.T) {
		_, err := repo.Rename(ctx, emote.ID, "happycat")
		require.NoError(t, err)

		_, err = repo.GetByName(ctx, "blobcat")
		assert.ErrorIs(t, err, emotepool.ErrEmoteNotFound)
	})
}

func TestDeletePurgesUsage(t *testing.T) {
	repo := New()
	ctx := context.Background()

	emote := insertTestEmote(t, repo, "blobcat", 42)
	require.NoError(t, repo.RecordUse(ctx, emote.ID, 43))

	require.NoError(t, repo.Delete(ctx, emote.ID))

	n, err := repo.CountUses(ctx, emote.ID, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteDuringDecayIteration(t *testing.T) {
	repo := New()
	ctx := context.Background()

	old := time.Now().UTC().Add(-10 * 24 * time.Hour)
	for _, name := range []string{"a", "b", "c"} {
		emote := insertTestEmote(t, repo, name, 42)
		require.NoError(t, repo.SetCreated(ctx, emote.Name, old))
	}

	// Deleting candidates while iterating must not deadlock or skip.
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	var deleted int
	for emote, err := range repo.DecayCandidates(ctx, cutoff, 2) {
		require.NoError(t, err)
		require.NoError(t, repo.Delete(ctx, emote.ID))
		deleted++
	}
	assert.Equal(t, 3, deleted)

	counts, err := repo.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
}

func TestSlotOccupancyPerKind(t *testing.T) {
	repo := New()
	ctx := context.Background()

	insertTestEmote(t, repo, "one", 42)
	insertTestEmote(t, repo, "two", 42)
	_, err := repo.Insert(ctx, &emotepool.Emote{
		ID: uuid.New(), Name: "dancing", Kind: emotepool.KindAnimated, Slot: 100,
	})
	require.NoError(t, err)

	static, err := repo.SlotOccupancy(ctx, emotepool.KindStatic)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{100: 2}, static)

	animated, err := repo.SlotOccupancy(ctx, emotepool.KindAnimated)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{100: 1}, animated)
}

func TestTrigramSimilarity(t *testing.T) {
	assert.Equal(t, float64(1), similarity("blobcat", "BlobCat"))
	assert.Greater(t, similarity("blobcat", "blobcats"), similarity("blobcat", "dog"))
	assert.Zero(t, similarity("", "blobcat"))
}

func TestGuildStateRoundTrip(t *testing.T) {
	repo := New()
	ctx := context.Background()

	state, err := repo.GetState(ctx, emotepool.ScopeGuild, 500)
	require.NoError(t, err)
	assert.Nil(t, state)

	toggled, err := repo.ToggleState(ctx, emotepool.ScopeGuild, 500, false)
	require.NoError(t, err)
	assert.False(t, toggled)

	state, err = repo.GetState(ctx, emotepool.ScopeGuild, 500)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, *state)

	toggled, err = repo.ToggleState(ctx, emotepool.ScopeGuild, 500, false)
	require.NoError(t, err)
	assert.True(t, toggled)
}
