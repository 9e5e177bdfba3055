package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
)

var emoteCols = []string{"name", "id", "author", "animated", "slot", "created", "description", "preserve", "nsfw"}

func emoteRow(name string, id uuid.UUID) *pgxmock.Rows {
	return pgxmock.NewRows(emoteCols).AddRow(
		name, id, int64(42), false, int64(100), time.Now().UTC(),
		(*string)(nil), false, emotepool.NSFWSafe,
	)
}

func setupMock(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func TestGetByName(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		mock, repo := setupMock(t)
		id := uuid.New()

		mock.ExpectQuery(`FROM emotes WHERE LOWER\(name\) = LOWER\(\$1\)`).
			WithArgs("BlobCat").
			WillReturnRows(emoteRow("BlobCat", id))

		emote, err := repo.GetByName(context.Background(), "BlobCat")
		require.NoError(t, err)
		assert.Equal(t, "BlobCat", emote.Name)
		assert.Equal(t, id, emote.ID)
		assert.Equal(t, emotepool.KindStatic, emote.Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock, repo := setupMock(t)

		mock.ExpectQuery(`FROM emotes WHERE LOWER\(name\) = LOWER\(\$1\)`).
			WithArgs("nothere").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByName(context.Background(), "nothere")
		assert.ErrorIs(t, err, emotepool.ErrEmoteNotFound)

		var notFound *emotepool.NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "nothere", notFound.Name)
	})
}

func TestInsertUniqueViolation(t *testing.T) {
	mock, repo := setupMock(t)

	mock.ExpectQuery(`INSERT INTO emotes`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Insert(context.Background(), &emotepool.Emote{
		ID: uuid.New(), Name: "blobcat", Author: 42, Kind: emotepool.KindStatic, Slot: 100,
	})
	assert.ErrorIs(t, err, emotepool.ErrEmoteExists)
}

func TestSetDescriptionTooLong(t *testing.T) {
	mock, repo := setupMock(t)
	id := uuid.New()
	desc := "way too long"

	mock.ExpectQuery(`UPDATE emotes SET description`).
		WithArgs(id, &desc).
		WillReturnError(&pgconn.PgError{Code: "22001"})

	_, err := repo.SetDescription(context.Background(), id, &desc)
	assert.ErrorIs(t, err, emotepool.ErrDescriptionTooLong)

	var tooLong *emotepool.DescriptionTooLongError
	require.ErrorAs(t, err, &tooLong)
	assert.Equal(t, emotepool.DescriptionLimit, tooLong.Limit)
	assert.Equal(t, len(desc), tooLong.Length)
}

func TestSetCreatedMissingRow(t *testing.T) {
	mock, repo := setupMock(t)
	created := time.Now().UTC()

	mock.ExpectExec(`UPDATE emotes SET created`).
		WithArgs("nothere", created).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.SetCreated(context.Background(), "nothere", created)
	assert.ErrorIs(t, err, emotepool.ErrEmoteNotFound)
}

func TestListAllCursor(t *testing.T) {
	t.Run("full traversal commits resources", func(t *testing.T) {
		mock, repo := setupMock(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM emotes ORDER BY LOWER\(name\)`).
			WillReturnRows(pgxmock.NewRows(emoteCols).
				AddRow("a", uuid.New(), int64(42), false, int64(100), time.Now().UTC(), (*string)(nil), false, emotepool.NSFWSafe).
				AddRow("b", uuid.New(), int64(42), true, int64(100), time.Now().UTC(), (*string)(nil), false, emotepool.NSFWSafe))
		mock.ExpectRollback()

		var names []string
		for emote, err := range repo.ListAll(context.Background(), emotepool.ListOptions{}) {
			require.NoError(t, err)
			names = append(names, emote.Name)
		}
		assert.Equal(t, []string{"a", "b"}, names)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("early break still rolls back", func(t *testing.T) {
		mock, repo := setupMock(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM emotes ORDER BY LOWER\(name\)`).
			WillReturnRows(pgxmock.NewRows(emoteCols).
				AddRow("a", uuid.New(), int64(42), false, int64(100), time.Now().UTC(), (*string)(nil), false, emotepool.NSFWSafe).
				AddRow("b", uuid.New(), int64(42), false, int64(100), time.Now().UTC(), (*string)(nil), false, emotepool.NSFWSafe))
		mock.ExpectRollback()

		for _, err := range repo.ListAll(context.Background(), emotepool.ListOptions{}) {
			require.NoError(t, err)
			break
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin failure surfaces through the iterator", func(t *testing.T) {
		mock, repo := setupMock(t)

		mock.ExpectBegin().WillReturnError(assert.AnError)

		var got error
		for _, err := range repo.ListAll(context.Background(), emotepool.ListOptions{}) {
			got = err
		}
		assert.ErrorIs(t, got, assert.AnError)
	})
}

func TestDecayCandidatesQuery(t *testing.T) {
	mock, repo := setupMock(t)
	cutoff := time.Now().UTC().Add(-4 * 7 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`HAVING COUNT\(euh.id\) < \$2`).
		WithArgs(cutoff, 2).
		WillReturnRows(pgxmock.NewRows(append(emoteCols, "usage")).
			AddRow("stale", uuid.New(), int64(42), false, int64(100),
				cutoff.Add(-time.Hour), (*string)(nil), false, emotepool.NSFWSafe, int64(1)))
	mock.ExpectRollback()

	var candidates []*emotepool.Emote
	for emote, err := range repo.DecayCandidates(context.Background(), cutoff, 2) {
		require.NoError(t, err)
		candidates = append(candidates, emote)
	}
	require.Len(t, candidates, 1)
	assert.Equal(t, "stale", candidates[0].Name)
	assert.Equal(t, int64(1), candidates[0].Usage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordUse(t *testing.T) {
	mock, repo := setupMock(t)
	id := uuid.New()

	mock.ExpectExec(`INSERT INTO emote_usage_history`).
		WithArgs(id, int64(43)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.RecordUse(context.Background(), id, 43))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleState(t *testing.T) {
	t.Run("user scope", func(t *testing.T) {
		mock, repo := setupMock(t)

		mock.ExpectQuery(`INSERT INTO user_opt`).
			WithArgs(int64(42), false).
			WillReturnRows(pgxmock.NewRows([]string{"state"}).AddRow(false))

		state, err := repo.ToggleState(context.Background(), emotepool.ScopeUser, 42, false)
		require.NoError(t, err)
		assert.False(t, state)
	})

	t.Run("guild scope", func(t *testing.T) {
		mock, repo := setupMock(t)

		mock.ExpectQuery(`INSERT INTO guild_opt`).
			WithArgs(int64(500), false).
			WillReturnRows(pgxmock.NewRows([]string{"state"}).AddRow(true))

		state, err := repo.ToggleState(context.Background(), emotepool.ScopeGuild, 500, false)
		require.NoError(t, err)
		assert.True(t, state)
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, repo := setupMock(t)

		_, err := repo.ToggleState(context.Background(), emotepool.PreferenceScope(99), 42, false)
		assert.Error(t, err)
	})
}

func TestResolveState(t *testing.T) {
	mock, repo := setupMock(t)

	mock.ExpectQuery(`SELECT COALESCE`).
		WithArgs(int64(500), int64(42)).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(true))

	state, err := repo.ResolveState(context.Background(), 500, 42)
	require.NoError(t, err)
	assert.True(t, state)
}

func TestRegisterSlots(t *testing.T) {
	t.Run("empty set is a no-op", func(t *testing.T) {
		mock, repo := setupMock(t)

		require.NoError(t, repo.RegisterSlots(context.Background(), nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inserts with conflict handling", func(t *testing.T) {
		mock, repo := setupMock(t)

		mock.ExpectExec(`INSERT INTO slots`).
			WithArgs([]int64{100, 101}).
			WillReturnResult(pgxmock.NewResult("INSERT", 2))

		require.NoError(t, repo.RegisterSlots(context.Background(), []int64{100, 101}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBlacklist(t *testing.T) {
	t.Run("no row means not blacklisted", func(t *testing.T) {
		mock, repo := setupMock(t)

		mock.ExpectQuery(`SELECT blacklist_reason FROM user_opt`).
			WithArgs(int64(42)).
			WillReturnError(pgx.ErrNoRows)

		reason, err := repo.Blacklist(context.Background(), 42)
		require.NoError(t, err)
		assert.Nil(t, reason)
	})

	t.Run("set reason upserts", func(t *testing.T) {
		mock, repo := setupMock(t)
		reason := "spamming"

		mock.ExpectExec(`INSERT INTO user_opt`).
			WithArgs(int64(42), &reason).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, repo.SetBlacklist(context.Background(), 42, &reason))
	})
}
