package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
)

// DB is the interface the repository needs from a pgx pool: plain query
// execution plus transaction scoping for cursors.
type DB interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements emotepool.Repository using PostgreSQL
type Repository struct {
	db DB
}

// New creates a new PostgreSQL repository
func New(db DB) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Database exposes the underlying connection for moderator tooling.
func (r *Repository) Database() DB {
	return r.db
}

// Compile-time check that Repository implements emotepool.Repository.
var _ emotepool.Repository = (*Repository)(nil)

const emoteColumns = `name, id, author, animated, slot, created, description, preserve, nsfw`

func scanEmote(row pgx.Row) (*emotepool.Emote, error) {
	var e emotepool.Emote
	var animated bool
	err := row.Scan(&e.Name, &e.ID, &e.Author, &animated, &e.Slot, &e.Created,
		&e.Description, &e.Preserve, &e.NSFW)
	if err != nil {
		return nil, err
	}
	e.Kind = emotepool.KindFromAnimated(animated)
	return &e, nil
}

func scanEmoteWithUsage(row pgx.Row) (*emotepool.Emote, error) {
	var e emotepool.Emote
	var animated bool
	err := row.Scan(&e.Name, &e.ID, &e.Author, &animated, &e.Slot, &e.Created,
		&e.Description, &e.Preserve, &e.NSFW, &e.Usage)
	if err != nil {
		return nil, err
	}
	e.Kind = emotepool.KindFromAnimated(animated)
	return &e, nil
}

// handleError maps postgres failures onto the domain error taxonomy.
func handleError(name string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return &emotepool.ExistsError{Name: name}
		case "22001": // string_data_right_truncation
			return &emotepool.DescriptionTooLongError{Name: name, Limit: emotepool.DescriptionLimit}
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &emotepool.NotFoundError{Name: name}
	}
	return err
}

// Emote operations

func (r *Repository) GetByName(ctx context.Context, name string) (*emotepool.Emote, error) {
	// LOWER(name) = LOWER($1) rather than ILIKE: ILIKE has wildcard
	// behavior we do not want in exact lookups.
	query := `SELECT ` + emoteColumns + ` FROM emotes WHERE LOWER(name) = LOWER($1)`

	emote, err := scanEmote(r.db.QueryRow(ctx, query, name))
	if err != nil {
		return nil, handleError(name, err)
	}
	return emote, nil
}

func (r *Repository) Insert(ctx context.Context, emote *emotepool.Emote) (*emotepool.Emote, error) {
	query := `
		INSERT INTO emotes (name, id, author, animated, slot, created, nsfw)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + emoteColumns

	created := emote.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	nsfw := emote.NSFW
	if nsfw == "" {
		nsfw = emotepool.NSFWSafe
	}

	inserted, err := scanEmote(r.db.QueryRow(ctx, query,
		emote.Name, emote.ID, emote.Author, emote.Kind.Animated(), emote.Slot, created, nsfw))
	if err != nil {
		return nil, handleError(emote.Name, err)
	}
	return inserted, nil
}

func (r *Repository) Rename(ctx context.Context, id uuid.UUID, newName string) (*emotepool.Emote, error) {
	query := `UPDATE emotes SET name = $2 WHERE id = $1 RETURNING ` + emoteColumns

	emote, err := scanEmote(r.db.QueryRow(ctx, query, id, newName))
	if err != nil {
		return nil, handleError(newName, err)
	}
	return emote, nil
}

func (r *Repository) SetDescription(ctx context.Context, id uuid.UUID, description *string) (*emotepool.Emote, error) {
	query := `UPDATE emotes SET description = $2 WHERE id = $1 RETURNING ` + emoteColumns

	emote, err := scanEmote(r.db.QueryRow(ctx, query, id, description))
	if err != nil {
		err = handleError("", err)
		var tooLong *emotepool.DescriptionTooLongError
		if errors.As(err, &tooLong) && description != nil {
			tooLong.Length = len(*description)
		}
		return nil, err
	}
	return emote, nil
}

func (r *Repository) SetCreated(ctx context.Context, name string, created time.Time) error {
	query := `UPDATE emotes SET created = $2 WHERE LOWER(name) = LOWER($1)`

	tag, err := r.db.Exec(ctx, query, name, created)
	if err != nil {
		return handleError(name, err)
	}
	if tag.RowsAffected() == 0 {
		return &emotepool.NotFoundError{Name: name}
	}
	return nil
}

func (r *Repository) SetPreservation(ctx context.Context, name string, preserve bool) (*emotepool.Emote, error) {
	// Update-and-return in one round trip; a missing row surfaces as
	// ErrNoRows instead of requiring a lookup first.
	query := `
		UPDATE emotes SET preserve = $2
		WHERE LOWER(name) = LOWER($1)
		RETURNING ` + emoteColumns

	emote, err := scanEmote(r.db.QueryRow(ctx, query, name, preserve))
	if err != nil {
		return nil, handleError(name, err)
	}
	return emote, nil
}

func (r *Repository) SetNSFW(ctx context.Context, id uuid.UUID, status emotepool.NSFW) (*emotepool.Emote, error) {
	query := `UPDATE emotes SET nsfw = $2 WHERE id = $1 RETURNING ` + emoteColumns

	emote, err := scanEmote(r.db.QueryRow(ctx, query, id, status))
	if err != nil {
		return nil, handleError("", err)
	}
	return emote, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	// Usage history rows go with the emote via ON DELETE CASCADE.
	_, err := r.db.Exec(ctx, `DELETE FROM emotes WHERE id = $1`, id)
	return err
}

// Iterators
//
// Each cursor holds one pooled connection and one open transaction for the
// lifetime of the traversal, and releases both on every exit path: normal
// exhaustion, consumer break, and query errors.

func (r *Repository) cursor(ctx context.Context, query string, scan func(pgx.Row) (*emotepool.Emote, error), args ...interface{}) emotepool.EmoteSeq {
	return func(yield func(*emotepool.Emote, error) bool) {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("begin cursor transaction: %w", err))
			return
		}
		defer tx.Rollback(ctx)

		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			emote, err := scan(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(emote, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

func (r *Repository) ListAll(ctx context.Context, opts emotepool.ListOptions) emotepool.EmoteSeq {
	if opts.Author != nil {
		query := `SELECT ` + emoteColumns + ` FROM emotes WHERE author = $1 ORDER BY LOWER(name)`
		return r.cursor(ctx, query, scanEmote, *opts.Author)
	}
	query := `SELECT ` + emoteColumns + ` FROM emotes ORDER BY LOWER(name)`
	return r.cursor(ctx, query, scanEmote)
}

func (r *Repository) ListPopular(ctx context.Context, since time.Time, limit int) emotepool.EmoteSeq {
	query := `
		SELECT e.name, e.id, e.author, e.animated, e.slot, e.created,
		       e.description, e.preserve, e.nsfw, COUNT(euh.id) AS usage
		FROM emotes AS e
		LEFT JOIN emote_usage_history AS euh
		    ON euh.id = e.id
		   AND euh.time > $1
		GROUP BY e.id
		ORDER BY usage DESC, LOWER(e.name)
		LIMIT $2`
	return r.cursor(ctx, query, scanEmoteWithUsage, since, limit)
}

func (r *Repository) Search(ctx context.Context, query string) emotepool.EmoteSeq {
	// The % operator needs the pg_trgm extension, created by migration.
	sql := `
		SELECT ` + emoteColumns + `
		FROM emotes
		WHERE name % $1
		ORDER BY similarity(name, $1) DESC, LOWER(name)
		LIMIT 100`
	return r.cursor(ctx, sql, scanEmote, query)
}

func (r *Repository) DecayCandidates(ctx context.Context, cutoff time.Time, usageThreshold int) emotepool.EmoteSeq {
	query := `
		SELECT e.name, e.id, e.author, e.animated, e.slot, e.created,
		       e.description, e.preserve, e.nsfw, COUNT(euh.id) AS usage
		FROM emotes AS e
		LEFT JOIN emote_usage_history AS euh
		    ON euh.id = e.id
		   AND euh.time > $1
		WHERE e.created < $1
		      AND NOT e.preserve
		GROUP BY e.id
		HAVING COUNT(euh.id) < $2`
	return r.cursor(ctx, query, scanEmoteWithUsage, cutoff, usageThreshold)
}

// Usage ledger

func (r *Repository) RecordUse(ctx context.Context, id uuid.UUID, actor int64) error {
	// SELECT ... WHERE NOT EXISTS, not INSERT ... ON CONFLICT: the event
	// is skipped entirely when the actor owns the emote.
	query := `
		INSERT INTO emote_usage_history (id)
		SELECT $1
		WHERE NOT EXISTS (
			SELECT 1
			FROM emotes
			WHERE id = $1
			  AND author = $2)`

	_, err := r.db.Exec(ctx, query, id, actor)
	return err
}

func (r *Repository) CountUses(ctx context.Context, id uuid.UUID, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM emote_usage_history WHERE id = $1 AND time > $2`

	var n int64
	if err := r.db.QueryRow(ctx, query, id, since).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Slot occupancy and directory persistence

func (r *Repository) Counts(ctx context.Context) (*emotepool.EmoteCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE NOT animated) AS static,
			COUNT(*) FILTER (WHERE animated) AS animated,
			COUNT(*) AS total
		FROM emotes`

	var counts emotepool.EmoteCounts
	if err := r.db.QueryRow(ctx, query).Scan(&counts.Static, &counts.Animated, &counts.Total); err != nil {
		return nil, err
	}
	return &counts, nil
}

func (r *Repository) SlotOccupancy(ctx context.Context, kind emotepool.Kind) (map[int64]int, error) {
	query := `SELECT slot, COUNT(*) FROM emotes WHERE animated = $1 GROUP BY slot`

	rows, err := r.db.Query(ctx, query, kind.Animated())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occupancy := make(map[int64]int)
	for rows.Next() {
		var slot int64
		var count int
		if err := rows.Scan(&slot, &count); err != nil {
			return nil, err
		}
		occupancy[slot] = count
	}
	return occupancy, rows.Err()
}

func (r *Repository) RegisterSlots(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		INSERT INTO slots (id)
		SELECT unnest($1::bigint[])
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.Exec(ctx, query, ids)
	return err
}

// Preferences
//
// The two preference tables share toggle and lookup logic. Table names are
// selected through the closed scope enum, never interpolated from caller
// input.

func tableFor(scope emotepool.PreferenceScope) (string, error) {
	switch scope {
	case emotepool.ScopeUser:
		return "user_opt", nil
	case emotepool.ScopeGuild:
		return "guild_opt", nil
	default:
		return "", fmt.Errorf("unknown preference scope: %v", scope)
	}
}

func (r *Repository) ToggleState(ctx context.Context, scope emotepool.PreferenceScope, id int64, fallback bool) (bool, error) {
	table, err := tableFor(scope)
	if err != nil {
		return false, err
	}

	// A row whose state is NULL (blacklist-only) counts as unset and takes
	// the fallback rather than NOT NULL.
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (id, state)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
			SET state = CASE WHEN %[1]s.state IS NULL THEN $2 ELSE NOT %[1]s.state END
		RETURNING state`, table)

	var state bool
	if err := r.db.QueryRow(ctx, query, id, fallback).Scan(&state); err != nil {
		return false, err
	}
	return state, nil
}

func (r *Repository) GetState(ctx context.Context, scope emotepool.PreferenceScope, id int64) (*bool, error) {
	table, err := tableFor(scope)
	if err != nil {
		return nil, err
	}

	var state *bool
	err = r.db.QueryRow(ctx, fmt.Sprintf(`SELECT state FROM %s WHERE id = $1`, table), id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// ResolveState coalesces blacklist, user override, guild state and the
// default in one query, in that canonical precedence order.
func (r *Repository) ResolveState(ctx context.Context, guildID, userID int64) (bool, error) {
	query := `
		SELECT COALESCE(
			CASE WHEN (SELECT blacklist_reason FROM user_opt WHERE id = $2)
				IS NULL THEN NULL
				ELSE FALSE
			END,
			(SELECT state FROM user_opt  WHERE id = $2),
			(SELECT state FROM guild_opt WHERE id = $1),
			true
		)`

	var state bool
	if err := r.db.QueryRow(ctx, query, guildID, userID).Scan(&state); err != nil {
		return false, err
	}
	return state, nil
}

func (r *Repository) Blacklist(ctx context.Context, userID int64) (*string, error) {
	var reason *string
	err := r.db.QueryRow(ctx, `SELECT blacklist_reason FROM user_opt WHERE id = $1`, userID).Scan(&reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return reason, nil
}

func (r *Repository) SetBlacklist(ctx context.Context, userID int64, reason *string) error {
	query := `
		INSERT INTO user_opt (id, blacklist_reason)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
			SET blacklist_reason = EXCLUDED.blacklist_reason`

	_, err := r.db.Exec(ctx, query, userID, reason)
	return err
}

func (r *Repository) DeleteUserState(ctx context.Context, userID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM user_opt WHERE id = $1`, userID)
	return err
}
