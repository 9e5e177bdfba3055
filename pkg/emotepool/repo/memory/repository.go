package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
)

// Repository implements emotepool.Repository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	emotes  map[uuid.UUID]*emotepool.Emote
	byName  map[string]uuid.UUID // lower(name) -> id
	usage   map[uuid.UUID][]time.Time
	slots   map[int64]struct{}
	users   map[int64]*userRow
	guilds  map[int64]*bool
}

type userRow struct {
	state           *bool
	blacklistReason *string
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		emotes: make(map[uuid.UUID]*emotepool.Emote),
		byName: make(map[string]uuid.UUID),
		usage:  make(map[uuid.UUID][]time.Time),
		slots:  make(map[int64]struct{}),
		users:  make(map[int64]*userRow),
		guilds: make(map[int64]*bool),
	}
}

// Compile-time check that Repository implements emotepool.Repository.
var _ emotepool.Repository = (*Repository)(nil)

// Emote operations

func (r *Repository) GetByName(ctx context.Context, name string) (*emotepool.Emote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getByNameLocked(name)
}

func (r *Repository) getByNameLocked(name string) (*emotepool.Emote, error) {
	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, &emotepool.NotFoundError{Name: name}
	}
	emoteCopy := *r.emotes[id]
	return &emoteCopy, nil
}

func (r *Repository) Insert(ctx context.Context, emote *emotepool.Emote) (*emotepool.Emote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(emote.Name)
	if _, exists := r.byName[key]; exists {
		return nil, &emotepool.ExistsError{Name: emote.Name}
	}

	emoteCopy := *emote
	if emoteCopy.NSFW == "" {
		emoteCopy.NSFW = emotepool.NSFWSafe
	}
	r.emotes[emote.ID] = &emoteCopy
	r.byName[key] = emote.ID

	out := emoteCopy
	return &out, nil
}

func (r *Repository) Rename(ctx context.Context, id uuid.UUID, newName string) (*emotepool.Emote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	emote, ok := r.emotes[id]
	if !ok {
		return nil, &emotepool.NotFoundError{Name: newName}
	}

	newKey := strings.ToLower(newName)
	oldKey := strings.ToLower(emote.Name)
	if other, exists := r.byName[newKey]; exists && other != id {
		return nil, &emotepool.ExistsError{Name: newName}
	}

	delete(r.byName, oldKey)
	emote.Name = newName
	r.byName[newKey] = id

	emoteCopy := *emote
	return &emoteCopy, nil
}

func (r *Repository) SetDescription(ctx context.Context, id uuid.UUID, description *string) (*emotepool.Emote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	emote, ok := r.emotes[id]
	if !ok {
		return nil, emotepool.ErrEmoteNotFound
	}
	if description != nil && len(*description) > emotepool.DescriptionLimit {
		return nil, &emotepool.DescriptionTooLongError{
			Name:   emote.Name,
			Length: len(*description),
			Limit:  emotepool.DescriptionLimit,
		}
	}

	emote.Description = description
	emoteCopy := *emote
	return &emoteCopy, nil
}

func (r *Repository) SetCreated(ctx context.Context, name string, created time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return &emotepool.NotFoundError{Name: name}
	}
	r.emotes[id].Created = created
	return nil
}

func (r *Repository) SetPreservation(ctx context.Context, name string, preserve bool) (*emotepool.Emote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, &emotepool.NotFoundError{Name: name}
	}
	r.emotes[id].Preserve = preserve
	emoteCopy := *r.emotes[id]
	return &emoteCopy, nil
}

func (r *Repository) SetNSFW(ctx context.Context, id uuid.UUID, status emotepool.NSFW) (*emotepool.Emote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	emote, ok := r.emotes[id]
	if !ok {
		return nil, emotepool.ErrEmoteNotFound
	}
	emote.NSFW = status
	emoteCopy := *emote
	return &emoteCopy, nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	emote, ok := r.emotes[id]
	if !ok {
		return emotepool.ErrEmoteNotFound
	}
	delete(r.byName, strings.ToLower(emote.Name))
	delete(r.emotes, id)
	delete(r.usage, id)
	return nil
}

// Iterators

func (r *Repository) ListAll(ctx context.Context, opts emotepool.ListOptions) emotepool.EmoteSeq {
	return func(yield func(*emotepool.Emote, error) bool) {
		for _, emote := range r.snapshot(func(e *emotepool.Emote) bool {
			return opts.Author == nil || e.Author == *opts.Author
		}, byLowerName) {
			if !yield(emote, nil) {
				return
			}
		}
	}
}

func (r *Repository) ListPopular(ctx context.Context, since time.Time, limit int) emotepool.EmoteSeq {
	return func(yield func(*emotepool.Emote, error) bool) {
		emotes := r.snapshot(nil, nil)
		r.mu.RLock()
		for _, emote := range emotes {
			emote.Usage = r.countUsesLocked(emote.ID, since)
		}
		r.mu.RUnlock()

		sort.Slice(emotes, func(i, j int) bool {
			if emotes[i].Usage != emotes[j].Usage {
				return emotes[i].Usage > emotes[j].Usage
			}
			return byLowerName(emotes[i], emotes[j])
		})
		if limit > 0 && limit < len(emotes) {
			emotes = emotes[:limit]
		}
		for _, emote := range emotes {
			if !yield(emote, nil) {
				return
			}
		}
	}
}

func (r *Repository) Search(ctx context.Context, query string) emotepool.EmoteSeq {
	return func(yield func(*emotepool.Emote, error) bool) {
		type scored struct {
			emote *emotepool.Emote
			score float64
		}
		var matches []scored
		for _, emote := range r.snapshot(nil, nil) {
			score := similarity(emote.Name, query)
			if score > 0 {
				matches = append(matches, scored{emote, score})
			}
		}
		sort.Slice(matches, func(i, j int) bool {
			if matches[i].score != matches[j].score {
				return matches[i].score > matches[j].score
			}
			return byLowerName(matches[i].emote, matches[j].emote)
		})
		for _, m := range matches {
			if !yield(m.emote, nil) {
				return
			}
		}
	}
}

func (r *Repository) DecayCandidates(ctx context.Context, cutoff time.Time, usageThreshold int) emotepool.EmoteSeq {
	return func(yield func(*emotepool.Emote, error) bool) {
		emotes := r.snapshot(func(e *emotepool.Emote) bool {
			return e.Created.Before(cutoff) && !e.Preserve
		}, byLowerName)

		// Usage counts are resolved before yielding so consumers may
		// delete candidates mid-iteration without deadlocking.
		r.mu.RLock()
		var candidates []*emotepool.Emote
		for _, emote := range emotes {
			emote.Usage = r.countUsesLocked(emote.ID, cutoff)
			if emote.Usage < int64(usageThreshold) {
				candidates = append(candidates, emote)
			}
		}
		r.mu.RUnlock()

		for _, emote := range candidates {
			if !yield(emote, nil) {
				return
			}
		}
	}
}

// snapshot copies the matching emotes under the read lock so iteration
// never observes concurrent mutation.
func (r *Repository) snapshot(match func(*emotepool.Emote) bool, less func(a, b *emotepool.Emote) bool) []*emotepool.Emote {
	r.mu.RLock()
	var out []*emotepool.Emote
	for _, emote := range r.emotes {
		if match == nil || match(emote) {
			emoteCopy := *emote
			out = append(out, &emoteCopy)
		}
	}
	r.mu.RUnlock()

	if less != nil {
		sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out
}

func byLowerName(a, b *emotepool.Emote) bool {
	return strings.ToLower(a.Name) < strings.ToLower(b.Name)
}

// similarity is a trigram overlap score in [0, 1], mirroring how the
// postgres repository orders search results with pg_trgm.
func similarity(a, b string) float64 {
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	union := len(ta) + len(tb) - shared
	return float64(shared) / float64(union)
}

func trigrams(s string) map[string]struct{} {
	padded := "  " + strings.ToLower(s) + " "
	out := make(map[string]struct{})
	for i := 0; i+3 <= len(padded); i++ {
		out[padded[i:i+3]] = struct{}{}
	}
	return out
}

// Usage ledger

func (r *Repository) RecordUse(ctx context.Context, id uuid.UUID, actor int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Self-use is not counted.
	if emote, ok := r.emotes[id]; ok && emote.Author == actor {
		return nil
	}
	r.usage[id] = append(r.usage[id], time.Now().UTC())
	return nil
}

func (r *Repository) CountUses(ctx context.Context, id uuid.UUID, since time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.countUsesLocked(id, since), nil
}

func (r *Repository) countUsesLocked(id uuid.UUID, since time.Time) int64 {
	var n int64
	for _, t := range r.usage[id] {
		if t.After(since) {
			n++
		}
	}
	return n
}

// Slot occupancy and directory persistence

func (r *Repository) Counts(ctx context.Context) (*emotepool.EmoteCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := &emotepool.EmoteCounts{}
	for _, emote := range r.emotes {
		if emote.Kind.Animated() {
			counts.Animated++
		} else {
			counts.Static++
		}
	}
	counts.Total = counts.Static + counts.Animated
	return counts, nil
}

func (r *Repository) SlotOccupancy(ctx context.Context, kind emotepool.Kind) (map[int64]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	occupancy := make(map[int64]int)
	for _, emote := range r.emotes {
		if emote.Kind == kind {
			occupancy[emote.Slot]++
		}
	}
	return occupancy, nil
}

func (r *Repository) RegisterSlots(ctx context.Context, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.slots[id] = struct{}{}
	}
	return nil
}

// Preferences

func (r *Repository) ToggleState(ctx context.Context, scope emotepool.PreferenceScope, id int64, fallback bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch scope {
	case emotepool.ScopeUser:
		row, ok := r.users[id]
		if !ok {
			row = &userRow{}
			r.users[id] = row
		}
		next := fallback
		if row.state != nil {
			next = !*row.state
		}
		row.state = &next
		return next, nil
	case emotepool.ScopeGuild:
		next := fallback
		if state := r.guilds[id]; state != nil {
			next = !*state
		}
		r.guilds[id] = &next
		return next, nil
	default:
		return false, fmt.Errorf("unknown preference scope: %v", scope)
	}
}

func (r *Repository) GetState(ctx context.Context, scope emotepool.PreferenceScope, id int64) (*bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch scope {
	case emotepool.ScopeUser:
		if row, ok := r.users[id]; ok && row.state != nil {
			state := *row.state
			return &state, nil
		}
		return nil, nil
	case emotepool.ScopeGuild:
		if state := r.guilds[id]; state != nil {
			out := *state
			return &out, nil
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown preference scope: %v", scope)
	}
}

// ResolveState applies the canonical precedence: blacklist, then user
// override, then guild state, then the default visible state.
func (r *Repository) ResolveState(ctx context.Context, guildID, userID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if row, ok := r.users[userID]; ok {
		if row.blacklistReason != nil {
			return false, nil
		}
		if row.state != nil {
			return *row.state, nil
		}
	}
	if state := r.guilds[guildID]; state != nil {
		return *state, nil
	}
	return true, nil
}

func (r *Repository) Blacklist(ctx context.Context, userID int64) (*string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if row, ok := r.users[userID]; ok && row.blacklistReason != nil {
		reason := *row.blacklistReason
		return &reason, nil
	}
	return nil, nil
}

func (r *Repository) SetBlacklist(ctx context.Context, userID int64, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.users[userID]
	if !ok {
		row = &userRow{}
		r.users[userID] = row
	}
	row.blacklistReason = reason
	return nil
}

func (r *Repository) DeleteUserState(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, userID)
	return nil
}
