package emotepool

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
)

// EmoteSeq is a lazy, restartable sequence of emotes. Implementations must
// release any underlying cursor state (connection, transaction) on every
// exit path, including early termination by the consumer.
type EmoteSeq = iter.Seq2[*Emote, error]

// ListOptions narrows ListAll results.
type ListOptions struct {
	// Author restricts the listing to a single owner when non-nil.
	Author *int64
}

// Repository defines the persistence interface for emotes, usage history
// and per-user/per-guild preferences.
type Repository interface {
	// Emote operations
	GetByName(ctx context.Context, name string) (*Emote, error)
	Insert(ctx context.Context, emote *Emote) (*Emote, error)
	Rename(ctx context.Context, id uuid.UUID, newName string) (*Emote, error)
	SetDescription(ctx context.Context, id uuid.UUID, description *string) (*Emote, error)
	SetCreated(ctx context.Context, name string, created time.Time) error
	SetPreservation(ctx context.Context, name string, preserve bool) (*Emote, error)
	SetNSFW(ctx context.Context, id uuid.UUID, status NSFW) (*Emote, error)
	// Delete removes the emote record and all of its usage events.
	Delete(ctx context.Context, id uuid.UUID) error

	// Iterators. Results are ordered by lower(name), usage count, and
	// similarity score respectively.
	ListAll(ctx context.Context, opts ListOptions) EmoteSeq
	ListPopular(ctx context.Context, since time.Time, limit int) EmoteSeq
	Search(ctx context.Context, query string) EmoteSeq
	// DecayCandidates yields emotes created before cutoff, not preserved,
	// with fewer than usageThreshold uses since cutoff.
	DecayCandidates(ctx context.Context, cutoff time.Time, usageThreshold int) EmoteSeq

	// Usage ledger
	RecordUse(ctx context.Context, id uuid.UUID, actor int64) error
	CountUses(ctx context.Context, id uuid.UUID, since time.Time) (int64, error)

	// Slot occupancy and directory persistence
	Counts(ctx context.Context) (*EmoteCounts, error)
	SlotOccupancy(ctx context.Context, kind Kind) (map[int64]int, error)
	RegisterSlots(ctx context.Context, ids []int64) error

	// Preferences. A nil state means "unset", which is distinct from an
	// explicit false.
	ToggleState(ctx context.Context, scope PreferenceScope, id int64, fallback bool) (bool, error)
	GetState(ctx context.Context, scope PreferenceScope, id int64) (*bool, error)
	ResolveState(ctx context.Context, guildID, userID int64) (bool, error)
	Blacklist(ctx context.Context, userID int64) (*string, error)
	SetBlacklist(ctx context.Context, userID int64, reason *string) error
	DeleteUserState(ctx context.Context, userID int64) error
}

// Backend defines the interface for the external slot-backed container
// service that physically hosts emote images.
type Backend interface {
	// ListSlots enumerates every container visible to the backend,
	// eligible or not. The directory applies the eligibility rules.
	ListSlots(ctx context.Context) ([]SlotInfo, error)

	// Create stores an image in the given slot and returns the id the
	// backend assigned to it.
	Create(ctx context.Context, slot int64, name string, kind Kind, image []byte) (uuid.UUID, error)

	// Delete removes an image. Returns ErrBackendNotFound when the image
	// is already gone; callers treat that as a non-fatal outcome.
	Delete(ctx context.Context, slot int64, id uuid.UUID) error

	// Rename changes the display name attached to an image.
	Rename(ctx context.Context, slot int64, id uuid.UUID, newName string) error
}

// Notifier receives eviction transparency events from the decay engine.
type Notifier interface {
	// OnDecay is called before an emote is evicted. The returned handle
	// may be used to retract the notification if the eviction fails.
	OnDecay(ctx context.Context, emote *Emote) (NotificationHandle, error)
}

// NotificationHandle identifies a sent decay notification.
type NotificationHandle interface {
	Retract(ctx context.Context) error
}
