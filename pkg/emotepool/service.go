package emotepool

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the main interface for the emote pool.
type Service interface {
	// Emote lifecycle
	CreateEmote(ctx context.Context, req CreateEmoteRequest) (*Emote, error)
	GetEmote(ctx context.Context, name string) (*Emote, error)
	RemoveEmote(ctx context.Context, name string, actor int64) (*Emote, error)
	RenameEmote(ctx context.Context, oldName, newName string, actor int64) (*Emote, error)
	SetDescription(ctx context.Context, name string, actor int64, description *string) (*Emote, error)
	SetCreated(ctx context.Context, name string, created time.Time) error
	SetPreservation(ctx context.Context, name string, preserve bool) (*Emote, error)
	ToggleNSFW(ctx context.Context, name string, actor int64, byMod bool) (*Emote, error)

	// Usage ledger
	RecordUse(ctx context.Context, id uuid.UUID, actor int64) error
	EmoteUsage(ctx context.Context, emote *Emote) (int64, error)

	// Iteration
	ListAll(ctx context.Context, author *int64) EmoteSeq
	ListPopular(ctx context.Context, limit int) EmoteSeq
	Search(ctx context.Context, query string) EmoteSeq

	// Informational
	Counts(ctx context.Context) (*EmoteCounts, error)
	Capacity() Capacity

	// Preferences and blacklist
	ToggleUserState(ctx context.Context, userID, guildID int64) (bool, error)
	ToggleGuildState(ctx context.Context, guildID int64) (bool, error)
	ResolveState(ctx context.Context, guildID, userID int64) (bool, error)
	UserBlacklist(ctx context.Context, userID int64) (*string, error)
	SetUserBlacklist(ctx context.Context, userID int64, reason *string) error

	// DeleteAccount removes every emote owned by the user along with the
	// user's preference state.
	DeleteAccount(ctx context.Context, userID int64) error

	// Directory exposes the slot directory for lifecycle management and
	// readiness observation.
	Directory() *Directory
}

// CreateEmoteRequest carries the inputs for creating an emote.
type CreateEmoteRequest struct {
	Name   string
	Author int64
	Kind   Kind
	Image  []byte
}
