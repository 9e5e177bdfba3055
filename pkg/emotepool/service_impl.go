package emotepool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultUsageWindow is the trailing window used for usage counting when
// none is configured. It matches the default decay window.
const DefaultUsageWindow = 4 * 7 * 24 * time.Hour

// service implements the Service interface
type service struct {
	repo        Repository
	backend     Backend
	guard       *Guard
	dir         *Directory
	alloc       *Allocator
	usageWindow time.Duration
	logger      *slog.Logger

	slotPrefixes []string
	capacity     int
	admins       []int64
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) { s.repo = repo }
}

// WithBackend sets the external container backend
func WithBackend(backend Backend) Option {
	return func(s *service) { s.backend = backend }
}

// WithAdmins designates the system administrators. Admins may modify any
// emote, and only containers they own are eligible slots.
func WithAdmins(ids ...int64) Option {
	return func(s *service) { s.admins = append(s.admins, ids...) }
}

// WithSlotCapacity overrides the per-kind slot capacity
func WithSlotCapacity(n int) Option {
	return func(s *service) { s.capacity = n }
}

// WithSlotPrefixes overrides the recognized container naming prefixes
func WithSlotPrefixes(prefixes ...string) Option {
	return func(s *service) { s.slotPrefixes = prefixes }
}

// WithUsageWindow sets the trailing window for usage counting
func WithUsageWindow(d time.Duration) Option {
	return func(s *service) { s.usageWindow = d }
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		capacity:     SlotCapacity,
		slotPrefixes: DefaultSlotPrefixes(),
		usageWindow:  DefaultUsageWindow,
	}

	for _, option := range options {
		option(s)
	}

	if s.repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.guard = NewGuard(s.repo, s.admins...)
	s.dir = NewDirectory(s.backend, s.repo, s.guard, s.slotPrefixes, s.logger)
	s.alloc = NewAllocator(s.dir, s.repo, s.capacity)

	return s, nil
}

func (s *service) Directory() *Directory { return s.dir }

// Emote lifecycle

func (s *service) CreateEmote(ctx context.Context, req CreateEmoteRequest) (*Emote, error) {
	// Blacklist is consulted before anything else so no slot capacity is
	// spent on a request that cannot succeed.
	reason, err := s.guard.CheckBlacklist(ctx, req.Author)
	if err != nil {
		return nil, err
	}
	if reason != nil {
		return nil, &UserBlacklistedError{Reason: *reason}
	}

	if err := s.ensureDoesNotExist(ctx, req.Name); err != nil {
		return nil, err
	}

	slot, err := s.alloc.Allocate(ctx, req.Kind)
	if err != nil {
		return nil, err
	}

	id, err := s.backend.Create(ctx, slot, req.Name, req.Kind, req.Image)
	if err != nil {
		return nil, &BackendError{Op: "create", Slot: slot, Err: err}
	}

	return s.repo.Insert(ctx, &Emote{
		ID:      id,
		Name:    req.Name,
		Author:  req.Author,
		Kind:    req.Kind,
		Slot:    slot,
		Created: time.Now().UTC(),
		NSFW:    NSFWSafe,
	})
}

func (s *service) GetEmote(ctx context.Context, name string) (*Emote, error) {
	return s.repo.GetByName(ctx, name)
}

func (s *service) RemoveEmote(ctx context.Context, name string, actor int64) (*Emote, error) {
	emote, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.removeEmote(ctx, emote, actor); err != nil {
		return nil, err
	}
	return emote, nil
}

// removeEmote deletes an already-fetched emote. The backend delete happens
// first; a record is only removed from the registry once the backend copy
// is gone or known to be missing.
func (s *service) removeEmote(ctx context.Context, emote *Emote, actor int64) error {
	if err := s.guard.RequireAuthorization(emote, actor); err != nil {
		return err
	}

	err := s.backend.Delete(ctx, emote.Slot, emote.ID)
	switch {
	case errors.Is(err, ErrBackendNotFound):
		// The registry and the backend get out of sync sometimes. A record
		// with no backing image is safe to drop.
		s.logger.Warn("emote found in the registry but not the backend, removing anyway",
			"name", emote.Name, "id", emote.ID)
	case err != nil:
		return &BackendError{Op: "delete", Slot: emote.Slot, Err: err}
	}

	return s.repo.Delete(ctx, emote.ID)
}

func (s *service) RenameEmote(ctx context.Context, oldName, newName string, actor int64) (*Emote, error) {
	// A different capitalization of the same name is not a conflict.
	if !strings.EqualFold(oldName, newName) {
		if err := s.ensureDoesNotExist(ctx, newName); err != nil {
			return nil, err
		}
	}

	emote, err := s.repo.GetByName(ctx, oldName)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireAuthorization(emote, actor); err != nil {
		return nil, err
	}

	if err := s.backend.Rename(ctx, emote.Slot, emote.ID, newName); err != nil {
		return nil, &BackendError{Op: "rename", Slot: emote.Slot, Err: err}
	}

	return s.repo.Rename(ctx, emote.ID, newName)
}

func (s *service) SetDescription(ctx context.Context, name string, actor int64, description *string) (*Emote, error) {
	emote, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.guard.RequireAuthorization(emote, actor); err != nil {
		return nil, err
	}
	return s.repo.SetDescription(ctx, emote.ID, description)
}

func (s *service) SetCreated(ctx context.Context, name string, created time.Time) error {
	return s.repo.SetCreated(ctx, name, created)
}

func (s *service) SetPreservation(ctx context.Context, name string, preserve bool) (*Emote, error) {
	return s.repo.SetPreservation(ctx, name, preserve)
}

func (s *service) ToggleNSFW(ctx context.Context, name string, actor int64, byMod bool) (*Emote, error) {
	emote, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !byMod {
		if err := s.guard.RequireAuthorization(emote, actor); err != nil {
			return nil, err
		}
	}

	status, err := nextNSFWStatus(emote, byMod)
	if err != nil {
		return nil, err
	}
	return s.repo.SetNSFW(ctx, emote.ID, status)
}

// nextNSFWStatus computes the status a toggle moves the emote to. Owners
// may not clear a marking applied by a moderator.
func nextNSFWStatus(emote *Emote, byMod bool) (NSFW, error) {
	desired := !emote.NSFW.IsNSFW()

	if byMod {
		if desired {
			return NSFWMod, nil
		}
		return NSFWSafe, nil
	}
	if desired {
		return NSFWSelf, nil
	}
	if emote.NSFW == NSFWMod {
		return "", &PermissionDeniedError{Name: emote.Name}
	}
	return NSFWSafe, nil
}

func (s *service) ensureDoesNotExist(ctx context.Context, name string) error {
	_, err := s.repo.GetByName(ctx, name)
	if errors.Is(err, ErrEmoteNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return &ExistsError{Name: name}
}

// Usage ledger

func (s *service) RecordUse(ctx context.Context, id uuid.UUID, actor int64) error {
	return s.repo.RecordUse(ctx, id, actor)
}

func (s *service) EmoteUsage(ctx context.Context, emote *Emote) (int64, error) {
	since := time.Now().UTC().Add(-s.usageWindow)
	return s.repo.CountUses(ctx, emote.ID, since)
}

// Iteration

func (s *service) ListAll(ctx context.Context, author *int64) EmoteSeq {
	return s.repo.ListAll(ctx, ListOptions{Author: author})
}

func (s *service) ListPopular(ctx context.Context, limit int) EmoteSeq {
	since := time.Now().UTC().Add(-s.usageWindow)
	return s.repo.ListPopular(ctx, since, limit)
}

func (s *service) Search(ctx context.Context, query string) EmoteSeq {
	return s.repo.Search(ctx, query)
}

// Informational

func (s *service) Counts(ctx context.Context) (*EmoteCounts, error) {
	return s.repo.Counts(ctx)
}

func (s *service) Capacity() Capacity {
	perKind := s.dir.Len() * s.capacity
	return Capacity{Static: perKind, Animated: perKind, Total: perKind * 2}
}

// Preferences and blacklist

func (s *service) ToggleUserState(ctx context.Context, userID, guildID int64) (bool, error) {
	// With no existing row, toggling opts the user out of whatever the
	// guild resolves to. The global default is visible, so with no guild
	// state either, a first toggle opts out.
	fallback := false
	if guildID != 0 {
		guildState, err := s.repo.GetState(ctx, ScopeGuild, guildID)
		if err != nil {
			return false, err
		}
		if guildState != nil {
			fallback = !*guildState
		}
	}
	return s.repo.ToggleState(ctx, ScopeUser, userID, fallback)
}

func (s *service) ToggleGuildState(ctx context.Context, guildID int64) (bool, error) {
	return s.repo.ToggleState(ctx, ScopeGuild, guildID, false)
}

func (s *service) ResolveState(ctx context.Context, guildID, userID int64) (bool, error) {
	return s.repo.ResolveState(ctx, guildID, userID)
}

func (s *service) UserBlacklist(ctx context.Context, userID int64) (*string, error) {
	return s.repo.Blacklist(ctx, userID)
}

func (s *service) SetUserBlacklist(ctx context.Context, userID int64, reason *string) error {
	return s.repo.SetBlacklist(ctx, userID, reason)
}

// Account deletion

func (s *service) DeleteAccount(ctx context.Context, userID int64) error {
	for emote, err := range s.repo.ListAll(ctx, ListOptions{Author: &userID}) {
		if err != nil {
			return err
		}
		// The listing is already restricted to the user's own emotes, so
		// removal runs system-initiated.
		if err := s.removeEmote(ctx, emote, SystemActor); err != nil {
			s.logger.Error("failed to remove emote during account deletion",
				"name", emote.Name, "user", userID, "error", err)
		}
	}
	return s.repo.DeleteUserState(ctx, userID)
}
