package emotepool

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrEmoteNotFound indicates a lookup by name or id found no live emote
	ErrEmoteNotFound = errors.New("emote not found")

	// ErrEmoteExists indicates a case-insensitive name conflict
	ErrEmoteExists = errors.New("emote already exists")

	// ErrNoEligibleSlots indicates the slot directory is empty
	ErrNoEligibleSlots = errors.New("no eligible backend slots")

	// ErrNoMoreSlots indicates every eligible slot is at capacity for the
	// requested kind
	ErrNoMoreSlots = errors.New("no slot with free capacity")

	// ErrPermissionDenied indicates the acting user may not modify the emote
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUserBlacklisted indicates the acting user is blacklisted
	ErrUserBlacklisted = errors.New("user is blacklisted")

	// ErrDescriptionTooLong indicates a description exceeded the store's bound
	ErrDescriptionTooLong = errors.New("description too long")

	// ErrBackendNotFound indicates the external backend no longer holds the
	// resource. Deletes treat this as a non-fatal outcome.
	ErrBackendNotFound = errors.New("not found in backend")
)

// NotFoundError reports a failed lookup along with the name that missed.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("an emote called %q was not found", e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrEmoteNotFound }

// ExistsError reports a name conflict with a live emote.
type ExistsError struct {
	Name string
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("an emote called %q already exists", e.Name)
}

func (e *ExistsError) Unwrap() error { return ErrEmoteExists }

// PermissionDeniedError reports an unauthorized mutating action.
type PermissionDeniedError struct {
	Name string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("you are not authorized to modify %q", e.Name)
}

func (e *PermissionDeniedError) Unwrap() error { return ErrPermissionDenied }

// UserBlacklistedError reports a blacklisted user attempting a restricted
// action, carrying the reason recorded for the blacklist.
type UserBlacklistedError struct {
	Reason string
}

func (e *UserBlacklistedError) Error() string {
	return fmt.Sprintf("you are blacklisted: %s", e.Reason)
}

func (e *UserBlacklistedError) Unwrap() error { return ErrUserBlacklisted }

// DescriptionTooLongError reports a description that exceeds the store's
// length bound. Limit is the bound itself so callers can surface it.
type DescriptionTooLongError struct {
	Name   string
	Length int
	Limit  int
}

func (e *DescriptionTooLongError) Error() string {
	return fmt.Sprintf("description for %q is too long (%d > %d characters)", e.Name, e.Length, e.Limit)
}

func (e *DescriptionTooLongError) Unwrap() error { return ErrDescriptionTooLong }

// BackendError wraps a failure from the external create/delete/rename
// collaborator with operation context.
type BackendError struct {
	Op   string
	Slot int64
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend operation %s failed on slot %d: %v", e.Op, e.Slot, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
