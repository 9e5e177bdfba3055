package emotepool

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the domain type for emote kinds.
type Kind string

// Emote kind constants (typed).
const (
	KindStatic   Kind = "static"
	KindAnimated Kind = "animated"
)

// Animated reports whether the kind is the animated one.
func (k Kind) Animated() bool { return k == KindAnimated }

// KindFromAnimated maps the persisted boolean column back to a Kind.
func KindFromAnimated(animated bool) Kind {
	if animated {
		return KindAnimated
	}
	return KindStatic
}

// NSFW is the domain type for an emote's NSFW marking.
type NSFW string

// NSFW status constants (typed).
const (
	NSFWSafe NSFW = "SFW"
	NSFWSelf NSFW = "SELF_NSFW"
	NSFWMod  NSFW = "MOD_NSFW"
)

// IsNSFW reports whether the status marks the emote as NSFW,
// regardless of who set it.
func (n NSFW) IsNSFW() bool { return n == NSFWSelf || n == NSFWMod }

// SystemActor is the acting user id for system-initiated operations
// (decay, account cleanup). Ownership checks are bypassed for it.
const SystemActor int64 = 0

// SlotCapacity is the default per-kind capacity of a backend slot.
const SlotCapacity = 50

// DescriptionLimit is the maximum emote description length. It must match
// the column bound in the postgres schema.
const DescriptionLimit = 500

// Emote is a stored emote's metadata record.
//
// Name is unique under case-insensitive comparison across all live emotes.
// ID is assigned by the external backend on creation and never changes.
type Emote struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Author      int64     `json:"author"`
	Kind        Kind      `json:"kind"`
	Slot        int64     `json:"slot"`
	Created     time.Time `json:"created"`
	Description *string   `json:"description,omitempty"`
	Preserve    bool      `json:"preserve"`
	NSFW        NSFW      `json:"nsfw"`

	// Usage is computed by popularity and decay queries; it is not a
	// persisted column.
	Usage int64 `json:"usage,omitempty"`
}

func (e *Emote) String() string {
	prefix := ""
	if e.Kind.Animated() {
		prefix = "a"
	}
	return fmt.Sprintf("<%s:%s:%s>", prefix, e.Name, e.ID)
}

// EscapedName returns the emote's name in colons with a leading backslash,
// suitable for display when the emote itself should not render.
func (e *Emote) EscapedName() string {
	return fmt.Sprintf(`\:%s:`, e.Name)
}

// WithName returns the emote followed by its escaped name, the form used in
// list output.
func (e *Emote) WithName() string {
	return fmt.Sprintf("%s %s", e, e.EscapedName())
}

// SlotInfo describes an external container as reported by the backend.
type SlotInfo struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Owner int64  `json:"owner"`
}

// EmoteCounts holds the informational per-kind totals.
type EmoteCounts struct {
	Static   int64 `json:"static"`
	Animated int64 `json:"animated"`
	Total    int64 `json:"total"`
}

// Capacity holds the pool-wide capacity derived from the slot directory.
type Capacity struct {
	Static   int `json:"static"`
	Animated int `json:"animated"`
	Total    int `json:"total"`
}

// PreferenceScope selects which preference table a toggle or lookup
// operates on. It is a closed enum so query text never depends on
// caller-supplied strings.
type PreferenceScope int

const (
	ScopeUser PreferenceScope = iota
	ScopeGuild
)

func (s PreferenceScope) String() string {
	switch s {
	case ScopeUser:
		return "user"
	case ScopeGuild:
		return "guild"
	default:
		return fmt.Sprintf("PreferenceScope(%d)", int(s))
	}
}
