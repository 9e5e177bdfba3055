package emotepool

import "context"

// Guard resolves ownership and blacklist status for emote-mutating actions.
type Guard struct {
	repo   Repository
	admins map[int64]struct{}
}

// NewGuard creates a guard with the given administrator ids.
func NewGuard(repo Repository, admins ...int64) *Guard {
	g := &Guard{repo: repo, admins: make(map[int64]struct{}, len(admins))}
	for _, id := range admins {
		g.admins[id] = struct{}{}
	}
	return g
}

// IsAdmin reports whether the user is a designated administrator.
func (g *Guard) IsAdmin(userID int64) bool {
	_, ok := g.admins[userID]
	return ok
}

// Authorize reports whether the actor may modify an emote owned by owner.
// SystemActor always passes; it marks system-initiated actions such as
// decay evictions.
func (g *Guard) Authorize(owner, actor int64) bool {
	if actor == SystemActor {
		return true
	}
	return g.IsAdmin(actor) || actor == owner
}

// RequireAuthorization is Authorize with an error on failure.
func (g *Guard) RequireAuthorization(emote *Emote, actor int64) error {
	if !g.Authorize(emote.Author, actor) {
		return &PermissionDeniedError{Name: emote.Name}
	}
	return nil
}

// CheckBlacklist returns the reason the user is blacklisted, or nil.
func (g *Guard) CheckBlacklist(ctx context.Context, userID int64) (*string, error) {
	return g.repo.Blacklist(ctx, userID)
}
