package api

import (
	"errors"
	"net/http"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
	"github.com/bmintz/emoji-vacuum/pkg/emotepool/admin"
)

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, emotepool.ErrEmoteNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, emotepool.ErrEmoteExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, emotepool.ErrPermissionDenied),
		errors.Is(err, emotepool.ErrUserBlacklisted):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, emotepool.ErrDescriptionTooLong):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, emotepool.ErrNoEligibleSlots),
		errors.Is(err, emotepool.ErrNoMoreSlots):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, emotepool.ErrBackendNotFound):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, admin.ErrNoDatabase):
		http.Error(w, err.Error(), http.StatusNotImplemented)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
