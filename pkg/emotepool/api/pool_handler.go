package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
	"github.com/bmintz/emoji-vacuum/pkg/emotepool/admin"
)

// PoolHandler handles preference, blacklist and moderator endpoints
type PoolHandler struct {
	service emotepool.Service
	admin   *admin.Service
}

// NewPoolHandler creates a new pool handler. adminSvc may be nil to disable
// the moderator endpoints.
func NewPoolHandler(service emotepool.Service, adminSvc *admin.Service) *PoolHandler {
	return &PoolHandler{service: service, admin: adminSvc}
}

// Routes returns the routes for pool-level operations
func (h *PoolHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/state", h.ResolveState)
	r.Post("/users/{id}/state/toggle", h.ToggleUserState)
	r.Post("/guilds/{id}/state/toggle", h.ToggleGuildState)

	r.Get("/users/{id}/blacklist", h.GetBlacklist)
	r.Put("/users/{id}/blacklist", h.SetBlacklist)
	r.Delete("/users/{id}", h.DeleteAccount)

	r.Get("/stats", h.Statistics)
	r.Post("/admin/query", h.ExecuteQuery)

	return r
}

// StateResponse is the response body for preference state
type StateResponse struct {
	Enabled bool `json:"enabled"`
}

// ResolveState reports whether auto-response is enabled for a user in a guild
func (h *PoolHandler) ResolveState(w http.ResponseWriter, r *http.Request) {
	guildID, err := queryID(r, "guild")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	userID, err := queryID(r, "user")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	enabled, err := h.service.ResolveState(r.Context(), guildID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, StateResponse{Enabled: enabled})
}

// ToggleUserState flips a user's auto-response preference
func (h *PoolHandler) ToggleUserState(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var guildID int64
	if v := r.URL.Query().Get("guild"); v != "" {
		guildID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid guild", http.StatusBadRequest)
			return
		}
	}

	enabled, err := h.service.ToggleUserState(r.Context(), userID, guildID)
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, StateResponse{Enabled: enabled})
}

// ToggleGuildState flips a guild's auto-response preference
func (h *PoolHandler) ToggleGuildState(w http.ResponseWriter, r *http.Request) {
	guildID, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	enabled, err := h.service.ToggleGuildState(r.Context(), guildID)
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, StateResponse{Enabled: enabled})
}

// BlacklistResponse is the response body for a user's blacklist status
type BlacklistResponse struct {
	Reason *string `json:"reason"`
}

// GetBlacklist reports a user's blacklist reason, if any
func (h *PoolHandler) GetBlacklist(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reason, err := h.service.UserBlacklist(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, BlacklistResponse{Reason: reason})
}

// SetBlacklistRequest is the request body for blacklisting a user
type SetBlacklistRequest struct {
	Reason *string `json:"reason"`
}

// SetBlacklist sets or clears a user's blacklist reason
func (h *PoolHandler) SetBlacklist(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req SetBlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.SetUserBlacklist(r.Context(), userID, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	render.NoContent(w, r)
}

// DeleteAccount removes all of a user's emotes and preference state
func (h *PoolHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), userID); err != nil {
		slog.Error("Failed to delete account", "user_id", userID, "error", err)
		writeError(w, err)
		return
	}
	render.NoContent(w, r)
}

// Statistics reports emote counts and total capacity
func (h *PoolHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		http.Error(w, "statistics unavailable", http.StatusNotFound)
		return
	}
	stats, err := h.admin.Statistics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, stats)
}

// ExecuteQueryRequest is the request body for a raw moderator query
type ExecuteQueryRequest struct {
	SQL string `json:"sql"`
}

// ExecuteQuery runs an arbitrary SQL statement against the database
func (h *PoolHandler) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	if h.admin == nil {
		http.Error(w, "raw queries unavailable", http.StatusNotFound)
		return
	}

	var req ExecuteQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.admin.ExecuteQuery(r.Context(), req.SQL)
	if err != nil {
		slog.Error("Raw query failed", "error", err)
		writeError(w, err)
		return
	}
	render.JSON(w, r, result)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryID(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
