package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/bmintz/emoji-vacuum/pkg/emotepool"
)

// EmoteResponse is the response body for an emote
type EmoteResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Author      int64     `json:"author,string"`
	Animated    bool      `json:"animated"`
	Slot        int64     `json:"slot,string"`
	Created     time.Time `json:"created"`
	Description *string   `json:"description,omitempty"`
	Preserve    bool      `json:"preserve"`
	NSFW        string    `json:"nsfw"`
	Usage       int64     `json:"usage"`
}

func newEmoteResponse(e *emotepool.Emote) EmoteResponse {
	return EmoteResponse{
		ID:          e.ID.String(),
		Name:        e.Name,
		Author:      e.Author,
		Animated:    e.Kind.Animated(),
		Slot:        e.Slot,
		Created:     e.Created,
		Description: e.Description,
		Preserve:    e.Preserve,
		NSFW:        string(e.NSFW),
		Usage:       e.Usage,
	}
}

// EmoteHandler handles HTTP requests for the emote pool
type EmoteHandler struct {
	service emotepool.Service
}

// NewEmoteHandler creates a new emote handler
func NewEmoteHandler(service emotepool.Service) *EmoteHandler {
	return &EmoteHandler{service: service}
}

// Routes returns the routes for emotes
func (h *EmoteHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateEmote)
	r.Get("/", h.ListEmotes)
	r.Get("/popular", h.ListPopular)
	r.Get("/search", h.SearchEmotes)

	r.Get("/{name}", h.GetEmote)
	r.Delete("/{name}", h.RemoveEmote)
	r.Post("/{name}/name", h.RenameEmote)
	r.Put("/{name}/description", h.SetDescription)
	r.Put("/{name}/created", h.SetCreated)
	r.Put("/{name}/preserve", h.SetPreservation)
	r.Post("/{name}/nsfw", h.ToggleNSFW)
	r.Post("/{name}/uses", h.RecordUse)
	r.Get("/{name}/usage", h.EmoteUsage)

	return r
}

// CreateEmoteRequest is the request body for creating an emote
type CreateEmoteRequest struct {
	Name     string `json:"name"`
	Author   int64  `json:"author,string"`
	Animated bool   `json:"animated"`
	Image    string `json:"image"` // base64-encoded image data
}

// CreateEmote creates a new emote
func (h *EmoteHandler) CreateEmote(w http.ResponseWriter, r *http.Request) {
	var req CreateEmoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		http.Error(w, "invalid image encoding", http.StatusBadRequest)
		return
	}

	emote, err := h.service.CreateEmote(r.Context(), emotepool.CreateEmoteRequest{
		Name:   req.Name,
		Author: req.Author,
		Kind:   emotepool.KindFromAnimated(req.Animated),
		Image:  image,
	})
	if err != nil {
		slog.Error("Failed to create emote", "name", req.Name, "error", err)
		writeError(w, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newEmoteResponse(emote))
}

// GetEmote returns a single emote by name
func (h *EmoteHandler) GetEmote(w http.ResponseWriter, r *http.Request) {
	emote, err := h.service.GetEmote(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, newEmoteResponse(emote))
}

// RemoveEmote deletes an emote on behalf of an actor
func (h *EmoteHandler) RemoveEmote(w http.ResponseWriter, r *http.Request) {
	actor, err := actorParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	emote, err := h.service.RemoveEmote(r.Context(), chi.URLParam(r, "name"), actor)
	if err != nil {
		slog.Error("Failed to remove emote", "name", chi.URLParam(r, "name"), "error", err)
		writeError(w, err)
		return
	}
	render.JSON(w, r, newEmoteResponse(emote))
}

// RenameEmoteRequest is the request body for renaming an emote
type RenameEmoteRequest struct {
	NewName string `json:"new_name"`
	Actor   int64  `json:"actor,string"`
}

// RenameEmote renames an emote
func (h *EmoteHandler) RenameEmote(w http.ResponseWriter, r *http.Request) {
	var req RenameEmoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	emote, err := h.service.RenameEmote(r.Context(), chi.URLParam(r, "name"), req.NewName, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, newEmoteResponse(emote))
}

// SetDescriptionRequest is the request body for setting an emote description
type SetDescriptionRequest struct {
	Description *string `json:"description"`
	Actor       int64   `json:"actor,string"`
}

// SetDescription sets or clears an emote's description
func (h *EmoteHandler) SetDescription(w http.ResponseWriter, r *http.Request) {
	var req SetDescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	emote, err := h.service.SetDescription(r.Context(), chi.URLParam(r, "name"), req.Actor, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, newEmoteResponse(emote))
}

// SetCreatedRequest is the request body for backdating an emote
type SetCreatedRequest struct {
	Created time.Time `json:"created"`
}

// SetCreated overrides an emote's creation time
func (h *EmoteHandler) SetCreated(w http.ResponseWriter, r *http.Request) {
	var req SetCreatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.SetCreated(r.Context(), chi.URLParam(r, "name"), req.Created); err != nil {
		writeError(w, err)
		return
	}
	render.NoContent(w, r)
}

// SetPreservationRequest is the request body for marking an emote preserved
type SetPreservationRequest struct {
	Preserve bool `json:"preserve"`
}

// SetPreservation marks or unmarks an emote as exempt from decay
func (h *EmoteHandler) SetPreservation(w http.ResponseWriter, r *http.Request) {
	var req SetPreservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	emote, err := h.service.SetPreservation(r.Context(), chi.URLParam(r, "name"), req.Preserve)
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, newEmoteResponse(emote))
}

// ToggleNSFWRequest is the request body for toggling an emote's NSFW status
type ToggleNSFWRequest struct {
	Actor int64 `json:"actor,string"`
	ByMod bool  `json:"by_mod"`
}

// ToggleNSFW cycles an emote's NSFW status
func (h *EmoteHandler) ToggleNSFW(w http.ResponseWriter, r *http.Request) {
	var req ToggleNSFWRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	emote, err := h.service.ToggleNSFW(r.Context(), chi.URLParam(r, "name"), req.Actor, req.ByMod)
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, newEmoteResponse(emote))
}

// RecordUseRequest is the request body for recording an emote use
type RecordUseRequest struct {
	User int64 `json:"user,string"`
}

// RecordUse records a single use of an emote
func (h *EmoteHandler) RecordUse(w http.ResponseWriter, r *http.Request) {
	var req RecordUseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	emote, err := h.service.GetEmote(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.service.RecordUse(r.Context(), emote.ID, req.User); err != nil {
		writeError(w, err)
		return
	}
	render.NoContent(w, r)
}

// EmoteUsage reports how many times an emote was used within the usage window
func (h *EmoteHandler) EmoteUsage(w http.ResponseWriter, r *http.Request) {
	emote, err := h.service.GetEmote(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	usage, err := h.service.EmoteUsage(r.Context(), emote)
	if err != nil {
		writeError(w, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"name": emote.Name, "usage": usage})
}

// ListEmotes streams every emote, optionally filtered by author
func (h *EmoteHandler) ListEmotes(w http.ResponseWriter, r *http.Request) {
	var author *int64
	if v := r.URL.Query().Get("author"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid author", http.StatusBadRequest)
			return
		}
		author = &id
	}

	h.respondSeq(w, r, h.service.ListAll(r.Context(), author))
}

// ListPopular returns emotes ordered by recent usage
func (h *EmoteHandler) ListPopular(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	h.respondSeq(w, r, h.service.ListPopular(r.Context(), limit))
}

// SearchEmotes returns emotes whose names resemble the query
func (h *EmoteHandler) SearchEmotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	h.respondSeq(w, r, h.service.Search(r.Context(), query))
}

func (h *EmoteHandler) respondSeq(w http.ResponseWriter, r *http.Request, seq emotepool.EmoteSeq) {
	emotes := []EmoteResponse{}
	for emote, err := range seq {
		if err != nil {
			slog.Error("Failed to list emotes", "error", err)
			writeError(w, err)
			return
		}
		emotes = append(emotes, newEmoteResponse(emote))
	}
	render.JSON(w, r, emotes)
}

func actorParam(r *http.Request) (int64, error) {
	v := r.URL.Query().Get("actor")
	if v == "" {
		return 0, errors.New("actor is required")
	}
	return strconv.ParseInt(v, 10, 64)
}
