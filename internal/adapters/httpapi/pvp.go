package httpapi

import (
	"net/http"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) pvpRoutes(r chi.Router) {
	r.Get("/levels/mine/", h.handleListMyLevels)
	r.Get("/levels/posted/", h.handleListPostedLevels)
	r.Post("/levels/", h.handleCreateLevel)
	r.Delete("/levels/{levelID}/", h.handleDeleteLevel)
	r.Patch("/levels/{levelID}/publish/", h.handleSetVisibility)
	r.Get("/levels/{levelID}/emails/", h.handleListLevelEmails)
	r.Post("/levels/{levelID}/emails/", h.handleAddLevelEmail)
	r.Delete("/levels/{levelID}/emails/{emailID}/", h.handleDeleteLevelEmail)
	r.Get("/play/emails/", h.handlePlayEmails)
}

func (h *Handler) handleListMyLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.pvp.ListMine(r.Context(), identityFrom(r).UserID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, levels)
}

func (h *Handler) handleListPostedLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.pvp.ListPosted(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, levels)
}

func (h *Handler) handleCreateLevel(w http.ResponseWriter, r *http.Request) {
	var in core.PvpLevelInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	level, err := h.pvp.CreateLevel(r.Context(), identityFrom(r).UserID, in)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, level)
}

func (h *Handler) handleDeleteLevel(w http.ResponseWriter, r *http.Request) {
	levelID, err := urlID(r, "levelID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.pvp.DeleteLevel(r.Context(), identityFrom(r).UserID, levelID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	levelID, err := urlID(r, "levelID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var req struct {
		Visibility core.Visibility `json:"visibility"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if req.Visibility == "" {
		req.Visibility = core.VisibilityPosted
	}

	level, err := h.pvp.SetVisibility(r.Context(), identityFrom(r).UserID, levelID, req.Visibility)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, level)
}

func (h *Handler) handleListLevelEmails(w http.ResponseWriter, r *http.Request) {
	levelID, err := urlID(r, "levelID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	emails, err := h.pvp.ListEmails(r.Context(), identityFrom(r).UserID, levelID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, emails)
}

func (h *Handler) handleAddLevelEmail(w http.ResponseWriter, r *http.Request) {
	levelID, err := urlID(r, "levelID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	var in core.PvpEmailInput
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	email, err := h.pvp.AddEmail(r.Context(), identityFrom(r).UserID, levelID, in)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, email)
}

func (h *Handler) handleDeleteLevelEmail(w http.ResponseWriter, r *http.Request) {
	levelID, err := urlID(r, "levelID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	emailID, err := urlID(r, "emailID")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.pvp.DeleteEmail(r.Context(), identityFrom(r).UserID, levelID, emailID); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePlayEmails(w http.ResponseWriter, r *http.Request) {
	levelID, err := queryInt(r, "level_id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if levelID <= 0 {
		respondError(w, r, h.logger, core.NewValidationError("level_id", "level_id required"))
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	msgs, err := h.pvp.PlayEmails(r.Context(), identityFrom(r).UserID, levelID, int(limit), queryBool(r, "wave"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, msgs)
}
