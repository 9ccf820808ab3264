package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ListSessions handles GET /api/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.app.State().Sessions)
}

// CreateSession handles POST /api/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.NewChat(r.Context())
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, s)
}

// ClearSessions handles DELETE /api/sessions.
func (h *Handler) ClearSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.app.ClearAll(r.Context())
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]int{"deleted": n})
}

// GetSession handles GET /api/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Session(chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, s)
}

// SelectSession handles POST /api/sessions/{id}/select.
func (h *Handler) SelectSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.app.Select(chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, s)
}

// DeleteSession handles DELETE /api/sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"activeSessionId": h.app.ActiveID()})
}
