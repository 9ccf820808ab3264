package api

import (
	"fmt"
	"net/http"

	"github.com/containerd/errdefs"

	"github.com/ashureev/friendchat/internal/app"
	"github.com/ashureev/friendchat/internal/domain"
)

// GetState handles GET /api/state.
func (h *Handler) GetState(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.app.State())
}

// Setup handles POST /api/setup.
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	var req app.SetupInput
	if !h.decode(w, r, &req) {
		return
	}
	s, err := h.app.Setup(r.Context(), req)
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, s)
}

// GetProfile handles GET /api/profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	st := h.app.State()
	if st.Profile == nil {
		Fail(w, r, fmt.Errorf("setup required: %w", errdefs.ErrFailedPrecondition))
		return
	}
	JSON(w, http.StatusOK, st.Profile)
}

// SaveSettings handles PUT /api/profile.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req app.SettingsInput
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.app.SaveSettings(r.Context(), req)
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, p)
}

type moodRequest struct {
	Mood domain.Mood `json:"mood"`
}

// SetMood handles PUT /api/profile/mood.
func (h *Handler) SetMood(w http.ResponseWriter, r *http.Request) {
	var req moodRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.app.SetMood(r.Context(), req.Mood)
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, p)
}

// Achievements handles GET /api/achievements.
func (h *Handler) Achievements(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.app.Achievements())
}
