// Package api provides HTTP handlers for the companion chat API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/containerd/errdefs"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/friendchat/internal/ai"
	"github.com/ashureev/friendchat/internal/app"
	"github.com/ashureev/friendchat/internal/store"
)

const (
	defaultMaxRequestBodySize = 10 << 20
	defaultRateLimitRequests  = 20
	defaultRateLimitWindow    = time.Minute
	healthCheckTimeout        = 5 * time.Second
)

// Options tunes the HTTP layer.
type Options struct {
	MaxRequestBodySize int64
	RateLimitRequests  int
	RateLimitWindow    time.Duration
}

// Handler serves the companion chat API.
type Handler struct {
	app     *app.App
	repo    store.Repository
	ai      ai.Client
	limiter *RateLimiter
	maxBody int64
}

// NewHandler creates a Handler. Call Close to stop the rate limiter.
func NewHandler(a *app.App, repo store.Repository, client ai.Client, opts Options) *Handler {
	if opts.MaxRequestBodySize <= 0 {
		opts.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	if opts.RateLimitRequests <= 0 {
		opts.RateLimitRequests = defaultRateLimitRequests
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = defaultRateLimitWindow
	}
	return &Handler{
		app:     a,
		repo:    repo,
		ai:      client,
		limiter: NewRateLimiter(opts.RateLimitRequests, opts.RateLimitWindow),
		maxBody: opts.MaxRequestBodySize,
	}
}

// Close stops background work.
func (h *Handler) Close() {
	h.limiter.Stop()
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/state", h.GetState)
		r.Post("/setup", h.Setup)

		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.SaveSettings)
		r.Put("/profile/mood", h.SetMood)
		r.Get("/achievements", h.Achievements)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)
			r.Delete("/", h.ClearSessions)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.DeleteSession)
				r.Post("/select", h.SelectSession)
				r.Post("/messages", h.SendMessage)
				r.Post("/trivia", h.StartTrivia)
				r.Post("/trivia/{messageID}/answer", h.AnswerTrivia)
				r.Post("/images/{messageID}/edit", h.EditImage)
				r.Get("/suggestions", h.Suggestions)
			})
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// StatusFor maps an error class to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errdefs.IsNotFound(err):
		return http.StatusNotFound
	case errdefs.IsConflict(err), errdefs.IsAlreadyExists(err):
		return http.StatusConflict
	case errdefs.IsInvalidArgument(err):
		return http.StatusBadRequest
	case errdefs.IsFailedPrecondition(err):
		return http.StatusPreconditionFailed
	case errdefs.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Fail writes err with the status of its class. Internal errors are logged
// and hidden.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		Error(w, status, "internal error")
		return
	}
	Error(w, status, err.Error())
}

// decode reads a JSON body bounded by the configured size.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
