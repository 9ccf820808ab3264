package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/friendchat/internal/chat"
)

type sendRequest struct {
	Text     string `json:"text"`
	Image    string `json:"image,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// decodeImage accepts raw base64 or a data URL and returns the bytes with
// the MIME type the data URL declares, if any.
func decodeImage(s string) ([]byte, string, error) {
	if s == "" {
		return nil, "", nil
	}
	mime := ""
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return nil, "", errors.New("malformed data URL")
		}
		mime = strings.TrimSuffix(header, ";base64")
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return data, mime, nil
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type editRequest struct {
	Modification string `json:"modification"`
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) allow(w http.ResponseWriter, r *http.Request) bool {
	if !h.limiter.Allow(clientKey(r)) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func wantsStream(r *http.Request) bool {
	return r.URL.Query().Get("stream") == "true" ||
		strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// SendMessage handles POST /api/sessions/{id}/messages. The answer is
// streamed as server-sent events when the client asks for it. A "discard"
// event withdraws the streamed text when the answer became an image.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	var req sendRequest
	if !h.decode(w, r, &req) {
		return
	}
	img, mime, err := decodeImage(req.Image)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MIMEType != "" {
		mime = req.MIMEType
	}
	in := chat.Input{Text: req.Text, Image: img, MIMEType: mime, FileName: req.FileName}
	sessionID := chi.URLParam(r, "id")

	slog.Info("Chat request",
		"session_id", sessionID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Text),
		"has_image", len(img) > 0,
	)

	if !wantsStream(r) {
		res, err := h.app.Chat().Send(r.Context(), sessionID, in, chat.SendOptions{})
		if err != nil {
			Fail(w, r, err)
			return
		}
		JSON(w, http.StatusOK, res)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	sse := &sseWriter{w: w, flusher: flusher}
	res, err := h.app.Chat().Send(r.Context(), sessionID, in, chat.SendOptions{
		OnChunk: func(text string) {
			sse.event("chunk", map[string]string{"text": text})
		},
		OnDiscard: func() {
			sse.event("discard", struct{}{})
		},
	})
	if err != nil {
		if !sse.started {
			Fail(w, r, err)
			return
		}
		sse.event("error", map[string]string{"error": err.Error()})
		return
	}
	sse.event("done", res)
}

// sseWriter writes server-sent events, sending the stream headers lazily so
// request errors can still be reported with a status code.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	broken  bool
}

func (s *sseWriter) event(name string, v any) {
	if s.broken {
		return
	}
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal SSE payload", "error", err)
		data = []byte(`{"error":"failed to serialize response"}`)
		name = "error"
	}
	if err := writeSSE(s.w, name, string(data)); err != nil {
		slog.Warn("failed to write SSE event", "event", name, "error", err)
		s.broken = true
		return
	}
	s.flusher.Flush()
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// StartTrivia handles POST /api/sessions/{id}/trivia.
func (h *Handler) StartTrivia(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	res, err := h.app.Chat().StartTrivia(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// AnswerTrivia handles POST /api/sessions/{id}/trivia/{messageID}/answer.
func (h *Handler) AnswerTrivia(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !h.decode(w, r, &req) {
		return
	}
	msg, err := h.app.Chat().AnswerTrivia(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "messageID"), req.Answer)
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, msg)
}

// EditImage handles POST /api/sessions/{id}/images/{messageID}/edit.
func (h *Handler) EditImage(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}
	var req editRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.app.Chat().EditImage(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "messageID"), req.Modification)
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// Suggestions handles GET /api/sessions/{id}/suggestions.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.app.Session(id); err != nil {
		Fail(w, r, err)
		return
	}
	list := h.app.Chat().Suggestions(id)
	if list == nil {
		list = []string{}
	}
	JSON(w, http.StatusOK, map[string]any{
		"suggestions": list,
		"state":       h.app.Chat().State(id),
	})
}
