package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(origins []string, method, origin string) *httptest.ResponseRecorder {
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(method, "/api/state", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCORSExplicitOrigin(t *testing.T) {
	w := serve([]string{"http://localhost:5173"}, http.MethodGet, "http://localhost:5173")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("explicit origins should allow credentials")
	}
	if w.Code != http.StatusTeapot {
		t.Errorf("expected next handler to run, got %d", w.Code)
	}
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	w := serve([]string{"*"}, http.MethodGet, "http://evil.example")
	if w.Header().Get("Access-Control-Allow-Origin") != "http://evil.example" {
		t.Error("wildcard should echo the origin")
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("wildcard must not allow credentials")
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	w := serve([]string{"http://localhost:5173"}, http.MethodGet, "http://other.example")
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origin should not be echoed")
	}
}

func TestCORSPreflight(t *testing.T) {
	w := serve([]string{"http://localhost:5173"}, http.MethodOptions, "http://localhost:5173")
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
}
