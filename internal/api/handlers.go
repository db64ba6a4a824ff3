package api

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"net/http"
	"strconv"
	"time"

	"github.com/oriys/storefront/internal/cart"
	"github.com/oriys/storefront/internal/config"
	"github.com/oriys/storefront/internal/kv"
	"github.com/oriys/storefront/internal/logging"
	"github.com/oriys/storefront/internal/metrics"
	"github.com/oriys/storefront/internal/pagecache"
	"github.com/oriys/storefront/internal/popularity"
	"github.com/oriys/storefront/internal/rowcache"
	"github.com/oriys/storefront/internal/session"
)

// Handler serves sessions, carts, rows and cached pages.
type Handler struct {
	Store      kv.Store
	Sessions   *session.Registry
	Carts      *cart.Store
	Popularity *popularity.Ranker
	Pages      *pagecache.Cache
	Rows       *rowcache.Refresher
	// Generator renders uncached pages. Nil uses RenderPage.
	Generator pagecache.Generator
}

// RegisterRoutes registers all routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Sessions
	mux.HandleFunc("POST /sessions", h.Login)
	mux.HandleFunc("GET /sessions/{token}", h.GetSession)
	mux.HandleFunc("POST /sessions/{token}/touch", h.TouchSession)
	mux.HandleFunc("DELETE /sessions/{token}", h.Logout)

	// Carts
	mux.HandleFunc("PUT /carts/{token}/items/{item}", h.SetCartItem)
	mux.HandleFunc("GET /carts/{token}", h.GetCart)

	// Popularity and cached content
	mux.HandleFunc("GET /popular", h.Popular)
	mux.HandleFunc("GET /pages", h.Page)
	mux.HandleFunc("PUT /rows/{id}/schedule", h.ScheduleRow)
	mux.HandleFunc("GET /rows/{id}", h.GetRow)

	// Health and metrics
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", metrics.PrometheusHandler())
}

// RenderPage is the default page generator.
func RenderPage(_ context.Context, request string) ([]byte, error) {
	return []byte("<html><body>content for " + html.EscapeString(request) + "</body></html>"), nil
}

// Login handles POST /sessions
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User string `json:"user"`
		Item string `json:"item"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.User == "" {
		http.Error(w, "user is required", http.StatusBadRequest)
		return
	}

	token := session.NewToken()
	if err := h.Sessions.Touch(r.Context(), token, req.User, req.Item); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"token": token,
		"user":  req.User,
	})
}

// GetSession handles GET /sessions/{token}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	user, ok := h.validate(w, r, token)
	if !ok {
		return
	}

	history, err := h.Popularity.History(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":   token,
		"user":    user,
		"history": history,
	})
}

// TouchSession handles POST /sessions/{token}/touch
func (h *Handler) TouchSession(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	var req struct {
		Item string `json:"item"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	user, ok := h.validate(w, r, token)
	if !ok {
		return
	}
	if err := h.Sessions.Touch(r.Context(), token, user, req.Item); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logout handles DELETE /sessions/{token}
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Logout(r.Context(), r.PathValue("token")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetCartItem handles PUT /carts/{token}/items/{item}
func (h *Handler) SetCartItem(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	item := r.PathValue("item")

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	if _, ok := h.validate(w, r, token); !ok {
		return
	}
	if err := h.Carts.SetItem(r.Context(), token, item, req.Quantity); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetCart handles GET /carts/{token}
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	items, err := h.Carts.Items(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Popular handles GET /popular
func (h *Handler) Popular(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 10, 1000)
	top, err := h.Popularity.Top(r.Context(), int64(limit))
	if err != nil {
		writeError(w, err)
		return
	}

	type entry struct {
		Item  string  `json:"item"`
		Score float64 `json:"score"`
	}
	out := make([]entry, len(top))
	for i, m := range top {
		out[i] = entry{Item: m.Name, Score: m.Score}
	}
	writeJSON(w, http.StatusOK, out)
}

// Page handles GET /pages?url=...
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	gen := h.Generator
	if gen == nil {
		gen = RenderPage
	}
	body, err := h.Pages.Serve(r.Context(), target, gen)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(body)
}

// ScheduleRow handles PUT /rows/{id}/schedule
func (h *Handler) ScheduleRow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		DelaySeconds float64 `json:"delay_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	delay, err := rowcache.DelayFromSeconds(req.DelaySeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Rows.Schedule(r.Context(), id, delay); err != nil {
		writeError(w, err)
		return
	}

	status := "scheduled"
	if delay <= 0 {
		status = "retiring"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     id,
		"status": status,
	})
}

// GetRow handles GET /rows/{id}
func (h *Handler) GetRow(w http.ResponseWriter, r *http.Request) {
	row, err := h.Rows.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	components := map[string]string{"store": "healthy"}
	if err := h.Store.Ping(ctx); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		components["store"] = "unhealthy: " + err.Error()
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
	})
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request, token string) (string, bool) {
	user, ok, err := h.Sessions.Validate(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return "", false
	}
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return "", false
	}
	return user, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, kv.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, config.ErrInvalid):
		code = http.StatusBadRequest
	case errors.Is(err, kv.ErrUnavailable):
		code = http.StatusServiceUnavailable
	}
	if code >= 500 {
		logging.Op().Warn("request failed", "status", code, "error", err)
	}
	http.Error(w, err.Error(), code)
}

func parseLimit(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
