package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/ashureev/mathtutor/internal/store"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// BackendInfo describes one selectable backend.
type BackendInfo struct {
	ID    domain.BackendID `json:"id"`
	Name  string           `json:"name"`
	Model string           `json:"model"`
}

// GetMe returns the caller's anonymous identity.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":     user.UserID,
		"username":    user.Username,
		"session_id":  identity.SessionIDFromContext(r.Context()),
		"session_ttl": int64(h.cfg.SessionTTL.Seconds()),
	})
}

// GetConfig returns what the UI needs to render backend and mode pickers.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	backends := make([]BackendInfo, 0, len(domain.Backends()))
	for _, id := range domain.Backends() {
		backends = append(backends, BackendInfo{ID: id, Name: id.DisplayName(), Model: h.gateway.Model(id)})
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"backends":        backends,
		"default_backend": h.cfg.Tutor.DefaultBackend,
		"max_tokens":      h.gateway.MaxTokens(),
		"modes":           []domain.Mode{domain.ModeAuthor, domain.ModeLearner},
	})
}

// GetStats reports call counts by backend and outcome. The optional
// "since" query is a duration such as 24h.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			JSON(w, http.StatusBadRequest, ErrorResponse{Error: "since must be a positive duration", Kind: KindValidation})
			return
		}
		since = time.Now().Add(-d)
	}

	stats, err := h.repo.CallStats(r.Context(), since)
	if err != nil {
		slog.Error("Failed to load call stats", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	var sinceOut interface{}
	if !since.IsZero() {
		sinceOut = since.UTC().Format(time.RFC3339)
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"since":         sinceOut,
		"calls":         stats,
		"live_sessions": h.sessions.Len(),
	})
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo store.Repository
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}

// RegisterRoutes registers the session and tutor routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Get("/stats", h.GetStats)

		r.Get("/session", h.GetSession)
		r.Post("/problems", h.AddProblem)
		r.Delete("/problems/{index}", h.DeleteProblem)
		r.Post("/problems/{index}/select", h.SelectProblem)
		r.Put("/mode", h.SetMode)
		r.Put("/backend", h.SetBackend)

		r.Get("/messages", h.ListMessages)
		r.Post("/messages", h.PostMessage)
	})
}
