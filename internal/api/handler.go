// Package api provides HTTP handlers for the tutor API.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/mathtutor/internal/config"
	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/ashureev/mathtutor/internal/live"
	"github.com/ashureev/mathtutor/internal/session"
	"github.com/ashureev/mathtutor/internal/store"
	"github.com/ashureev/mathtutor/internal/tutor"
)

// Notifier delivers session events to connected tabs.
type Notifier interface {
	Publish(key string, ev live.Event)
	PublishChanges(key string, changes []session.Change, snap session.Snapshot)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, live.Event)                                {}
func (nopNotifier) PublishChanges(string, []session.Change, session.Snapshot) {}

// Handler serves the session, tutor and operational endpoints.
type Handler struct {
	repo     store.Repository
	sessions *session.Manager
	service  *tutor.Service
	gateway  *tutor.Gateway
	notifier Notifier
	limiter  *RateLimiter
	cfg      *config.Config
}

// NewHandler creates a Handler. notifier may be nil.
func NewHandler(repo store.Repository, sessions *session.Manager, service *tutor.Service, gateway *tutor.Gateway, notifier Notifier, cfg *config.Config) *Handler {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Handler{
		repo:     repo,
		sessions: sessions,
		service:  service,
		gateway:  gateway,
		notifier: notifier,
		limiter:  NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		cfg:      cfg,
	}
}

// Close stops background work owned by the handler.
func (h *Handler) Close() {
	h.limiter.Stop()
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

// Error kinds reported to clients.
const (
	KindValidation    = "validation_error"
	KindIndex         = "index_error"
	KindConfiguration = "configuration_error"
	KindBackend       = "backend_error"
	KindNoProblem     = "no_problem_selected"
	KindReplyPending  = "reply_pending"
	KindRateLimited   = "rate_limited"
	KindTooLarge      = "request_too_large"
	KindInternal      = "internal_error"
)

// ErrorResponse is the body of every failed session or tutor request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Kind    string            `json:"kind"`
	Session *session.Snapshot `json:"session,omitempty"`
}

// classify maps an error onto its HTTP status and client-facing kind.
func classify(err error) (int, string) {
	var cfgErr *tutor.ConfigurationError
	var backendErr *tutor.BackendError
	switch {
	case errors.Is(err, session.ErrValidation):
		return http.StatusBadRequest, KindValidation
	case errors.Is(err, session.ErrIndex):
		return http.StatusNotFound, KindIndex
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, KindConfiguration
	case errors.As(err, &backendErr):
		return http.StatusBadGateway, KindBackend
	case errors.Is(err, session.ErrNoProblem):
		return http.StatusConflict, KindNoProblem
	case errors.Is(err, session.ErrReplyPending):
		return http.StatusConflict, KindReplyPending
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

// writeError reports err with its classified status. Internal errors are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, snap *session.Snapshot) {
	status, kind := classify(err)
	msg := err.Error()
	if kind == KindInternal {
		slog.Error("Request failed",
			"user_id", identity.UserIDFromContext(r.Context()),
			"session_id", identity.SessionIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		msg = "internal error"
	}
	JSON(w, status, ErrorResponse{Error: msg, Kind: kind, Session: snap})
}

func sessionKey(r *http.Request) string {
	return session.Key(identity.UserIDFromContext(r.Context()), identity.SessionIDFromContext(r.Context()))
}

// decodeJSON reads a size-capped JSON body into v.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			JSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large", Kind: KindTooLarge})
			return false
		}
		JSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Kind: KindValidation})
		return false
	}
	return true
}
