package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/ashureev/mathtutor/internal/live"
	"github.com/ashureev/mathtutor/internal/session"
	"github.com/ashureev/mathtutor/internal/tutor"
	"github.com/go-chi/chi/v5"
)

// replyTimeout bounds one tutor reply, including the backend call.
const replyTimeout = 2 * time.Minute

// ChangeResponse is returned by every session mutation.
type ChangeResponse struct {
	Change  session.Change   `json:"change"`
	Session session.Snapshot `json:"session"`
}

// MessageResponse is returned by a successful learner message.
type MessageResponse struct {
	Learner *domain.Message  `json:"learner"`
	Reply   *domain.Message  `json:"reply"`
	Applied bool             `json:"applied"`
	Session session.Snapshot `json:"session"`
}

type problemRequest struct {
	Text string `json:"text"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type backendRequest struct {
	Backend    string `json:"backend"`
	Credential string `json:"credential"`
}

type messageRequest struct {
	Text string `json:"text"`
}

// GetSession returns the caller's session snapshot.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.sessions.Snapshot(sessionKey(r)))
}

// ListMessages returns the transcript in order.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	snap := h.sessions.Snapshot(sessionKey(r))
	JSON(w, http.StatusOK, map[string]interface{}{
		"messages":      snap.Transcript,
		"current_index": snap.CurrentIndex,
	})
}

// AddProblem appends a problem and selects it.
func (h *Handler) AddProblem(w http.ResponseWriter, r *http.Request) {
	var req problemRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	h.mutate(w, r, http.StatusCreated, func(s *session.Session) (session.Change, error) {
		return s.AddProblem(req.Text)
	})
}

// DeleteProblem removes the problem at the URL index.
func (h *Handler) DeleteProblem(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, http.StatusOK, func(s *session.Session) (session.Change, error) {
		return s.DeleteProblem(index)
	})
}

// SelectProblem makes the problem at the URL index current.
func (h *Handler) SelectProblem(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, http.StatusOK, func(s *session.Session) (session.Change, error) {
		return s.SelectProblem(index)
	})
}

// SetMode switches between author and learner views.
func (h *Handler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", session.ErrValidation, err), nil)
		return
	}
	h.mutate(w, r, http.StatusOK, func(s *session.Session) (session.Change, error) {
		return s.SetMode(mode)
	})
}

// SetBackend selects the tutor backend and stores its credential. The
// credential is never echoed or logged.
func (h *Handler) SetBackend(w http.ResponseWriter, r *http.Request) {
	var req backendRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	id, err := domain.ParseBackendID(req.Backend)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", session.ErrValidation, err), nil)
		return
	}
	slog.Info("Tutor backend selected",
		"user_id", identity.UserIDFromContext(r.Context()),
		"session_id", identity.SessionIDFromContext(r.Context()),
		"backend", id,
		"has_credential", req.Credential != "",
	)
	h.mutate(w, r, http.StatusOK, func(s *session.Session) (session.Change, error) {
		return s.SetBackend(id, req.Credential)
	})
}

// PostMessage appends the learner's message and returns the tutor's reply.
// The backend call outlives the request so a reply still lands if the
// client goes away.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	key := session.Key(userID, sessionID)

	if !h.limiter.Allow(userID) {
		JSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded", Kind: KindRateLimited})
		return
	}

	var req messageRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	slog.Info("Tutor message received",
		"user_id", userID,
		"session_id", sessionID,
		"message_length", len(req.Text),
	)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), replyTimeout)
	defer cancel()

	res, err := h.service.Send(ctx, tutor.SendRequest{UserID: userID, SessionID: sessionID, Text: req.Text})
	if len(res.Changes) > 0 {
		h.notifier.PublishChanges(key, res.Changes, res.Snapshot)
	}
	if err != nil {
		if res.Learner != nil {
			_, kind := classify(err)
			h.notifier.Publish(key, live.Event{
				Type:    live.EventReplyFailed,
				Error:   &live.ErrorBody{Kind: kind, Message: err.Error()},
				Session: &res.Snapshot,
			})
		}
		snap := res.Snapshot
		writeError(w, r, err, &snap)
		return
	}
	if res.Reply != nil {
		h.notifier.Publish(key, live.Event{
			Type:    live.EventReplyReceived,
			Message: res.Reply,
			Session: &res.Snapshot,
		})
	}

	JSON(w, http.StatusOK, MessageResponse{
		Learner: res.Learner,
		Reply:   res.Reply,
		Applied: res.Applied,
		Session: res.Snapshot,
	})
}

// mutate applies fn to the caller's session, publishes the change and
// writes the result. On failure the unchanged snapshot is returned with
// the error.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, status int, fn func(*session.Session) (session.Change, error)) {
	key := sessionKey(r)
	var change session.Change
	var snap session.Snapshot
	err := h.sessions.Do(key, func(s *session.Session) error {
		c, err := fn(s)
		snap = s.Snapshot()
		change = c
		return err
	})
	if err != nil {
		writeError(w, r, err, &snap)
		return
	}
	h.notifier.PublishChanges(key, []session.Change{change}, snap)
	JSON(w, status, ChangeResponse{Change: change, Session: snap})
}

func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		JSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("problem index %q is not an integer", raw),
			Kind:  KindValidation,
		})
		return 0, false
	}
	return index, true
}
