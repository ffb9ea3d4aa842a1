package tutor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/session"
	"github.com/google/uuid"
)

// CallRecorder stores the audit record of a backend call.
type CallRecorder interface {
	RecordTutorCall(ctx context.Context, call *domain.TutorCall) error
}

type noopRecorder struct{}

func (noopRecorder) RecordTutorCall(context.Context, *domain.TutorCall) error { return nil }

// Service runs the learner-message flow: append, call the gateway, append
// the reply.
type Service struct {
	sessions *session.Manager
	gateway  *Gateway
	recorder CallRecorder
	logger   *slog.Logger
}

// NewService wires the session registry to the gateway. recorder may be nil.
func NewService(sessions *session.Manager, gateway *Gateway, recorder CallRecorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sessions: sessions,
		gateway:  gateway,
		recorder: recorder,
		logger:   logger,
	}
}

// SendRequest is a learner message addressed to a session.
type SendRequest struct {
	UserID    string
	SessionID string
	Text      string
}

// SendResult reports what the send did to the session, including on error.
type SendResult struct {
	Learner *domain.Message
	Reply   *domain.Message
	// Applied is false when the transcript was discarded while the reply
	// was in flight.
	Applied  bool
	Changes  []session.Change
	Snapshot session.Snapshot
}

// Send appends the learner's message, asks the selected backend for a reply
// and appends it. The learner message stays in the transcript whatever the
// outcome. Nothing is retried.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	key := session.Key(req.UserID, req.SessionID)
	var res SendResult
	var ticket session.ReplyTicket

	err := s.sessions.Do(key, func(sess *session.Session) error {
		if sess.Phase() == session.PhaseNoProblem {
			return session.ErrNoProblem
		}
		if sess.Phase() == session.PhaseAwaitingReply {
			return session.ErrReplyPending
		}
		msg, change, err := sess.AppendMessage(domain.RoleLearner, req.Text)
		if err != nil {
			return err
		}
		res.Learner = &msg
		res.Changes = append(res.Changes, change)

		t, change, err := sess.BeginReply()
		if err != nil {
			return err
		}
		ticket = t
		res.Changes = append(res.Changes, change)
		return nil
	})
	if err != nil {
		res.Snapshot = s.sessions.Snapshot(key)
		return res, err
	}

	started := time.Now()
	reply, replyErr := s.gateway.Reply(ctx, Request{
		Problem:    ticket.Problem,
		Transcript: ticket.Transcript,
		Backend:    ticket.Backend,
		Credential: ticket.Credential,
	})
	s.record(ctx, req, ticket, time.Since(started), replyErr)

	err = s.sessions.Do(key, func(sess *session.Session) error {
		if replyErr != nil {
			if change, ok := sess.AbortReply(ticket); ok {
				res.Changes = append(res.Changes, change)
			}
			res.Snapshot = sess.Snapshot()
			return nil
		}
		msg, change, applied, err := sess.CompleteReply(ticket, reply.Content)
		if err != nil {
			return err
		}
		res.Applied = applied
		if applied {
			res.Reply = &msg
			res.Changes = append(res.Changes, change)
		}
		res.Snapshot = sess.Snapshot()
		return nil
	})
	if err != nil {
		return res, err
	}
	if replyErr != nil {
		s.logger.Warn("Tutor reply failed",
			"user_id", req.UserID,
			"session_id", req.SessionID,
			"backend", ticket.Backend,
			"error", replyErr,
		)
		return res, replyErr
	}
	if !res.Applied {
		s.logger.Info("Discarded stale tutor reply", "user_id", req.UserID, "session_id", req.SessionID)
	}
	return res, nil
}

func (s *Service) record(ctx context.Context, req SendRequest, t session.ReplyTicket, d time.Duration, replyErr error) {
	call := &domain.TutorCall{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		SessionID:     req.SessionID,
		Backend:       t.Backend,
		Model:         s.gateway.Model(t.Backend),
		Outcome:       domain.CallOK,
		Duration:      d,
		TranscriptLen: len(t.Transcript),
		CreatedAt:     time.Now().UTC(),
	}
	var cfgErr *ConfigurationError
	var be *BackendError
	switch {
	case errors.As(replyErr, &cfgErr):
		call.Outcome = domain.CallConfigurationError
	case errors.As(replyErr, &be):
		call.Outcome = domain.CallBackendError
		call.StatusCode = be.StatusCode
	case replyErr != nil:
		call.Outcome = domain.CallBackendError
	}
	if err := s.recorder.RecordTutorCall(ctx, call); err != nil {
		s.logger.Warn("failed to record tutor call", "user_id", req.UserID, "call_id", call.ID, "error", err)
	}
}
