package session

import (
	"fmt"

	"github.com/ashureev/mathtutor/internal/domain"
)

// ReplyTicket is a snapshot of everything a backend call needs, taken when
// the session enters the awaiting-reply phase.
type ReplyTicket struct {
	Problem    string
	Transcript []domain.Message
	Backend    domain.BackendID
	Credential string

	epoch uint64
}

// BeginReply moves the session into the awaiting-reply phase.
func (s *Session) BeginReply() (ReplyTicket, Change, error) {
	problem, ok := s.CurrentProblem()
	if !ok {
		return ReplyTicket{}, Change{}, ErrNoProblem
	}
	if s.awaiting {
		return ReplyTicket{}, Change{}, ErrReplyPending
	}
	s.awaiting = true
	s.touch()
	return ReplyTicket{
		Problem:    problem,
		Transcript: s.Transcript(),
		Backend:    s.backend,
		Credential: s.credential,
		epoch:      s.epoch,
	}, s.change(ChangeReplyStarted, false, false), nil
}

// CompleteReply appends the tutor reply for t. It reports false, appending
// nothing, when the transcript was discarded after t was issued.
func (s *Session) CompleteReply(t ReplyTicket, text string) (domain.Message, Change, bool, error) {
	if t.epoch != s.epoch {
		return domain.Message{}, Change{}, false, nil
	}
	s.awaiting = false
	msg, _, err := s.AppendMessage(domain.RoleTutor, text)
	if err != nil {
		return domain.Message{}, Change{}, false, fmt.Errorf("tutor reply: %w", err)
	}
	return msg, s.change(ChangeReplyCompleted, false, false), true, nil
}

// AbortReply leaves the awaiting-reply phase without touching the transcript.
func (s *Session) AbortReply(t ReplyTicket) (Change, bool) {
	if t.epoch != s.epoch {
		return Change{}, false
	}
	s.awaiting = false
	s.touch()
	return s.change(ChangeReplyAborted, false, false), true
}
