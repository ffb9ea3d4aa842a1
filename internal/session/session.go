// Package session owns the per-user tutoring state: the problem set, the
// current problem, the transcript, the view mode and the backend selection.
package session

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
)

const noProblem = -1

// Phase is the reply state of a session.
type Phase string

const (
	PhaseNoProblem     Phase = "no_problem"
	PhaseIdle          Phase = "idle"
	PhaseAwaitingReply Phase = "awaiting_reply"
)

// Session is single-owner state. It does no locking of its own; Manager
// serializes access.
type Session struct {
	problems   []string
	current    int
	transcript []domain.Message
	mode       domain.Mode
	backend    domain.BackendID
	credential string

	awaiting bool
	// epoch increments whenever the transcript is discarded, invalidating
	// outstanding reply tickets.
	epoch uint64

	lastActive time.Time
}

// New creates an empty session in author mode with the given backend selected.
func New(backend domain.BackendID) *Session {
	return &Session{
		current:    noProblem,
		mode:       domain.ModeAuthor,
		backend:    backend,
		lastActive: time.Now(),
	}
}

// NewSeeded creates a session whose problem set starts with a copy of seed.
// No problem is selected.
func NewSeeded(backend domain.BackendID, seed []string) *Session {
	s := New(backend)
	s.problems = slices.Clone(seed)
	return s
}

// AddProblem appends a problem and makes it current.
func (s *Session) AddProblem(text string) (Change, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Change{}, fmt.Errorf("problem text is empty: %w", ErrValidation)
	}
	s.problems = append(s.problems, text)
	s.current = len(s.problems) - 1
	s.resetTranscript()
	return s.change(ChangeProblemAdded, true, true), nil
}

// DeleteProblem removes the problem at index and re-packs the rest. The
// transcript is always discarded. Deleting the current problem clears the
// selection; deleting an earlier one keeps the same problem selected.
func (s *Session) DeleteProblem(index int) (Change, error) {
	if !s.validIndex(index) {
		return Change{}, fmt.Errorf("delete problem %d of %d: %w", index, len(s.problems), ErrIndex)
	}
	s.problems = slices.Delete(s.problems, index, index+1)
	switch {
	case s.current == index:
		s.current = noProblem
	case s.current > index:
		s.current--
	}
	if !s.validIndex(s.current) {
		s.current = noProblem
	}
	s.resetTranscript()
	return s.change(ChangeProblemDeleted, true, true), nil
}

// SelectProblem makes index current and discards the transcript, even when
// index is already current.
func (s *Session) SelectProblem(index int) (Change, error) {
	if !s.validIndex(index) {
		return Change{}, fmt.Errorf("select problem %d of %d: %w", index, len(s.problems), ErrIndex)
	}
	s.current = index
	s.resetTranscript()
	return s.change(ChangeProblemSelected, false, true), nil
}

// SetMode switches between author and learner views.
func (s *Session) SetMode(mode domain.Mode) (Change, error) {
	if mode != domain.ModeAuthor && mode != domain.ModeLearner {
		return Change{}, fmt.Errorf("mode %q: %w", mode, ErrValidation)
	}
	s.touch()
	s.mode = mode
	return s.change(ChangeModeSet, false, false), nil
}

// AppendMessage adds a message to the end of the transcript. Consecutive
// messages from the same role are allowed.
func (s *Session) AppendMessage(role domain.Role, text string) (domain.Message, Change, error) {
	if !role.Valid() {
		return domain.Message{}, Change{}, fmt.Errorf("role %q: %w", role, ErrValidation)
	}
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, Change{}, fmt.Errorf("message text is empty: %w", ErrValidation)
	}
	s.touch()
	msg := domain.NewMessage(role, text)
	s.transcript = append(s.transcript, msg)
	return msg, s.change(ChangeMessageAppended, false, false), nil
}

// SetBackend stores the backend selection and its credential. The
// credential is not checked here; a missing one surfaces on the next reply.
func (s *Session) SetBackend(id domain.BackendID, credential string) (Change, error) {
	if !slices.Contains(domain.Backends(), id) {
		return Change{}, fmt.Errorf("backend %q: %w", id, ErrValidation)
	}
	s.touch()
	s.backend = id
	s.credential = credential
	return s.change(ChangeBackendSet, false, false), nil
}

// Problems returns a copy of the problem set.
func (s *Session) Problems() []string { return slices.Clone(s.problems) }

// Transcript returns a copy of the transcript.
func (s *Session) Transcript() []domain.Message { return slices.Clone(s.transcript) }

// CurrentIndex returns the selected problem index, if any.
func (s *Session) CurrentIndex() (int, bool) {
	if s.current == noProblem {
		return 0, false
	}
	return s.current, true
}

// CurrentProblem returns the selected problem text, if any.
func (s *Session) CurrentProblem() (string, bool) {
	if s.current == noProblem {
		return "", false
	}
	return s.problems[s.current], true
}

// Mode returns the active view mode.
func (s *Session) Mode() domain.Mode { return s.mode }

// Backend returns the selected backend.
func (s *Session) Backend() domain.BackendID { return s.backend }

// HasCredential reports whether a non-blank credential is stored.
func (s *Session) HasCredential() bool { return strings.TrimSpace(s.credential) != "" }

// Phase reports where the session is in the reply state machine.
func (s *Session) Phase() Phase {
	switch {
	case s.current == noProblem:
		return PhaseNoProblem
	case s.awaiting:
		return PhaseAwaitingReply
	default:
		return PhaseIdle
	}
}

// LastActive returns the time of the last mutation.
func (s *Session) LastActive() time.Time { return s.lastActive }

func (s *Session) validIndex(i int) bool {
	return i >= 0 && i < len(s.problems)
}

func (s *Session) resetTranscript() {
	s.touch()
	s.transcript = nil
	s.awaiting = false
	s.epoch++
}

func (s *Session) touch() { s.lastActive = time.Now() }

func (s *Session) change(kind ChangeKind, problemsChanged, cleared bool) Change {
	c := Change{Kind: kind, ProblemsChanged: problemsChanged, TranscriptCleared: cleared}
	if i, ok := s.CurrentIndex(); ok {
		c.CurrentIndex = &i
	}
	return c
}
