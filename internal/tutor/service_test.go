package tutor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/session"
)

type fakeRecorder struct {
	mu    sync.Mutex
	calls []domain.TutorCall
}

func (f *fakeRecorder) RecordTutorCall(_ context.Context, c *domain.TutorCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, *c)
	return nil
}

func (f *fakeRecorder) last(t *testing.T) domain.TutorCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no call recorded")
	}
	return f.calls[len(f.calls)-1]
}

type fixture struct {
	sessions *session.Manager
	backend  *fakeBackend
	recorder *fakeRecorder
	svc      *Service
}

func newFixture(backend *fakeBackend) *fixture {
	sessions := session.NewManager(domain.BackendClaude, nil)
	gw := NewGateway(0, nil).
		Register(domain.BackendClaude, backend).
		Register(domain.BackendChatGPT, backend)
	rec := &fakeRecorder{}
	return &fixture{
		sessions: sessions,
		backend:  backend,
		recorder: rec,
		svc:      NewService(sessions, gw, rec, nil),
	}
}

func (f *fixture) do(t *testing.T, fn func(*session.Session) error) {
	t.Helper()
	if err := f.sessions.Do(session.Key("u", "s"), fn); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) send(text string) (SendResult, error) {
	return f.svc.Send(context.Background(), SendRequest{UserID: "u", SessionID: "s", Text: text})
}

func TestSendAppendsLearnerAndTutor(t *testing.T) {
	f := newFixture(&fakeBackend{reply: "Good start! What are we adding to 3?"})
	f.do(t, func(s *session.Session) error {
		if _, err := s.AddProblem("Maria has 3 apples..."); err != nil {
			return err
		}
		_, err := s.SetBackend(domain.BackendChatGPT, "sk-test")
		return err
	})

	res, err := f.send("I think we add")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Applied || res.Reply == nil || res.Learner == nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	tr := res.Snapshot.Transcript
	if len(tr) != 2 || tr[0].Role != domain.RoleLearner || tr[1].Role != domain.RoleTutor {
		t.Fatalf("unexpected transcript: %+v", tr)
	}
	if tr[1].Content != "Good start! What are we adding to 3?" {
		t.Fatalf("reply must be verbatim, got %q", tr[1].Content)
	}
	if res.Snapshot.Phase != session.PhaseIdle {
		t.Fatalf("expected idle, got %q", res.Snapshot.Phase)
	}
	// The backend saw only the learner message.
	if c := f.backend.lastCall(); len(c.messages) != 1 || c.messages[0].Role != ChatRoleUser {
		t.Fatalf("unexpected backend messages: %+v", c.messages)
	}
	if rec := f.recorder.last(t); rec.Outcome != domain.CallOK || rec.Backend != domain.BackendChatGPT || rec.Model != "fake-model" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

// Scenario: setBackend("chatgpt", "") then send.
func TestSendWithoutCredentialKeepsLearnerMessage(t *testing.T) {
	f := newFixture(&fakeBackend{reply: "unused"})
	f.do(t, func(s *session.Session) error {
		if _, err := s.AddProblem("p"); err != nil {
			return err
		}
		_, err := s.SetBackend(domain.BackendChatGPT, "")
		return err
	})

	res, err := f.send("help")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	tr := res.Snapshot.Transcript
	if len(tr) != 1 || tr[0].Role != domain.RoleLearner || tr[0].Content != "help" {
		t.Fatalf("expected only the learner message, got %+v", tr)
	}
	if res.Snapshot.Phase != session.PhaseIdle {
		t.Fatalf("expected idle after failure, got %q", res.Snapshot.Phase)
	}
	if f.backend.callCount() != 0 {
		t.Fatal("backend must not be contacted")
	}
	if rec := f.recorder.last(t); rec.Outcome != domain.CallConfigurationError {
		t.Fatalf("unexpected outcome: %q", rec.Outcome)
	}
}

func TestSendBackendErrorKeepsLearnerMessage(t *testing.T) {
	f := newFixture(&fakeBackend{err: &BackendError{StatusCode: 401, Message: "invalid api key"}})
	f.do(t, func(s *session.Session) error {
		if _, err := s.AddProblem("p"); err != nil {
			return err
		}
		_, err := s.SetBackend(domain.BackendClaude, "bad")
		return err
	})

	res, err := f.send("first try")
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if len(res.Snapshot.Transcript) != 1 || res.Reply != nil {
		t.Fatalf("expected learner message only, got %+v", res.Snapshot.Transcript)
	}

	// The learner may retry by sending again; nothing was retried for them.
	if _, err := f.send("second try"); err == nil {
		t.Fatal("expected another failure")
	}
	if f.backend.callCount() != 2 {
		t.Fatalf("expected one call per send, got %d", f.backend.callCount())
	}
	if rec := f.recorder.last(t); rec.Outcome != domain.CallBackendError || rec.StatusCode != 401 {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestSendValidation(t *testing.T) {
	f := newFixture(&fakeBackend{reply: "x"})

	if _, err := f.send("hello"); !errors.Is(err, session.ErrNoProblem) {
		t.Fatalf("expected ErrNoProblem, got %v", err)
	}

	f.do(t, func(s *session.Session) error {
		_, err := s.AddProblem("p")
		return err
	})
	res, err := f.send("   ")
	if !errors.Is(err, session.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(res.Snapshot.Transcript) != 0 {
		t.Fatal("blank message must not be appended")
	}
}

func TestSendRejectsOverlappingReplies(t *testing.T) {
	backend := &fakeBackend{reply: "ok", block: make(chan struct{})}
	f := newFixture(backend)
	f.do(t, func(s *session.Session) error {
		if _, err := s.AddProblem("p"); err != nil {
			return err
		}
		_, err := s.SetBackend(domain.BackendClaude, "k")
		return err
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.send("first")
		done <- err
	}()
	waitForPhase(t, f, session.PhaseAwaitingReply)

	if _, err := f.send("second"); !errors.Is(err, session.ErrReplyPending) {
		t.Fatalf("expected ErrReplyPending, got %v", err)
	}
	close(backend.block)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestSendDiscardsReplyAfterProblemSwitch(t *testing.T) {
	backend := &fakeBackend{reply: "late", block: make(chan struct{})}
	f := newFixture(backend)
	f.do(t, func(s *session.Session) error {
		if _, err := s.AddProblem("a"); err != nil {
			return err
		}
		if _, err := s.AddProblem("b"); err != nil {
			return err
		}
		_, err := s.SetBackend(domain.BackendClaude, "k")
		return err
	})

	done := make(chan SendResult, 1)
	go func() {
		res, _ := f.send("about b")
		done <- res
	}()
	waitForPhase(t, f, session.PhaseAwaitingReply)

	f.do(t, func(s *session.Session) error {
		_, err := s.SelectProblem(0)
		return err
	})
	close(backend.block)

	res := <-done
	if res.Applied || res.Reply != nil {
		t.Fatalf("stale reply must be discarded: %+v", res)
	}
	if len(res.Snapshot.Transcript) != 0 {
		t.Fatalf("expected empty transcript, got %+v", res.Snapshot.Transcript)
	}
}

func waitForPhase(t *testing.T, f *fixture, want session.Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var got session.Phase
		f.do(t, func(s *session.Session) error {
			got = s.Phase()
			return nil
		})
		if got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %q", want)
}
