package session

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
)

func TestManager_GetOrCreateIsolatesSessions(t *testing.T) {
	m := NewManager(domain.BackendChatGPT, nil)
	a := Key("user1", "tab-1")
	b := Key("user1", "tab-2")

	if err := m.Do(a, func(s *Session) error {
		_, err := s.AddProblem("only in a")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	var problemsB int
	var backendB domain.BackendID
	if err := m.Do(b, func(s *Session) error {
		problemsB = len(s.Problems())
		backendB = s.Backend()
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if problemsB != 0 {
		t.Fatalf("expected isolated session, got %d problems", problemsB)
	}
	if backendB != domain.BackendChatGPT {
		t.Fatalf("expected default backend, got %q", backendB)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", m.Len())
	}
}

func TestManager_SeedsNewSessions(t *testing.T) {
	m := NewManager(domain.BackendClaude, []string{"seed one", "seed two"})
	var got []string
	if err := m.Do(Key("u", "t"), func(s *Session) error {
		got = s.Problems()
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "seed one" {
		t.Fatalf("unexpected seeded problems: %v", got)
	}
}

func TestManager_Evict(t *testing.T) {
	m := NewManager(domain.BackendClaude, nil)
	key := Key("u", "t")
	_ = m.Do(key, func(*Session) error { return nil })

	if !m.Evict(key) {
		t.Fatal("expected eviction")
	}
	if m.Evict(key) {
		t.Fatal("second eviction must report false")
	}
}

func TestManager_EvictIdle(t *testing.T) {
	m := NewManager(domain.BackendClaude, nil)
	idle := Key("u", "idle")
	busy := Key("u", "busy")
	_ = m.Do(idle, func(*Session) error { return nil })
	_ = m.Do(busy, func(s *Session) error {
		if _, err := s.AddProblem("p"); err != nil {
			return err
		}
		_, _, err := s.BeginReply()
		return err
	})

	evicted := m.evictIdle(time.Now().Add(2*time.Hour), time.Hour)
	if len(evicted) != 1 || evicted[0] != idle {
		t.Fatalf("expected only %q evicted, got %v", idle, evicted)
	}
	if m.Len() != 1 {
		t.Fatalf("expected awaiting session to survive, got %d sessions", m.Len())
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(domain.BackendClaude, nil)
	key := Key("concurrentUser", "tab")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Do(key, func(s *Session) error {
				_, err := s.AddProblem("p" + strconv.Itoa(i))
				return err
			})
		}(i)
	}
	wg.Wait()

	var n int
	_ = m.Do(key, func(s *Session) error {
		n = len(s.Problems())
		return nil
	})
	if n != 20 {
		t.Fatalf("expected 20 problems, got %d", n)
	}
}

func TestManager_DoAfterConcurrentEviction(t *testing.T) {
	m := NewManager(domain.BackendClaude, nil)
	key := Key("u", "racing")

	// Hold the session lock so Do stalls between lookup and locking.
	stale := m.getOrCreate(key)
	stale.mu.Lock()

	done := make(chan error, 1)
	go func() {
		done <- m.Do(key, func(s *Session) error {
			_, err := s.AddProblem("kept")
			return err
		})
	}()
	time.Sleep(50 * time.Millisecond)

	// Evict the way the reaper does while the lock is held.
	m.mu.Lock()
	stale.evicted = true
	delete(m.sessions, key)
	m.mu.Unlock()
	stale.mu.Unlock()

	if err := <-done; err != nil {
		t.Fatalf("Do: %v", err)
	}
	snap := m.Snapshot(key)
	if len(snap.Problems) != 1 || snap.Problems[0].Text != "kept" {
		t.Fatalf("registered session problems = %+v, want the problem added by Do", snap.Problems)
	}
	if len(stale.sess.Problems()) != 0 {
		t.Error("Do wrote to the evicted session")
	}
}
