package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
)

// Key identifies a session by device identity and browser tab.
func Key(userID, sessionID string) string {
	return userID + ":" + sessionID
}

type entry struct {
	mu   sync.Mutex
	sess *Session
	// evicted is set under mu when the entry leaves the registry.
	evicted bool
}

// Manager holds the live sessions of all users. Each session is isolated
// and guarded by its own lock.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	backend  domain.BackendID
	seed     []string
}

// NewManager creates a registry whose new sessions select defaultBackend
// and start with a copy of seed as their problem set.
func NewManager(defaultBackend domain.BackendID, seed []string) *Manager {
	return &Manager{
		sessions: make(map[string]*entry),
		backend:  defaultBackend,
		seed:     slices.Clone(seed),
	}
}

// Do runs fn against the session for key, creating it if needed. fn runs
// under the session lock and must not block on I/O.
func (m *Manager) Do(key string, fn func(*Session) error) error {
	e := m.lock(key)
	defer e.mu.Unlock()
	return fn(e.sess)
}

// lock returns the registered entry for key with its lock held. An entry
// evicted between lookup and locking is skipped.
func (m *Manager) lock(key string) *entry {
	for {
		e := m.getOrCreate(key)
		e.mu.Lock()
		if !e.evicted {
			return e
		}
		e.mu.Unlock()
	}
}

// Snapshot returns the state of the session for key, creating it if needed.
func (m *Manager) Snapshot(key string) Snapshot {
	var snap Snapshot
	_ = m.Do(key, func(s *Session) error {
		snap = s.Snapshot()
		return nil
	})
	return snap
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Evict drops the session for key and reports whether it existed.
func (m *Manager) Evict(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[key]
	if !ok {
		return false
	}
	e.mu.Lock()
	e.evicted = true
	e.mu.Unlock()
	delete(m.sessions, key)
	slog.Info("Tutor session evicted", "session_key", key)
	return true
}

func (m *Manager) getOrCreate(key string) *entry {
	m.mu.RLock()
	e, ok := m.sessions[key]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[key]; ok {
		return e
	}
	e = &entry{sess: NewSeeded(m.backend, m.seed)}
	m.sessions[key] = e
	slog.Info("Tutor session created", "session_key", key, "seeded_problems", len(m.seed))
	return e
}

// EvictCallback is called for every session removed by the reaper.
type EvictCallback func(key string)

// StartReaper periodically evicts sessions idle for longer than ttl.
func (m *Manager) StartReaper(ctx context.Context, ttl, interval time.Duration, onEvict EvictCallback) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session reaper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				for _, key := range m.evictIdle(time.Now(), ttl) {
					if onEvict != nil {
						onEvict(key)
					}
				}
			case <-ctx.Done():
				slog.Info("Session reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (m *Manager) evictIdle(now time.Time, ttl time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted []string
	for key, e := range m.sessions {
		// A held lock means the session is in use right now.
		if !e.mu.TryLock() {
			continue
		}
		idle := now.Sub(e.sess.LastActive())
		awaiting := e.sess.Phase() == PhaseAwaitingReply
		expired := idle > ttl && !awaiting
		if expired {
			e.evicted = true
		}
		e.mu.Unlock()

		if expired {
			delete(m.sessions, key)
			evicted = append(evicted, key)
		}
	}
	if len(evicted) > 0 {
		slog.Info("Session reaper evicted idle sessions", "count", len(evicted))
	}
	return evicted
}
