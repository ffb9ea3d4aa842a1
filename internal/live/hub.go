// Package live pushes session changes to browser tabs over websockets.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ashureev/mathtutor/internal/domain"
	"github.com/ashureev/mathtutor/internal/identity"
	"github.com/ashureev/mathtutor/internal/session"
	"github.com/coder/websocket"
)

// Event types sent to subscribers.
const (
	EventSnapshot       = "session_snapshot"
	EventSessionChanged = "session_changed"
	EventReplyReceived  = "reply_received"
	EventReplyFailed    = "reply_failed"
	EventPong           = "pong"
)

const (
	sendQueueSize = 32
	writeTimeout  = 5 * time.Second
)

// ErrorBody is the error carried by a reply_failed event.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Event is one message pushed to a subscriber.
type Event struct {
	Type    string            `json:"type"`
	Change  *session.Change   `json:"change,omitempty"`
	Message *domain.Message   `json:"message,omitempty"`
	Error   *ErrorBody        `json:"error,omitempty"`
	Session *session.Snapshot `json:"session,omitempty"`
}

// SnapshotFunc returns the current state of the session identified by key.
type SnapshotFunc func(key string) session.Snapshot

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	// Set once, before done is closed.
	code   websocket.StatusCode
	reason string
}

func newSubscriber(conn *websocket.Conn) *subscriber {
	return &subscriber{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
}

// stop asks the subscriber's writer to close the connection with code. It
// never blocks; the close handshake runs on the connection's own goroutine.
func (s *subscriber) stop(code websocket.StatusCode, reason string) {
	s.once.Do(func() {
		s.code = code
		s.reason = reason
		close(s.done)
	})
}

// enqueue queues data without blocking and reports whether it was accepted.
func (s *subscriber) enqueue(data []byte) bool {
	select {
	case s.send <- data:
		return true
	case <-s.done:
		return true
	default:
		return false
	}
}

// Hub tracks one websocket subscriber per session key.
type Hub struct {
	mu       sync.RWMutex
	active   map[string]*subscriber
	snapshot SnapshotFunc
	origins  []string
	logger   *slog.Logger
}

// NewHub creates a hub. snapshot supplies the state sent when a tab
// connects; origins are the accepted websocket origin patterns.
func NewHub(snapshot SnapshotFunc, origins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		active:   make(map[string]*subscriber),
		snapshot: snapshot,
		origins:  originPatterns(origins),
		logger:   logger,
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active)
}

func (h *Hub) register(key string, sub *subscriber) {
	h.mu.Lock()
	existing := h.active[key]
	h.active[key] = sub
	h.mu.Unlock()

	if existing != nil {
		existing.stop(websocket.StatusNormalClosure, "session replaced")
	}
	h.logger.Info("Live subscriber registered", "session_key", key)
}

func (h *Hub) unregister(key string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.active[key]; ok && current == sub {
		delete(h.active, key)
		h.logger.Info("Live subscriber unregistered", "session_key", key)
	}
}

// Publish queues ev for the subscriber of key. It never blocks; an event
// for a subscriber whose queue is full is dropped.
func (h *Hub) Publish(key string, ev Event) {
	h.mu.RLock()
	sub := h.active[key]
	h.mu.RUnlock()
	if sub == nil {
		return
	}

	h.deliver(sub, key, ev)
}

func (h *Hub) deliver(sub *subscriber, key string, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode live event", "type", ev.Type, "error", err)
		return
	}
	if !sub.enqueue(data) {
		h.logger.Warn("Live subscriber queue full, dropping event", "session_key", key, "type", ev.Type)
	}
}

// PublishChanges sends one session_changed event per change, each carrying
// the snapshot taken after the whole operation.
func (h *Hub) PublishChanges(key string, changes []session.Change, snap session.Snapshot) {
	for i := range changes {
		h.Publish(key, Event{Type: EventSessionChanged, Change: &changes[i], Session: &snap})
	}
}

// CloseSession disconnects the subscriber of key, if any.
func (h *Hub) CloseSession(key string) {
	h.mu.Lock()
	sub := h.active[key]
	delete(h.active, key)
	h.mu.Unlock()

	if sub != nil {
		sub.stop(websocket.StatusGoingAway, "session expired")
		h.logger.Info("Live subscriber closed", "session_key", key)
	}
}

// CloseAll disconnects every subscriber. It returns without waiting for
// the close handshakes.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	subs := h.active
	h.active = make(map[string]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop(websocket.StatusGoingAway, "server shutting down")
	}
}

// originPatterns turns configured origins such as https://tutor.example.com
// into the host patterns websocket.Accept matches against.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

type clientMessage struct {
	Type string `json:"type"`
}

// ServeHTTP upgrades the request and streams events for the caller's session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	key := session.Key(userID, sessionID)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("Failed to accept websocket", "user_id", userID, "error", err)
		return
	}

	sub := newSubscriber(conn)
	h.register(key, sub)
	defer h.unregister(key, sub)

	ctx := r.Context()
	if h.snapshot != nil {
		snap := h.snapshot(key)
		h.deliver(sub, key, Event{Type: EventSnapshot, Session: &snap})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, sub, userID)
	}()

	h.readLoop(ctx, sub, key, userID)
	sub.stop(websocket.StatusNormalClosure, "session ended")
	<-writerDone
}

func (h *Hub) readLoop(ctx context.Context, sub *subscriber, key, userID string) {
	for {
		_, data, err := sub.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				h.logger.Debug("Websocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				h.logger.Debug("Websocket read ended", "user_id", userID, "error", err)
			}
			return
		}
		h.handleMessage(sub, key, data)
	}
}

// handleMessage answers a client message on the connection it came from.
func (h *Hub) handleMessage(sub *subscriber, key string, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Type == "ping" {
		h.deliver(sub, key, Event{Type: EventPong})
	}
}

// writeLoop owns every write to the connection, including the close
// handshake once the subscriber is stopped.
func (h *Hub) writeLoop(ctx context.Context, sub *subscriber, userID string) {
	for {
		select {
		case data := <-sub.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := sub.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug("Websocket write error", "user_id", userID, "error", err)
				sub.stop(websocket.StatusInternalError, "write failed")
				_ = sub.conn.CloseNow()
				return
			}
		case <-sub.done:
			_ = sub.conn.Close(sub.code, sub.reason)
			return
		}
	}
}
