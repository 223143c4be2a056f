package realtime

import (
	"sync"

	"github.com/gorilla/websocket"
)

// subscriber is one connected websocket with its outbound queue. The
// mutex orders sends against the close: a publisher never touches the
// channel after shutdown flips closed.
type subscriber struct {
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// trySend queues one frame without blocking. It reports false when the
// subscriber is gone or its queue is full.
func (s *subscriber) trySend(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *subscriber) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// Hub tracks which subscribers belong to which scope (a per-user room or
// channel) and pushes frames to them. It stands in for the external
// realtime fabric behind both broadcaster implementations.
type Hub struct {
	mu         sync.RWMutex
	scopes     map[string]map[*subscriber]bool
	sendBuffer int
	closed     bool
}

// NewHub creates a hub. sendBuffer bounds each subscriber's outbound queue;
// a slow consumer whose queue is full drops frames rather than blocking the
// publisher.
func NewHub(sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		scopes:     make(map[string]map[*subscriber]bool),
		sendBuffer: sendBuffer,
	}
}

// Join registers a connection under a scope and starts its write pump. The
// returned leave func must be called when the connection ends.
func (h *Hub) Join(scope string, conn *websocket.Conn) (leave func()) {
	sub := &subscriber{conn: conn, send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.shutdown()
		return func() {}
	}
	if h.scopes[scope] == nil {
		h.scopes[scope] = make(map[*subscriber]bool)
	}
	h.scopes[scope][sub] = true
	h.mu.Unlock()

	go sub.writePump()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			if subs := h.scopes[scope]; subs != nil {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(h.scopes, scope)
				}
			}
			h.mu.Unlock()
			sub.shutdown()
		})
	}
}

// Publish pushes one frame to every subscriber of a scope. Full queues drop
// the frame for that subscriber only.
func (h *Hub) Publish(scope string, data []byte) {
	h.mu.RLock()
	snapshot := make([]*subscriber, 0, len(h.scopes[scope]))
	for sub := range h.scopes[scope] {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		if !sub.trySend(data) {
			log.Warn().Str("scope", scope).Msg("subscriber gone or queue full, dropping frame")
		}
	}
}

// SubscriberCount reports how many connections a scope currently has.
func (h *Hub) SubscriberCount(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.scopes[scope])
}

// Close tears down every subscriber connection.
func (h *Hub) Close() {
	h.mu.Lock()
	scopes := h.scopes
	h.scopes = make(map[string]map[*subscriber]bool)
	h.closed = true
	h.mu.Unlock()

	for _, subs := range scopes {
		for sub := range subs {
			sub.shutdown()
		}
	}
}

func (s *subscriber) writePump() {
	for data := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.conn.Close()
			return
		}
	}
	s.conn.Close()
}
