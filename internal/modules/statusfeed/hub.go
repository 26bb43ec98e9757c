package statusfeed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fieldbook/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
)

// Event is one booking status change pushed to subscribers; the live
// counterpart of the polling fields.
type Event struct {
	BookingID int64                `json:"booking_id"`
	Status    domain.BookingStatus `json:"status"`
	JobNumber *int64               `json:"service_titan_job_number,omitempty"`
	Error     *string              `json:"service_titan_error,omitempty"`
}

// subscriber is a single connected dashboard client. All writes to the
// conn, pings included, go through the send channel and its writePump —
// gorilla/websocket allows only one concurrent writer.
type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans booking updates out to connected dashboard clients.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*subscriber),
	}
}

func (h *Hub) register(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[s.id] = s
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.subscribers[s.id]; ok && existing == s {
		delete(h.subscribers, s.id)
		close(s.send)
	}
}

// BookingUpdated implements the sync orchestrator's notifier.
func (h *Hub) BookingUpdated(b *domain.Booking) {
	h.Broadcast(Event{
		BookingID: b.ID,
		Status:    b.Status,
		JobNumber: b.ServiceTitanJobNumber,
		Error:     b.ServiceTitanError,
	})
}

// Broadcast queues the event for every subscriber. Delivery is
// best-effort: a client whose buffer is full misses the event and catches
// up through the polling endpoint.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subscribers {
		select {
		case s.send <- data:
		default:
			// client too slow, skip
		}
	}
}

// ServeWS registers the connection and runs its pumps; blocks until the
// client goes away.
func (h *Hub) ServeWS(subscriberID string, conn *websocket.Conn) {
	s := &subscriber{
		id:   subscriberID,
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.register(s)

	go h.writePump(s)
	h.readPump(s)
}

// readPump drains and discards inbound frames; the feed is
// one-directional. Returning unregisters the subscriber.
func (h *Hub) readPump(s *subscriber) {
	defer func() {
		h.unregister(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMsgSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the single writer for the connection: queued events, pings
// and the close frame.
func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers)
}

// Close drops every subscriber; their write pumps send the close frame.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.subscribers {
		delete(h.subscribers, id)
		close(s.send)
	}
}
