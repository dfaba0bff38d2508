package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/KimADR/smt-finalV2-sub001/internal/model"
	"github.com/KimADR/smt-finalV2-sub001/internal/push"
)

const (
	// replaySize bounds the event buffer served to polling clients.
	replaySize = 1024

	pingPeriod = 30 * time.Second
	writeWait  = 5 * time.Second
	pongWait   = 2 * pingPeriod
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans push events out to connected websocket clients, keeps a bounded
// replay buffer for polling clients, and forwards events to brokers.
type Hub struct {
	log        *zap.Logger
	publishers []Publisher

	mu      sync.Mutex
	seq     int64
	buffer  []model.PushEvent
	clients map[int64]map[*wsClient]struct{}
}

type wsClient struct {
	userID int64
	conn   *websocket.Conn
	send   chan push.Frame
}

// NewHub creates a hub forwarding to publishers.
func NewHub(log *zap.Logger, publishers ...Publisher) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:        log.Named("hub"),
		publishers: publishers,
		clients:    make(map[int64]map[*wsClient]struct{}),
	}
}

// Publish stamps ev with an id and sequence number and delivers it.
// Broker failures are logged, never returned.
func (h *Hub) Publish(ctx context.Context, ev model.PushEvent) model.PushEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Type == "" {
		ev.Type = model.EventNotificationCreated
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	h.mu.Lock()
	h.seq++
	ev.Seq = h.seq
	h.buffer = append(h.buffer, ev)
	if len(h.buffer) > replaySize {
		h.buffer = h.buffer[len(h.buffer)-replaySize:]
	}
	for c := range h.clients[ev.UserID] {
		select {
		case c.send <- push.Frame{Type: push.FrameEvent, Event: &ev}:
		default:
			h.log.Warn("websocket client too slow, dropping event",
				zap.Int64("user_id", ev.UserID),
				zap.String("event_id", ev.ID),
			)
		}
	}
	h.mu.Unlock()

	for _, p := range h.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			h.log.Warn("broker publish failed", zap.String("broker", p.Name()), zap.Error(err))
		}
	}
	return ev
}

// Since returns userID's buffered events with a sequence above after, and
// the cursor for the next call. A negative after only returns the cursor.
func (h *Hub) Since(userID, after int64) ([]model.PushEvent, int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	events := []model.PushEvent{}
	if after < 0 {
		return events, h.seq
	}
	for _, ev := range h.buffer {
		if ev.Seq > after && ev.UserID == userID {
			events = append(events, ev)
		}
	}
	return events, h.seq
}

// Clients returns the number of websocket connections for userID.
func (h *Hub) Clients(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Close closes every broker publisher.
func (h *Hub) Close() {
	for _, p := range h.publishers {
		if err := p.Close(); err != nil {
			h.log.Warn("closing publisher", zap.String("broker", p.Name()), zap.Error(err))
		}
	}
}

// ServeWS upgrades the request and streams userID's events until the peer
// goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsClient{userID: userID, conn: conn, send: make(chan push.Frame, sendBuffer)}
	h.register(c)
	defer h.unregister(c)

	done := make(chan struct{})
	go func() {
		h.readPump(c)
		close(done)
	}()
	h.writePump(c, done)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	h.log.Debug("websocket client registered", zap.Int64("user_id", c.userID), zap.Int("clients", len(set)))
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	c.conn.Close()
}

// readPump consumes pong frames and detects the peer going away.
func (h *Hub) readPump(c *wsClient) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket read ended", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var frame push.Frame
		if json.Unmarshal(data, &frame) == nil && frame.Type == push.FramePong {
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
	}
}

// writePump is the only writer on the connection.
func (h *Hub) writePump(c *wsClient, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var frame push.Frame
		select {
		case <-done:
			return
		case frame = <-c.send:
		case <-ticker.C:
			frame = push.Frame{Type: push.FramePing}
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(frame); err != nil {
			h.log.Debug("websocket write failed", zap.Int64("user_id", c.userID), zap.Error(err))
			return
		}
	}
}
