package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
	sendBufferSize = 64
)

// Hub is the websocket implementation of Transport. It owns every client
// connection and the room membership index.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	handler Handler
	conns   map[string]*conn
	rooms   map[string]map[string]*conn
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
		rooms: make(map[string]map[string]*conn),
	}
}

// SetHandler wires the inbound message handler. Must be called before the
// hub accepts its first connection.
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
}

// Serve upgrades an HTTP request to a websocket connection and pumps
// messages until the peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "realtime: upgrade failed", "error", err)
		return
	}

	c := &conn{
		id:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	go c.writePump()
	h.readPump(c)
}

func (h *Hub) readPump(c *conn) {
	defer h.drop(c)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("realtime: read failed", "conn", c.id, "error", err)
			}
			return
		}

		var e Envelope
		if err := json.Unmarshal(msg, &e); err != nil || e.Event == "" {
			// Unparseable frames are dropped without a response.
			slog.Debug("realtime: dropping malformed message", "conn", c.id, "error", err)
			continue
		}

		h.mu.RLock()
		handler := h.handler
		h.mu.RUnlock()
		if handler != nil {
			handler.HandleMessage(context.Background(), c.id, e)
		}
	}
}

// drop removes the connection from every room and notifies the handler.
func (h *Hub) drop(c *conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	for room, members := range h.rooms {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	handler := h.handler
	h.mu.Unlock()

	c.close()

	if handler != nil {
		handler.HandleDisconnect(context.Background(), c.id)
	}
}

func (h *Hub) Subscribe(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*conn)
	}
	h.rooms[roomID][connID] = c
}

func (h *Hub) Unsubscribe(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) SendToConnection(ctx context.Context, connID, event string, data any) {
	b, err := encode(event, data)
	if err != nil {
		slog.ErrorContext(ctx, "realtime: encode failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	c, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		c.enqueue(ctx, b)
	}
}

func (h *Hub) BroadcastToRoom(ctx context.Context, roomID, event string, data any) {
	b, err := encode(event, data)
	if err != nil {
		slog.ErrorContext(ctx, "realtime: encode failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	members := make([]*conn, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.enqueue(ctx, b)
	}
}

func encode(event string, data any) ([]byte, error) {
	d, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", event, err)
	}

	return json.Marshal(Envelope{Event: event, Data: d})
}

type conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *conn) enqueue(ctx context.Context, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- b:
	default:
		// Slow consumer, drop the frame rather than block a broadcast.
		slog.WarnContext(ctx, "realtime: send buffer full, dropping frame", "conn", c.id)
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
