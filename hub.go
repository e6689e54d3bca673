package main

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadLimit  = 1 << 16
	wsPongWait   = 60 * time.Second
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 16
)

var wsPingPeriod = 30 * time.Second

// ServerEvent is the generic frame pushed to websocket clients.
type ServerEvent struct {
	Type string `json:"type"` // "info" | "error" | "direct_message"
	Data any    `json:"data,omitempty"`
}

// Client is one websocket connection. key is the hub group it belongs to:
// a room id for the room hub, a founder id for the message hub.
type Client struct {
	key       int
	founderID int
	conn      *websocket.Conn
	send      chan any

	pingEvery time.Duration

	// heartbeat runs on the read goroutine for pongs and inbound frames,
	// at most once per beatEvery.
	heartbeat func()
	beatEvery time.Duration
	lastBeat  time.Time
}

func newClient(key, founderID int, conn *websocket.Conn) *Client {
	return &Client{
		key:       key,
		founderID: founderID,
		conn:      conn,
		send:      make(chan any, wsSendBuffer),
		pingEvery: wsPingPeriod,
		beatEvery: presenceTTL / 2,
		lastBeat:  time.Now(),
	}
}

func (c *Client) beat() {
	if c.heartbeat == nil || time.Since(c.lastBeat) < c.beatEvery {
		return
	}
	c.lastBeat = time.Now()
	c.heartbeat()
}

// Hub fans frames out to every client registered under a key.
type Hub struct {
	clientsByKey map[int]map[*Client]bool
	mu           sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clientsByKey: make(map[int]map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByKey[c.key] == nil {
		h.clientsByKey[c.key] = make(map[*Client]bool)
	}
	h.clientsByKey[c.key][c] = true
}

// unregister removes c and reports whether no other client of the same
// founder remains under c.key.
func (h *Hub) unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers, ok := h.clientsByKey[c.key]
	if !ok {
		return true
	}
	delete(peers, c)
	if len(peers) == 0 {
		delete(h.clientsByKey, c.key)
		return true
	}
	for other := range peers {
		if other.founderID == c.founderID {
			return false
		}
	}
	return true
}

// broadcast queues frame for every client under key. Slow clients with a
// full buffer miss the frame.
func (h *Hub) broadcast(key int, frame any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clientsByKey[key] {
		select {
		case c.send <- frame:
		default:
			logger.Debug("websocket buffer full, dropping frame", "key", key, "founder_id", c.founderID)
		}
	}
}

func (h *Hub) count(key int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsByKey[key])
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkWSOrigin,
}

// checkWSOrigin accepts non-browser clients and the configured CORS origins.
func checkWSOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(allowedOrigins, origin)
}

var (
	roomHub    = newHub()
	messageHub = newHub()
)

// readLoop reads frames until the connection fails and hands each one to
// onFrame. It owns the read deadline and pong handling. Pongs and frames
// both count as liveness for c.heartbeat.
func readLoop(c *Client, onFrame func(payload []byte)) {
	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.beat()
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", "founder_id", c.founderID, "err", err)
			}
			return
		}
		c.beat()
		if onFrame != nil {
			onFrame(payload)
		}
	}
}

// clientWriter drains c.send until it is closed. The hub must no longer
// reference c by then.
func clientWriter(c *Client) {
	ticker := time.NewTicker(c.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend queues a frame for a single client without blocking.
func (c *Client) trySend(frame any) {
	select {
	case c.send <- frame:
	default:
	}
}
