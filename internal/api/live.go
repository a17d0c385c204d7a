package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gwi.com/mermaid-studio/internal/core"
	"gwi.com/mermaid-studio/internal/store"
	"gwi.com/mermaid-studio/internal/viewport"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Diagram sources can be long.
	maxMessageSize = 1 << 20

	sendBufferSize = 256
)

// Client message types.
const (
	MsgEdit     = "edit"
	MsgTheme    = "theme"
	MsgZoomIn   = "zoom_in"
	MsgZoomOut  = "zoom_out"
	MsgReset    = "reset"
	MsgPing     = "ping"
	EventPong   = "pong"
	EventError  = "error"
	EventHello  = "hello"
	pointerPref = "pointer_"
	touchPref   = "touch_"
)

// ClientMessage is what a live client sends.
type ClientMessage struct {
	Type    string           `json:"type"`
	Code    string           `json:"code,omitempty"`
	Theme   string           `json:"theme,omitempty"`
	Button  int              `json:"button,omitempty"`
	X       float64          `json:"x,omitempty"`
	Y       float64          `json:"y,omitempty"`
	Touches []viewport.Point `json:"touches,omitempty"`
}

type serverMessage struct {
	Type      string              `json:"type"`
	Code      string              `json:"code,omitempty"`
	Theme     store.Theme         `json:"theme,omitempty"`
	Result    *core.RenderResult  `json:"result,omitempty"`
	View      *viewport.Transform `json:"view,omitempty"`
	Message   string              `json:"message,omitempty"`
	Timestamp string              `json:"timestamp,omitempty"`
}

// originChecker matches Origin headers against patterns that may hold a
// single "*" wildcard, like the CORS configuration.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, pattern := range allowed {
			if pattern == "*" || pattern == origin {
				return true
			}
			if i := strings.IndexByte(pattern, '*'); i >= 0 {
				prefix, suffix := pattern[:i], pattern[i+1:]
				if len(origin) >= len(prefix)+len(suffix) && strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
					return true
				}
			}
		}
		return false
	}
}

// Client is one live editor connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// mu guards closed; send is only written or closed while holding it.
	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, sendBufferSize)}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[live] read error: %v", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("Failed to parse message")
		return
	}

	studio := c.hub.studio
	var err error
	switch {
	case msg.Type == MsgEdit:
		err = studio.Edit(msg.Code)
	case msg.Type == MsgTheme:
		var theme store.Theme
		if theme, err = store.ParseTheme(msg.Theme); err == nil {
			err = studio.SetTheme(theme)
		}
	case msg.Type == MsgZoomIn:
		_, err = studio.ViewAction("zoom-in")
	case msg.Type == MsgZoomOut:
		_, err = studio.ViewAction("zoom-out")
	case msg.Type == MsgReset:
		_, err = studio.ViewAction("reset")
	case strings.HasPrefix(msg.Type, pointerPref), strings.HasPrefix(msg.Type, touchPref):
		_, _, err = studio.Pointer(core.PointerEvent{
			Type: msg.Type, Button: msg.Button, X: msg.X, Y: msg.Y, Touches: msg.Touches,
		})
	case msg.Type == MsgPing:
		c.enqueue(serverMessage{Type: EventPong, Timestamp: time.Now().UTC().Format(time.RFC3339)})
	default:
		log.Printf("[live] unknown message type: %s", msg.Type)
		c.sendError("Unknown message type " + msg.Type)
	}
	if err != nil {
		c.sendError(userMessage(err))
	}
}

func (c *Client) sendError(message string) {
	c.enqueue(serverMessage{Type: EventError, Message: message})
}

func (c *Client) enqueue(msg serverMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// trySend queues data without blocking. It reports false when the buffer is
// full or the client was already closed.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close ends the write pump. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub fans studio events out to every live client.
type Hub struct {
	studio   *core.StudioService
	upgrader websocket.Upgrader

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	done       chan struct{}
	stopOnce   sync.Once

	unsubscribe func()
}

func NewHub(studio *core.StudioService, allowedOrigins []string) *Hub {
	h := &Hub{
		studio: studio,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.unsubscribe = studio.Subscribe(h.onEvent)
	return h
}

func (h *Hub) onEvent(ev core.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[live] failed to encode event: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		log.Printf("[live] broadcast buffer full, dropping %s", ev.Type)
	}
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[live] client connected (total: %d)", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			log.Printf("[live] client disconnected (total: %d)", h.ClientCount())

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.trySend(message) {
					// Slow client, drop it.
					client.close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.unsubscribe()
		close(h.done)
	})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and greets the client with the current
// diagram, last render and view.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[live] upgrade failed: %v", err)
		return
	}
	client := newClient(h, conn)
	state := h.studio.State()
	res := h.studio.LastRender()
	view := h.studio.View()
	client.enqueue(serverMessage{Type: EventHello, Code: state.Code(), Theme: state.Theme(), Result: &res, View: &view})

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
