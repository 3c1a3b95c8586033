package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/assetline/internal/validation"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period. A ping that is not answered
	// within writeWait drops the client.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 64
)

// Message is pushed to every connected browser.
type Message struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message types understood by the injected client.
const (
	MessageReload     = "reload"
	MessageCSS        = "css"
	MessageBuildError = "build_error"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *hub
}

type hub struct {
	server     *Server
	clients    map[*websocket.Conn]*client
	register   chan *client
	unregister chan *websocket.Conn
	broadcast  chan []byte
	count      chan chan int
	done       chan struct{}
}

func newHub(s *Server) *hub {
	return &hub{
		server:     s,
		clients:    make(map[*websocket.Conn]*client),
		register:   make(chan *client),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, sendBuffer),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// run owns the client set until ctx ends, then closes every connection.
func (h *hub) run(ctx context.Context) {
	logger := h.server.logger
	defer func() {
		for conn, c := range h.clients {
			close(c.send)
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		}
		h.clients = nil
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c.conn] = c
			logger.Debug(ctx, "Client connected", "clients", len(h.clients))

		case conn := <-h.unregister:
			if c, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				close(c.send)
				logger.Debug(ctx, "Client disconnected", "clients", len(h.clients))
			}

		case message := <-h.broadcast:
			for conn, c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow client; drop it rather than block the hub.
					delete(h.clients, conn)
					close(c.send)
					conn.Close(websocket.StatusPolicyViolation, "client too slow")
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// send queues msg for every client. It never blocks once the hub stopped.
func (h *hub) send(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		data = []byte(`{"type":"reload"}`)
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// clientCount returns the number of connected clients, or zero once the hub
// stopped.
func (h *hub) clientCount() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (s *Server) handleLiveReload(w http.ResponseWriter, r *http.Request) {
	origin, ok := s.checkOrigin(r)
	if !ok {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{origin},
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), hub: s.hub}
	select {
	case s.hub.register <- c:
	case <-s.hub.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go c.writePump()
	c.readPump()
}

// checkOrigin accepts browsers on the dev server's own address and returns
// the origin host to hand to the websocket handshake.
func (s *Server) checkOrigin(r *http.Request) (string, bool) {
	port := strconv.Itoa(s.cfg.Server.Port)
	host, err := validation.OriginHost(r.Header.Get("Origin"),
		r.Host,
		s.addr(),
		"localhost:"+port,
		"127.0.0.1:"+port,
	)
	if err != nil {
		s.logger.Debug(r.Context(), "Rejected live-reload connection", "reason", err.Error())
		return "", false
	}
	return host, true
}

// readPump discards client messages; it exists to process pongs and notice
// closed connections.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c.conn:
		case <-c.hub.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	// Reading with a deadline would close the connection on timeout, so
	// dead peers are detected by the pings in writePump instead.
	ctx := context.Background()
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
