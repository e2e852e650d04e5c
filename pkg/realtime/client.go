package realtime

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// Client is one websocket connection. Clients only receive; anything they
// send besides control frames is discarded.
type Client struct {
	conn  *websocket.Conn
	hub   *Hub
	rooms []string
	send  chan []byte
	once  sync.Once
	done  chan struct{}
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Server upgrades HTTP requests and runs the client pumps.
type Server struct {
	hub          *Hub
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	sendBuffer   int
}

func NewServer(hub *Hub, cfg config.RealtimeConfig) *Server {
	s := &Server{
		hub:          hub,
		pingInterval: cfg.PingInterval,
		sendBuffer:   cfg.SendBuffer,
	}
	if s.pingInterval <= 0 {
		s.pingInterval = 54 * time.Second
	}
	if s.sendBuffer <= 0 {
		s.sendBuffer = 64
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return s
}

// Serve upgrades the request and blocks until the connection closes.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &Client{
		conn:  conn,
		hub:   s.hub,
		rooms: []string{UserRoom(userID)},
		send:  make(chan []byte, s.sendBuffer),
		done:  make(chan struct{}),
	}
	s.hub.join(c)
	defer s.hub.leave(c)

	go s.writePump(c)
	s.readPump(c)
	return nil
}

func (s *Server) readPump(c *Client) {
	defer c.close()

	pongWait := s.pingInterval * 10 / 9
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *Client) {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := map[string]struct{}{}
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if len(set) == 0 {
			u, err := url.Parse(origin)
			return err == nil && strings.EqualFold(u.Host, r.Host)
		}
		_, ok := set[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}
