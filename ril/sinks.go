package ril

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

// ChanSink delivers to Go channels. Sends never block; events that do not
// fit are dropped and counted.
type ChanSink struct {
	Completions   chan Completion
	Notifications chan Notification

	mu      sync.Mutex
	dropped int
}

func NewChanSink(size int) *ChanSink {
	return &ChanSink{
		Completions:   make(chan Completion, size),
		Notifications: make(chan Notification, size),
	}
}

func (s *ChanSink) Completion(_ context.Context, c Completion) error {
	select {
	case s.Completions <- c:
	default:
		s.drop()
	}
	return nil
}

func (s *ChanSink) Notification(_ context.Context, n Notification) error {
	select {
	case s.Notifications <- n:
	default:
		s.drop()
	}
	return nil
}

func (s *ChanSink) drop() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

// Dropped is the number of events that did not fit.
func (s *ChanSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Envelope frames events on streaming sinks.
type Envelope struct {
	Type         string        `json:"type"`
	Completion   *Completion   `json:"completion,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

const (
	EnvelopeCompletion   = "completion"
	EnvelopeNotification = "notification"
)

const (
	hubSendBuffer = 64
	hubWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub streams every event to connected websocket clients. Clients that
// fall behind lose events.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger.With("component", "hub"),
		clients: make(map[*hubClient]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := &hubClient{conn: conn, send: make(chan []byte, hubSendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("client connected", "remote", r.RemoteAddr)

	go h.write(c)
	// Reading detects the close; clients send nothing else.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
	h.logger.Info("client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) write(c *hubClient) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Completion(_ context.Context, c Completion) error {
	return h.broadcast(Envelope{Type: EnvelopeCompletion, Completion: &c})
}

func (h *Hub) Notification(_ context.Context, n Notification) error {
	return h.broadcast(Envelope{Type: EnvelopeNotification, Notification: &n})
}

func (h *Hub) broadcast(e Envelope) error {
	msg, err := json.Marshal(e)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("client too slow, dropping event", "type", e.Type)
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}

// Publisher is the publishing side of a NATS connection.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSSink publishes events to <prefix>.completion.<kind> and
// <prefix>.notification.<kind>.
type NATSSink struct {
	pub    Publisher
	prefix string
}

func NewNATSSink(pub Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "modemctl"
	}
	return &NATSSink{pub: pub, prefix: prefix}
}

func (s *NATSSink) Completion(_ context.Context, c Completion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.pub.Publish(s.prefix+".completion."+c.Kind, data)
}

func (s *NATSSink) Notification(_ context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.pub.Publish(s.prefix+".notification."+n.Kind, data)
}

// ConnectNATS dials url and keeps reconnecting for the life of the
// process.
func ConnectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return nats.Connect(url,
		nats.Name("modemctl"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
}
