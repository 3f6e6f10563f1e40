// Package framestream fans rendered avatar frames out to websocket renderers.
package framestream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/avatar3d"
	"github.com/normanking/cortexcompanion/internal/bus"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Config configures the hub
type Config struct {
	Addr     string
	Path     string
	Encoding string
	Buffer   int // frames queued per client before dropping
}

// Hub is a FrameSink that broadcasts each frame to every connected client.
type Hub struct {
	logger   zerolog.Logger
	config   Config
	encoder  Encoder
	upgrader websocket.Upgrader
	bus      *bus.EventBus

	mu      sync.RWMutex
	clients map[*client]struct{}

	dropped atomic.Uint64
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func NewHub(cfg Config, eventBus *bus.EventBus, logger zerolog.Logger) (*Hub, error) {
	enc, err := NewEncoder(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 8
	}
	if cfg.Path == "" {
		cfg.Path = "/frames"
	}
	return &Hub{
		logger:  logger.With().Str("component", "framestream").Logger(),
		config:  cfg,
		encoder: enc,
		upgrader: websocket.Upgrader{
			// renderers are local processes
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bus:     eventBus,
		clients: make(map[*client]struct{}),
	}, nil
}

// Publish encodes the frame once and queues it for each client. A client
// whose queue is full misses this frame.
func (h *Hub) Publish(f avatar3d.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	data, err := h.encoder.Encode(&f)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to encode frame")
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// Dropped counts frames skipped for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades a renderer connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.config.Buffer),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info().Str("client", c.id).Str("remote", r.RemoteAddr).Msg("Renderer connected")
	h.publish(bus.EventTypeRendererConnected, c.id)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	h.logger.Info().Str("client", c.id).Msg("Renderer disconnected")
	h.publish(bus.EventTypeRendererDisconnected, c.id)
}

// readPump only services control frames; renderers do not send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("client", c.id).Msg("Renderer read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(h.encoder.MessageType(), data); err != nil {
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

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
	}
}

// Serve listens on the configured address until ctx is done.
func (h *Hub) Serve(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(h.config.Path, h)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              h.config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	h.logger.Info().Str("addr", h.config.Addr).Str("path", h.config.Path).Str("encoding", h.config.Encoding).Msg("Frame stream listening")

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		h.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (h *Hub) publish(t bus.EventType, id string) {
	if h.bus != nil {
		h.bus.Publish(bus.NewEvent(t, map[string]any{"client": id, "clients": h.ClientCount()}))
	}
}

var _ avatar3d.FrameSink = (*Hub)(nil)
