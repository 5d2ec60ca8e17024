// Package events fans session events out to WebSocket observers and accepts
// a remote start command from them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Connect4-Screen-bot/pkg/eventdto"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

type client struct {
	id   int
	conn *websocket.Conn
	send chan []byte
}

// Hub implements session.Publisher. Slow observers lose messages instead of
// blocking the session.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	nextID  int
	// 새로 붙은 관찰자에게 현재 상태를 먼저 보냄
	lastState []byte

	starts       chan struct{}
	pingInterval time.Duration
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:       logger,
		clients:      make(map[*client]struct{}),
		starts:       make(chan struct{}, 1),
		pingInterval: 15 * time.Second,
	}
}

// Starts delivers one value per remote start command. Commands arriving while
// one is pending are coalesced.
func (h *Hub) Starts() <-chan struct{} { return h.starts }

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Publish(ev eventdto.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("event_marshal_failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	h.mu.Lock()
	if ev.Type == eventdto.TypeState {
		h.lastState = b
	}
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Debug("event_dropped", zap.Int("client", c.id), zap.String("type", ev.Type))
		}
	}
	h.mu.Unlock()
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.logger.Warn("observer_accept_failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := h.register(conn)
	defer h.unregister(c)

	go h.writeLoop(ctx, c)
	h.readLoop(ctx, c)
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func (h *Hub) register(conn *websocket.Conn) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	c := &client{id: h.nextID, conn: conn, send: make(chan []byte, sendBuffer)}
	if h.lastState != nil {
		c.send <- h.lastState
	}
	h.clients[c] = struct{}{}
	h.logger.Info("observer_connected", zap.Int("client", c.id), zap.Int("clients", len(h.clients)))
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("observer_disconnected", zap.Int("client", c.id), zap.Int("clients", n))
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		var cmd eventdto.Command
		if err := wsjson.Read(ctx, c.conn, &cmd); err != nil {
			return
		}
		switch cmd.Type {
		case eventdto.CommandStart:
			select {
			case h.starts <- struct{}{}:
			default:
			}
			h.logger.Info("remote_start", zap.Int("client", c.id))
		default:
			h.logger.Debug("observer_command_ignored", zap.Int("client", c.id), zap.String("type", cmd.Type))
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// ListenAndServe serves the hub on /ws until ctx ends.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	h.logger.Info("events_listen", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}
