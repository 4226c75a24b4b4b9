package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"Watchdog/internal/domain/models"
	xlogger "Watchdog/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// AlertHub pushes routed alerts to websocket clients. It implements router.Listener.
type AlertHub struct {
	upgrader websocket.Upgrader
	logger   *xlogger.Logger
	bufSize  int

	mu      sync.RWMutex
	clients map[string]*wsClient
	closed  bool
}

// NewAlertHub creates a hub. bufSize bounds each client's outbound queue;
// a client whose queue is full is disconnected.
func NewAlertHub(logger *xlogger.Logger, bufSize int) *AlertHub {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	if bufSize <= 0 {
		bufSize = 64
	}
	return &AlertHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger.With("alert_hub"),
		bufSize: bufSize,
		clients: make(map[string]*wsClient),
	}
}

// OnAlert broadcasts one delivery to every connected client.
func (h *AlertHub) OnAlert(d models.AlertDelivery) {
	msg, err := json.Marshal(wsEnvelope{Type: "alert", Data: d})
	if err != nil {
		h.logger.Error("encode alert", xlogger.Error(err))
		return
	}
	h.broadcast(msg)
}

func (h *AlertHub) broadcast(msg []byte) {
	var slow []*wsClient
	h.mu.RLock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client", xlogger.String("client_id", c.id))
		h.remove(c)
	}
}

// ServeWS upgrades the request and registers the connection.
func (h *AlertHub) ServeWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	client := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, h.bufSize)}
	hello, _ := json.Marshal(wsEnvelope{Type: "connected", Data: map[string]string{"clientId": client.id}})
	client.send <- hello

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(wsWriteWait))
		return conn.Close()
	}
	h.clients[client.id] = client
	h.mu.Unlock()

	h.logger.Info("websocket client connected", xlogger.String("client_id", client.id))
	go h.writePump(client)
	h.readPump(client)
	return nil
}

// readPump discards inbound frames and detects disconnects.
func (h *AlertHub) readPump(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read", xlogger.String("client_id", c.id), xlogger.Error(err))
			}
			return
		}
	}
}

func (h *AlertHub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (h *AlertHub) remove(c *wsClient) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
		h.logger.Info("websocket client disconnected", xlogger.String("client_id", c.id))
	}
	h.mu.Unlock()
	c.close()
}

// ClientCount returns the number of connected clients.
func (h *AlertHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *AlertHub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for id, c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, id)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
