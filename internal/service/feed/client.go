package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"Watchdog/internal/domain/models"
	drepo "Watchdog/internal/domain/repository"
	"Watchdog/pkg/logger"
)

// ErrNotConnected is returned when the feed is used before Connect.
var ErrNotConnected = errors.New("feed not connected")

// Config holds feed connection settings.
type Config struct {
	URL            string
	Symbols        []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	BufferSize     int
}

// Client implements SnapshotStream over a WebSocket that pushes JSON snapshots.
//
// Accepted frames:
//
//	{"type":"snapshot","data":{...MarketInputs...}}
//	{"symbol":"BTC", ...MarketInputs...}
//
// Anything else (acks, heartbeats) is skipped.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	log    *logger.Logger

	mu        sync.Mutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	dropped   atomic.Int64
}

type Option func(*Client)

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l.With("feed")
		}
	}
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// New creates a feed client. It does not connect.
func New(cfg Config, opts ...Option) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 2 * cfg.PingInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	c := &Client{cfg: cfg, dialer: websocket.DefaultDialer, log: logger.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info("connected", logger.String("url", c.cfg.URL))
	return nil
}

type subscribeMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// Subscribe asks the upstream for the configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	if len(c.cfg.Symbols) == 0 {
		return nil
	}
	if err := c.writeJSON(subscribeMessage{Type: "subscribe", Symbols: c.cfg.Symbols}); err != nil {
		return fmt.Errorf("feed subscribe: %w", err)
	}
	c.log.Info("subscribed", logger.Strings("symbols", c.cfg.Symbols))
	return nil
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) writeJSON(v any) error {
	conn := c.current()
	if conn == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *Client) ping() error {
	conn := c.current()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

type frame struct {
	Type   string          `json:"type"`
	Symbol string          `json:"symbol"`
	Data   json.RawMessage `json:"data"`
}

// decodeFrame returns the snapshot carried by b, or ok=false for frames to skip.
func decodeFrame(b []byte) (*models.MarketInputs, bool) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, false
	}
	var in models.MarketInputs
	switch {
	case f.Type == "snapshot" && len(f.Data) > 0:
		if err := json.Unmarshal(f.Data, &in); err != nil {
			return nil, false
		}
	case f.Type == "" && f.Symbol != "":
		if err := json.Unmarshal(b, &in); err != nil {
			return nil, false
		}
	default:
		return nil, false
	}
	return &in, true
}

// Read streams snapshots until the connection fails or ctx ends. Both channels
// are closed when reading stops; a read failure is sent on the error channel first.
func (c *Client) Read(ctx context.Context) (<-chan *models.MarketInputs, <-chan error) {
	out := make(chan *models.MarketInputs, c.cfg.BufferSize)
	errs := make(chan error, 1)
	conn := c.current()

	readCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					c.log.Debug("ping failed", logger.Error(err))
				}
			}
		}
	}()

	go func() {
		defer close(out)
		defer close(errs)
		defer cancel()
		if conn == nil {
			errs <- ErrNotConnected
			return
		}
		go func() {
			<-readCtx.Done()
			if ctx.Err() != nil {
				_ = conn.Close()
			}
		}()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.connected.Store(false)
				errs <- fmt.Errorf("feed read: %w", err)
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
			in, ok := decodeFrame(b)
			if !ok {
				continue
			}
			select {
			case out <- in:
			default:
				if n := c.dropped.Add(1); n%100 == 1 {
					c.log.Warn("snapshot dropped on backpressure", logger.String("symbol", in.Symbol), logger.Int64("dropped", n))
				}
			}
		}
	}()

	return out, errs
}

// Reconnect closes the connection, waits the reconnect delay, then connects and subscribes again.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.cfg.ReconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Dropped returns how many snapshots were dropped because the reader fell behind.
func (c *Client) Dropped() int64 { return c.dropped.Load() }

var _ drepo.SnapshotStream = (*Client)(nil)
