package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upstream struct {
	srv        *httptest.Server
	subscribed chan subscribeMessage
	frames     []string
}

func newUpstream(t *testing.T, frames ...string) *upstream {
	t.Helper()
	u := &upstream{subscribed: make(chan subscribeMessage, 1), frames: frames}
	upgrader := websocket.Upgrader{}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		u.subscribed <- sub
		for _, f := range u.frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// hold the socket briefly, then hang up
		time.Sleep(50 * time.Millisecond)
	}))
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) url() string { return "ws" + strings.TrimPrefix(u.srv.URL, "http") }

func TestClientStreamsSnapshots(t *testing.T) {
	up := newUpstream(t,
		`{"type":"subscribed"}`,
		`{"type":"snapshot","data":{"symbol":"BTC","currentPrice":64000}}`,
		`not json`,
		`{"symbol":"ETH","currentPrice":3200,"orderBook":{"bids":[{"price":3199,"size":4}],"asks":[{"price":3201,"size":2}]}}`,
	)
	c := New(Config{URL: up.url(), Symbols: []string{"BTC", "ETH"}, PingInterval: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	require.True(t, c.IsConnected())
	require.NoError(t, c.Subscribe(ctx))

	sub := <-up.subscribed
	assert.Equal(t, "subscribe", sub.Type)
	assert.Equal(t, []string{"BTC", "ETH"}, sub.Symbols)

	snaps, errs := c.Read(ctx)
	first := <-snaps
	second := <-snaps
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, "BTC", first.Symbol)
	assert.Equal(t, 64000.0, first.CurrentPrice)
	assert.Equal(t, "ETH", second.Symbol)
	require.NotNil(t, second.OrderBook)
	assert.Equal(t, 3199.0, second.OrderBook.Bids[0].Price)

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-ctx.Done():
		t.Fatal("expected read error after upstream hang-up")
	}
	assert.False(t, c.IsConnected())
	require.NoError(t, c.Close())
}

func TestClientNotConnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1", Symbols: []string{"BTC"}})
	assert.ErrorIs(t, c.Subscribe(context.Background()), ErrNotConnected)

	_, errs := c.Read(context.Background())
	assert.ErrorIs(t, <-errs, ErrNotConnected)
}

func TestReconnectHonoursContext(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1", ReconnectDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Reconnect(ctx), context.Canceled)
}

func TestDecodeFrame(t *testing.T) {
	in, ok := decodeFrame([]byte(`{"type":"snapshot","data":{"symbol":"SOL"}}`))
	require.True(t, ok)
	assert.Equal(t, "SOL", in.Symbol)

	_, ok = decodeFrame([]byte(`{"type":"heartbeat"}`))
	assert.False(t, ok)
	_, ok = decodeFrame([]byte(`{"type":"snapshot"}`))
	assert.False(t, ok)
	_, ok = decodeFrame([]byte(`[1,2]`))
	assert.False(t, ok)
}
