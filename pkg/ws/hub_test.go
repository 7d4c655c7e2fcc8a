package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, h *Hub, id string) *websocket.Conn {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Add(id, c)
	}))
	t.Cleanup(srv.Close)

	c, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.Eventually(t, func() bool { _, ok := h.Get(id); return ok }, time.Second, time.Millisecond)
	return c
}

func TestHub_Broadcast(t *testing.T) {
	h := NewHub()
	a := dialHub(t, h, "a")
	b := dialHub(t, h, "b")
	assert.Equal(t, 2, h.Len())

	require.NoError(t, h.Broadcast(map[string]string{"type": "state"}))
	for _, c := range []*websocket.Conn{a, b} {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := c.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"state"}`, string(data))
	}

	h.Remove("a")
	assert.Equal(t, 1, h.Len())
	_, ok := h.Get("a")
	assert.False(t, ok)
}

func TestHub_DropsFailedSubscriber(t *testing.T) {
	h := NewHub()
	dialHub(t, h, "gone")
	c, _ := h.Get("gone")
	require.NoError(t, c.ws.Close())

	require.NoError(t, h.Broadcast("x"))
	assert.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, time.Millisecond)
}

func TestHub_StalledSubscriberDoesNotBlockBroadcast(t *testing.T) {
	h := NewHub()
	live := dialHub(t, h, "live")
	dialHub(t, h, "stalled")

	// a subscriber whose writer never drains
	stalled, _ := h.Get("stalled")
	stuck := &Conn{ws: stalled.ws, send: make(chan []byte, 1), done: make(chan struct{})}
	stuck.drop = func() { h.drop("stalled", stuck) }
	h.mu.Lock()
	h.conns["stalled"] = stuck
	h.mu.Unlock()
	stalled.close()

	start := time.Now()
	require.NoError(t, h.Broadcast(map[string]int{"n": 1}))
	require.NoError(t, h.Broadcast(map[string]int{"n": 2}))
	assert.Less(t, time.Since(start), writeWait)

	_, ok := h.Get("stalled")
	assert.False(t, ok)
	assert.Equal(t, 1, h.Len())

	_ = live.SetReadDeadline(time.Now().Add(time.Second))
	for _, want := range []string{`{"n":1}`, `{"n":2}`} {
		_, data, err := live.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, want, string(data))
	}
}
