package ws

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

// Conn is one subscriber. Direct writes are serialised; broadcasts go through
// a bounded queue drained by the subscriber's own writer.
type Conn struct {
	mu   sync.Mutex
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	drop func()
}

func newConn(ws *websocket.Conn, drop func()) *Conn {
	return &Conn{ws: ws, send: make(chan []byte, sendBuffer), done: make(chan struct{}), drop: drop}
}

func (c *Conn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) WriteJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteMessage(data)
}

// Ping is safe to call concurrently with writes.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.WriteMessage(data); err != nil {
				c.drop()
				return
			}
		}
	}
}

// enqueue never blocks; false means the subscriber is gone or not keeping up.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewHub() *Hub {
	return &Hub{conns: map[string]*Conn{}}
}

func (h *Hub) Add(id string, ws *websocket.Conn) *Conn {
	var conn *Conn
	conn = newConn(ws, func() { h.drop(id, conn) })
	h.mu.Lock()
	h.conns[id] = conn
	h.mu.Unlock()
	go conn.writePump()
	return conn
}

func (h *Hub) Get(id string) (*Conn, bool) {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	return c, ok
}

// Remove unregisters the subscriber and closes its socket.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *Hub) drop(id string, c *Conn) {
	h.mu.Lock()
	if h.conns[id] == c {
		delete(h.conns, id)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast encodes v once and queues it for every subscriber without
// blocking. A subscriber whose queue is full is dropped.
func (h *Hub) Broadcast(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	h.mu.RLock()
	conns := make(map[string]*Conn, len(h.conns))
	for id, c := range h.conns {
		conns[id] = c
	}
	h.mu.RUnlock()

	for id, c := range conns {
		if !c.enqueue(data) {
			h.drop(id, c)
		}
	}
	return nil
}
