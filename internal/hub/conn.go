package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Conn wraps a websocket connection. Writes are serialized through a
// mutex; the alive flag is set by pong frames and consumed by the
// liveness sweep.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu        sync.RWMutex
	sessionID string
	playerID  string

	alive     atomic.Bool
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn) *Conn {
	c := &Conn{ws: ws}
	c.alive.Store(true)
	return c
}

// Send marshals v and writes it as a single text frame.
func (c *Conn) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *Conn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

// markAlive records a pong answer for the current sweep cycle.
func (c *Conn) markAlive() { c.alive.Store(true) }

// consumeAlive reports whether the previous ping was answered and arms
// the flag for the next cycle.
func (c *Conn) consumeAlive() bool { return c.alive.Swap(false) }

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.ws.Close() })
	return err
}

// bind associates the connection with a session and, optionally, a
// player identity. Set by a join message, cleared by leave.
func (c *Conn) bind(sessionID, playerID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.playerID = playerID
	c.mu.Unlock()
}

func (c *Conn) clearBinding() { c.bind("", "") }

func (c *Conn) binding() (sessionID, playerID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID, c.playerID
}
