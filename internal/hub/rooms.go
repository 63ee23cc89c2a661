package hub

import (
	"context"
	"sync"
	"time"

	"github.com/kapu/chesshall/internal/obslog"
	"go.uber.org/zap"
)

// Rooms maps session ids to the set of live connections watching
// them. Membership is non-owning: a room is a derived index, created
// on first join and dropped when its last member leaves.
type Rooms struct {
	interval time.Duration

	mu      sync.RWMutex
	members map[string]map[*Conn]struct{}
	byConn  map[*Conn]string
}

func NewRooms(pingInterval time.Duration) *Rooms {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Rooms{
		interval: pingInterval,
		members:  make(map[string]map[*Conn]struct{}),
		byConn:   make(map[*Conn]string),
	}
}

// Join adds the connection to the room for sessionID, moving it out of
// any room it was in before.
func (r *Rooms) Join(sessionID string, c *Conn) {
	r.mu.Lock()
	if prev, ok := r.byConn[c]; ok && prev != sessionID {
		r.removeLocked(prev, c)
	}
	room := r.members[sessionID]
	if room == nil {
		room = make(map[*Conn]struct{})
		r.members[sessionID] = room
	}
	room[c] = struct{}{}
	r.byConn[c] = sessionID
	r.mu.Unlock()
}

// Leave removes the connection from whichever room holds it. No-op for
// non-members.
func (r *Rooms) Leave(c *Conn) {
	r.mu.Lock()
	if sessionID, ok := r.byConn[c]; ok {
		r.removeLocked(sessionID, c)
	}
	r.mu.Unlock()
}

func (r *Rooms) removeLocked(sessionID string, c *Conn) {
	if room := r.members[sessionID]; room != nil {
		delete(room, c)
		if len(room) == 0 {
			delete(r.members, sessionID)
		}
	}
	delete(r.byConn, c)
}

// Broadcast sends msg to every member of the session's room. A failed
// send closes that member only; the rest still receive the message.
func (r *Rooms) Broadcast(sessionID string, msg any) {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.members[sessionID]))
	for c := range r.members[sessionID] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			obslog.L().Warn("room_send_error", zap.String("session_id", sessionID), zap.Error(err))
			c.Close()
			r.Leave(c)
		}
	}
}

// RoomSize reports the current membership of a session's room.
func (r *Rooms) RoomSize(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[sessionID])
}

// Run drives the liveness sweep until ctx is done. Each cycle pings
// every tracked connection; one that did not answer the previous ping
// is force-closed, which also evicts it from its room via the read
// loop's cleanup.
func (r *Rooms) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Rooms) sweep() {
	type member struct {
		conn      *Conn
		sessionID string
	}
	r.mu.RLock()
	members := make([]member, 0, len(r.byConn))
	for c, sessionID := range r.byConn {
		members = append(members, member{conn: c, sessionID: sessionID})
	}
	r.mu.RUnlock()

	for _, m := range members {
		if !m.conn.consumeAlive() {
			obslog.L().Info("room_sweep_terminate", zap.String("session_id", m.sessionID))
			m.conn.Close()
			r.Leave(m.conn)
			continue
		}
		if err := m.conn.ping(); err != nil {
			obslog.L().Warn("room_sweep_ping_error", zap.String("session_id", m.sessionID), zap.Error(err))
			m.conn.Close()
			r.Leave(m.conn)
		}
	}
}
