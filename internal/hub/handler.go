package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/kapu/chesshall/internal/match"
	"github.com/kapu/chesshall/internal/obslog"
	"github.com/kapu/chesshall/pkg/halldto"
	"go.uber.org/zap"
)

// Handler upgrades HTTP requests and runs the per-connection message
// loop. A handling error never closes the connection; it is reported
// as an error message and the loop keeps reading.
type Handler struct {
	store    *match.Store
	rooms    *Rooms
	upgrader websocket.Upgrader
}

func NewHandler(store *match.Store, rooms *Rooms) *Handler {
	return &Handler{
		store: store,
		rooms: rooms,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		obslog.L().Warn("ws_upgrade_error", zap.Error(err))
		return
	}
	c := newConn(ws)
	ws.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})
	// The request context dies with the upgrade; message handling gets
	// its own.
	ctx := context.Background()

	defer func() {
		h.rooms.Leave(c)
		c.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Send(errMsg(halldto.CodeBadMessage, "message is not valid JSON", nil))
			continue
		}
		h.dispatch(ctx, c, msg)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *Conn, msg ClientMessage) {
	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case "join":
		h.handleJoin(ctx, c, msg)
	case "sync":
		h.handleSync(ctx, c)
	case "move":
		h.handleMove(ctx, c, msg)
	case "resign":
		h.handleResign(ctx, c)
	case "leave":
		h.rooms.Leave(c)
		c.clearBinding()
		c.Send(leftMessage{Type: "left", OK: true})
	default:
		c.Send(errMsg(halldto.CodeUnknownType, "unrecognized message type",
			map[string]any{"type": msg.Type}))
	}
}

// handleJoin associates the connection with a session room. An
// identity that already holds a seat is reported as that seat; anyone
// else joins as a watcher.
func (h *Handler) handleJoin(ctx context.Context, c *Conn, msg ClientMessage) {
	if strings.TrimSpace(msg.SessionID) == "" {
		c.Send(errMsg(halldto.CodeInvalidArgument, "session_id required", nil))
		return
	}
	snap, err := h.store.Snapshot(ctx, msg.SessionID)
	if err != nil {
		c.Send(wireError(err))
		return
	}
	playerID := strings.TrimSpace(msg.PlayerID)
	seat := ""
	if playerID != "" {
		if snap.White != nil && snap.White.PlayerID == playerID {
			seat = "white"
		} else if snap.Black != nil && snap.Black.PlayerID == playerID {
			seat = "black"
		}
	}
	c.bind(snap.ID, playerID)
	h.rooms.Join(snap.ID, c)
	obslog.L().Info("ws_join",
		zap.String("session_id", snap.ID),
		zap.String("player_id", playerID),
		zap.String("seat", seat),
	)
	c.Send(joinedMessage{Type: "joined", Session: snap, Seat: seat})
}

func (h *Handler) handleSync(ctx context.Context, c *Conn) {
	sessionID, _ := c.binding()
	if sessionID == "" {
		c.Send(errMsg(halldto.CodeNotJoined, "join a session first", nil))
		return
	}
	snap, err := h.store.Snapshot(ctx, sessionID)
	if err != nil {
		c.Send(wireError(err))
		return
	}
	c.Send(stateMessage{Type: "state", Session: snap})
}

func (h *Handler) handleMove(ctx context.Context, c *Conn, msg ClientMessage) {
	sessionID, playerID := c.binding()
	if sessionID == "" || playerID == "" {
		c.Send(errMsg(halldto.CodeNotJoined, "join a session with a player_id first", nil))
		return
	}
	snap, detail, err := h.store.ApplyMove(ctx, sessionID, playerID, msg.From, msg.To, msg.Promotion)
	if err != nil {
		c.Send(wireError(err))
		return
	}
	h.rooms.Broadcast(sessionID, MoveAppliedMessage(snap, detail))
}

func (h *Handler) handleResign(ctx context.Context, c *Conn) {
	sessionID, playerID := c.binding()
	if sessionID == "" || playerID == "" {
		c.Send(errMsg(halldto.CodeNotJoined, "join a session with a player_id first", nil))
		return
	}
	snap, err := h.store.Resign(ctx, sessionID, playerID)
	if err != nil {
		c.Send(wireError(err))
		return
	}
	h.rooms.Broadcast(sessionID, StateMessage(snap))
}

func wireError(err error) errorMessage {
	var derr *halldto.DomainError
	if errors.As(err, &derr) {
		return errMsg(derr.Code, derr.Message, derr.Details)
	}
	return errMsg(halldto.CodeInternal, "internal error", nil)
}
