package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kapu/chesshall/internal/hub"
	"github.com/kapu/chesshall/internal/match"
	"github.com/kapu/chesshall/internal/matchmaking"
	"github.com/kapu/chesshall/internal/obslog"
	"github.com/kapu/chesshall/pkg/halldto"
	"go.uber.org/zap"
)

// Server is the request/response surface. It funnels every mutation
// through the same session store as the websocket surface and fans
// resulting state changes out to the session's room.
type Server struct {
	store *match.Store
	mm    *matchmaking.Queue
	rooms *hub.Rooms
}

func NewServer(store *match.Store, mm *matchmaking.Queue, rooms *hub.Rooms) *Server {
	return &Server{store: store, mm: mm, rooms: rooms}
}

// Routes registers every REST handler plus the websocket endpoint.
func (s *Server) Routes(ws http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/sessions", s.handleCreate)
	mux.HandleFunc("GET /api/sessions", s.handleList)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGet)
	mux.HandleFunc("POST /api/sessions/{id}/join", s.handleJoin)
	mux.HandleFunc("POST /api/sessions/{id}/move", s.handleMove)
	mux.HandleFunc("POST /api/sessions/{id}/resign", s.handleResign)
	mux.HandleFunc("POST /api/sessions/{id}/save", s.handleSave)
	mux.HandleFunc("POST /api/matchmaking/join", s.handleMMJoin)
	mux.HandleFunc("POST /api/matchmaking/leave", s.handleMMLeave)
	mux.HandleFunc("GET /api/matchmaking/status", s.handleMMStatus)
	if ws != nil {
		mux.Handle("GET /ws", ws)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req halldto.CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, seat, err := s.store.Create(r.Context(), req.PlayerID, req.Name, req.Color)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, halldto.SessionResponse{Session: snap, Seat: seat})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, halldto.SessionListResponse{Sessions: ids})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, halldto.SessionResponse{Session: snap})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req halldto.JoinSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	snap, seat, err := s.store.Join(r.Context(), id, req.PlayerID, req.Name, req.Color)
	if err != nil {
		writeError(w, err)
		return
	}
	s.rooms.Broadcast(id, hub.StateMessage(snap))
	writeJSON(w, http.StatusOK, halldto.SessionResponse{Session: snap, Seat: seat})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req halldto.MoveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	snap, detail, err := s.store.ApplyMove(r.Context(), id, req.PlayerID, req.From, req.To, req.Promotion)
	if err != nil {
		writeError(w, err)
		return
	}
	s.rooms.Broadcast(id, hub.MoveAppliedMessage(snap, detail))
	writeJSON(w, http.StatusOK, halldto.MoveResponse{Session: snap, Move: detail})
}

func (s *Server) handleResign(w http.ResponseWriter, r *http.Request) {
	var req halldto.ResignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	snap, err := s.store.Resign(r.Context(), id, req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.rooms.Broadcast(id, hub.StateMessage(snap))
	writeJSON(w, http.StatusOK, halldto.SessionResponse{Session: snap})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.ForceSave(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, halldto.SessionResponse{Session: snap})
}

func (s *Server) handleMMJoin(w http.ResponseWriter, r *http.Request) {
	var req halldto.MatchmakingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.mm.Join(r.Context(), req.PlayerID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	if res.State == matchmaking.StateMatched {
		if snap, serr := s.store.Snapshot(r.Context(), res.SessionID); serr == nil {
			s.rooms.Broadcast(res.SessionID, hub.StateMessage(snap))
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMMLeave(w http.ResponseWriter, r *http.Request) {
	var req halldto.MatchmakingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	existed := s.mm.Leave(req.PlayerID)
	writeJSON(w, http.StatusOK, map[string]bool{"removed": existed})
}

func (s *Server) handleMMStatus(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player_id")
	writeJSON(w, http.StatusOK, halldto.MatchmakingResponse{State: s.mm.Status(playerID)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, halldto.Errf(halldto.CodeInvalidArgument, "request body is not valid JSON"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Error("http_encode_error", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	var derr *halldto.DomainError
	if !errors.As(err, &derr) {
		obslog.L().Error("http_unexpected_error", zap.Error(err))
		derr = halldto.Errf(halldto.CodeInternal, "internal error")
	}
	writeJSON(w, statusFor(derr.Code), halldto.ErrorEnvelope{Error: derr})
}

// statusFor maps domain error codes onto HTTP status classes:
// validation 400, not-found 404, conflict 409, everything else 500.
func statusFor(code string) int {
	switch code {
	case halldto.CodeInvalidArgument, halldto.CodeInvalidMove, halldto.CodeBadMessage:
		return http.StatusBadRequest
	case halldto.CodeNotFound:
		return http.StatusNotFound
	case halldto.CodeSeatTaken, halldto.CodeSessionFull, halldto.CodeNotYourTurn, halldto.CodeSessionOver:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
