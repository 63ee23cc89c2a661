package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/chesshall/internal/obslog"
	"github.com/kapu/chesshall/internal/rules"
	"github.com/kapu/chesshall/internal/storage"
	"github.com/kapu/chesshall/pkg/halldto"
	"go.uber.org/zap"
)

// Archiver receives final results of terminal sessions. Failures are
// logged and never fail the mutation that finished the game.
type Archiver interface {
	SaveResult(ctx context.Context, snap *halldto.Snapshot, method string) error
}

// Store owns the canonical in-memory session map. Sessions hydrate
// from the durable store on first access and are never evicted.
// Mutations for one session id run strictly one at a time, in arrival
// order; plain reads are not serialized and may observe either side of
// a concurrent write.
type Store struct {
	engine  rules.Engine
	durable storage.Store
	ser     *serializer
	archive Archiver

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewStore(engine rules.Engine, durable storage.Store) *Store {
	return &Store{
		engine:   engine,
		durable:  durable,
		ser:      newSerializer(),
		sessions: make(map[string]*session),
	}
}

// AttachArchiver wires an optional final-result archive.
func (s *Store) AttachArchiver(a Archiver) {
	if s != nil {
		s.archive = a
	}
}

// Create allocates a fresh session and seats the creator. Under a
// "random" preference the creator gets white: both seats are free, and
// white is chosen first, deterministically.
func (s *Store) Create(ctx context.Context, playerID, name, color string) (*halldto.Snapshot, string, error) {
	playerID, name, err := validSeatArgs(playerID, name)
	if err != nil {
		return nil, "", err
	}
	pref, err := validColor(color)
	if err != nil {
		return nil, "", err
	}
	assigned := White
	if pref == string(Black) {
		assigned = Black
	}

	now := time.Now().UTC()
	sess := &session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusActive,
		Pos:       s.engine.Start(),
	}
	seat := &halldto.Seat{PlayerID: playerID, Name: name}
	if assigned == Black {
		sess.Black = seat
	} else {
		sess.White = seat
	}

	if err := s.persist(ctx, sess); err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	obslog.L().Info("session_create",
		zap.String("session_id", sess.ID),
		zap.String("player_id", playerID),
		zap.String("seat", string(assigned)),
	)
	return s.snapshot(sess), string(assigned), nil
}

// CreateMatched creates a session with both seats filled, used by the
// matchmaking queue. Seat assignment is deterministic: the
// longest-waiting entrant is white.
func (s *Store) CreateMatched(ctx context.Context, whiteID, whiteName, blackID, blackName string) (*halldto.Snapshot, error) {
	whiteID, whiteName, err := validSeatArgs(whiteID, whiteName)
	if err != nil {
		return nil, err
	}
	blackID, blackName, err = validSeatArgs(blackID, blackName)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusActive,
		Pos:       s.engine.Start(),
		White:     &halldto.Seat{PlayerID: whiteID, Name: whiteName},
		Black:     &halldto.Seat{PlayerID: blackID, Name: blackName},
	}
	if err := s.persist(ctx, sess); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	obslog.L().Info("session_create_matched",
		zap.String("session_id", sess.ID),
		zap.String("white_id", whiteID),
		zap.String("black_id", blackID),
	)
	return s.snapshot(sess), nil
}

// Join seats a player, serialized per session. Rejoining with an
// identity that already holds a seat returns that seat unchanged.
func (s *Store) Join(ctx context.Context, id, playerID, name, color string) (*halldto.Snapshot, string, error) {
	playerID, name, err := validSeatArgs(playerID, name)
	if err != nil {
		return nil, "", err
	}
	pref, err := validColor(color)
	if err != nil {
		return nil, "", err
	}

	var snap *halldto.Snapshot
	var assigned Color
	err = s.ser.Do(id, func() error {
		sess, err := s.lookup(ctx, id)
		if err != nil {
			return err
		}
		if held := sess.seatOf(playerID); held != "" {
			assigned = held
			snap = s.snapshot(sess)
			return nil
		}
		switch pref {
		case string(White), string(Black):
			want := Color(pref)
			if sess.seat(want) != nil {
				return halldto.Errf(halldto.CodeSeatTaken, fmt.Sprintf("seat %s is already taken", want)).With("seat", string(want))
			}
			assigned = want
		default: // random: white first when free, deterministically
			switch {
			case sess.White == nil:
				assigned = White
			case sess.Black == nil:
				assigned = Black
			default:
				return halldto.Errf(halldto.CodeSessionFull, "session already has two players")
			}
		}
		if sess.White != nil && sess.Black != nil {
			return halldto.Errf(halldto.CodeSessionFull, "session already has two players")
		}
		seat := &halldto.Seat{PlayerID: playerID, Name: name}
		sess.mu.Lock()
		if assigned == Black {
			sess.Black = seat
		} else {
			sess.White = seat
		}
		sess.UpdatedAt = time.Now().UTC()
		sess.mu.Unlock()
		if err := s.persist(ctx, sess); err != nil {
			return err
		}
		snap = s.snapshot(sess)
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	obslog.L().Info("session_join",
		zap.String("session_id", id),
		zap.String("player_id", playerID),
		zap.String("seat", string(assigned)),
	)
	return snap, string(assigned), nil
}

// ApplyMove applies one move for playerID, serialized per session.
func (s *Store) ApplyMove(ctx context.Context, id, playerID, from, to, promotion string) (*halldto.Snapshot, *halldto.MoveDetail, error) {
	playerID = strings.TrimSpace(playerID)
	if len(playerID) < 3 {
		return nil, nil, halldto.Errf(halldto.CodeInvalidArgument, "player id must be at least 3 characters")
	}

	var snap *halldto.Snapshot
	var detail *halldto.MoveDetail
	err := s.ser.Do(id, func() error {
		sess, err := s.lookup(ctx, id)
		if err != nil {
			return err
		}
		if sess.terminal() {
			return halldto.Errf(halldto.CodeSessionOver, "session is already over")
		}
		turn := Color(s.engine.Status(sess.Pos).Turn)
		mover := sess.seat(turn)
		if mover == nil || mover.PlayerID != playerID {
			return halldto.Errf(halldto.CodeNotYourTurn, fmt.Sprintf("it is %s's turn", turn)).With("turn", string(turn))
		}

		next, md, err := s.engine.Apply(sess.Pos, from, to, promotion)
		if err != nil {
			if errors.Is(err, rules.ErrBadPromotion) {
				return halldto.Errf(halldto.CodeInvalidArgument, err.Error())
			}
			if errors.Is(err, rules.ErrIllegalMove) {
				return halldto.Errf(halldto.CodeInvalidMove, err.Error())
			}
			return internalErr("apply move", err)
		}
		st := s.engine.Status(next)
		sess.mu.Lock()
		sess.Pos = next
		sess.UpdatedAt = time.Now().UTC()
		if st.Over {
			sess.Outcome = st.Outcome
			sess.Method = st.Method
			switch st.Outcome {
			case "white":
				sess.Status = StatusFinished
				sess.Winner = sess.White.PlayerID
			case "black":
				sess.Status = StatusFinished
				sess.Winner = sess.Black.PlayerID
			default:
				sess.Status = StatusDraw
			}
		}
		sess.mu.Unlock()

		if err := s.persist(ctx, sess); err != nil {
			return err
		}
		snap = s.snapshot(sess)
		detail = &halldto.MoveDetail{
			From:      md.From,
			To:        md.To,
			Promotion: md.Promotion,
			UCI:       md.UCI,
			SAN:       md.SAN,
			Capture:   md.Capture,
			Check:     md.Check,
			ByColor:   string(turn),
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	obslog.L().Info("session_move",
		zap.String("session_id", id),
		zap.String("player_id", playerID),
		zap.String("uci", detail.UCI),
		zap.String("status", snap.Status),
		zap.String("outcome", snap.Outcome),
	)
	s.archiveIfTerminal(ctx, snap)
	return snap, detail, nil
}

// Resign ends the session in favour of the opponent.
func (s *Store) Resign(ctx context.Context, id, playerID string) (*halldto.Snapshot, error) {
	playerID = strings.TrimSpace(playerID)
	if len(playerID) < 3 {
		return nil, halldto.Errf(halldto.CodeInvalidArgument, "player id must be at least 3 characters")
	}
	var snap *halldto.Snapshot
	err := s.ser.Do(id, func() error {
		sess, err := s.lookup(ctx, id)
		if err != nil {
			return err
		}
		if sess.terminal() {
			return halldto.Errf(halldto.CodeSessionOver, "session is already over")
		}
		held := sess.seatOf(playerID)
		if held == "" {
			return halldto.Errf(halldto.CodeNotYourTurn, "player holds no seat in this session")
		}
		sess.mu.Lock()
		sess.Status = StatusResigned
		sess.Method = "resignation"
		if held == White {
			sess.Outcome = "black"
			if sess.Black != nil {
				sess.Winner = sess.Black.PlayerID
			}
		} else {
			sess.Outcome = "white"
			if sess.White != nil {
				sess.Winner = sess.White.PlayerID
			}
		}
		sess.UpdatedAt = time.Now().UTC()
		sess.mu.Unlock()
		if err := s.persist(ctx, sess); err != nil {
			return err
		}
		snap = s.snapshot(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_resign",
		zap.String("session_id", id),
		zap.String("player_id", playerID),
		zap.String("winner", snap.Winner),
	)
	s.archiveIfTerminal(ctx, snap)
	return snap, nil
}

// Snapshot returns the current state, hydrating on first access. Reads
// are not serialized: one racing a concurrent write may observe either
// the pre- or post-write state.
func (s *Store) Snapshot(ctx context.Context, id string) (*halldto.Snapshot, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(sess), nil
}

// ForceSave re-persists the in-memory state unconditionally.
func (s *Store) ForceSave(ctx context.Context, id string) (*halldto.Snapshot, error) {
	var snap *halldto.Snapshot
	err := s.ser.Do(id, func() error {
		sess, err := s.lookup(ctx, id)
		if err != nil {
			return err
		}
		if err := s.persist(ctx, sess); err != nil {
			return err
		}
		snap = s.snapshot(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("session_force_save", zap.String("session_id", id))
	return snap, nil
}

// ListSessions returns every id known to the durable store.
func (s *Store) ListSessions(ctx context.Context) ([]string, error) {
	ids, err := s.durable.List(ctx)
	if err != nil {
		return nil, internalErr("list sessions", err)
	}
	return ids, nil
}

// lookup returns the resident session, hydrating from the durable
// store on miss. Concurrent hydrations of the same id are harmless:
// both decode the same record and the second map write wins.
func (s *Store) lookup(ctx context.Context, id string) (*session, error) {
	s.mu.RLock()
	sess := s.sessions[id]
	s.mu.RUnlock()
	if sess != nil {
		return sess, nil
	}

	raw, err := s.durable.Load(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrBadID) {
		return nil, halldto.Errf(halldto.CodeNotFound, fmt.Sprintf("session %s not found", id))
	}
	if err != nil {
		return nil, internalErr("load session", err)
	}
	sess, err = s.decode(raw)
	if err != nil {
		obslog.L().Error("session_hydrate_corrupt", zap.String("session_id", id), zap.Error(err))
		return nil, halldto.Errf(halldto.CodeCorruptState, fmt.Sprintf("session %s record is unreadable", id))
	}
	sess.ID = id

	s.mu.Lock()
	if resident := s.sessions[id]; resident != nil {
		sess = resident
	} else {
		s.sessions[id] = sess
	}
	s.mu.Unlock()
	obslog.L().Info("session_hydrate", zap.String("session_id", id))
	return sess, nil
}

func (s *Store) persist(ctx context.Context, sess *session) error {
	raw, err := json.Marshal(s.snapshot(sess))
	if err != nil {
		return internalErr("encode session", err)
	}
	if err := s.durable.Save(ctx, sess.ID, raw); err != nil {
		return internalErr("persist session", err)
	}
	return nil
}

func (s *Store) decode(raw []byte) (*session, error) {
	var snap halldto.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	enc, err := json.Marshal(struct {
		FEN      string   `json:"fen"`
		MovesUCI []string `json:"moves_uci"`
		MovesSAN []string `json:"moves_san"`
	}{snap.FEN, snap.MovesUCI, snap.MovesSAN})
	if err != nil {
		return nil, err
	}
	pos, err := s.engine.Decode(enc)
	if err != nil {
		return nil, err
	}
	status := Status(snap.Status)
	switch status {
	case StatusActive, StatusFinished, StatusResigned, StatusDraw:
	default:
		return nil, fmt.Errorf("unknown status %q", snap.Status)
	}
	return &session{
		ID:        snap.ID,
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
		White:     snap.White,
		Black:     snap.Black,
		Status:    status,
		Winner:    snap.Winner,
		Outcome:   snap.Outcome,
		Method:    snap.Method,
		Pos:       pos,
	}, nil
}

// snapshot projects the session under its read lock, so a read racing
// a serialized mutation sees the whole pre- or post-write state, never
// a mix.
func (s *Store) snapshot(sess *session) *halldto.Snapshot {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	uci, san := sess.Pos.Moves()
	st := s.engine.Status(sess.Pos)
	return &halldto.Snapshot{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
		White:     copySeat(sess.White),
		Black:     copySeat(sess.Black),
		FEN:       sess.Pos.FEN(),
		MovesUCI:  uci,
		MovesSAN:  san,
		Turn:      st.Turn,
		InCheck:   st.InCheck,
		MoveCount: len(uci),
		Status:    string(sess.Status),
		Winner:    sess.Winner,
		Outcome:   sess.Outcome,
		Method:    sess.Method,
	}
}

func (s *Store) archiveIfTerminal(ctx context.Context, snap *halldto.Snapshot) {
	if s.archive == nil || snap == nil || Status(snap.Status) == StatusActive {
		return
	}
	method := snap.Method
	if method == "" {
		method = "draw"
	}
	if err := s.archive.SaveResult(ctx, snap, method); err != nil {
		obslog.L().Error("session_archive_error", zap.String("session_id", snap.ID), zap.Error(err))
		return
	}
	obslog.L().Info("session_archive", zap.String("session_id", snap.ID), zap.String("method", method))
}

func copySeat(seat *halldto.Seat) *halldto.Seat {
	if seat == nil {
		return nil
	}
	c := *seat
	return &c
}

func validSeatArgs(playerID, name string) (string, string, error) {
	playerID = strings.TrimSpace(playerID)
	name = strings.TrimSpace(name)
	if len(playerID) < 3 {
		return "", "", halldto.Errf(halldto.CodeInvalidArgument, "player id must be at least 3 characters")
	}
	if name == "" {
		return "", "", halldto.Errf(halldto.CodeInvalidArgument, "display name required")
	}
	return playerID, name, nil
}

func validColor(color string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(color))
	switch c {
	case "", ColorRandom:
		return ColorRandom, nil
	case string(White), string(Black):
		return c, nil
	default:
		return "", halldto.Errf(halldto.CodeInvalidArgument, fmt.Sprintf("color must be white, black or random, got %q", color))
	}
}

func internalErr(op string, err error) error {
	return &halldto.DomainError{Code: halldto.CodeInternal, Message: fmt.Sprintf("%s: %v", op, err)}
}
