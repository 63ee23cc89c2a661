package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	// ErrIllegalMove reports a move rejected by the rules of chess.
	ErrIllegalMove = errors.New("illegal move")
	// ErrBadPromotion reports a promotion piece that is not a piece at
	// all, a malformed request rather than a rejected move.
	ErrBadPromotion = errors.New("invalid promotion piece")
	// ErrCorrupt reports an encoded position that cannot be replayed.
	ErrCorrupt = errors.New("corrupt position encoding")
)

// Position is an opaque board state owned by the engine. Callers treat
// it as a value to thread through Apply/Encode and never inspect it.
type Position struct {
	game     *nchess.Game
	movesUCI []string
	movesSAN []string
}

// MoveDetail is the engine-derived metadata for one accepted move.
type MoveDetail struct {
	From      string
	To        string
	Promotion string
	UCI       string
	SAN       string
	Capture   bool
	Check     bool
}

// Status is the engine's verdict on a position.
type Status struct {
	Turn    string // "white" or "black"
	InCheck bool
	Over    bool
	Outcome string // "white", "black", "draw" when Over
	Method  string // "checkmate", "stalemate", "draw"
}

// Engine validates moves and derives positions and terminal outcomes.
// The session core calls it and trusts its verdict.
type Engine interface {
	Start() *Position
	Apply(pos *Position, from, to, promotion string) (*Position, *MoveDetail, error)
	Status(pos *Position) Status
	Encode(pos *Position) ([]byte, error)
	Decode(raw []byte) (*Position, error)
}

// encoded is the durable form of a Position: the move list replayed
// from the standard start position, with FEN kept for presentation.
type encoded struct {
	FEN      string   `json:"fen"`
	MovesUCI []string `json:"moves_uci"`
	MovesSAN []string `json:"moves_san"`
}

type engine struct{}

// New returns the corentings/chess backed engine.
func New() Engine { return engine{} }

func (engine) Start() *Position {
	return &Position{game: nchess.NewGame()}
}

func (engine) Apply(pos *Position, from, to, promotion string) (*Position, *MoveDetail, error) {
	if pos == nil || pos.game == nil {
		return nil, nil, ErrCorrupt
	}
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promo, err := promoSuffix(promotion)
	if err != nil {
		return nil, nil, err
	}
	if !validSquare(from) || !validSquare(to) {
		return nil, nil, fmt.Errorf("%w: bad square %q-%q", ErrIllegalMove, from, to)
	}
	uci := from + to + promo

	// Replay from the start position rather than mutating the caller's
	// game; applying onto a shared *Game would double-apply on retry.
	game := replay(pos.movesUCI)
	if game == nil {
		return nil, nil, ErrCorrupt
	}
	p := game.Position()
	mv, err := nchess.UCINotation{}.Decode(p, uci)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	if err := game.Move(mv, nil); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	san := nchess.AlgebraicNotation{}.Encode(p, mv)

	next := &Position{
		game:     game,
		movesUCI: append(append([]string(nil), pos.movesUCI...), uci),
		movesSAN: append(append([]string(nil), pos.movesSAN...), san),
	}
	detail := &MoveDetail{
		From:      from,
		To:        to,
		Promotion: promotion,
		UCI:       uci,
		SAN:       san,
		Capture:   mv.HasTag(nchess.Capture) || mv.HasTag(nchess.EnPassant),
		Check:     mv.HasTag(nchess.Check),
	}
	return next, detail, nil
}

func (engine) Status(pos *Position) Status {
	st := Status{Turn: "white"}
	if pos == nil || pos.game == nil {
		return st
	}
	if pos.game.Position().Turn() == nchess.Black {
		st.Turn = "black"
	}
	switch pos.game.Outcome() {
	case nchess.WhiteWon:
		st.Over = true
		st.Outcome = "white"
	case nchess.BlackWon:
		st.Over = true
		st.Outcome = "black"
	case nchess.Draw:
		st.Over = true
		st.Outcome = "draw"
	}
	switch pos.game.Method() {
	case nchess.Checkmate:
		st.Method = "checkmate"
	case nchess.Stalemate:
		st.Method = "stalemate"
	default:
		if st.Over {
			st.Method = "draw"
		}
	}
	if !st.Over {
		if moves := pos.game.Moves(); len(moves) > 0 {
			st.InCheck = moves[len(moves)-1].HasTag(nchess.Check)
		}
	}
	return st
}

func (engine) Encode(pos *Position) ([]byte, error) {
	if pos == nil || pos.game == nil {
		return nil, ErrCorrupt
	}
	return json.Marshal(encoded{
		FEN:      pos.game.FEN(),
		MovesUCI: pos.movesUCI,
		MovesSAN: pos.movesSAN,
	})
}

func (engine) Decode(raw []byte) (*Position, error) {
	var enc encoded
	if err := json.Unmarshal(raw, &enc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(enc.MovesSAN) != len(enc.MovesUCI) {
		return nil, fmt.Errorf("%w: move list mismatch", ErrCorrupt)
	}
	game := replay(enc.MovesUCI)
	if game == nil {
		return nil, fmt.Errorf("%w: unreplayable move list", ErrCorrupt)
	}
	return &Position{
		game:     game,
		movesUCI: append([]string(nil), enc.MovesUCI...),
		movesSAN: append([]string(nil), enc.MovesSAN...),
	}, nil
}

// FEN exposes the current FEN for snapshots.
func (p *Position) FEN() string {
	if p == nil || p.game == nil {
		return ""
	}
	return p.game.FEN()
}

// Moves returns the UCI and SAN histories.
func (p *Position) Moves() (uci, san []string) {
	if p == nil {
		return nil, nil
	}
	return append([]string(nil), p.movesUCI...), append([]string(nil), p.movesSAN...)
}

// replay rebuilds a game by applying stored UCI moves from the start
// position. Returns nil when any stored move fails to apply.
func replay(moves []string) *nchess.Game {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil
		}
	}
	return game
}

func validSquare(s string) bool {
	return len(s) == 2 && s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}

// promoSuffix maps a promotion piece name to its UCI suffix. Only the
// four legal promotion pieces are accepted.
func promoSuffix(promotion string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(promotion)) {
	case "":
		return "", nil
	case "queen", "q":
		return "q", nil
	case "rook", "r":
		return "r", nil
	case "bishop", "b":
		return "b", nil
	case "knight", "n":
		return "n", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrBadPromotion, promotion)
	}
}
