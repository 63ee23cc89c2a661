package match

import (
	"sync"
	"time"

	"github.com/kapu/chesshall/internal/rules"
	"github.com/kapu/chesshall/pkg/halldto"
)

// Color identifies a side of the board.
type Color string

const (
	White Color = "white"
	Black Color = "black"

	// ColorRandom is a seating preference, never an assigned color.
	ColorRandom = "random"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusFinished Status = "FINISHED"
	StatusResigned Status = "RESIGNED"
	StatusDraw     Status = "DRAW"
)

// session is the authoritative in-memory record. Mutations run one at
// a time under the per-session serializer and additionally hold mu,
// because snapshot reads are not serialized: mu is what keeps an
// unserialized read from observing a half-written session.
type session struct {
	mu sync.RWMutex

	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	White *halldto.Seat
	Black *halldto.Seat

	Status  Status
	Winner  string // player id
	Outcome string // "white", "black", "draw"
	Method  string // "checkmate", "stalemate", "draw", "resignation"

	Pos *rules.Position
}

func (s *session) seat(c Color) *halldto.Seat {
	if c == Black {
		return s.Black
	}
	return s.White
}

// seatOf returns the color held by playerID, or "" when unseated.
func (s *session) seatOf(playerID string) Color {
	if s.White != nil && s.White.PlayerID == playerID {
		return White
	}
	if s.Black != nil && s.Black.PlayerID == playerID {
		return Black
	}
	return ""
}

func (s *session) terminal() bool { return s.Status != StatusActive }
