package halldto

import "time"

// Seat is one side of the board, held by a single player for the life
// of the session.
type Seat struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

// Snapshot is the immutable wire projection of a session. It is also
// the durable record format: one snapshot per session id.
type Snapshot struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	White *Seat `json:"white,omitempty"`
	Black *Seat `json:"black,omitempty"`

	FEN      string   `json:"fen"`
	MovesUCI []string `json:"moves_uci"`
	MovesSAN []string `json:"moves_san"`

	Turn      string `json:"turn"`
	InCheck   bool   `json:"in_check"`
	MoveCount int    `json:"move_count"`

	Status  string `json:"status"`
	Winner  string `json:"winner,omitempty"`
	Outcome string `json:"outcome,omitempty"`
	Method  string `json:"method,omitempty"`
}

// MoveDetail describes a single accepted move for broadcast alongside
// the refreshed snapshot.
type MoveDetail struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	UCI       string `json:"uci"`
	SAN       string `json:"san"`
	Capture   bool   `json:"capture"`
	Check     bool   `json:"check"`
	ByColor   string `json:"by_color"`
}
