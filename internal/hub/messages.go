package hub

import "github.com/kapu/chesshall/pkg/halldto"

// ClientMessage is the envelope for every client-to-server message.
type ClientMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	PlayerID  string `json:"player_id,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
}

type joinedMessage struct {
	Type    string            `json:"type"`
	Session *halldto.Snapshot `json:"session"`
	Seat    string            `json:"seat,omitempty"`
}

type stateMessage struct {
	Type    string            `json:"type"`
	Session *halldto.Snapshot `json:"session"`
}

type moveAppliedMessage struct {
	Type    string              `json:"type"`
	Session *halldto.Snapshot   `json:"session"`
	Move    *halldto.MoveDetail `json:"move"`
}

type errorMessage struct {
	Type    string         `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type leftMessage struct {
	Type string `json:"type"`
	OK   bool   `json:"ok"`
}

// StateMessage is the broadcast payload for a session state change.
// Exposed so the REST surface can fan out the same message shape.
func StateMessage(snap *halldto.Snapshot) any {
	return stateMessage{Type: "state", Session: snap}
}

// MoveAppliedMessage replaces the plain state broadcast after a move.
func MoveAppliedMessage(snap *halldto.Snapshot, move *halldto.MoveDetail) any {
	return moveAppliedMessage{Type: "move_applied", Session: snap, Move: move}
}

func errMsg(code, message string, details map[string]any) errorMessage {
	return errorMessage{Type: "error", Code: code, Message: message, Details: details}
}
