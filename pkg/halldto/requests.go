package halldto

// REST request and response bodies.

type CreateSessionRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
}

type JoinSessionRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
}

type SessionResponse struct {
	Session *Snapshot `json:"session"`
	Seat    string    `json:"seat,omitempty"`
}

type MoveRequest struct {
	PlayerID  string `json:"player_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

type MoveResponse struct {
	Session *Snapshot   `json:"session"`
	Move    *MoveDetail `json:"move"`
}

type ResignRequest struct {
	PlayerID string `json:"player_id"`
}

type MatchmakingRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

type MatchmakingResponse struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	WhiteID   string `json:"white_id,omitempty"`
	BlackID   string `json:"black_id,omitempty"`
}

type SessionListResponse struct {
	Sessions []string `json:"sessions"`
}

type ErrorEnvelope struct {
	Error *DomainError `json:"error"`
}
