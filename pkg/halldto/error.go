package halldto

// Stable machine-readable error codes shared by the REST and websocket
// surfaces. Codes are part of the public contract; messages are not.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeInvalidMove     = "invalid_move"
	CodeNotYourTurn     = "not_your_turn"
	CodeSeatTaken       = "seat_taken"
	CodeSessionFull     = "session_full"
	CodeSessionOver     = "session_over"
	CodeNotFound        = "session_not_found"
	CodeCorruptState    = "corrupt_state"
	CodeInternal        = "internal"

	// Websocket-only codes.
	CodeBadMessage  = "bad_message"
	CodeUnknownType = "unknown_type"
	CodeNotJoined   = "not_joined"
)

type DomainError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chesshall error"
}

func Errf(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func (e *DomainError) With(key string, value any) *DomainError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}
