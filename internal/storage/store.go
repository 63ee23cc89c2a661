package storage

import (
	"context"
	"errors"
	"regexp"
)

// ErrNotFound reports that no record exists for the requested id.
var ErrNotFound = errors.New("session record not found")

// ErrBadID reports a session id outside the allowed charset.
var ErrBadID = errors.New("invalid session id")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,128}$`)

// ValidID reports whether id is a well-formed durable-store key:
// alphanumeric plus - and _, 6 to 128 characters.
func ValidID(id string) bool { return idPattern.MatchString(id) }

// Store persists one full snapshot record per session id. It does no
// locking of its own; the session core serializes writes per id.
type Store interface {
	Save(ctx context.Context, id string, raw []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
}
