package matchmaking

import (
	"context"
	"errors"
	"testing"

	"github.com/kapu/chesshall/internal/match"
	"github.com/kapu/chesshall/internal/rules"
	"github.com/kapu/chesshall/internal/storage"
	"github.com/kapu/chesshall/pkg/halldto"
)

func newTestQueue(t *testing.T) (*Queue, *match.Store) {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store := match.NewStore(rules.New(), fs)
	return NewQueue(store), store
}

func TestJoinPairsFIFO(t *testing.T) {
	q, store := newTestQueue(t)
	ctx := context.Background()

	res, err := q.Join(ctx, "p1-alice", "Alice")
	if err != nil || res.State != StateWaiting {
		t.Fatalf("first join: %+v %v", res, err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected one waiting entry, got %d", q.Len())
	}

	res, err = q.Join(ctx, "p2-bob", "Bob")
	if err != nil || res.State != StateMatched {
		t.Fatalf("second join: %+v %v", res, err)
	}
	// Longest-waiting entrant takes white.
	if res.WhiteID != "p1-alice" || res.BlackID != "p2-bob" {
		t.Fatalf("wrong colors: %+v", res)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not drained after match")
	}

	snap, err := store.Snapshot(ctx, res.SessionID)
	if err != nil {
		t.Fatalf("Snapshot of matched session: %v", err)
	}
	if snap.White.PlayerID != "p1-alice" || snap.Black.PlayerID != "p2-bob" {
		t.Fatalf("session seats disagree with match: %+v", snap)
	}
	if snap.Status != "ACTIVE" {
		t.Fatalf("matched session not active: %q", snap.Status)
	}
}

func TestJoinThirdPlayerWaits(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	q.Join(ctx, "p1-alice", "Alice")
	q.Join(ctx, "p2-bob", "Bob")

	res, err := q.Join(ctx, "p3-carol", "Carol")
	if err != nil || res.State != StateWaiting {
		t.Fatalf("third join: %+v %v", res, err)
	}
	if q.Status("p3-carol") != StateWaiting {
		t.Fatalf("third player not reported waiting")
	}
}

func TestJoinIdempotentWhileWaiting(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	q.Join(ctx, "p1-alice", "Alice")

	res, err := q.Join(ctx, "p1-alice", "Alice")
	if err != nil || res.State != StateWaiting {
		t.Fatalf("repeat join: %+v %v", res, err)
	}
	if q.Len() != 1 {
		t.Fatalf("repeat join duplicated the entry: %d", q.Len())
	}
}

func TestJoinValidation(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	var derr *halldto.DomainError
	if _, err := q.Join(ctx, "ab", "Al"); !errors.As(err, &derr) || derr.Code != halldto.CodeInvalidArgument {
		t.Fatalf("short id accepted: %v", err)
	}
	if _, err := q.Join(ctx, "p1-alice", "  "); !errors.As(err, &derr) || derr.Code != halldto.CodeInvalidArgument {
		t.Fatalf("blank name accepted: %v", err)
	}
}

func TestLeaveAndStatus(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	q.Join(ctx, "p1-alice", "Alice")

	if q.Status("p1-alice") != StateWaiting {
		t.Fatalf("expected waiting before leave")
	}
	if !q.Leave("p1-alice") {
		t.Fatalf("leave reported missing entry")
	}
	if q.Leave("p1-alice") {
		t.Fatalf("second leave reported an entry")
	}
	if q.Status("p1-alice") != StateNotWaiting {
		t.Fatalf("expected not_waiting after leave")
	}

	// Bob now has nobody to pair with.
	res, err := q.Join(ctx, "p2-bob", "Bob")
	if err != nil || res.State != StateWaiting {
		t.Fatalf("join after leave: %+v %v", res, err)
	}
}

type failingCreator struct{}

func (failingCreator) CreateMatched(context.Context, string, string, string, string) (*halldto.Snapshot, error) {
	return nil, errors.New("boom")
}

func TestJoinKeepsOpponentOnCreateFailure(t *testing.T) {
	q := NewQueue(failingCreator{})
	ctx := context.Background()
	q.Join(ctx, "p1-alice", "Alice")

	if _, err := q.Join(ctx, "p2-bob", "Bob"); err == nil {
		t.Fatalf("expected creator failure to surface")
	}
	// Alice's wait survives the failed pairing.
	if q.Status("p1-alice") != StateWaiting {
		t.Fatalf("opponent lost their place after failed match")
	}
	if q.Len() != 1 {
		t.Fatalf("expected one waiting entry, got %d", q.Len())
	}
}
