package match

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kapu/chesshall/internal/rules"
	"github.com/kapu/chesshall/internal/storage"
	"github.com/kapu/chesshall/pkg/halldto"
)

func newTestStore(t *testing.T) (*Store, storage.Store) {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return NewStore(rules.New(), fs), fs
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var derr *halldto.DomainError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return derr.Code
}

func TestCreateSeatsCreator(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	snap, seat, err := s.Create(ctx, "alice-1", "Alice", "white")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if seat != "white" || snap.White == nil || snap.White.PlayerID != "alice-1" {
		t.Fatalf("creator not seated white: seat=%q snap=%+v", seat, snap)
	}
	if snap.Status != string(StatusActive) || snap.Turn != "white" || snap.MoveCount != 0 {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}

	// Random with both seats free deterministically picks white.
	_, seat, err = s.Create(ctx, "bob-1", "Bob", "random")
	if err != nil || seat != "white" {
		t.Fatalf("random create: seat=%q err=%v", seat, err)
	}

	_, seat, err = s.Create(ctx, "carol-1", "Carol", "black")
	if err != nil || seat != "black" {
		t.Fatalf("black create: seat=%q err=%v", seat, err)
	}
}

func TestCreateValidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	if _, _, err := s.Create(ctx, "ab", "Al", "white"); errCode(t, err) != halldto.CodeInvalidArgument {
		t.Fatalf("short player id accepted")
	}
	if _, _, err := s.Create(ctx, "alice-1", "", "white"); errCode(t, err) != halldto.CodeInvalidArgument {
		t.Fatalf("empty name accepted")
	}
	if _, _, err := s.Create(ctx, "alice-1", "Alice", "green"); errCode(t, err) != halldto.CodeInvalidArgument {
		t.Fatalf("bad color accepted")
	}
}

func TestCreateMatchedSeatsBoth(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	snap, err := s.CreateMatched(ctx, "p1-alice", "Alice", "p2-bob", "Bob")
	if err != nil {
		t.Fatalf("CreateMatched: %v", err)
	}
	if snap.White == nil || snap.White.PlayerID != "p1-alice" {
		t.Fatalf("white seat: %+v", snap.White)
	}
	if snap.Black == nil || snap.Black.PlayerID != "p2-bob" {
		t.Fatalf("black seat: %+v", snap.Black)
	}
	if snap.Status != string(StatusActive) || snap.Turn != "white" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Both sides are validated, not just white.
	if _, err := s.CreateMatched(ctx, "p1-alice", "Alice", "pb", "B"); errCode(t, err) != halldto.CodeInvalidArgument {
		t.Fatalf("short black id accepted")
	}
	if _, err := s.CreateMatched(ctx, "pa", "A", "p2-bob", "Bob"); errCode(t, err) != halldto.CodeInvalidArgument {
		t.Fatalf("short white id accepted")
	}
}

func TestJoinAssignsAndConflicts(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	snap, _, err := s.Create(ctx, "p1-alice", "Alice", "white")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, seat, err := s.Join(ctx, snap.ID, "p2-bob", "Bob", "random")
	if err != nil || seat != "black" {
		t.Fatalf("join random into half-full session: seat=%q err=%v", seat, err)
	}
	if got.Black == nil || got.Black.PlayerID != "p2-bob" {
		t.Fatalf("black seat not assigned: %+v", got)
	}

	if _, _, err := s.Join(ctx, snap.ID, "p3-carol", "Carol", "random"); errCode(t, err) != halldto.CodeSessionFull {
		t.Fatalf("expected session_full")
	}
}

func TestJoinSeatTaken(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	snap, _, _ := s.Create(ctx, "p1-alice", "Alice", "white")
	if _, _, err := s.Join(ctx, snap.ID, "p2-bob", "Bob", "white"); errCode(t, err) != halldto.CodeSeatTaken {
		t.Fatalf("expected seat_taken")
	}
}

func TestJoinIdempotentKeepsUpdatedAt(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	snap, _, _ := s.Create(ctx, "p1-alice", "Alice", "white")
	joined, _, err := s.Join(ctx, snap.ID, "p2-bob", "Bob", "black")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	again, seat, err := s.Join(ctx, snap.ID, "p2-bob", "Bob", "random")
	if err != nil || seat != "black" {
		t.Fatalf("rejoin: seat=%q err=%v", seat, err)
	}
	if !again.UpdatedAt.Equal(joined.UpdatedAt) {
		t.Fatalf("idempotent rejoin changed UpdatedAt: %v vs %v", again.UpdatedAt, joined.UpdatedAt)
	}
}

func TestApplyMoveTurnEnforcement(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	snap, _, _ := s.Create(ctx, "p1-alice", "Alice", "white")
	s.Join(ctx, snap.ID, "p2-bob", "Bob", "black")

	after, detail, err := s.ApplyMove(ctx, snap.ID, "p1-alice", "e2", "e4", "")
	if err != nil {
		t.Fatalf("ApplyMove e2e4: %v", err)
	}
	if detail.SAN != "e4" || after.MoveCount != 1 || after.Turn != "black" {
		t.Fatalf("unexpected move result: %+v %+v", after, detail)
	}

	// Same player immediately again: rejected, board unchanged.
	_, _, err = s.ApplyMove(ctx, snap.ID, "p1-alice", "e7", "e5", "")
	if errCode(t, err) != halldto.CodeNotYourTurn {
		t.Fatalf("expected not_your_turn")
	}
	cur, _ := s.Snapshot(ctx, snap.ID)
	if cur.MoveCount != 1 || cur.FEN != after.FEN {
		t.Fatalf("rejected move altered the position")
	}
}

func TestApplyMoveUnoccupiedSeat(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	// Creator takes black; white is empty and it is white's turn.
	snap, _, _ := s.Create(ctx, "p1-alice", "Alice", "black")
	if _, _, err := s.ApplyMove(ctx, snap.ID, "p1-alice", "e2", "e4", ""); errCode(t, err) != halldto.CodeNotYourTurn {
		t.Fatalf("expected not_your_turn for unoccupied seat")
	}
}

func TestApplyMoveIllegal(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	snap, _, _ := s.Create(ctx, "p1-alice", "Alice", "white")
	s.Join(ctx, snap.ID, "p2-bob", "Bob", "black")
	if _, _, err := s.ApplyMove(ctx, snap.ID, "p1-alice", "e2", "e5", ""); errCode(t, err) != halldto.CodeInvalidMove {
		t.Fatalf("expected invalid_move")
	}
	// Nonsense promotion piece is a validation failure, not a move the
	// rules rejected.
	if _, _, err := s.ApplyMove(ctx, snap.ID, "p1-alice", "e2", "e4", "king"); errCode(t, err) != halldto.CodeInvalidArgument {
		t.Fatalf("expected invalid_argument for bad promotion piece")
	}
}

// Two channels hammering the same session may race, but per turn
// exactly one submission wins and the move count equals the number of
// accepted moves.
func TestConcurrentMovesNoDoubleApply(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	snap, _, _ := s.Create(ctx, "p1-alice", "Alice", "white")
	s.Join(ctx, snap.ID, "p2-bob", "Bob", "black")

	var accepted int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	attempt := func(player, from, to string, repeats int) {
		defer wg.Done()
		for i := 0; i < repeats; i++ {
			if _, _, err := s.ApplyMove(ctx, snap.ID, player, from, to, ""); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}
	}
	wg.Add(2)
	go attempt("p1-alice", "e2", "e4", 10)
	go attempt("p2-bob", "e7", "e5", 10)
	wg.Wait()

	cur, err := s.Snapshot(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if int32(cur.MoveCount) != accepted {
		t.Fatalf("move count %d != accepted submissions %d", cur.MoveCount, accepted)
	}
	if cur.MoveCount != 2 {
		t.Fatalf("expected exactly one accepted move per turn, got %d moves", cur.MoveCount)
	}
}

// Reads are unserialized, so a snapshot may land on either side of a
// concurrent move, but it must always be one whole state: the move
// count matching the histories, and terminal fields only on a
// terminal status.
func TestSnapshotConcurrentWithMoves(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	snap, _, _ := s.Create(ctx, "p1-alice", "Alice", "white")
	s.Join(ctx, snap.ID, "p2-bob", "Bob", "black")

	done := make(chan struct{})
	go func() {
		defer close(done)
		moves := []struct{ player, from, to string }{
			{"p1-alice", "e2", "e4"}, {"p2-bob", "e7", "e5"},
			{"p1-alice", "g1", "f3"}, {"p2-bob", "b8", "c6"},
			{"p1-alice", "f1", "c4"}, {"p2-bob", "g8", "f6"},
		}
		for _, mv := range moves {
			s.ApplyMove(ctx, snap.ID, mv.player, mv.from, mv.to, "")
		}
	}()

	for {
		cur, err := s.Snapshot(ctx, snap.ID)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if cur.MoveCount != len(cur.MovesUCI) || len(cur.MovesUCI) != len(cur.MovesSAN) {
			t.Fatalf("torn snapshot: count=%d uci=%d san=%d", cur.MoveCount, len(cur.MovesUCI), len(cur.MovesSAN))
		}
		if cur.Status == string(StatusActive) && (cur.Winner != "" || cur.Outcome != "") {
			t.Fatalf("active snapshot carries terminal fields: %+v", cur)
		}
		select {
		case <-done:
			final, _ := s.Snapshot(ctx, snap.ID)
			if final.MoveCount != 6 {
				t.Fatalf("expected 6 moves, got %d", final.MoveCount)
			}
			return
		default:
		}
	}
}

func TestHydrationAfterRestart(t *testing.T) {
	first, durable := newTestStore(t)
	ctx := context.Background()
	snap, _, _ := first.Create(ctx, "p1-alice", "Alice", "white")
	first.Join(ctx, snap.ID, "p2-bob", "Bob", "black")
	first.ApplyMove(ctx, snap.ID, "p1-alice", "e2", "e4", "")
	want, _ := first.Snapshot(ctx, snap.ID)

	// A fresh store over the same durable records simulates a restart.
	second := NewStore(rules.New(), durable)
	got, err := second.Snapshot(ctx, snap.ID)
	if err != nil {
		t.Fatalf("Snapshot after restart: %v", err)
	}
	if got.FEN != want.FEN || got.MoveCount != want.MoveCount {
		t.Fatalf("restart lost position: %+v vs %+v", got, want)
	}
	if got.White.PlayerID != "p1-alice" || got.Black.PlayerID != "p2-bob" {
		t.Fatalf("restart lost seats: %+v", got)
	}

	// Play continues on the hydrated session.
	after, _, err := second.ApplyMove(ctx, snap.ID, "p2-bob", "e7", "e5", "")
	if err != nil || after.MoveCount != 2 {
		t.Fatalf("move on hydrated session: %+v %v", after, err)
	}
}

func TestHydrationNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Snapshot(context.Background(), "never-created-id"); errCode(t, err) != halldto.CodeNotFound {
		t.Fatalf("expected session_not_found")
	}
}

func TestHydrationCorruptRecord(t *testing.T) {
	s, durable := newTestStore(t)
	ctx := context.Background()
	durable.Save(ctx, "corrupt-session-1", []byte("{not json"))
	if _, err := s.Snapshot(ctx, "corrupt-session-1"); errCode(t, err) != halldto.CodeCorruptState {
		t.Fatalf("expected corrupt_state for garbage record")
	}

	// Structurally valid JSON with an unreplayable move list is equally
	// corrupt.
	durable.Save(ctx, "corrupt-session-2", []byte(`{"id":"corrupt-session-2","status":"ACTIVE","fen":"x","moves_uci":["e2e5"],"moves_san":["??"]}`))
	if _, err := s.Snapshot(ctx, "corrupt-session-2"); errCode(t, err) != halldto.CodeCorruptState {
		t.Fatalf("expected corrupt_state for unreplayable record")
	}
}

func TestForceSave(t *testing.T) {
	s, durable := newTestStore(t)
	ctx := context.Background()
	snap, _, _ := s.Create(ctx, "p1-alice", "Alice", "white")

	saved, err := s.ForceSave(ctx, snap.ID)
	if err != nil {
		t.Fatalf("ForceSave: %v", err)
	}
	if saved.ID != snap.ID {
		t.Fatalf("unexpected snapshot: %+v", saved)
	}
	if _, err := durable.Load(ctx, snap.ID); err != nil {
		t.Fatalf("record missing after ForceSave: %v", err)
	}
}

func TestResign(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	snap, _, _ := s.Create(ctx, "p1-alice", "Alice", "white")
	s.Join(ctx, snap.ID, "p2-bob", "Bob", "black")

	got, err := s.Resign(ctx, snap.ID, "p2-bob")
	if err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if got.Status != string(StatusResigned) || got.Winner != "p1-alice" || got.Outcome != "white" {
		t.Fatalf("unexpected resign result: %+v", got)
	}
	if _, _, err := s.ApplyMove(ctx, snap.ID, "p1-alice", "e2", "e4", ""); errCode(t, err) != halldto.CodeSessionOver {
		t.Fatalf("expected session_over after resignation")
	}
}

func TestCheckmateFinishesSession(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	snap, _, _ := s.Create(ctx, "p1-alice", "Alice", "white")
	s.Join(ctx, snap.ID, "p2-bob", "Bob", "black")

	moves := []struct{ player, from, to string }{
		{"p1-alice", "f2", "f3"}, {"p2-bob", "e7", "e5"},
		{"p1-alice", "g2", "g4"}, {"p2-bob", "d8", "h4"},
	}
	var last *halldto.Snapshot
	for _, mv := range moves {
		var err error
		last, _, err = s.ApplyMove(ctx, snap.ID, mv.player, mv.from, mv.to, "")
		if err != nil {
			t.Fatalf("ApplyMove %s %s%s: %v", mv.player, mv.from, mv.to, err)
		}
	}
	if last.Status != string(StatusFinished) || last.Winner != "p2-bob" || last.Outcome != "black" {
		t.Fatalf("fool's mate not terminal: %+v", last)
	}
	if last.Method != "checkmate" {
		t.Fatalf("expected checkmate method, got %q", last.Method)
	}
}

func TestListSessions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	a, _, _ := s.Create(ctx, "p1-alice", "Alice", "white")
	b, _, _ := s.Create(ctx, "p2-bob", "Bob", "white")

	ids, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	found := map[string]bool{}
	for _, id := range ids {
		found[id] = true
	}
	if !found[a.ID] || !found[b.ID] {
		t.Fatalf("ListSessions missing ids: %v", ids)
	}
}
