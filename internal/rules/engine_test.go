package rules

import (
	"errors"
	"testing"
)

func apply(t *testing.T, e Engine, pos *Position, moves ...[2]string) *Position {
	t.Helper()
	for _, mv := range moves {
		next, _, err := e.Apply(pos, mv[0], mv[1], "")
		if err != nil {
			t.Fatalf("Apply %s%s: %v", mv[0], mv[1], err)
		}
		pos = next
	}
	return pos
}

func TestApplyAndStatus(t *testing.T) {
	e := New()
	pos := e.Start()

	if st := e.Status(pos); st.Turn != "white" || st.Over || st.InCheck {
		t.Fatalf("unexpected start status: %+v", st)
	}

	next, md, err := e.Apply(pos, "e2", "e4", "")
	if err != nil {
		t.Fatalf("Apply e2e4: %v", err)
	}
	if md.UCI != "e2e4" || md.SAN != "e4" || md.Capture || md.Check {
		t.Fatalf("unexpected move detail: %+v", md)
	}
	if st := e.Status(next); st.Turn != "black" {
		t.Fatalf("expected black to move, got %q", st.Turn)
	}
	// The original position is untouched.
	if st := e.Status(pos); st.Turn != "white" {
		t.Fatalf("Apply mutated its input position")
	}
}

func TestApplyIllegalAndMalformed(t *testing.T) {
	e := New()
	pos := e.Start()

	cases := []struct{ from, to, promo string }{
		{"e2", "e5", ""}, // pawn cannot jump three
		{"e7", "e5", ""}, // not white's piece
		{"x9", "e4", ""}, // bad square
	}
	for _, c := range cases {
		if _, _, err := e.Apply(pos, c.from, c.to, c.promo); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("Apply(%s,%s,%s): expected ErrIllegalMove, got %v", c.from, c.to, c.promo, err)
		}
	}

	// A piece name that cannot promote is a malformed request, not an
	// illegal move.
	if _, _, err := e.Apply(pos, "e2", "e4", "king"); !errors.Is(err, ErrBadPromotion) {
		t.Fatalf("expected ErrBadPromotion, got %v", err)
	}
}

func TestCheckDetection(t *testing.T) {
	e := New()
	pos := apply(t, e, e.Start(), [2]string{"e2", "e4"}, [2]string{"f7", "f5"})
	next, md, err := e.Apply(pos, "d1", "h5", "")
	if err != nil {
		t.Fatalf("Apply Qh5+: %v", err)
	}
	if !md.Check {
		t.Fatalf("expected check flag on Qh5+")
	}
	if st := e.Status(next); !st.InCheck || st.Over {
		t.Fatalf("expected in-check non-terminal status, got %+v", st)
	}
}

func TestFoolsMate(t *testing.T) {
	e := New()
	pos := apply(t, e, e.Start(),
		[2]string{"f2", "f3"}, [2]string{"e7", "e5"},
		[2]string{"g2", "g4"}, [2]string{"d8", "h4"},
	)
	st := e.Status(pos)
	if !st.Over || st.Outcome != "black" || st.Method != "checkmate" {
		t.Fatalf("expected black checkmate, got %+v", st)
	}
	// Terminal positions do not report a further move.
	if _, _, err := e.Apply(pos, "a2", "a3", ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove after mate, got %v", err)
	}
}

func TestPromotionCapture(t *testing.T) {
	e := New()
	pos := apply(t, e, e.Start(),
		[2]string{"a2", "a4"}, [2]string{"b7", "b5"},
		[2]string{"a4", "b5"}, [2]string{"a7", "a6"},
		[2]string{"b5", "a6"}, [2]string{"g8", "f6"},
		[2]string{"a6", "a7"}, [2]string{"h7", "h6"},
	)
	next, md, err := e.Apply(pos, "a7", "b8", "queen")
	if err != nil {
		t.Fatalf("Apply axb8=Q: %v", err)
	}
	if md.UCI != "a7b8q" || !md.Capture {
		t.Fatalf("unexpected promotion detail: %+v", md)
	}
	if st := e.Status(next); st.Turn != "black" || st.Over {
		t.Fatalf("unexpected status after promotion: %+v", st)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := New()
	pos := apply(t, e, e.Start(),
		[2]string{"e2", "e4"}, [2]string{"e7", "e5"}, [2]string{"g1", "f3"},
	)
	raw, err := e.Encode(pos)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	back, err := e.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if back.FEN() != pos.FEN() {
		t.Fatalf("FEN mismatch: %q vs %q", back.FEN(), pos.FEN())
	}
	uci, san := back.Moves()
	if len(uci) != 3 || len(san) != 3 {
		t.Fatalf("move history lost in round trip: %v %v", uci, san)
	}
	if st := e.Status(back); st.Turn != "black" {
		t.Fatalf("unexpected turn after round trip: %+v", st)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	e := New()
	if _, err := e.Decode([]byte("not json")); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for garbage, got %v", err)
	}
	if _, err := e.Decode([]byte(`{"fen":"x","moves_uci":["e2e5"],"moves_san":["??"]}`)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for unreplayable moves, got %v", err)
	}
	if _, err := e.Decode([]byte(`{"fen":"x","moves_uci":["e2e4"],"moves_san":[]}`)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for mismatched histories, got %v", err)
	}
}
