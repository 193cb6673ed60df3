package core

import "testing"

func TestTurnLimiter(t *testing.T) {
	tl := NewTurnLimiter(2)

	if tl.Exhausted() {
		t.Fatal("fresh limiter should not be exhausted")
	}
	if err := tl.Increment(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tl.Increment(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tl.Exhausted() || tl.Remaining() != 0 || tl.Count() != 2 {
		t.Fatalf("expected exhausted limiter, count=%d remaining=%d", tl.Count(), tl.Remaining())
	}
	if err := tl.Increment(); err == nil {
		t.Fatal("expected error beyond the limit")
	}
}

func TestTurnLimiter_DefaultsWhenNonPositive(t *testing.T) {
	if got := NewTurnLimiter(0).Max(); got != DefaultMaxTurns {
		t.Fatalf("expected default %d, got %d", DefaultMaxTurns, got)
	}
	if got := NewTurnLimiter(-3).Max(); got != DefaultMaxTurns {
		t.Fatalf("expected default %d, got %d", DefaultMaxTurns, got)
	}
}
