package state

import (
	"strings"
	"testing"
)

func TestAddTurn_OrderPreserved(t *testing.T) {
	s := New(0)
	s.AddTurn("human", "user", "", "World")
	s.AddTurn("claude", "assistant", "Planner", "Hello, World.")

	turns := s.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Content != "World" || turns[1].Content != "Hello, World." {
		t.Fatalf("unexpected turn order: %+v", turns)
	}
}

func TestFullContext_NoTruncationWhenUnderLimit(t *testing.T) {
	s := New(1000)
	s.AddTurn("human", "user", "", "hi")
	got := s.FullContext()
	if strings.Contains(got, truncationMarker) {
		t.Fatalf("did not expect truncation marker, got %q", got)
	}
	if !strings.Contains(got, "hi") {
		t.Fatalf("expected content preserved, got %q", got)
	}
}

func TestFullContext_TruncatesFromFrontKeepingNewestSuffix(t *testing.T) {
	s := New(100)
	s.AddTurn("human", "user", "", strings.Repeat("a", 250))
	s.AddTurn("claude", "assistant", "Planner", strings.Repeat("z", 250))

	got := s.FullContext()
	if !strings.HasPrefix(got, truncationMarker) {
		t.Fatalf("expected truncation marker at start, got %q", got[:40])
	}
	if strings.Contains(got, "aaaa") {
		t.Fatalf("expected oldest content dropped, got %q", got)
	}
	if !strings.Contains(got, "zzzz") {
		t.Fatalf("expected newest content retained, got %q", got)
	}
	if len(got) > 100+len(truncationMarker)+1 {
		t.Fatalf("expected bounded length, got %d chars", len(got))
	}
}

func TestFullContext_ZeroLimitDisablesTruncation(t *testing.T) {
	s := New(0)
	s.AddTurn("human", "user", "", strings.Repeat("x", 5000))
	got := s.FullContext()
	if len(got) < 5000 {
		t.Fatalf("expected untruncated context, got length %d", len(got))
	}
}
