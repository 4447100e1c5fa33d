package tui

import "testing"

func TestQuestionHistoryBrowsing(t *testing.T) {
	var h questionHistory
	if _, ok := h.Prev("draft"); ok {
		t.Fatalf("empty history should not browse")
	}
	h.Add("What does this do?")
	h.Add("What does this do?")
	h.Add("  Is it reentrant?  ")
	if len(h.entries) != 2 {
		t.Fatalf("entries = %q, want two deduplicated entries", h.entries)
	}

	got, ok := h.Prev("typing")
	if !ok || got != "Is it reentrant?" {
		t.Fatalf("Prev() = %q, %v", got, ok)
	}
	got, _ = h.Prev(got)
	if got != "What does this do?" {
		t.Fatalf("second Prev() = %q", got)
	}
	got, _ = h.Prev(got)
	if got != "What does this do?" {
		t.Fatalf("Prev() at oldest entry = %q", got)
	}
	if !h.Browsing() {
		t.Fatalf("expected browsing state")
	}

	got, _ = h.Next()
	if got != "Is it reentrant?" {
		t.Fatalf("Next() = %q", got)
	}
	got, ok = h.Next()
	if !ok || got != "typing" {
		t.Fatalf("Next() past newest should restore draft, got %q", got)
	}
	if h.Browsing() {
		t.Fatalf("should leave browsing state")
	}
	if _, ok := h.Next(); ok {
		t.Fatalf("Next() outside browsing should be a no-op")
	}
}
