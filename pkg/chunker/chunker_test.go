package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitFixedWindowWithOverlap(t *testing.T) {
	text := strings.Repeat("a", 25)
	pieces := Split(text, Options{Size: 10, Overlap: 5, Strategy: "fixed"})

	if len(pieces) != 4 {
		t.Fatalf("got %d pieces, want 4", len(pieces))
	}
	for i, p := range pieces {
		if p.Index != i {
			t.Errorf("pieces[%d].Index = %d", i, p.Index)
		}
		if utf8.RuneCountInString(p.Text) > 10 {
			t.Errorf("pieces[%d] has %d runes, exceeds size", i, utf8.RuneCountInString(p.Text))
		}
	}
	// Step is size minus overlap, so the last window starts at rune 15.
	if last := pieces[3].Text; utf8.RuneCountInString(last) != 10 {
		t.Errorf("final piece has %d runes, want 10", utf8.RuneCountInString(last))
	}
}

func TestSplitParagraphPacking(t *testing.T) {
	text := "First paragraph.\n\nSecond paragraph.\n\nThird paragraph."
	pieces := Split(text, Options{Size: 40, Overlap: 0, Strategy: "paragraph"})

	if len(pieces) != 2 {
		t.Fatalf("got %d pieces, want 2: %+v", len(pieces), pieces)
	}
	if !strings.Contains(pieces[0].Text, "First") || !strings.Contains(pieces[0].Text, "Second") {
		t.Errorf("pieces[0] = %q, first two paragraphs should pack together", pieces[0].Text)
	}
	if !strings.Contains(pieces[1].Text, "Third") {
		t.Errorf("pieces[1] = %q", pieces[1].Text)
	}
}

func TestSplitOversizedParagraphFallsBackToSentences(t *testing.T) {
	para := "One sentence here. Another sentence here. " + strings.Repeat("x", 60)
	pieces := Split(para, Options{Size: 50, Overlap: 0, Strategy: "paragraph"})

	if len(pieces) < 2 {
		t.Fatalf("got %d pieces, oversized paragraph must split", len(pieces))
	}
	for i, p := range pieces {
		if utf8.RuneCountInString(p.Text) > 50 {
			t.Errorf("pieces[%d] has %d runes, exceeds size", i, utf8.RuneCountInString(p.Text))
		}
	}
}

func TestSplitSentenceStrategy(t *testing.T) {
	text := "Short one. Another short one. A third!"
	pieces := Split(text, Options{Size: 20, Overlap: 0, Strategy: "sentence"})

	if len(pieces) < 2 {
		t.Fatalf("got %d pieces, want sentences packed into multiple pieces", len(pieces))
	}
	joined := strings.Join([]string{pieces[0].Text, pieces[1].Text}, " ")
	if !strings.Contains(joined, "Short one.") {
		t.Errorf("sentences lost: %q", joined)
	}
}

func TestSplitEmptyInput(t *testing.T) {
	for _, strategy := range []string{"fixed", "sentence", "paragraph"} {
		if pieces := Split("", Options{Size: 100, Strategy: strategy}); len(pieces) != 0 {
			t.Errorf("Split(\"\", %s) = %d pieces, want none", strategy, len(pieces))
		}
	}
	if pieces := Split("   \n\n  ", DefaultOptions()); len(pieces) != 0 {
		t.Errorf("whitespace-only input produced %d pieces", len(pieces))
	}
}

func TestSplitInvalidOptionsNormalized(t *testing.T) {
	// Overlap at or above size would loop forever with a non-positive step.
	pieces := Split(strings.Repeat("b", 30), Options{Size: 10, Overlap: 10, Strategy: "fixed"})
	if len(pieces) != 3 {
		t.Errorf("got %d pieces, want 3 with overlap reset to zero", len(pieces))
	}

	pieces = Split("hello world", Options{Size: -5, Strategy: "fixed"})
	if len(pieces) != 1 {
		t.Errorf("got %d pieces, want 1 with size reset to default", len(pieces))
	}
}
