package scriptsource

import (
	"testing"
)

func TestLinesSplitsPlainText(t *testing.T) {
	input := []byte("The hero wakes up.\n\n  The hero crosses the river.  \r\nThe hero wins.\n")
	lines, err := Lines(input)
	if err != nil {
		t.Fatalf("Lines failed: %v", err)
	}
	want := []string{"The hero wakes up.", "The hero crosses the river.", "The hero wins."}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestLinesKeepsContentVerbatim(t *testing.T) {
	input := []byte("A scene with UPPER case, punctuation!? And numbers 123.\n")
	lines, err := Lines(input)
	if err != nil {
		t.Fatalf("Lines failed: %v", err)
	}
	if lines[0] != "A scene with UPPER case, punctuation!? And numbers 123." {
		t.Fatalf("content was altered: %q", lines[0])
	}
}

func TestLinesRejectsEmptyUpload(t *testing.T) {
	if _, err := Lines(nil); err == nil {
		t.Fatal("expected error for empty upload")
	}
}

func TestLinesRejectsBlankText(t *testing.T) {
	if _, err := Lines([]byte("   \n\n \t \n")); err == nil {
		t.Fatal("expected error for whitespace-only text")
	}
}

func TestLinesRejectsBinaryPayload(t *testing.T) {
	// A PNG header is neither text nor pdf.
	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d}
	if _, err := Lines(payload); err == nil {
		t.Fatal("expected error for binary payload")
	}
}
