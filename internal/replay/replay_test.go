package replay

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempData(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp data file: %v", err)
	}
	return path
}

func TestNextLineCyclic(t *testing.T) {
	path := writeTempData(t, "line one\r\nline two\nline three\r\n")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if !src.Rewindable() {
		t.Fatal("regular file should be rewindable")
	}

	want := []string{
		"line one", "line two", "line three",
		"line one", "line two", "line three",
		"line one",
	}
	for i, w := range want {
		got, ok := src.NextLine()
		if !ok {
			t.Fatalf("call %d: NextLine returned no line", i)
		}
		if got != w {
			t.Errorf("call %d: got %q, want %q", i, got, w)
		}
	}
}

func TestNextLineMissingFinalNewline(t *testing.T) {
	path := writeTempData(t, "only line")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	for i := 0; i < 3; i++ {
		got, ok := src.NextLine()
		if !ok || got != "only line" {
			t.Fatalf("call %d: got (%q, %v), want (\"only line\", true)", i, got, ok)
		}
	}
}

func TestNextLineEmptyFile(t *testing.T) {
	path := writeTempData(t, "")

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if line, ok := src.NextLine(); ok {
		t.Errorf("empty file yielded line %q", line)
	}
}

func TestNextLineNonRewindableDrought(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()

	if _, err := w.WriteString("piped line\n"); err != nil {
		t.Fatalf("writing to pipe: %v", err)
	}
	w.Close()

	src := NewFromFile(r, false)
	if src.Rewindable() {
		t.Fatal("pipe should not be rewindable")
	}

	got, ok := src.NextLine()
	if !ok || got != "piped line" {
		t.Fatalf("got (%q, %v), want (\"piped line\", true)", got, ok)
	}

	if line, ok := src.NextLine(); ok {
		t.Errorf("drained pipe yielded line %q", line)
	}
}
