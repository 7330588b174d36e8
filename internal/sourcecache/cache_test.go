package sourcecache

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestGetByPathMissingFileIsEmptyNotFatal(t *testing.T) {
	c := New(func(int) (string, error) { return "", nil })
	lines := c.GetByPath("/no/such/file")
	if len(lines) != 0 {
		t.Fatalf("expected empty sequence for missing file, got %v", lines)
	}
}

func TestGetByPathCachesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := New(func(int) (string, error) { return "", nil })
	lines := c.GetByPath(path)
	if len(lines) != 3 || lines[0] != "one" || lines[2] != "three" {
		t.Fatalf("unexpected lines: %v", lines)
	}

	// Mutating the file after the first read should not be reflected
	// back (entries are immutable once populated).
	if err := os.WriteFile(path, []byte("changed"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	again := c.GetByPath(path)
	if len(again) != 3 {
		t.Fatalf("expected cached content to be unaffected by later writes, got %v", again)
	}
}

func TestGetBySourceReferenceStripsCR(t *testing.T) {
	c := New(func(ref int) (string, error) {
		return "a\r\nb\r\nc\n", nil
	})

	lines := c.GetBySourceReference(9)
	want := []string{"a", "b", "c", ""}
	if fmt.Sprint(lines) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, lines)
	}
}

func TestGetBySourceReferenceFetcherFailureYieldsErrorLine(t *testing.T) {
	c := New(func(ref int) (string, error) {
		return "", fmt.Errorf("adapter unreachable")
	})

	lines := c.GetBySourceReference(1)
	if len(lines) != 1 {
		t.Fatalf("expected a single error line, got %v", lines)
	}
}

func TestFlushClearsAllEntries(t *testing.T) {
	calls := 0
	c := New(func(int) (string, error) {
		calls++
		return "x", nil
	})
	c.GetBySourceReference(1)
	c.Flush()
	c.GetBySourceReference(1)

	if calls != 2 {
		t.Fatalf("expected fetcher to be called again after flush, got %d calls", calls)
	}
}

func TestSliceBoundaries(t *testing.T) {
	lines := []string{"a", "b", "c", "d"}

	if got := Slice(lines, 5, 2); len(got) != 0 {
		t.Fatalf("expected empty slice when start beyond total lines, got %v", got)
	}
	if got := Slice(lines, 3, 10); fmt.Sprint(got) != fmt.Sprint([]string{"c", "d"}) {
		t.Fatalf("expected remaining lines from start, got %v", got)
	}
	if got := Slice(lines, 1, 2); fmt.Sprint(got) != fmt.Sprint([]string{"a", "b"}) {
		t.Fatalf("unexpected slice: %v", got)
	}
}
