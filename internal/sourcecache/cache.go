// Package sourcecache implements the SourceFileCache: memoized file
// contents addressed by local path or by an adapter-supplied
// sourceReference, backing the console's `list` command.
package sourcecache

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Fetcher retrieves the full content of a source behind a
// sourceReference. It is installed once at construction rather than
// the cache holding a back-pointer to SessionCore, avoiding a cyclic
// reference between the two.
type Fetcher func(sourceReference int) (content string, err error)

// Cache is the SourceFileCache. Entries are immutable once populated;
// Flush clears all of them (called on session teardown, since source
// references are only meaningful within the session that issued
// them).
type Cache struct {
	mu      sync.Mutex
	byPath  map[string][]string
	byRef   map[int][]string
	fetcher Fetcher
}

// New returns an empty cache that calls fetcher on a sourceReference
// miss.
func New(fetcher Fetcher) *Cache {
	return &Cache{
		byPath:  make(map[string][]string),
		byRef:   make(map[int][]string),
		fetcher: fetcher,
	}
}

// GetByPath returns the lines of the file at path, reading it lazily
// on first access. A read failure is not fatal — callers already
// tolerate missing source — and yields an empty sequence.
func (c *Cache) GetByPath(path string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lines, ok := c.byPath[path]; ok {
		return lines
	}

	data, err := os.ReadFile(path)
	var lines []string
	if err == nil {
		lines = splitLines(string(data))
	}
	c.byPath[path] = lines
	return lines
}

// GetBySourceReference returns the lines behind an adapter source
// reference, calling the installed fetcher on a miss. A fetcher
// failure yields a one-line sequence containing a human-readable
// error rather than propagating.
func (c *Cache) GetBySourceReference(ref int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lines, ok := c.byRef[ref]; ok {
		return lines
	}

	var lines []string
	content, err := c.fetcher(ref)
	if err != nil {
		lines = []string{fmt.Sprintf("<source unavailable: %v>", err)}
	} else {
		lines = splitLines(content)
	}
	c.byRef[ref] = lines
	return lines
}

// Flush clears every cached entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPath = make(map[string][]string)
	c.byRef = make(map[int][]string)
}

// Slice returns lines[start-1 : start-1+length], clamped to the
// available lines. start is 1-based; a start beyond the end of the
// file yields an empty slice.
func Slice(lines []string, start, length int) []string {
	if start < 1 || start > len(lines) {
		return []string{}
	}
	begin := start - 1
	end := begin + length
	if end > len(lines) {
		end = len(lines)
	}
	return lines[begin:end]
}

// splitLines splits on \n and strips a trailing \r from each line, so
// CRLF source files don't leave a stray \r at the end of every line.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
