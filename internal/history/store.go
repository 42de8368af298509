// Package history persists identified tracks to an append-only plain-text
// log, one line per identification.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is a single identified track.
type Entry struct {
	Time   time.Time
	Artist string
	Title  string
}

// Same reports whether two entries refer to the same track, ignoring the
// timestamp. Used for suppressing repeated writes of the same identification.
func (e Entry) Same(other Entry) bool {
	return e.Artist == other.Artist && e.Title == other.Title
}

// Store is an append-only track log backed by a text file. Each line is
// "RFC3339-timestamp<TAB>artist<TAB>title"; the file is never rewritten or
// reordered. Every append is flushed to disk before it is acknowledged, so a
// crash can at worst truncate the line being written; truncated lines are
// skipped on the next Open.
//
// A Store assumes it is the only writer of its file. Opening the same file
// from two processes at once is not supported.
type Store struct {
	mu      sync.Mutex
	f       *os.File
	entries []Entry
}

// DefaultPath returns the well-known history file location under the user's
// home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".skywave_history.txt"), nil
}

// Open loads the log at path, creating it if needed. Existing entries are
// read into memory so Last and Entries never re-scan the file.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var entries []Entry
	for _, line := range strings.Split(string(data), "\n") {
		e, ok := parseLine(line)
		if !ok {
			continue
		}
		entries = append(entries, e)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}

	// A crash mid-append leaves a torn final line with no newline. Seal it
	// now so the next append starts on its own line instead of merging with
	// the torn tail.
	if len(data) > 0 && data[len(data)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("seal history: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return nil, fmt.Errorf("sync history: %w", err)
		}
	}
	return &Store{f: f, entries: entries}, nil
}

func parseLine(line string) (Entry, bool) {
	line = strings.TrimRight(line, "\r")
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return Entry{}, false
	}
	return Entry{Time: ts, Artist: parts[1], Title: parts[2]}, true
}

// Append durably persists the entry. The write is a single line followed by
// an fsync, keeping previously written entries intact no matter where a
// crash lands.
func (s *Store) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line := fmt.Sprintf("%s\t%s\t%s\n",
		e.Time.Format(time.RFC3339), sanitize(e.Artist), sanitize(e.Title))
	if _, err := s.f.WriteString(line); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync history: %w", err)
	}
	s.entries = append(s.entries, e)
	return nil
}

// Last returns the most recently persisted entry. The second return is false
// when the log is empty.
func (s *Store) Last() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Entries returns a copy of the log in append order.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of persisted entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close releases the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// Tabs and newlines are the line format's structure; they cannot appear in
// field values.
func sanitize(v string) string {
	v = strings.ReplaceAll(v, "\t", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	return v
}
