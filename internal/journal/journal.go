// Package journal is the append-only audit trail of externally visible
// actions. The core only writes it; displays read it.
package journal

import (
	"fmt"
	"sync"
)

// Journal records one human-readable entry per action, in call order.
type Journal struct {
	mu      sync.RWMutex
	entries []string
}

func New() *Journal {
	return &Journal{}
}

// Append formats and records one entry.
func (j *Journal) Append(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the log in append order.
func (j *Journal) Entries() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

// Tail returns the last n entries (all of them when n is larger).
func (j *Journal) Tail(n int) []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if n > len(j.entries) {
		n = len(j.entries)
	}
	out := make([]string, n)
	copy(out, j.entries[len(j.entries)-n:])
	return out
}

// Len reports the number of entries.
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}
