package testutil

import (
	"fmt"
	"sync"
)

// RunIDs generates run IDs in sequence: <prefix>-0001, <prefix>-0002, ...
//
// The IDs sort in generation order, like the UUIDv7 IDs used outside
// tests, so "latest run" queries behave the same.
//
// Thread-safety: Generate is safe for concurrent use.
type RunIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewRunIDs creates a generator. An empty prefix uses "run".
func NewRunIDs(prefix string) *RunIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &RunIDs{prefix: prefix}
}

// Generate returns the next run ID. It never fails; the error return
// matches store.NewRunID.
func (g *RunIDs) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n), nil
}
