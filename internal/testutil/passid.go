package testutil

import (
	"fmt"
	"sync"
)

// FixedPassIDGenerator returns the same pass id every time.
//
// Tests that pin a single pass use it so that reports are byte-identical
// across runs.
// If id is empty, Generate returns "test-pass-default".
type FixedPassIDGenerator struct {
	id string
}

// NewFixedPassIDGenerator creates a generator that always returns id.
func NewFixedPassIDGenerator(id string) *FixedPassIDGenerator {
	if id == "" {
		id = "test-pass-default"
	}
	return &FixedPassIDGenerator{id: id}
}

// Generate returns the fixed pass id.
func (g *FixedPassIDGenerator) Generate() string {
	return g.id
}

// CountingPassIDGenerator returns "<prefix>-1", "<prefix>-2", ... so tests
// that run several passes can tell them apart.
type CountingPassIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewCountingPassIDGenerator creates a counting generator. An empty prefix
// uses "pass".
func NewCountingPassIDGenerator(prefix string) *CountingPassIDGenerator {
	if prefix == "" {
		prefix = "pass"
	}
	return &CountingPassIDGenerator{prefix: prefix}
}

// Generate returns the next id in sequence.
func (g *CountingPassIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
