package testutil

import "fmt"

// CountingGenerator yields correlation ids "<prefix>-1", "<prefix>-2", ...
//
// It satisfies vm.CorrelationGenerator and never runs out, unlike
// vm.FixedGenerator, which suits scenarios of arbitrary length.
type CountingGenerator struct {
	prefix string
	n      int
}

// NewCountingGenerator creates a generator. An empty prefix becomes "corr".
func NewCountingGenerator(prefix string) *CountingGenerator {
	if prefix == "" {
		prefix = "corr"
	}
	return &CountingGenerator{prefix: prefix}
}

// Generate returns the next id. Not safe for concurrent use; the runtime
// calls it under its own lock.
func (g *CountingGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
