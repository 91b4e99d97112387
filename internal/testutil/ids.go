package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/closuretree/internal/ir"
)

// IDGenerator hands out node ids prefix1, prefix2, ... in call order.
//
// Scenario setups use it for nodes declared without an id, so the same
// scenario always produces the same closure rows.
type IDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewIDGenerator creates a generator. An empty prefix defaults to "n".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "n"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next id.
func (g *IDGenerator) Next() ir.NodeID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return ir.NodeID(fmt.Sprintf("%s%d", g.prefix, g.n))
}
