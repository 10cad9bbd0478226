package suggest

import "sync/atomic"

// Generations hands out tokens for in-flight requests. Only the response for
// the most recent token may be applied; older ones are stale.
type Generations struct {
	n atomic.Uint64
}

// Begin starts a new generation and supersedes every earlier one.
func (g *Generations) Begin() uint64 {
	return g.n.Add(1)
}

// IsCurrent reports whether tok is still the latest generation.
func (g *Generations) IsCurrent(tok uint64) bool {
	return g.n.Load() == tok
}
