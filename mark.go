package cellgc

import (
	"github.com/flier/cellgc/arena"
	"github.com/flier/cellgc/internal/debug"
)

// mark walks the object graph reachable from every root, setting each
// reached head cell Black.
//
// The worklist is LIFO; traversal order is not observable externally.
// Any cell that is not White (already Black, or not an object head at all)
// is skipped before its references are enumerated:
// the source walks unconditionally and only terminates because its test
// graphs happen to be acyclic, but nothing in the contract guarantees that
// in general, so skipping is required here, not merely permitted.
func (c *Collector) mark() {
	slot := c.worklistPool.Get()
	worklist := (*slot)[:0]

	for root := range c.roots.All() {
		worklist = append(worklist, root)
	}

	marked := 0

	for len(worklist) > 0 {
		addr := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if addr == 0 {
			continue
		}

		a, ok := c.arenaFor(addr)
		if !ok {
			continue
		}

		cell := a.CellOf(addr)

		state := a.GetCellState(cell)
		if state.IsErr() || state.Unwrap() != arena.White {
			continue
		}

		a.SetCellState(cell, arena.Black)
		marked++

		for _, ref := range c.typeinfo.References(addr) {
			if ref != 0 {
				worklist = append(worklist, ref)
			}
		}
	}

	*slot = worklist[:0]
	c.worklistPool.Put(slot)

	debug.Log(nil, "mark", "marked %d objects Black", marked)
}
