package cellgc

import (
	"github.com/flier/cellgc/arena"
	"github.com/flier/cellgc/internal/debug"
)

// sweep walks every arena's cells in order, reclaiming everything not
// reached this cycle and demoting survivors back to White for the next one.
//
// clear is carried across iterations within one arena: it becomes true the
// instant a White head is reclaimed to Free, and stays true through the
// Extend run that follows it, reclaiming the whole object; a Black head
// resets it to false, keeping its Extend run alive.
func (c *Collector) sweep() {
	survived, reclaimed := 0, 0

	for _, base := range c.order {
		a, ok := c.arenas.Load(base)
		if !ok {
			continue
		}

		clear := false

		for cell := a.FirstCell(); cell < a.LastCell(); cell++ {
			switch a.GetCellState(cell).Unwrap() {
			case arena.Black:
				a.SetCellState(cell, arena.White)

				clear = false
				survived++
			case arena.White:
				a.SetCellState(cell, arena.Free)

				clear = true
				reclaimed++
			case arena.Extend:
				if clear {
					a.SetCellState(cell, arena.Free)
				}
			case arena.Free:
				clear = false
			}
		}
	}

	debug.Log(nil, "sweep", "%d objects survived, %d reclaimed", survived, reclaimed)
}
