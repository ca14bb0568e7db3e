// Package cellgc implements a small, embeddable tracing garbage collector
// for a host program that manages its own heap objects at known addresses.
//
// The collector is a classical stop-the-world mark-sweep policy over a set
// of bitmap-marked, cell-based arenas (package arena). The host supplies a
// TypeInfo implementation so the mark phase can enumerate outbound
// references; everything else — allocation, root bookkeeping, address
// validity, and collection itself — is handled here.
package cellgc

import (
	"github.com/flier/cellgc/arena"
	"github.com/flier/cellgc/internal/debug"
	"github.com/flier/cellgc/internal/xsync"
	"github.com/flier/cellgc/pkg/opt"
)

// Collector holds a set of arenas keyed by base address, a set of root
// addresses, and the host's type information. It is not safe for
// unsynchronised concurrent use: per the concurrency model, the embedder
// serialises access, and Collect in particular requires exclusive access
// for its duration.
type Collector struct {
	typeinfo TypeInfo

	roots  xsync.Set[uintptr]
	arenas xsync.Map[uintptr, *arena.Arena]

	// order records arena base addresses in creation order, so allocation
	// and sweep visit arenas deterministically without needing a second
	// pass over the concurrent map.
	order []uintptr

	// worklistPool recycles the mark phase's traversal stack across
	// collections instead of reallocating it every cycle.
	worklistPool xsync.Pool[[]uintptr]
}

// New returns a collector with no arenas and no roots.
func New(typeinfo TypeInfo) *Collector {
	return &Collector{typeinfo: typeinfo}
}

// SetTypeInfo replaces the collector's TypeInfo. It exists because a
// TypeInfo implementation frequently needs to call back into the collector
// that owns it (for example to read object bytes), creating a cycle New's
// single constructor argument can't express.
func (c *Collector) SetTypeInfo(typeinfo TypeInfo) {
	c.typeinfo = typeinfo
}

// Allocate returns the address of a freshly reserved, uninitialized object
// of size bytes.
//
// The first arena is created lazily on the first call. If every existing
// arena is full, Allocate creates one additional arena and retries once
// before reporting failure; it never triggers a Collect itself — that
// decision is left to the embedder, who can retry after an explicit Collect.
func (c *Collector) Allocate(size int) opt.Option[uintptr] {
	if len(c.order) == 0 && !c.growArena() {
		return opt.None[uintptr]()
	}

	if addr, ok := c.allocateFromExisting(size); ok {
		return opt.Some(addr)
	}

	if size <= 0 || size > arena.MaxAllocSize {
		debug.Log(nil, "Allocate", "size %d can never fit in an arena", size)

		return opt.None[uintptr]()
	}

	if !c.growArena() {
		return opt.None[uintptr]()
	}

	if addr, ok := c.allocateFromExisting(size); ok {
		return opt.Some(addr)
	}

	debug.Log(nil, "Allocate", "size %d could not be satisfied by any arena", size)

	return opt.None[uintptr]()
}

func (c *Collector) allocateFromExisting(size int) (uintptr, bool) {
	for _, base := range c.order {
		a, ok := c.arenas.Load(base)
		if !ok {
			continue
		}

		if r := a.AllocateFit(size); r.IsSome() {
			return r.Unwrap(), true
		}
	}

	return 0, false
}

func (c *Collector) growArena() bool {
	r := arena.New()
	if r.IsErr() {
		debug.Log(nil, "growArena", "failed to reserve a new arena: %v", r.UnwrapErr())

		return false
	}

	a := r.Unwrap()
	a.Initialize()

	c.arenas.Store(a.Base(), a)
	c.order = append(c.order, a.Base())

	debug.Log(nil, "growArena", "arena base=%#x (%d total)", a.Base(), len(c.order))

	return true
}

// AddRoot registers address as a root, reporting whether it was not already
// one.
func (c *Collector) AddRoot(address uintptr) bool {
	if c.roots.Load(address) {
		return false
	}

	c.roots.Store(address)

	return true
}

// RemoveRoot unregisters address as a root, reporting whether it was
// previously one.
func (c *Collector) RemoveRoot(address uintptr) bool {
	return c.roots.Delete(address)
}

// IsAddressValid reports whether address currently names the head cell of a
// live, allocated object. The zero address is always invalid, as are
// addresses with no registered arena, or whose cell state is Extend or
// Free.
func (c *Collector) IsAddressValid(address uintptr) bool {
	if address == 0 {
		return false
	}

	a, ok := c.arenaFor(address)
	if !ok {
		return false
	}

	state := a.GetCellState(a.CellOf(address))
	if state.IsErr() {
		return false
	}

	switch state.Unwrap() {
	case arena.White, arena.Black:
		return true
	default:
		return false
	}
}

// Bytes returns a view of n bytes of object storage at address, for the
// embedder to read or write an allocated object's fields. Panics if address
// does not fall within any arena this collector has registered.
func (c *Collector) Bytes(address uintptr, n int) []byte {
	a, ok := c.arenaFor(address)
	if !ok {
		panic("cellgc: address not in any registered arena")
	}

	return a.Bytes(address, n)
}

// arenaFor locates the arena containing address, if one is registered.
func (c *Collector) arenaFor(address uintptr) (*arena.Arena, bool) {
	return c.arenas.Load(arena.ArenaBaseOf(address))
}

// Collect runs one full mark-then-sweep cycle. It observes exactly the
// roots and object contents visible at the moment it is called; an
// AddRoot issued after Collect starts has no effect on that cycle.
func (c *Collector) Collect() {
	debug.Log(nil, "Collect", "starting cycle over %d arenas", len(c.order))

	c.mark()
	c.sweep()
}

// Close releases every arena's underlying storage. The collector must not
// be used afterwards. Leaking this call is a resource bug, not a safety
// violation for the host.
func (c *Collector) Close() error {
	var firstErr error

	for _, base := range c.order {
		a, ok := c.arenas.Load(base)
		if !ok {
			continue
		}

		if err := a.FreeStorage(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
