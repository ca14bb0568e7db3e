package cellgc

// TypeInfo is the capability the embedder provides to the collector: given
// an object's address, enumerate the outbound references it currently
// holds.
//
// References must terminate, must not mutate the heap, and may return
// duplicates; order is not significant. A zero address in the returned
// slice is simply skipped by the mark phase rather than pushed to the
// worklist, so implementations need not filter it out themselves, though
// doing so is harmless.
//
// The optional IsGray/MarkGray/ClearGray capability described for an
// incremental extension is not part of this interface: this collector is
// strictly stop-the-world and has no use for it.
type TypeInfo interface {
	References(address uintptr) []uintptr
}
