//go:build !unix

package memutil

import (
	"unsafe"

	"github.com/flier/cellgc/internal/debug"
	"github.com/flier/cellgc/pkg/res"
)

// AllocateAligned reserves size+alignment bytes from the Go heap and returns
// the alignment-rounded base within that allocation.
//
// This is the portable path: over-allocate by one alignment and round up, at
// the cost of wasting up to alignment-1 bytes. The backing slice is retained
// on the returned Region so it survives for as long as the arena built on
// top of it does.
func AllocateAligned(size, alignment int) res.Result[Region] {
	raw := make([]byte, size+alignment)

	rawBase := uintptr(unsafe.Pointer(&raw[0]))
	base := alignUp(rawBase, uintptr(alignment))

	debug.Log(nil, "AllocateAligned", "fallback raw=%#x base=%#x size=%d", rawBase, base, size)

	return res.Ok(Region{Bytes: raw, Raw: rawBase, Base: base})
}

// Free releases a region previously returned by AllocateAligned.
//
// There is nothing to do: the region is ordinary Go-heap memory and is
// reclaimed once the arena holding its Region drops the last reference.
func Free(Region) error {
	return nil
}
