//go:build unix

package memutil

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/flier/cellgc/internal/debug"
	"github.com/flier/cellgc/pkg/res"
)

// AllocateAligned reserves size+alignment bytes via an anonymous private
// mapping and returns both the mapping's own base and the alignment-rounded
// base within it.
//
// The extra alignment bytes are the price of getting an address whose low
// bits are guaranteed zero without a platform-specific aligned-mmap call;
// the mapped bytes before Base and after Base+size stay unused.
func AllocateAligned(size, alignment int) res.Result[Region] {
	raw, err := unix.Mmap(-1, 0, size+alignment,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		debug.Log(nil, "AllocateAligned", "mmap(%d) failed: %v", size+alignment, err)

		return res.Err[Region](ErrOutOfMemory)
	}

	rawBase := uintptr(unsafe.Pointer(&raw[0]))
	base := alignUp(rawBase, uintptr(alignment))

	debug.Log(nil, "AllocateAligned", "mmap raw=%#x base=%#x size=%d", rawBase, base, size)

	return res.Ok(Region{Bytes: raw, Raw: rawBase, Base: base})
}

// Free releases a region previously returned by AllocateAligned.
func Free(r Region) error {
	return unix.Munmap(r.Bytes)
}
