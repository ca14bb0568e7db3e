// Package arena implements the bitmap-marked, cell-based heap region the
// collector allocates objects from.
//
// An Arena is a fixed-size (1 MiB), self-describing region whose own base
// address is aligned to its size. The low bytes of the region hold two
// parallel bitmaps — one "block" bit and one "mark" bit per cell — that
// together encode each cell's allocation/GC state; the remainder holds
// 16-byte object cells. Any address inside the region can be mapped back to
// its arena with a single bitmask, and any address can be mapped to its cell
// id the same way, with no side tables.
package arena

import (
	"errors"
	"fmt"

	"github.com/flier/cellgc/internal/debug"
	"github.com/flier/cellgc/internal/memutil"
	"github.com/flier/cellgc/pkg/opt"
	"github.com/flier/cellgc/pkg/res"
)

const (
	// Size is the fixed size of every arena, and also its required address
	// alignment.
	Size = 1 << 20

	// AlignMask is Size-1; arena_base_of(address) = address &^ AlignMask.
	AlignMask = Size - 1

	// CellSize is the size in bytes of one allocation quantum.
	CellSize = 16

	// metadataSize is the byte range at the front of the region reserved for
	// the block- and mark-bit areas; it is never handed out as cell storage.
	metadataSize = 1 << 14 // 16384

	// blockAreaOffset and markAreaOffset are the byte offsets, from base, of
	// the two bitmap areas. Each area is metadataSize/2 bytes, one bit per
	// cell across the full [0, 65536) cell id space.
	blockAreaOffset = 0
	markAreaOffset  = metadataSize / 2

	// wordCells is how many cells' bits fit in one bitmap word.
	wordCells = 32

	// FirstCellID is the lowest cell id ever handed out; cells below it
	// overlap the metadata areas.
	FirstCellID = metadataSize / CellSize // 1024

	// LastCellID is one past the highest valid cell id.
	LastCellID = Size / CellSize // 65536

	// UsableCells is the number of cells available for allocation.
	UsableCells = LastCellID - FirstCellID // 64512

	// MaxAllocSize is the largest single allocation an arena can ever satisfy.
	MaxAllocSize = UsableCells * CellSize // 1032192

	firstWord = FirstCellID / wordCells
	lastWord  = LastCellID / wordCells
)

// ErrOutOfRange is returned by GetCellState/SetCellState for a cell id
// outside the arena's addressable range.
var ErrOutOfRange = errors.New("arena: cell id out of range")

// CellState is the decoded (block, mark) bit pair for one cell.
type CellState uint8

// The four cell states, encoded as block<<1|mark to match the table in the
// data model: Extend=00, Free=01, White=10, Black=11.
const (
	Extend CellState = iota
	Free
	White
	Black
)

func (s CellState) String() string {
	switch s {
	case Extend:
		return "Extend"
	case Free:
		return "Free"
	case White:
		return "White"
	case Black:
		return "Black"
	default:
		return fmt.Sprintf("CellState(%d)", uint8(s))
	}
}

// Arena is one 1 MiB, size-aligned heap region.
type Arena struct {
	region memutil.Region

	// base is region.Base; cached so the hot paths don't re-derive it.
	base uintptr

	// skew is region.Base - region.Raw: the offset into region.Bytes where
	// the aligned storage actually begins.
	skew uintptr
}

// New reserves a fresh, uninitialized arena. Callers must call Initialize
// before using it for allocation.
func New() res.Result[*Arena] {
	r := memutil.AllocateAligned(Size, Size)
	if r.IsErr() {
		return res.Err[*Arena](r.UnwrapErr())
	}

	region := r.Unwrap()
	a := &Arena{
		region: region,
		base:   region.Base,
		skew:   region.Base - region.Raw,
	}

	debug.Log(nil, "New", "reserved arena base=%#x", a.base)

	return res.Ok(a)
}

// Initialize marks every usable cell Free. Words [0, firstWord) belong to
// the metadata region itself and are left untouched.
func (a *Arena) Initialize() {
	for w := uintptr(firstWord); w < lastWord; w++ {
		*a.wordAt(blockAreaOffset, w) = 0
		*a.wordAt(markAreaOffset, w) = ^uint32(0)
	}

	debug.Log(nil, "Initialize", "arena base=%#x ready, %d usable cells", a.base, UsableCells)
}

// Base returns the arena's aligned base address.
func (a *Arena) Base() uintptr { return a.base }

// ArenaBaseOf returns the base of the arena address belongs to, without
// requiring that arena to be registered anywhere.
func ArenaBaseOf(address uintptr) uintptr {
	return address &^ AlignMask
}

// FirstCell returns the lowest valid cell id.
func (a *Arena) FirstCell() uint32 { return FirstCellID }

// LastCell returns one past the highest valid cell id.
func (a *Arena) LastCell() uint32 { return LastCellID }

// CellOf returns the cell id address falls within. The result is not range
// checked; callers that care must compare it against [FirstCellID,
// LastCellID).
func (a *Arena) CellOf(address uintptr) uint32 {
	return uint32((address & AlignMask) >> 4)
}

// AddressOf returns the address of the given cell's first byte.
func (a *Arena) AddressOf(cell uint32) uintptr {
	return a.base + uintptr(cell)*CellSize
}

// Bytes returns a slice view of n bytes of object storage starting at
// address, which must lie within this arena. This is the embedder's only
// access to an object's fields: AllocateFit hands back an address, not a
// pointer, and this is where that address turns into memory the host can
// read and write.
func (a *Arena) Bytes(address uintptr, n int) []byte {
	offset := a.skew + (address - a.base)

	return a.region.Bytes[offset : offset+uintptr(n)]
}

// GetCellState decodes the state of the given cell.
func (a *Arena) GetCellState(cell uint32) res.Result[CellState] {
	if !inRange(cell) {
		return res.Err[CellState](ErrOutOfRange)
	}

	return res.Ok(a.cellState(cell))
}

// SetCellState writes the state of the given cell, leaving every other bit
// in the enclosing bitmap words untouched.
func (a *Arena) SetCellState(cell uint32, state CellState) res.Result[struct{}] {
	if !inRange(cell) {
		return res.Err[struct{}](ErrOutOfRange)
	}

	a.setCell(cell, state)

	return res.Ok(struct{}{})
}

func inRange(cell uint32) bool {
	return cell >= FirstCellID && cell < LastCellID
}

// FreeStorage releases the arena's underlying raw region. The arena must not
// be used afterwards.
func (a *Arena) FreeStorage() error {
	debug.Log(nil, "FreeStorage", "releasing arena base=%#x", a.base)

	return memutil.Free(a.region)
}

// AllocateFit performs first-fit allocation of a run of cells large enough
// to hold size bytes, marking the head cell White and any remaining cells
// in the run Extend.
//
// Returns None when size is not positive, when size exceeds MaxAllocSize,
// and when the scan finds no run of the required length; in none of these
// cases is any cell state written.
// A naive version of this scan can be tempted to stamp the head cell's state
// at cell id 0 (metadata) whenever no fit is found by the time the loop
// falls through with start still zero; the write here only ever happens
// after a fit is confirmed.
func (a *Arena) AllocateFit(size int) opt.Option[uintptr] {
	if size <= 0 || size > MaxAllocSize {
		debug.Log(nil, "AllocateFit", "size %d outside (0, MaxAllocSize=%d]", size, MaxAllocSize)

		return opt.None[uintptr]()
	}

	cellsNeeded := uint32((size + CellSize - 1) / CellSize)

	var start, freeCount uint32

	for cell := uint32(FirstCellID); cell < LastCellID; cell++ {
		if a.cellState(cell) == Free {
			if start == 0 {
				start = cell
			}

			freeCount++
		} else {
			start, freeCount = 0, 0
		}

		if freeCount == cellsNeeded {
			break
		}
	}

	if freeCount != cellsNeeded {
		debug.Log(nil, "AllocateFit", "no run of %d cells available", cellsNeeded)

		return opt.None[uintptr]()
	}

	a.setCell(start, White)

	for c := start + 1; c < start+cellsNeeded; c++ {
		a.setCell(c, Extend)
	}

	addr := a.AddressOf(start)

	debug.Log(nil, "AllocateFit", "allocated %d cells at cell=%d address=%#x", cellsNeeded, start, addr)

	return opt.Some(addr)
}
