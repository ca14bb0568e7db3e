package arena

import "github.com/flier/cellgc/pkg/xunsafe"

// wordAt returns a pointer to the 32-bit bitmap word at the given word index
// within the given area, reinterpreting the arena's own storage bytes as a
// word in place rather than decoding them by hand.
//
// Callers never touch a's storage bytes directly for bitmap purposes, only
// through this word view and the per-cell helpers below.
func (a *Arena) wordAt(areaOffset, wordIndex uintptr) *uint32 {
	byteOffset := a.skew + areaOffset + wordIndex*4

	return xunsafe.Cast[uint32](&a.region.Bytes[byteOffset])
}

// wordForCell returns the word containing cell's bit in the given area,
// four bytes per 32 cells, per the bitmap word addressing rule.
func (a *Arena) wordForCell(areaOffset uintptr, cell uint32) *uint32 {
	return a.wordAt(areaOffset, uintptr(cell)/wordCells)
}

// bitIndex is the bit position of cell within its word.
func bitIndex(cell uint32) uint32 { return cell % wordCells }

// cellState decodes the state of cell without a range check; callers must
// ensure cell is already known to be in [FirstCellID, LastCellID).
func (a *Arena) cellState(cell uint32) CellState {
	bit := bitIndex(cell)
	block := (*a.wordForCell(blockAreaOffset, cell) >> bit) & 1
	mark := (*a.wordForCell(markAreaOffset, cell) >> bit) & 1

	return CellState(block<<1 | mark)
}

// setCell writes the state of cell without a range check, preserving every
// other bit in the two words it touches.
func (a *Arena) setCell(cell uint32, state CellState) {
	bit := bitIndex(cell)

	blockWord := a.wordForCell(blockAreaOffset, cell)
	markWord := a.wordForCell(markAreaOffset, cell)

	*blockWord = setBit(*blockWord, bit, state&2 != 0)
	*markWord = setBit(*markWord, bit, state&1 != 0)
}

func setBit(word uint32, bit uint32, v bool) uint32 {
	if v {
		return word | 1<<bit
	}

	return word &^ (1 << bit)
}
