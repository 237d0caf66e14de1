package dtbpatch

import (
	"encoding/binary"
	"errors"
)

// Errors related to cell encoded property values.
var (
	ErrBadCellLength = errors.New("dtbpatch: property value length is not a multiple of 4")
	ErrTooManyCells  = errors.New("dtbpatch: address needs more than 2 cells")
)

// The size of a single cell within a property value.
const CellSize = 4

// The largest address that can be encoded in a single cell.
const MaxSingleCell = 0xFFFF_FFFF

// Split an address into the cells used to store it. Addresses that fit in 32
// bits use a single cell, anything larger uses two cells ordered high word
// first, matching `#address-cells = <2>`.
func Cells(addr uint64) []uint32 {
	if addr <= MaxSingleCell {
		return []uint32{uint32(addr)}
	}
	return []uint32{uint32(addr >> 32), uint32(addr & MaxSingleCell)}
}

// Fold one or two cells back into an address. Returns [ErrTooManyCells] for
// longer values.
func CellsValue(cells []uint32) (v uint64, err error) {
	if len(cells) == 0 || len(cells) > 2 {
		return 0, ErrTooManyCells
	}
	for _, c := range cells {
		v = v<<32 | uint64(c)
	}
	return v, nil
}

// Return the big-endian property value for the given cells.
func EncodeCells(cells []uint32) []byte {
	var value = make([]byte, 0, len(cells)*CellSize)
	for _, c := range cells {
		value = binary.BigEndian.AppendUint32(value, c)
	}
	return value
}

// Split a property value into cells. Returns [ErrBadCellLength] if the value
// is not a whole number of cells.
func DecodeCells(value []byte) ([]uint32, error) {
	if len(value)%CellSize != 0 {
		return nil, ErrBadCellLength
	}

	var cells = make([]uint32, 0, len(value)/CellSize)
	for offs := 0; offs < len(value); offs += CellSize {
		cells = append(cells, binary.BigEndian.Uint32(value[offs:]))
	}
	return cells, nil
}
