package page

import (
	"encoding/binary"
	"fmt"

	"coredb/types"
)

// Table page binary layout (all values little-endian):
//
//	Offset  Size  Field
//	───────────────────────────────────────────
//	0       4     PrevPageID      int32
//	4       4     NextPageID      int32
//	8       2     SlotCount       uint16  — total directory entries ever allocated
//	10      2     FreeSpacePtr    uint16  — first byte of the tuple region
//	───────────────────────────────────────────
//	12            TableHeaderSize
//
// The slot directory starts immediately after the header and grows forward
// (toward higher offsets) as tuples are inserted. Tuple bytes occupy the
// region [FreeSpacePtr, PageSize) and grow backward (toward lower offsets)
// from the tail of the page. A slot whose Size is 0 is free — either never
// used or reclaimed by ApplyDelete — and is eligible for reuse before the
// directory grows. A slot with the tombstone bit set still occupies its
// original bytes; MarkDelete only flags it, ApplyDelete reclaims the space.
//
// A slot entry is 5 bytes: Offset uint16, Size uint16, Flags uint8 (bit 0 =
// tombstone).
const (
	tableOffPrevPageID   = 0
	tableOffNextPageID   = 4
	tableOffSlotCount    = 8
	tableOffFreeSpacePtr = 10

	TableHeaderSize = 12
	tableSlotSize   = 5

	tombstoneBit = 0x01
)

// InitTablePage stamps a fresh table-page header. prevPageID is the id of
// the page that will link to this one via NextPageID; it has no successor
// yet.
func InitTablePage(data []byte, prevPageID types.PageID) {
	for i := range data {
		data[i] = 0
	}
	binary.LittleEndian.PutUint32(data[tableOffPrevPageID:], uint32(prevPageID))
	invalidNext := types.InvalidPageID
	binary.LittleEndian.PutUint32(data[tableOffNextPageID:], uint32(invalidNext))
	binary.LittleEndian.PutUint16(data[tableOffSlotCount:], 0)
	binary.LittleEndian.PutUint16(data[tableOffFreeSpacePtr:], uint16(types.PageSize))
}

func TablePrevPageID(data []byte) types.PageID {
	return types.PageID(int32(binary.LittleEndian.Uint32(data[tableOffPrevPageID:])))
}

func SetTablePrevPageID(data []byte, id types.PageID) {
	binary.LittleEndian.PutUint32(data[tableOffPrevPageID:], uint32(id))
}

func TableNextPageID(data []byte) types.PageID {
	return types.PageID(int32(binary.LittleEndian.Uint32(data[tableOffNextPageID:])))
}

func SetTableNextPageID(data []byte, id types.PageID) {
	binary.LittleEndian.PutUint32(data[tableOffNextPageID:], uint32(id))
}

func TableSlotCount(data []byte) uint16 {
	return binary.LittleEndian.Uint16(data[tableOffSlotCount:])
}

func setTableSlotCount(data []byte, n uint16) {
	binary.LittleEndian.PutUint16(data[tableOffSlotCount:], n)
}

func tableFreeSpacePtr(data []byte) uint16 {
	return binary.LittleEndian.Uint16(data[tableOffFreeSpacePtr:])
}

func setTableFreeSpacePtr(data []byte, off uint16) {
	binary.LittleEndian.PutUint16(data[tableOffFreeSpacePtr:], off)
}

func tableSlotOffset(slot uint16) int {
	return TableHeaderSize + int(slot)*tableSlotSize
}

func readTableSlot(data []byte, slot uint16) (offset, size uint16, tombstoned bool) {
	off := tableSlotOffset(slot)
	offset = binary.LittleEndian.Uint16(data[off:])
	size = binary.LittleEndian.Uint16(data[off+2:])
	tombstoned = data[off+4]&tombstoneBit != 0
	return
}

func writeTableSlot(data []byte, slot uint16, offset, size uint16, tombstoned bool) {
	off := tableSlotOffset(slot)
	binary.LittleEndian.PutUint16(data[off:], offset)
	binary.LittleEndian.PutUint16(data[off+2:], size)
	var flags uint8
	if tombstoned {
		flags = tombstoneBit
	}
	data[off+4] = flags
}

// TableFreeSpace returns the number of unused bytes between the directory
// and the tuple region.
func TableFreeSpace(data []byte) int {
	dirEnd := TableHeaderSize + int(TableSlotCount(data))*tableSlotSize
	return int(tableFreeSpacePtr(data)) - dirEnd
}

// findFreeSlot returns the index of a reclaimed (size == 0), non-tombstoned
// slot, if any.
func findFreeSlot(data []byte) (uint16, bool) {
	n := TableSlotCount(data)
	for i := uint16(0); i < n; i++ {
		_, size, tombstoned := readTableSlot(data, i)
		if size == 0 && !tombstoned {
			return i, true
		}
	}
	return 0, false
}

// InsertTuple appends tuple to the page, reusing a reclaimed slot if one
// exists. Returns the slot index and false if there is not enough room.
func InsertTuple(data []byte, tuple []byte) (slot uint16, ok bool) {
	size := uint16(len(tuple))
	if size == 0 {
		return 0, false
	}

	if reuse, found := findFreeSlot(data); found {
		if TableFreeSpace(data) < int(size) {
			return 0, false
		}
		newPtr := tableFreeSpacePtr(data) - size
		copy(data[newPtr:newPtr+size], tuple)
		setTableFreeSpacePtr(data, newPtr)
		writeTableSlot(data, reuse, newPtr, size, false)
		return reuse, true
	}

	if TableFreeSpace(data) < int(size)+tableSlotSize {
		return 0, false
	}
	newSlot := TableSlotCount(data)
	newPtr := tableFreeSpacePtr(data) - size
	copy(data[newPtr:newPtr+size], tuple)
	setTableFreeSpacePtr(data, newPtr)
	writeTableSlot(data, newSlot, newPtr, size, false)
	setTableSlotCount(data, newSlot+1)
	return newSlot, true
}

// GetTuple returns a copy of the tuple at slot. ok is false if slot is out
// of range, free, or tombstoned.
func GetTuple(data []byte, slot uint16) (tuple []byte, ok bool) {
	if slot >= TableSlotCount(data) {
		return nil, false
	}
	offset, size, tombstoned := readTableSlot(data, slot)
	if size == 0 || tombstoned {
		return nil, false
	}
	out := make([]byte, size)
	copy(out, data[offset:offset+size])
	return out, true
}

// SlotLive reports whether slot currently holds a readable, non-tombstoned
// tuple.
func SlotLive(data []byte, slot uint16) bool {
	if slot >= TableSlotCount(data) {
		return false
	}
	_, size, tombstoned := readTableSlot(data, slot)
	return size > 0 && !tombstoned
}

// MarkDelete flags slot as pending deletion without reclaiming its bytes.
// Returns false if slot is out of range, free, or already tombstoned.
func MarkDelete(data []byte, slot uint16) bool {
	if slot >= TableSlotCount(data) {
		return false
	}
	offset, size, tombstoned := readTableSlot(data, slot)
	if size == 0 || tombstoned {
		return false
	}
	writeTableSlot(data, slot, offset, size, true)
	return true
}

// RollbackDelete clears the tombstone bit on slot, restoring it to live.
func RollbackDelete(data []byte, slot uint16) bool {
	if slot >= TableSlotCount(data) {
		return false
	}
	offset, size, tombstoned := readTableSlot(data, slot)
	if size == 0 || !tombstoned {
		return false
	}
	writeTableSlot(data, slot, offset, size, false)
	return true
}

// ApplyDelete reclaims the tombstoned tuple at slot: it compacts the tuple
// region, freeing the bytes the tuple occupied, and marks the slot free for
// reuse by a future InsertTuple. Returns false if slot is out of range,
// free, or not currently tombstoned.
func ApplyDelete(data []byte, slot uint16) bool {
	if slot >= TableSlotCount(data) {
		return false
	}
	_, size, tombstoned := readTableSlot(data, slot)
	if size == 0 || !tombstoned {
		return false
	}

	type live struct {
		idx    uint16
		offset uint16
		size   uint16
		tomb   bool
	}
	n := TableSlotCount(data)
	var others []live
	for i := uint16(0); i < n; i++ {
		if i == slot {
			continue
		}
		off, sz, tomb := readTableSlot(data, i)
		if sz == 0 {
			continue
		}
		others = append(others, live{i, off, sz, tomb})
	}
	// Tuples are packed from the page's tail backward in insertion order, so
	// the one with the smallest offset was inserted most recently. Rebuild
	// the region from the tail, preserving that relative order, to avoid
	// disturbing any slot's logical position.
	for i := 0; i < len(others); i++ {
		for j := i + 1; j < len(others); j++ {
			if others[j].offset > others[i].offset {
				others[i], others[j] = others[j], others[i]
			}
		}
	}

	bytesCopy := make([][]byte, len(others))
	for i, l := range others {
		b := make([]byte, l.size)
		copy(b, data[l.offset:l.offset+l.size])
		bytesCopy[i] = b
	}

	ptr := uint16(types.PageSize)
	for i, l := range others {
		ptr -= l.size
		copy(data[ptr:ptr+l.size], bytesCopy[i])
		writeTableSlot(data, l.idx, ptr, l.size, l.tomb)
	}
	setTableFreeSpacePtr(data, ptr)
	writeTableSlot(data, slot, 0, 0, false)
	return true
}

// UpdateTupleInPlace overwrites the tuple at slot with newTuple without
// moving it, when newTuple fits within the slot's existing allocation.
// Returns false if slot is out of range, free, tombstoned, or newTuple is
// larger than the slot's current size — callers must compensate for growth
// themselves (spec.md's resolved open question on UpdateTuple semantics).
func UpdateTupleInPlace(data []byte, slot uint16, newTuple []byte) bool {
	if slot >= TableSlotCount(data) {
		return false
	}
	offset, size, tombstoned := readTableSlot(data, slot)
	if size == 0 || tombstoned || uint16(len(newTuple)) > size {
		return false
	}
	for i := offset; i < offset+size; i++ {
		data[i] = 0
	}
	copy(data[offset:offset+uint16(len(newTuple))], newTuple)
	writeTableSlot(data, slot, offset, uint16(len(newTuple)), false)
	return true
}

// NextLiveSlot returns the smallest slot index >= from that holds a live
// tuple, and true, or false if none exists on this page.
func NextLiveSlot(data []byte, from uint16) (uint16, bool) {
	n := TableSlotCount(data)
	for i := from; i < n; i++ {
		if SlotLive(data, i) {
			return i, true
		}
	}
	return 0, false
}

// ValidateTablePage returns an error if internal bookkeeping is
// inconsistent; used by tests, not by production control flow.
func ValidateTablePage(data []byte) error {
	dirEnd := TableHeaderSize + int(TableSlotCount(data))*tableSlotSize
	if dirEnd > int(tableFreeSpacePtr(data)) {
		return fmt.Errorf("page: slot directory (end %d) overlaps tuple region (starts %d)", dirEnd, tableFreeSpacePtr(data))
	}
	return nil
}
