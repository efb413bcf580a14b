package page

import (
	"encoding/binary"
	"fmt"

	"coredb/types"
)

// B+ tree page binary layout (all values little-endian).
//
// Common header, present on both page types:
//
//	Offset  Size  Field
//	─────────────────────────────────────────
//	0       1     PageType        uint8  — 0 = internal, 1 = leaf
//	1       2     Size            uint16 — live entry count
//	3       2     MaxSize         uint16
//	5       4     ParentPageID    int32
//	9       2     KeySize         uint16 — fixed width of every key on this page
//	11      4     PageID          int32  — this page's own id, for validation
//	─────────────────────────────────────────
//	15            BTreeCommonHeaderSize
//
// Leaf pages carry one more field right after the common header:
//
//	15      4     NextPageID      int32  — right sibling, INVALID if none
//	─────────────────────────────────────────
//	19            BTreeLeafHeaderSize
//
// Payload is a packed array of fixed-width entries starting at the page's
// header size. Each entry is `KeySize` bytes of key followed by a
// fixed-width value: 4 bytes (a page id) on an internal page, 6 bytes (a
// RowId: page id + slot) on a leaf page. Entry i occupies
// [header + i*entrySize, header + (i+1)*entrySize).
//
// Internal-page entry 0's key is a placeholder (−∞) and is never compared;
// only entries 1..size-1 carry real separators.
const (
	btreeOffPageType     = 0
	btreeOffSize         = 1
	btreeOffMaxSize      = 3
	btreeOffParentPageID = 5
	btreeOffKeySize      = 9
	btreeOffPageID       = 11

	BTreeCommonHeaderSize = 15

	btreeOffNextPageID  = 15
	BTreeLeafHeaderSize = 19

	PageTypeInternal uint8 = 0
	PageTypeLeaf     uint8 = 1

	internalValueSize = 4 // page id
	leafValueSize     = 6 // RowId: page id (4) + slot (2)
)

func BTreePageType(data []byte) uint8 { return data[btreeOffPageType] }

func BTreeIsLeaf(data []byte) bool { return BTreePageType(data) == PageTypeLeaf }

func BTreeSize(data []byte) uint16 { return binary.LittleEndian.Uint16(data[btreeOffSize:]) }

func setBTreeSize(data []byte, n uint16) { binary.LittleEndian.PutUint16(data[btreeOffSize:], n) }

func BTreeMaxSize(data []byte) uint16 { return binary.LittleEndian.Uint16(data[btreeOffMaxSize:]) }

func BTreeParentPageID(data []byte) types.PageID {
	return types.PageID(int32(binary.LittleEndian.Uint32(data[btreeOffParentPageID:])))
}

func SetBTreeParentPageID(data []byte, id types.PageID) {
	binary.LittleEndian.PutUint32(data[btreeOffParentPageID:], uint32(id))
}

func BTreeKeySize(data []byte) uint16 { return binary.LittleEndian.Uint16(data[btreeOffKeySize:]) }

func BTreePageID(data []byte) types.PageID {
	return types.PageID(int32(binary.LittleEndian.Uint32(data[btreeOffPageID:])))
}

func BTreeNextPageID(data []byte) types.PageID {
	return types.PageID(int32(binary.LittleEndian.Uint32(data[btreeOffNextPageID:])))
}

func SetBTreeNextPageID(data []byte, id types.PageID) {
	binary.LittleEndian.PutUint32(data[btreeOffNextPageID:], uint32(id))
}

// InitInternalPage stamps a fresh, empty internal page.
func InitInternalPage(data []byte, pageID, parentPageID types.PageID, keySize, maxSize uint16) {
	for i := range data {
		data[i] = 0
	}
	data[btreeOffPageType] = PageTypeInternal
	setBTreeSize(data, 0)
	binary.LittleEndian.PutUint16(data[btreeOffMaxSize:], maxSize)
	SetBTreeParentPageID(data, parentPageID)
	binary.LittleEndian.PutUint16(data[btreeOffKeySize:], keySize)
	binary.LittleEndian.PutUint32(data[btreeOffPageID:], uint32(pageID))
}

// InitLeafPage stamps a fresh, empty leaf page.
func InitLeafPage(data []byte, pageID, parentPageID types.PageID, keySize, maxSize uint16) {
	for i := range data {
		data[i] = 0
	}
	data[btreeOffPageType] = PageTypeLeaf
	setBTreeSize(data, 0)
	binary.LittleEndian.PutUint16(data[btreeOffMaxSize:], maxSize)
	SetBTreeParentPageID(data, parentPageID)
	binary.LittleEndian.PutUint16(data[btreeOffKeySize:], keySize)
	binary.LittleEndian.PutUint32(data[btreeOffPageID:], uint32(pageID))
	SetBTreeNextPageID(data, types.InvalidPageID)
}

func btreeHeaderSize(data []byte) int {
	if BTreeIsLeaf(data) {
		return BTreeLeafHeaderSize
	}
	return BTreeCommonHeaderSize
}

func btreeValueSize(data []byte) int {
	if BTreeIsLeaf(data) {
		return leafValueSize
	}
	return internalValueSize
}

func btreeEntrySize(data []byte) int {
	return int(BTreeKeySize(data)) + btreeValueSize(data)
}

func btreeEntryOffset(data []byte, i int) int {
	return btreeHeaderSize(data) + i*btreeEntrySize(data)
}

// BTreeCapacity returns how many entries of this page's key/value width
// physically fit after the header — an upper bound tighter than MaxSize is
// never used, but callers computing MaxSize at tree-creation time should
// not exceed it.
func BTreeCapacity(data []byte) int {
	avail := types.PageSize - btreeHeaderSize(data)
	return avail / btreeEntrySize(data)
}

// KeyAt returns a copy of the key of entry i.
func KeyAt(data []byte, i int) []byte {
	off := btreeEntryOffset(data, i)
	keySize := int(BTreeKeySize(data))
	key := make([]byte, keySize)
	copy(key, data[off:off+keySize])
	return key
}

// SetKeyAt overwrites the key of entry i in place.
func SetKeyAt(data []byte, i int, key []byte) {
	off := btreeEntryOffset(data, i)
	copy(data[off:off+int(BTreeKeySize(data))], key)
}

// InternalValueAt returns the child page id stored in entry i of an
// internal page.
func InternalValueAt(data []byte, i int) types.PageID {
	off := btreeEntryOffset(data, i) + int(BTreeKeySize(data))
	return types.PageID(int32(binary.LittleEndian.Uint32(data[off:])))
}

func SetInternalValueAt(data []byte, i int, child types.PageID) {
	off := btreeEntryOffset(data, i) + int(BTreeKeySize(data))
	binary.LittleEndian.PutUint32(data[off:], uint32(child))
}

// LeafValueAt returns the RowId stored in entry i of a leaf page.
func LeafValueAt(data []byte, i int) types.RowID {
	off := btreeEntryOffset(data, i) + int(BTreeKeySize(data))
	pid := types.PageID(int32(binary.LittleEndian.Uint32(data[off:])))
	slot := binary.LittleEndian.Uint16(data[off+4:])
	return types.RowID{PageID: pid, Slot: slot}
}

func SetLeafValueAt(data []byte, i int, rid types.RowID) {
	off := btreeEntryOffset(data, i) + int(BTreeKeySize(data))
	binary.LittleEndian.PutUint32(data[off:], uint32(rid.PageID))
	binary.LittleEndian.PutUint16(data[off+4:], rid.Slot)
}

// rawEntry returns the entry's full byte range (key+value).
func rawEntry(data []byte, i int) []byte {
	off := btreeEntryOffset(data, i)
	return data[off : off+btreeEntrySize(data)]
}

// InsertInternalEntryAt shifts entries [i, size) one slot to the right and
// writes (key, child) at position i, incrementing size. Caller must ensure
// size < MaxSize before calling.
func InsertInternalEntryAt(data []byte, i int, key []byte, child types.PageID) {
	shiftRight(data, i)
	SetKeyAt(data, i, key)
	SetInternalValueAt(data, i, child)
	setBTreeSize(data, BTreeSize(data)+1)
}

// InsertLeafEntryAt shifts entries [i, size) one slot to the right and
// writes (key, rid) at position i, incrementing size.
func InsertLeafEntryAt(data []byte, i int, key []byte, rid types.RowID) {
	shiftRight(data, i)
	SetKeyAt(data, i, key)
	SetLeafValueAt(data, i, rid)
	setBTreeSize(data, BTreeSize(data)+1)
}

func shiftRight(data []byte, from int) {
	size := int(BTreeSize(data))
	for i := size; i > from; i-- {
		copy(rawEntry(data, i), rawEntry(data, i-1))
	}
}

// RemoveEntryAt shifts entries [i+1, size) one slot to the left,
// decrementing size.
func RemoveEntryAt(data []byte, i int) {
	size := int(BTreeSize(data))
	for j := i; j < size-1; j++ {
		copy(rawEntry(data, j), rawEntry(data, j+1))
	}
	setBTreeSize(data, uint16(size-1))
}

// MoveEntriesTo copies the entries [from, size) of src to the end of dst's
// current entries (dst must already have matching KeySize and page type),
// appending them in order, then truncates src to `from` entries. Used by
// leaf and internal splits.
func MoveEntriesTo(src, dst []byte, from int) {
	srcSize := int(BTreeSize(src))
	dstSize := int(BTreeSize(dst))
	for i := from; i < srcSize; i++ {
		copy(rawEntry(dst, dstSize+(i-from)), rawEntry(src, i))
	}
	setBTreeSize(dst, uint16(dstSize+(srcSize-from)))
	setBTreeSize(src, uint16(from))
}

// ValidateBTreePage reports a consistency error for tests and assertions.
func ValidateBTreePage(data []byte) error {
	size := int(BTreeSize(data))
	maxSize := int(BTreeMaxSize(data))
	if size > maxSize {
		return fmt.Errorf("page: size %d exceeds max_size %d", size, maxSize)
	}
	if btreeHeaderSize(data)+size*btreeEntrySize(data) > types.PageSize {
		return fmt.Errorf("page: entries overflow page bounds")
	}
	return nil
}
