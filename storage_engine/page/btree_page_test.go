package page

import (
	"bytes"
	"testing"

	"coredb/types"
)

func keyOf(n int32) []byte {
	k := make([]byte, 4)
	k[0] = byte(n >> 24)
	k[1] = byte(n >> 16)
	k[2] = byte(n >> 8)
	k[3] = byte(n)
	return k
}

func TestLeafInsertAndRead(t *testing.T) {
	data := make([]byte, types.PageSize)
	InitLeafPage(data, 1, types.InvalidPageID, 4, 4)

	InsertLeafEntryAt(data, 0, keyOf(10), types.RowID{PageID: 5, Slot: 1})
	InsertLeafEntryAt(data, 1, keyOf(30), types.RowID{PageID: 7, Slot: 2})
	InsertLeafEntryAt(data, 1, keyOf(20), types.RowID{PageID: 6, Slot: 3}) // insert between

	if BTreeSize(data) != 3 {
		t.Fatalf("expected size 3, got %d", BTreeSize(data))
	}
	for i, want := range []int32{10, 20, 30} {
		if !bytes.Equal(KeyAt(data, i), keyOf(want)) {
			t.Fatalf("entry %d key = %v, want %v", i, KeyAt(data, i), keyOf(want))
		}
	}
	if rid := LeafValueAt(data, 1); rid.PageID != 6 || rid.Slot != 3 {
		t.Fatalf("entry 1 value = %+v", rid)
	}
}

func TestInternalInsertAndRead(t *testing.T) {
	data := make([]byte, types.PageSize)
	InitInternalPage(data, 1, types.InvalidPageID, 4, 4)

	InsertInternalEntryAt(data, 0, keyOf(0), 100) // placeholder key
	InsertInternalEntryAt(data, 1, keyOf(10), 200)
	InsertInternalEntryAt(data, 2, keyOf(20), 300)

	if BTreeSize(data) != 3 {
		t.Fatalf("expected size 3, got %d", BTreeSize(data))
	}
	if InternalValueAt(data, 0) != 100 || InternalValueAt(data, 1) != 200 || InternalValueAt(data, 2) != 300 {
		t.Fatalf("unexpected children")
	}
}

func TestRemoveEntryAt(t *testing.T) {
	data := make([]byte, types.PageSize)
	InitLeafPage(data, 1, types.InvalidPageID, 4, 4)
	InsertLeafEntryAt(data, 0, keyOf(1), types.RowID{PageID: 1, Slot: 0})
	InsertLeafEntryAt(data, 1, keyOf(2), types.RowID{PageID: 2, Slot: 0})
	InsertLeafEntryAt(data, 2, keyOf(3), types.RowID{PageID: 3, Slot: 0})

	RemoveEntryAt(data, 1)
	if BTreeSize(data) != 2 {
		t.Fatalf("expected size 2, got %d", BTreeSize(data))
	}
	if !bytes.Equal(KeyAt(data, 0), keyOf(1)) || !bytes.Equal(KeyAt(data, 1), keyOf(3)) {
		t.Fatalf("unexpected keys after removal")
	}
}

func TestMoveEntriesToSplitsLeaf(t *testing.T) {
	src := make([]byte, types.PageSize)
	InitLeafPage(src, 1, types.InvalidPageID, 4, 4)
	for i := int32(1); i <= 4; i++ {
		InsertLeafEntryAt(src, int(i-1), keyOf(i), types.RowID{PageID: types.PageID(i), Slot: 0})
	}

	dst := make([]byte, types.PageSize)
	InitLeafPage(dst, 2, types.InvalidPageID, 4, 4)

	MoveEntriesTo(src, dst, 2) // move upper half

	if BTreeSize(src) != 2 || BTreeSize(dst) != 2 {
		t.Fatalf("expected 2/2 split, got src=%d dst=%d", BTreeSize(src), BTreeSize(dst))
	}
	if !bytes.Equal(KeyAt(dst, 0), keyOf(3)) || !bytes.Equal(KeyAt(dst, 1), keyOf(4)) {
		t.Fatalf("unexpected dst keys after move")
	}
}

func TestBTreeCapacityAndValidate(t *testing.T) {
	data := make([]byte, types.PageSize)
	InitLeafPage(data, 1, types.InvalidPageID, 4, 4)
	if BTreeCapacity(data) <= 0 {
		t.Fatalf("expected positive capacity")
	}
	if err := ValidateBTreePage(data); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
