package diskmanager

import (
	"path/filepath"
	"testing"

	"coredb/types"
)

func newTestDiskManager(t *testing.T) *DiskManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	return dm
}

func TestAllocateDeallocateMonotonicity(t *testing.T) {
	dm := newTestDiskManager(t)

	var ids []types.PageID
	for i := 0; i < 5; i++ {
		id, err := dm.AllocatePage()
		if err != nil {
			t.Fatalf("AllocatePage: %v", err)
		}
		for _, prev := range ids {
			if prev == id {
				t.Fatalf("AllocatePage returned duplicate id %d", id)
			}
		}
		ids = append(ids, id)
	}

	if err := dm.DeallocatePage(ids[2]); err != nil {
		t.Fatalf("DeallocatePage: %v", err)
	}
	free, err := dm.IsPageFree(ids[2])
	if err != nil || !free {
		t.Fatalf("expected page %d free, err=%v", ids[2], err)
	}

	reused, err := dm.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage after free: %v", err)
	}
	if reused != ids[2] {
		t.Fatalf("expected reuse of freed id %d, got %d", ids[2], reused)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	dm := newTestDiskManager(t)

	id, err := dm.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}

	want := make([]byte, types.PageSize)
	for i := range want {
		want[i] = byte(i % 251)
	}
	if err := dm.WritePage(id, want); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got := make([]byte, types.PageSize)
	if err := dm.ReadPage(id, got); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("round trip mismatch")
	}
}

func TestReadPastEOFZeroFills(t *testing.T) {
	dm := newTestDiskManager(t)

	id, err := dm.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage: %v", err)
	}

	buf := make([]byte, types.PageSize)
	if err := dm.ReadPage(id, buf); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("expected zero-filled page, byte %d = %d", i, b)
		}
	}
}

func TestAllocatesNewExtentWhenFull(t *testing.T) {
	dm := newTestDiskManager(t)

	for i := 0; i < dm.bitmapCap+1; i++ {
		if _, err := dm.AllocatePage(); err != nil {
			t.Fatalf("AllocatePage %d: %v", i, err)
		}
	}

	stats := dm.Stats()
	if stats.NumExtents != 2 {
		t.Fatalf("expected 2 extents after overflowing the first, got %d", stats.NumExtents)
	}
	if stats.NumAllocatedPages != uint32(dm.bitmapCap+1) {
		t.Fatalf("expected %d allocated pages, got %d", dm.bitmapCap+1, stats.NumAllocatedPages)
	}
}

func TestBitmapConsistencyInvariant(t *testing.T) {
	dm := newTestDiskManager(t)

	for i := 0; i < 20; i++ {
		if _, err := dm.AllocatePage(); err != nil {
			t.Fatalf("AllocatePage: %v", err)
		}
	}
	for i := types.PageID(0); i < 5; i++ {
		if err := dm.DeallocatePage(i); err != nil {
			t.Fatalf("DeallocatePage: %v", err)
		}
	}

	stats := dm.Stats()
	var total uint32
	for _, u := range stats.ExtentUsed {
		total += u
	}
	if total != stats.NumAllocatedPages {
		t.Fatalf("sum of extent_used (%d) != num_allocated_pages (%d)", total, stats.NumAllocatedPages)
	}
}

func TestReopenPersistsMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	dm, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := dm.AllocatePage(); err != nil {
			t.Fatalf("AllocatePage: %v", err)
		}
	}
	if err := dm.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dm2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer dm2.Close()

	stats := dm2.Stats()
	if stats.NumAllocatedPages != 3 {
		t.Fatalf("expected 3 allocated pages after reopen, got %d", stats.NumAllocatedPages)
	}
}
