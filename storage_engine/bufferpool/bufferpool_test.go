package bufferpool

import (
	"path/filepath"
	"testing"

	diskmanager "coredb/storage_engine/disk_manager"
	"coredb/types"
)

func newTestPool(t *testing.T, poolSize int) (*BufferPoolManager, *diskmanager.DiskManager) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := diskmanager.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	return NewBufferPoolManager(poolSize, dm), dm
}

// TestStrictLRUEviction reproduces the buffer pool LRU scenario: a pool of
// three frames, three pages allocated and unpinned clean in turn, then two
// more pages brought in, each of which must evict the LRU frame.
func TestStrictLRUEviction(t *testing.T) {
	bp, _ := newTestPool(t, 3)

	var ids []types.PageID
	for i := 0; i < 3; i++ {
		f, err := bp.NewPage()
		if err != nil {
			t.Fatalf("NewPage: %v", err)
		}
		ids = append(ids, f.PageID)
	}
	for _, id := range ids {
		if !bp.UnpinPage(id, false) {
			t.Fatalf("UnpinPage(%d) failed", id)
		}
	}

	// All three frames are now unpinned and tracked LRU-oldest first:
	// ids[0], ids[1], ids[2].
	f3, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage (4th): %v", err)
	}
	fourth := f3.PageID
	bp.UnpinPage(fourth, false)

	stats := bp.Stats()
	if stats.TotalPages != 3 {
		t.Fatalf("expected pool still at 3 resident pages after eviction, got %d", stats.TotalPages)
	}

	// ids[0] should have been evicted to make room; fetching it again must
	// miss and in turn evict ids[1] (now the new LRU victim).
	refetched, err := bp.FetchPage(ids[0])
	if err != nil {
		t.Fatalf("FetchPage(ids[0]) after eviction: %v", err)
	}
	if refetched.PageID != ids[0] {
		t.Fatalf("expected refetched page id %d, got %d", ids[0], refetched.PageID)
	}
	bp.UnpinPage(ids[0], false)
}

func TestPinnedFramesAreNotEvicted(t *testing.T) {
	bp, _ := newTestPool(t, 2)

	f1, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	_, err = bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	// Neither page unpinned yet — both frames are pinned, pool is full.

	if _, err := bp.NewPage(); err == nil {
		t.Fatalf("expected pool exhaustion error, got nil")
	}

	if !bp.UnpinPage(f1.PageID, false) {
		t.Fatalf("UnpinPage failed")
	}
	if _, err := bp.NewPage(); err != nil {
		t.Fatalf("expected NewPage to succeed after unpinning a frame: %v", err)
	}
}

func TestUnpinDirtyIsSticky(t *testing.T) {
	bp, _ := newTestPool(t, 1)

	f, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	id := f.PageID

	// Simulate a second borrower pinning the same page, marking it dirty,
	// then a first borrower's clean unpin arriving after.
	if _, err := bp.FetchPage(id); err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	bp.UnpinPage(id, true)  // second borrower: dirty
	bp.UnpinPage(id, false) // first borrower: clean — must not clear dirty

	f.RLock()
	dirty := f.IsDirty
	f.RUnlock()
	if !dirty {
		t.Fatalf("expected dirty flag to remain set after a later clean unpin")
	}
}

func TestFlushPageWritesThrough(t *testing.T) {
	bp, dm := newTestPool(t, 1)

	f, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	id := f.PageID
	f.Lock()
	f.Data[0] = 0xAB
	f.Unlock()
	bp.UnpinPage(id, true)

	if !bp.FlushPage(id) {
		t.Fatalf("FlushPage failed")
	}

	buf := make([]byte, types.PageSize)
	if err := dm.ReadPage(id, buf); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if buf[0] != 0xAB {
		t.Fatalf("expected flushed byte 0xAB, got %x", buf[0])
	}
}

func TestDeletePageRejectsPinned(t *testing.T) {
	bp, _ := newTestPool(t, 1)

	f, err := bp.NewPage()
	if err != nil {
		t.Fatalf("NewPage: %v", err)
	}
	id := f.PageID

	if bp.DeletePage(id) {
		t.Fatalf("expected DeletePage to fail while page is pinned")
	}
	bp.UnpinPage(id, false)
	if !bp.DeletePage(id) {
		t.Fatalf("expected DeletePage to succeed once unpinned")
	}
}
