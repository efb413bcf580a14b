// Package bufferpool implements the fixed-size page cache that sits
// between every higher layer (table heap, B+ tree, catalog) and the disk
// manager. It owns a fixed array of frames, the logical-page-to-frame
// table, the free-frame list, and an LRU replacer, and enforces the
// pin/unpin discipline that keeps a page safe to read or write only while
// it is pinned.
//
// One mutex serializes every operation: no exported method calls another
// exported method while holding it.
package bufferpool

import (
	"fmt"
	"sync"

	humanize "github.com/dustin/go-humanize"

	diskmanager "coredb/storage_engine/disk_manager"
	"coredb/storage_engine/page"
	"coredb/storage_engine/replacer"
	"coredb/types"
)

// BufferPoolManager manages a pool of page frames shared by every
// component above it (table heap, B+ tree, catalog, recovery).
type BufferPoolManager struct {
	frames      []*page.Frame
	pageTable   map[types.PageID]types.FrameID
	freeList    []types.FrameID
	replacer    *replacer.LRUReplacer
	diskManager *diskmanager.DiskManager

	mu sync.Mutex
}

// NewBufferPoolManager allocates poolSize frames, all initially free.
func NewBufferPoolManager(poolSize int, dm *diskmanager.DiskManager) *BufferPoolManager {
	bp := &BufferPoolManager{
		frames:      make([]*page.Frame, poolSize),
		pageTable:   make(map[types.PageID]types.FrameID),
		freeList:    make([]types.FrameID, poolSize),
		replacer:    replacer.NewLRUReplacer(),
		diskManager: dm,
	}
	for i := 0; i < poolSize; i++ {
		bp.frames[i] = page.NewFrame()
		bp.freeList[i] = types.FrameID(i)
	}
	return bp
}

// PoolSize returns the fixed number of frames in the pool.
func (bp *BufferPoolManager) PoolSize() int { return len(bp.frames) }

// tryFindFreeFrame pops a frame from the free list, or evicts the
// replacer's LRU victim, writing it back first if dirty. Assumes bp.mu is
// held. Returns an error only when neither source yields a frame, i.e.
// every frame is pinned — pool exhaustion.
func (bp *BufferPoolManager) tryFindFreeFrame() (types.FrameID, error) {
	if n := len(bp.freeList); n > 0 {
		fid := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return fid, nil
	}

	victim, ok := bp.replacer.Victim()
	if !ok {
		return types.InvalidFrameID, fmt.Errorf("bufferpool: pool exhausted, all frames pinned")
	}
	fid := types.FrameID(victim)
	frame := bp.frames[fid]

	frame.Lock()
	if frame.IsDirty {
		if err := bp.diskManager.WritePage(frame.PageID, frame.Data); err != nil {
			frame.Unlock()
			return types.InvalidFrameID, fmt.Errorf("bufferpool: writeback victim frame %d: %w", fid, err)
		}
	}
	oldID := frame.PageID
	frame.Unlock()

	delete(bp.pageTable, oldID)
	return fid, nil
}

// FetchPage returns the frame holding id, pinning it. Loads from disk on a
// miss. Returns an error if the pool is exhausted or the read fails.
func (bp *BufferPoolManager) FetchPage(id types.PageID) (*page.Frame, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if fid, ok := bp.pageTable[id]; ok {
		frame := bp.frames[fid]
		frame.Lock()
		frame.PinCount++
		frame.Unlock()
		bp.replacer.Pin(int32(fid))
		return frame, nil
	}

	fid, err := bp.tryFindFreeFrame()
	if err != nil {
		return nil, err
	}
	frame := bp.frames[fid]

	buf := make([]byte, types.PageSize)
	if err := bp.diskManager.ReadPage(id, buf); err != nil {
		bp.freeList = append(bp.freeList, fid)
		return nil, fmt.Errorf("bufferpool: FetchPage %d: %w", id, err)
	}

	frame.Lock()
	frame.PageID = id
	frame.Data = buf
	frame.PinCount = 1
	frame.IsDirty = false
	frame.Unlock()

	bp.pageTable[id] = fid
	bp.replacer.Pin(int32(fid))
	return frame, nil
}

// NewPage allocates a fresh logical page via the disk manager, binds it to
// a frame, zeroes its contents, and returns it pinned with PinCount 1.
func (bp *BufferPoolManager) NewPage() (*page.Frame, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, err := bp.tryFindFreeFrame()
	if err != nil {
		return nil, err
	}

	id, err := bp.diskManager.AllocatePage()
	if err != nil {
		bp.freeList = append(bp.freeList, fid)
		return nil, fmt.Errorf("bufferpool: NewPage: allocate: %w", err)
	}

	frame := bp.frames[fid]
	frame.Lock()
	frame.PageID = id
	frame.Data = make([]byte, types.PageSize)
	frame.PinCount = 1
	frame.IsDirty = false
	frame.Unlock()

	bp.pageTable[id] = fid
	bp.replacer.Pin(int32(fid))
	return frame, nil
}

// UnpinPage decrements id's pin count. isDirty is OR-ed into the frame's
// dirty flag — a page already marked dirty by an earlier writer must never
// be cleared by a later clean unpin from a different borrower. Returns
// false if id is not resident or already at pin count 0.
func (bp *BufferPoolManager) UnpinPage(id types.PageID, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.pageTable[id]
	if !ok {
		return false
	}
	frame := bp.frames[fid]

	frame.Lock()
	if frame.PinCount <= 0 {
		frame.Unlock()
		return false
	}
	frame.PinCount--
	if isDirty {
		frame.IsDirty = true
	}
	reachedZero := frame.PinCount == 0
	frame.Unlock()

	if reachedZero {
		bp.replacer.Unpin(int32(fid))
	}
	return true
}

// FlushPage writes id to disk if dirty. Returns false if id is not
// resident or the write fails.
func (bp *BufferPoolManager) FlushPage(id types.PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.flushLocked(id)
}

func (bp *BufferPoolManager) flushLocked(id types.PageID) bool {
	fid, ok := bp.pageTable[id]
	if !ok {
		return false
	}
	frame := bp.frames[fid]

	frame.Lock()
	defer frame.Unlock()
	if !frame.IsDirty {
		return true
	}
	if err := bp.diskManager.WritePage(id, frame.Data); err != nil {
		return false
	}
	frame.IsDirty = false
	return true
}

// FlushAllPages writes every dirty resident page to disk.
func (bp *BufferPoolManager) FlushAllPages() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for id := range bp.pageTable {
		if !bp.flushLocked(id) {
			return fmt.Errorf("bufferpool: FlushAllPages: failed to flush page %d", id)
		}
	}
	return nil
}

// DeletePage removes id from the pool and deallocates it on disk. Returns
// true if id is absent (nothing to do) or was successfully removed; false
// if id is still pinned.
func (bp *BufferPoolManager) DeletePage(id types.PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	fid, ok := bp.pageTable[id]
	if !ok {
		return true
	}
	frame := bp.frames[fid]

	frame.Lock()
	if frame.PinCount > 0 {
		frame.Unlock()
		return false
	}
	frame.Unlock()

	delete(bp.pageTable, id)
	bp.replacer.Pin(int32(fid)) // drop any eviction candidacy before recycling
	frame.Reset()
	bp.freeList = append(bp.freeList, fid)

	if err := bp.diskManager.DeallocatePage(id); err != nil {
		return false
	}
	return true
}

// Close flushes every dirty page before shutdown.
func (bp *BufferPoolManager) Close() error {
	return bp.FlushAllPages()
}

// Stats reports occupancy for diagnostics and tests.
type Stats struct {
	TotalPages  int
	PinnedPages int
	DirtyPages  int
	Capacity    int
}

func (bp *BufferPoolManager) Stats() Stats {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	s := Stats{TotalPages: len(bp.pageTable), Capacity: len(bp.frames)}
	for _, fid := range bp.pageTable {
		frame := bp.frames[fid]
		frame.RLock()
		if frame.PinCount > 0 {
			s.PinnedPages++
		}
		if frame.IsDirty {
			s.DirtyPages++
		}
		frame.RUnlock()
	}
	return s
}

// String renders occupancy as "123/512 pages resident (45 dirty, 504 kB)".
func (s Stats) String() string {
	bytes := uint64(s.TotalPages) * uint64(types.PageSize)
	return fmt.Sprintf("%d/%d pages resident (%d dirty, %s)",
		s.TotalPages, s.Capacity, s.DirtyPages, humanize.Bytes(bytes))
}
