// Package page holds the raw frame type shared by the buffer pool and every
// typed page layout (table page, B+ tree internal/leaf page, index roots
// page, catalog meta page). The typed layouts live in their own files in
// this package and operate on a Frame's Data buffer as standalone
// functions, the same way the source keeps one page format shared across
// table and index code without embedding one in the other.
package page

import (
	"sync"

	"coredb/types"
)

// Frame is one page-sized slot in the buffer pool: a raw buffer plus the
// bookkeeping the pool needs to decide what's safe to evict.
type Frame struct {
	PageID   types.PageID
	Data     []byte
	IsDirty  bool
	PinCount int32

	mu sync.RWMutex
}

// NewFrame allocates a frame with a zeroed PageSize buffer, unbound to any
// page (PageID == InvalidPageID).
func NewFrame() *Frame {
	return &Frame{
		PageID: types.InvalidPageID,
		Data:   make([]byte, types.PageSize),
	}
}

// Reset clears a frame for reuse by a different logical page.
func (f *Frame) Reset() {
	f.PageID = types.InvalidPageID
	f.IsDirty = false
	f.PinCount = 0
	for i := range f.Data {
		f.Data[i] = 0
	}
}

func (f *Frame) Lock()    { f.mu.Lock() }
func (f *Frame) Unlock()  { f.mu.Unlock() }
func (f *Frame) RLock()   { f.mu.RLock() }
func (f *Frame) RUnlock() { f.mu.RUnlock() }
