// Package heap implements the heap-organized table: a linked list of table
// pages threaded by NextPageId, rooted at the owning table's first_page_id.
// Tuples are identified by RowId (page id, slot). Every FetchPage/NewPage is
// matched by exactly one UnpinPage on every exit path, the same discipline
// the B+ tree's btree package follows.
package heap

import (
	"fmt"
	"sync"

	"coredb/storage_engine/bufferpool"
	"coredb/storage_engine/page"
	"coredb/types"
)

// TableHeap is the page chain backing one table's rows. firstPageID is
// persisted in the table's catalog metadata; the heap itself only holds it
// in memory once opened.
type TableHeap struct {
	bp          *bufferpool.BufferPoolManager
	firstPageID types.PageID

	mu sync.Mutex
}

// Create allocates the first page of a brand-new table heap and returns it,
// pinned-then-released, ready for inserts.
func Create(bp *bufferpool.BufferPoolManager) (*TableHeap, error) {
	frame, err := bp.NewPage()
	if err != nil {
		return nil, fmt.Errorf("heap: create: %w", err)
	}
	page.InitTablePage(frame.Data, types.InvalidPageID)
	first := frame.PageID
	bp.UnpinPage(first, true)
	return &TableHeap{bp: bp, firstPageID: first}, nil
}

// Open wraps an existing page chain rooted at firstPageID, as read back
// from a table's catalog metadata.
func Open(bp *bufferpool.BufferPoolManager, firstPageID types.PageID) *TableHeap {
	return &TableHeap{bp: bp, firstPageID: firstPageID}
}

// FirstPageID returns the root of the page chain, for persisting into the
// table's catalog metadata.
func (h *TableHeap) FirstPageID() types.PageID { return h.firstPageID }

// InsertTuple appends tuple to the first page with room, walking the chain
// and extending it with a freshly allocated page if every existing page is
// full. Returns the new RowId. A pool exhausted while allocating a new page
// fails the insert cleanly, leaving every existing tuple untouched.
func (h *TableHeap) InsertTuple(tuple []byte) (types.RowID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	pageID := h.firstPageID
	for {
		frame, err := h.bp.FetchPage(pageID)
		if err != nil {
			return types.InvalidRowID, fmt.Errorf("heap: insert: fetch %d: %w", pageID, err)
		}
		frame.Lock()
		slot, ok := page.InsertTuple(frame.Data, tuple)
		if ok {
			frame.Unlock()
			h.bp.UnpinPage(pageID, true)
			return types.RowID{PageID: pageID, Slot: slot}, nil
		}
		next := page.TableNextPageID(frame.Data)
		frame.Unlock()

		if next != types.InvalidPageID {
			h.bp.UnpinPage(pageID, false)
			pageID = next
			continue
		}

		newFrame, err := h.bp.NewPage()
		if err != nil {
			h.bp.UnpinPage(pageID, false)
			return types.InvalidRowID, fmt.Errorf("heap: insert: allocate new page: %w", err)
		}
		page.InitTablePage(newFrame.Data, pageID)
		newID := newFrame.PageID
		h.bp.UnpinPage(newID, true)

		frame.Lock()
		page.SetTableNextPageID(frame.Data, newID)
		frame.Unlock()
		h.bp.UnpinPage(pageID, true)

		pageID = newID
	}
}

// GetTuple reads the tuple at rid. ok is false if the page is missing, the
// slot is out of range, free, or tombstoned.
func (h *TableHeap) GetTuple(rid types.RowID) (tuple []byte, ok bool, err error) {
	frame, err := h.bp.FetchPage(rid.PageID)
	if err != nil {
		return nil, false, fmt.Errorf("heap: get tuple: %w", err)
	}
	frame.RLock()
	tuple, ok = page.GetTuple(frame.Data, rid.Slot)
	frame.RUnlock()
	h.bp.UnpinPage(rid.PageID, false)
	return tuple, ok, nil
}

// MarkDelete flags rid's slot as pending deletion without reclaiming its
// bytes. Returns false if rid's page doesn't exist or the slot isn't live.
func (h *TableHeap) MarkDelete(rid types.RowID) (bool, error) {
	frame, err := h.bp.FetchPage(rid.PageID)
	if err != nil {
		return false, fmt.Errorf("heap: mark delete: %w", err)
	}
	frame.Lock()
	ok := page.MarkDelete(frame.Data, rid.Slot)
	frame.Unlock()
	h.bp.UnpinPage(rid.PageID, true)
	return ok, nil
}

// RollbackDelete clears rid's tombstone, restoring it to live.
func (h *TableHeap) RollbackDelete(rid types.RowID) (bool, error) {
	frame, err := h.bp.FetchPage(rid.PageID)
	if err != nil {
		return false, fmt.Errorf("heap: rollback delete: %w", err)
	}
	frame.Lock()
	ok := page.RollbackDelete(frame.Data, rid.Slot)
	frame.Unlock()
	h.bp.UnpinPage(rid.PageID, true)
	return ok, nil
}

// ApplyDelete reclaims the slot and compacts rid's page.
func (h *TableHeap) ApplyDelete(rid types.RowID) (bool, error) {
	frame, err := h.bp.FetchPage(rid.PageID)
	if err != nil {
		return false, fmt.Errorf("heap: apply delete: %w", err)
	}
	frame.Lock()
	ok := page.ApplyDelete(frame.Data, rid.Slot)
	frame.Unlock()
	h.bp.UnpinPage(rid.PageID, true)
	return ok, nil
}

// UpdateTuple replaces rid's tuple in place if newTuple fits within the
// slot's existing allocation. Returns ok=false, with the tuple untouched,
// if the new tuple is larger — per spec.md's resolved open question, the
// source fails rather than silently doing a delete-then-insert; callers
// that need to grow a tuple must compensate explicitly.
func (h *TableHeap) UpdateTuple(rid types.RowID, newTuple []byte) (ok bool, err error) {
	frame, err := h.bp.FetchPage(rid.PageID)
	if err != nil {
		return false, fmt.Errorf("heap: update tuple: %w", err)
	}
	frame.Lock()
	ok = page.UpdateTupleInPlace(frame.Data, rid.Slot, newTuple)
	frame.Unlock()
	h.bp.UnpinPage(rid.PageID, ok)
	return ok, nil
}

// DeleteTable recursively frees every page in the chain, starting from
// firstPageID, through the buffer pool's DeletePage.
func (h *TableHeap) DeleteTable() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deletePageChain(h.firstPageID)
}

func (h *TableHeap) deletePageChain(pageID types.PageID) error {
	if pageID == types.InvalidPageID {
		return nil
	}
	frame, err := h.bp.FetchPage(pageID)
	if err != nil {
		return fmt.Errorf("heap: delete table: fetch %d: %w", pageID, err)
	}
	next := page.TableNextPageID(frame.Data)
	h.bp.UnpinPage(pageID, false)

	if err := h.deletePageChain(next); err != nil {
		return err
	}
	if !h.bp.DeletePage(pageID) {
		return fmt.Errorf("heap: delete table: page %d still pinned", pageID)
	}
	return nil
}
