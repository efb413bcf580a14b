package heap

import (
	"coredb/storage_engine/page"
	"coredb/types"
)

// Iterator walks a table heap's live tuples in page-chain order. It holds
// exactly one page pinned at a time, released on every advance and on
// Close, the same single-pinned-page discipline the B+ tree iterator uses.
type Iterator struct {
	h       *TableHeap
	pageID  types.PageID
	slot    uint16
	frame   *page.Frame
	atEnd   bool
}

// Begin locates the first live tuple by scanning the first page's slot
// directory, following NextPageId if that page has none.
func (h *TableHeap) Begin() (*Iterator, error) {
	it := &Iterator{h: h, pageID: h.firstPageID}
	if err := it.loadFirstOnPage(h.firstPageID); err != nil {
		return nil, err
	}
	return it, nil
}

// loadFirstOnPage positions the iterator at the first live tuple at or
// after pageID, following the chain forward, releasing every page it
// passes through but didn't land on.
func (it *Iterator) loadFirstOnPage(pageID types.PageID) error {
	for pageID != types.InvalidPageID {
		frame, err := it.h.bp.FetchPage(pageID)
		if err != nil {
			return err
		}
		frame.RLock()
		slot, ok := page.NextLiveSlot(frame.Data, 0)
		next := page.TableNextPageID(frame.Data)
		frame.RUnlock()

		if ok {
			it.pageID = pageID
			it.slot = slot
			it.frame = frame
			it.atEnd = false
			return nil
		}
		it.h.bp.UnpinPage(pageID, false)
		pageID = next
	}
	it.atEnd = true
	it.frame = nil
	return nil
}

// Valid reports whether the iterator is positioned at a live tuple.
func (it *Iterator) Valid() bool { return !it.atEnd }

// RowID returns the current position's RowId. Only valid while Valid().
func (it *Iterator) RowID() types.RowID { return types.RowID{PageID: it.pageID, Slot: it.slot} }

// Tuple returns a copy of the current tuple. Only valid while Valid().
func (it *Iterator) Tuple() []byte {
	it.frame.RLock()
	defer it.frame.RUnlock()
	tuple, _ := page.GetTuple(it.frame.Data, it.slot)
	return tuple
}

// Next advances to the next live slot on the current page, then to the
// next page in the chain when the current page is exhausted.
func (it *Iterator) Next() error {
	if it.atEnd {
		return nil
	}
	it.frame.RLock()
	slot, ok := page.NextLiveSlot(it.frame.Data, it.slot+1)
	next := page.TableNextPageID(it.frame.Data)
	it.frame.RUnlock()

	if ok {
		it.slot = slot
		return nil
	}
	pageID := it.pageID
	it.h.bp.UnpinPage(pageID, false)
	it.frame = nil
	return it.loadFirstOnPage(next)
}

// Close releases the iterator's pinned page, if any. Safe to call more than
// once.
func (it *Iterator) Close() {
	if it.frame == nil {
		return
	}
	it.h.bp.UnpinPage(it.pageID, false)
	it.frame = nil
	it.atEnd = true
}
