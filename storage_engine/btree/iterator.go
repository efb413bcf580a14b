package btree

import (
	"coredb/storage_engine/page"
	"coredb/types"
)

// Iterator walks a tree's leaves in key order. It holds exactly one leaf
// page pinned at a time, released on every advance and on Close, the same
// single-pinned-leaf discipline the source's own iterator uses.
type Iterator struct {
	tree *BPlusTree
	leaf *page.Frame
	idx  int
}

// Begin returns an iterator positioned at the first key in the tree.
func (t *BPlusTree) Begin() (*Iterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == types.InvalidPageID {
		return &Iterator{}, nil
	}
	leaf, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	return &Iterator{tree: t, leaf: leaf, idx: 0}, nil
}

// BeginAt returns an iterator positioned at the first key >= key.
func (t *BPlusTree) BeginAt(key []byte) (*Iterator, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == types.InvalidPageID {
		return &Iterator{}, nil
	}
	leaf, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}
	idx, _ := t.leafSearch(leaf.Data, key)
	if idx >= int(page.BTreeSize(leaf.Data)) {
		nextID := page.BTreeNextPageID(leaf.Data)
		t.bp.UnpinPage(leaf.PageID, false)
		if nextID == types.InvalidPageID {
			return &Iterator{}, nil
		}
		next, err := t.bp.FetchPage(nextID)
		if err != nil {
			return nil, err
		}
		return &Iterator{tree: t, leaf: next, idx: 0}, nil
	}
	return &Iterator{tree: t, leaf: leaf, idx: idx}, nil
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool { return it.leaf != nil }

// Key returns the current entry's key. Only valid while Valid() is true.
func (it *Iterator) Key() []byte { return page.KeyAt(it.leaf.Data, it.idx) }

// Value returns the current entry's RowId. Only valid while Valid() is true.
func (it *Iterator) Value() types.RowID { return page.LeafValueAt(it.leaf.Data, it.idx) }

// Next advances the iterator, following the leaf sibling chain and
// releasing the page left behind.
func (it *Iterator) Next() error {
	if it.leaf == nil {
		return nil
	}
	it.idx++
	if it.idx < int(page.BTreeSize(it.leaf.Data)) {
		return nil
	}
	nextID := page.BTreeNextPageID(it.leaf.Data)
	it.tree.bp.UnpinPage(it.leaf.PageID, false)
	if nextID == types.InvalidPageID {
		it.leaf = nil
		return nil
	}
	frame, err := it.tree.bp.FetchPage(nextID)
	if err != nil {
		it.leaf = nil
		return err
	}
	it.leaf = frame
	it.idx = 0
	return nil
}

// Close releases the iterator's pinned leaf, if any. Safe to call more
// than once.
func (it *Iterator) Close() {
	if it.leaf == nil {
		return
	}
	it.tree.bp.UnpinPage(it.leaf.PageID, false)
	it.leaf = nil
}
